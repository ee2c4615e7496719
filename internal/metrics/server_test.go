package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRouter(t *testing.T) {
	InitializeMetrics()
	router := NewRouter()

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"healthz", "/healthz", http.StatusOK, "ok"},
		{"metrics", "/metrics", http.StatusOK, "media_render_queue_depth"},
		{"unknown", "/nope", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.wantBody != "" && !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("Expected body to contain %q", tt.wantBody)
			}
		})
	}
}

func TestServerServeAndShutdown(t *testing.T) {
	srv, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	var resp *http.Response
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err = http.Get("http://" + srv.Addr() + "/healthz")
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /healthz failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if strings.TrimSpace(string(body)) != "ok" {
		t.Errorf("Expected body ok, got %q", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestSanitizeLogField(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "/metrics", "/metrics"},
		{"newline", "/a\nforged", "/a forged"},
		{"carriage return", "/a\r\nb", "/a  b"},
		{"escape", "/\x1b[31mred", "/[31mred"},
		{"null and delete", "a\x00b\x7fc", "abc"},
		{"tab kept", "a\tb", "a\tb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeLogField(tt.input); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header string
		remote string
		want   string
	}{
		{"remote addr", "", "10.0.0.1:5000", "10.0.0.1"},
		{"forwarded list", "1.2.3.4, 5.6.7.8", "10.0.0.1:5000", "1.2.3.4"},
		{"forwarded single", " 1.2.3.4 ", "10.0.0.1:5000", "1.2.3.4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			req.RemoteAddr = tt.remote
			if tt.header != "" {
				req.Header.Set("X-Forwarded-For", tt.header)
			}
			if got := clientIP(req); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestAccessLogCapturesStatus(t *testing.T) {
	var gotStatus int
	var gotBytes int64
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("short"))
		sw := w.(*statusWriter)
		gotStatus, gotBytes = sw.statusCode, sw.bytesWritten
	})

	rec := httptest.NewRecorder()
	accessLog(inner).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("Expected recorded status %d, got %d", http.StatusTeapot, rec.Code)
	}
	if gotStatus != http.StatusTeapot {
		t.Errorf("Expected captured status %d, got %d", http.StatusTeapot, gotStatus)
	}
	if gotBytes != 5 {
		t.Errorf("Expected 5 bytes, got %d", gotBytes)
	}
}

func TestAccessLine(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	got := accessLine(req, http.StatusOK, 42, 1500*time.Microsecond)
	want := "192.0.2.1 GET /metrics 200 42 1ms"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}
