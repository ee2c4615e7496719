package hwaccel

import (
	"context"
	"errors"
	"runtime"
	"testing"

	"media-render/internal/codec"
	"media-render/internal/codec/codectest"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", Software, false},
		{"software", Software, false},
		{"SW", Software, false},
		{"hardware-native", HardwareNative, false},
		{"native", HardwareNative, false},
		{"hardware-copy", HardwareCopy, false},
		{"copy", HardwareCopy, false},
		{"turbo", Software, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error=%v, got %v", tt.wantErr, err)
			}
			if got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestCandidates(t *testing.T) {
	auto := []string{"cuda", "vaapi", "qsv"}
	if runtime.GOOS == "darwin" {
		auto = []string{"videotoolbox"}
	}

	tests := []struct {
		selector string
		want     []string
		wantErr  bool
	}{
		{"auto", auto, false},
		{"", auto, false},
		{"nvidia", []string{"cuda"}, false},
		{"vaapi", []string{"vaapi"}, false},
		{"videotoolbox", []string{"videotoolbox"}, false},
		{"qsv", []string{"qsv"}, false},
		{"none", nil, false},
		{"voodoo", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.selector, func(t *testing.T) {
			got, err := Candidates(tt.selector)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error=%v, got %v", tt.wantErr, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Expected %v, got %v", tt.want, got)
				}
			}
		})
	}
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name       string
		enabled    []string
		cfg        Config
		wantMode   Mode
		wantDevice string
	}{
		{"software requested", []string{"cuda"}, Config{Mode: Software, Device: "nvidia"}, Software, ""},
		{"device available", []string{"vaapi"}, Config{Mode: HardwareNative, Device: "vaapi"}, HardwareNative, "vaapi"},
		{"copy mode", []string{"cuda"}, Config{Mode: HardwareCopy, Device: "nvidia"}, HardwareCopy, "cuda"},
		{"device missing falls back", nil, Config{Mode: HardwareNative, Device: "nvidia"}, Software, ""},
		{"device disabled", []string{"cuda"}, Config{Mode: HardwareNative, Device: "none"}, Software, ""},
		{"unknown selector falls back", []string{"cuda"}, Config{Mode: HardwareNative, Device: "voodoo"}, Software, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := codectest.New()
			for _, d := range tt.enabled {
				b.EnableDevice(d)
			}
			s := Select(context.Background(), b, tt.cfg)
			defer s.Close()

			if s.Mode() != tt.wantMode {
				t.Errorf("Expected mode %v, got %v", tt.wantMode, s.Mode())
			}
			if s.DeviceType() != tt.wantDevice {
				t.Errorf("Expected device %q, got %q", tt.wantDevice, s.DeviceType())
			}
		})
	}
}

func TestSelectAutoTriesEachCandidate(t *testing.T) {
	if runtime.GOOS == "darwin" {
		t.Skip("auto has a single candidate on darwin")
	}
	b := codectest.New()
	b.EnableDevice("qsv")

	s := Select(context.Background(), b, Config{Mode: HardwareNative, Device: "auto"})
	defer s.Close()

	if s.DeviceType() != "qsv" {
		t.Errorf("Expected auto to reach qsv, got %q", s.DeviceType())
	}
}

func TestStrategyDecoderOptions(t *testing.T) {
	b := codectest.New()
	b.EnableDevice("cuda")
	s := Select(context.Background(), b, Config{Mode: HardwareNative, Device: "nvidia"})
	defer s.Close()

	if opts := s.DecoderOptions(codec.KindVideo, 4); opts.Device == nil || opts.Threads != 4 {
		t.Errorf("Expected video decoder to get the device and 4 threads, got %+v", opts)
	}
	if opts := s.DecoderOptions(codec.KindAudio, 2); opts.Device != nil {
		t.Error("Expected audio decoder to stay in software")
	}
}

func TestStrategyDemote(t *testing.T) {
	b := codectest.New()
	b.EnableDevice("cuda")
	s := Select(context.Background(), b, Config{Mode: HardwareCopy, Device: "nvidia"})

	if !s.NeedsTransfer() {
		t.Fatal("Expected copy mode to need transfers")
	}
	s.Demote("encoder", errors.New("no surface format"))

	if s.Hardware() || s.NeedsTransfer() {
		t.Error("Expected software after demotion")
	}
	if s.Device() != nil {
		t.Error("Expected no device after demotion")
	}
	if err := s.Close(); err != nil {
		t.Errorf("Expected clean close, got %v", err)
	}
}

func TestNilStrategy(t *testing.T) {
	var s *Strategy
	if s.Hardware() || s.Device() != nil || s.DeviceType() != "" {
		t.Error("Expected nil strategy to behave as software")
	}
	if err := s.Close(); err != nil {
		t.Errorf("Expected nil close to succeed, got %v", err)
	}
}
