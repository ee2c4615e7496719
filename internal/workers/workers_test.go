package workers

import (
	"runtime"
	"testing"
)

func TestCount(t *testing.T) {
	t.Setenv(EnvCodecThreads, "")
	available := runtime.GOMAXPROCS(0)

	tests := []struct {
		name       string
		multiplier float64
		limit      int
		want       int
	}{
		{"one per CPU", 1.0, 0, available},
		{"capped", 1.0, 1, 1},
		{"tiny multiplier floors at one", 0.0001, 0, 1},
		{"double", 2.0, 0, available * 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Count(tt.multiplier, tt.limit); got != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestCountWithEnvOverride(t *testing.T) {
	available := runtime.GOMAXPROCS(0)

	tests := []struct {
		name     string
		envValue string
		limit    int
		want     int
	}{
		{"valid override", "8", 0, 8},
		{"override capped by limit", "20", 10, 10},
		{"override below limit", "5", 10, 5},
		{"non-numeric ignored", "many", 0, available},
		{"zero ignored", "0", 0, available},
		{"negative ignored", "-3", 0, available},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvCodecThreads, tt.envValue)
			if got := Count(1.0, tt.limit); got != tt.want {
				t.Errorf("Expected %d with %s=%q, got %d", tt.want, EnvCodecThreads, tt.envValue, got)
			}
		})
	}
}

func TestForDecoders(t *testing.T) {
	t.Setenv(EnvCodecThreads, "")
	available := runtime.GOMAXPROCS(0)

	tests := []struct {
		name       string
		concurrent int
	}{
		{"single", 1},
		{"zero treated as one", 0},
		{"four layers", 4},
		{"more layers than CPUs", available * 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ForDecoders(tt.concurrent)
			if got < 1 || got > MaxCodecThreads {
				t.Errorf("Expected between 1 and %d, got %d", MaxCodecThreads, got)
			}
			c := tt.concurrent
			if c < 1 {
				c = 1
			}
			if got > 1 && got*c > available {
				t.Errorf("Expected %d decoders x %d threads to fit %d CPUs", c, got, available)
			}
		})
	}

	t.Run("override applies to every decoder", func(t *testing.T) {
		t.Setenv(EnvCodecThreads, "3")
		if got := ForDecoders(8); got != 3 {
			t.Errorf("Expected 3, got %d", got)
		}
	})
}

func TestForEncoder(t *testing.T) {
	t.Setenv(EnvCodecThreads, "")
	got := ForEncoder()
	if got < 1 || got > MaxCodecThreads {
		t.Errorf("Expected between 1 and %d, got %d", MaxCodecThreads, got)
	}
}
