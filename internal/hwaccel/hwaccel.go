package hwaccel

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"media-render/internal/codec"
	"media-render/internal/logging"
	"media-render/internal/metrics"
)

var log = logging.For("hwaccel")

// ErrUnknownDevice is returned for an unrecognized device selector.
var ErrUnknownDevice = errors.New("hwaccel: unknown device")

// Mode is the acceleration mode of a job.
type Mode int

const (
	// Software decodes and encodes on the CPU.
	Software Mode = iota
	// HardwareNative keeps frames on the device and encodes from the
	// decoder's own surfaces.
	HardwareNative
	// HardwareCopy keeps frames on the device but copies each surface into
	// the encoder's surface pool before encoding.
	HardwareCopy
)

func (m Mode) String() string {
	switch m {
	case HardwareNative:
		return "hardware_native"
	case HardwareCopy:
		return "hardware_copy"
	default:
		return "software"
	}
}

// ParseMode accepts "software", "hardware-native" and "hardware-copy", with
// short forms "sw", "native" and "copy".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "software", "sw", "none":
		return Software, nil
	case "hardware-native", "hardware_native", "native", "hw":
		return HardwareNative, nil
	case "hardware-copy", "hardware_copy", "copy":
		return HardwareCopy, nil
	}
	return Software, fmt.Errorf("unknown acceleration mode %q", s)
}

// Config is the job's acceleration request.
type Config struct {
	Mode Mode
	// Device is auto, nvidia, vaapi, videotoolbox, qsv or none.
	Device string
}

// Candidates returns the backend device types to try for a selector, in
// order of preference.
func Candidates(selector string) ([]string, error) {
	switch strings.ToLower(strings.TrimSpace(selector)) {
	case "", "auto":
		if runtime.GOOS == "darwin" {
			return []string{"videotoolbox"}, nil
		}
		return []string{"cuda", "vaapi", "qsv"}, nil
	case "nvidia", "nvenc", "cuda":
		return []string{"cuda"}, nil
	case "vaapi":
		return []string{"vaapi"}, nil
	case "videotoolbox":
		return []string{"videotoolbox"}, nil
	case "qsv":
		return []string{"qsv"}, nil
	case "none":
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, selector)
}

// Strategy is the acceleration capability chosen once per job and shared by
// every decoder and the encoder. A strategy can only ever be demoted to
// software, never promoted.
type Strategy struct {
	mu     sync.RWMutex
	mode   Mode
	device codec.HardwareDevice
}

// NewSoftware returns a software-only strategy.
func NewSoftware() *Strategy {
	return &Strategy{mode: Software}
}

// Select creates the device for cfg. Any failure is logged and yields a
// software strategy; it never fails the job.
func Select(ctx context.Context, backend codec.Backend, cfg Config) *Strategy {
	if cfg.Mode == Software {
		metrics.SetHWAccelMode(Software.String())
		return NewSoftware()
	}

	candidates, err := Candidates(cfg.Device)
	if err != nil {
		log.Warn("%v, using software", err)
		metrics.HWAccelFallbacks.WithLabelValues("device").Inc()
		metrics.SetHWAccelMode(Software.String())
		return NewSoftware()
	}
	if len(candidates) == 0 {
		log.Info("Hardware device disabled, using software")
		metrics.SetHWAccelMode(Software.String())
		return NewSoftware()
	}

	var errs []error
	for _, deviceType := range candidates {
		if ctx.Err() != nil {
			break
		}
		dev, err := backend.CreateHardwareDevice(deviceType)
		if err != nil {
			log.Debug("Device %s unavailable: %v", deviceType, err)
			errs = append(errs, err)
			continue
		}
		log.Info("Using %s device (%s)", deviceType, cfg.Mode)
		metrics.SetHWAccelMode(cfg.Mode.String())
		return &Strategy{mode: cfg.Mode, device: dev}
	}

	log.Warn("No hardware device among %v could be created, falling back to software: %v",
		candidates, errors.Join(errs...))
	metrics.HWAccelFallbacks.WithLabelValues("device").Inc()
	metrics.SetHWAccelMode(Software.String())
	return NewSoftware()
}

// Mode returns the current mode.
func (s *Strategy) Mode() Mode {
	if s == nil {
		return Software
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Hardware reports whether frames stay on a device.
func (s *Strategy) Hardware() bool {
	return s.Mode() != Software
}

// NeedsTransfer reports whether surfaces must be copied into the encoder pool.
func (s *Strategy) NeedsTransfer() bool {
	return s.Mode() == HardwareCopy
}

// Device returns the device, or nil in software mode.
func (s *Strategy) Device() codec.HardwareDevice {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.mode == Software {
		return nil
	}
	return s.device
}

// DeviceType returns the backend device type, or "" in software mode.
func (s *Strategy) DeviceType() string {
	if d := s.Device(); d != nil {
		return d.Type()
	}
	return ""
}

// DecoderOptions returns the options for opening a stream decoder. Only
// video streams are offered the device.
func (s *Strategy) DecoderOptions(kind codec.MediaKind, threads int) codec.DecoderOptions {
	opts := codec.DecoderOptions{Threads: threads}
	if kind == codec.KindVideo {
		opts.Device = s.Device()
	}
	return opts
}

// Demote switches the job to software after stage failed to use the device.
// The device stays open until Close so surfaces already handed out remain valid.
func (s *Strategy) Demote(stage string, reason error) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == Software {
		return
	}
	log.Warn("Hardware %s failed, switching job to software: %v", stage, reason)
	metrics.HWAccelFallbacks.WithLabelValues(stage).Inc()
	metrics.SetHWAccelMode(Software.String())
	s.mode = Software
}

// Close releases the device.
func (s *Strategy) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil {
		return nil
	}
	err := s.device.Close()
	s.device = nil
	s.mode = Software
	return err
}

// String describes the strategy for logs.
func (s *Strategy) String() string {
	if t := s.DeviceType(); t != "" {
		return fmt.Sprintf("%s (%s)", s.Mode(), t)
	}
	return s.Mode().String()
}
