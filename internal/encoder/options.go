package encoder

import (
	"fmt"
	"sort"
	"strings"

	"media-render/internal/codec"
	"media-render/internal/rational"
)

// ParseOptions parses an option bag of the form "k=v,k2=v2". Keys are
// passed to the codec untouched; empty entries are ignored.
func ParseOptions(s string) (map[string]string, error) {
	opts := make(map[string]string)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("malformed codec option %q", part)
		}
		opts[key] = strings.TrimSpace(value)
	}
	return opts, nil
}

// FormatOptions renders an option bag back into its string form with keys
// sorted.
func FormatOptions(opts map[string]string) string {
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + opts[k]
	}
	return strings.Join(parts, ",")
}

// NegotiateSampleFormat returns requested if c accepts it, else its planar
// or packed counterpart if c accepts that, else SampleFormatNone. A codec
// without a format list accepts anything.
func NegotiateSampleFormat(c codec.EncoderCodec, requested codec.SampleFormat) codec.SampleFormat {
	if requested == codec.SampleFormatNone {
		return codec.SampleFormatNone
	}
	supported := c.SampleFormats()
	if len(supported) == 0 {
		return requested
	}
	alt := requested.Alternate()
	for _, want := range []codec.SampleFormat{requested, alt} {
		for _, f := range supported {
			if f == want {
				return f
			}
		}
	}
	return codec.SampleFormatNone
}

// samplesPerVideoFrame estimates an audio frame size from the video rate.
func samplesPerVideoFrame(sampleRate int, fps rational.Rational) int {
	if sampleRate <= 0 || fps.Sign() <= 0 {
		return defaultFrameSize
	}
	period, err := fps.Inv()
	if err != nil {
		return defaultFrameSize
	}
	n := int(period.Ticks(rational.MustNew(1, int64(sampleRate))))
	if n <= 0 {
		return defaultFrameSize
	}
	return n
}

func pickPixelFormat(c codec.EncoderCodec) codec.PixelFormat {
	formats := c.PixelFormats()
	for _, f := range formats {
		if f == codec.PixelFormatYUV420P {
			return f
		}
	}
	for _, f := range formats {
		if !f.Hardware() {
			return f
		}
	}
	return codec.PixelFormatYUV420P
}
