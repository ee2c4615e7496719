package codec

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DecodeSamples reads an audio frame into one float32 slice per channel.
// Sample data is little endian, as produced by FFmpeg on supported targets.
func DecodeSamples(f *Frame) ([][]float32, error) {
	spec := f.Audio
	bps := spec.Format.BytesPerSample()
	if bps == 0 || spec.Channels <= 0 {
		return nil, fmt.Errorf("unsupported audio layout %v", spec)
	}

	out := make([][]float32, spec.Channels)
	for c := range out {
		out[c] = make([]float32, f.Samples)
	}

	if spec.Format.Planar() {
		if len(f.Planes) < spec.Channels {
			return nil, fmt.Errorf("planar frame has %d planes, want %d", len(f.Planes), spec.Channels)
		}
		for c := 0; c < spec.Channels; c++ {
			plane := f.Planes[c]
			if len(plane) < f.Samples*bps {
				return nil, fmt.Errorf("plane %d too short: %d bytes for %d samples", c, len(plane), f.Samples)
			}
			for i := 0; i < f.Samples; i++ {
				out[c][i] = readSample(plane[i*bps:], spec.Format)
			}
		}
		return out, nil
	}

	if len(f.Planes) == 0 {
		return nil, fmt.Errorf("packed frame has no data")
	}
	data := f.Planes[0]
	if len(data) < f.Samples*spec.Channels*bps {
		return nil, fmt.Errorf("packed frame too short: %d bytes for %d samples", len(data), f.Samples)
	}
	for i := 0; i < f.Samples; i++ {
		for c := 0; c < spec.Channels; c++ {
			off := (i*spec.Channels + c) * bps
			out[c][i] = readSample(data[off:], spec.Format)
		}
	}
	return out, nil
}

// EncodeSamples writes per-channel samples into planes laid out for spec.
func EncodeSamples(channels [][]float32, spec AudioSpec) ([][]byte, error) {
	bps := spec.Format.BytesPerSample()
	if bps == 0 || len(channels) != spec.Channels {
		return nil, fmt.Errorf("cannot encode %d channels as %v", len(channels), spec)
	}
	n := 0
	if len(channels) > 0 {
		n = len(channels[0])
	}

	if spec.Format.Planar() {
		planes := make([][]byte, spec.Channels)
		for c := range planes {
			planes[c] = make([]byte, n*bps)
			for i := 0; i < n; i++ {
				writeSample(planes[c][i*bps:], spec.Format, channels[c][i])
			}
		}
		return planes, nil
	}

	data := make([]byte, n*spec.Channels*bps)
	for i := 0; i < n; i++ {
		for c := 0; c < spec.Channels; c++ {
			writeSample(data[(i*spec.Channels+c)*bps:], spec.Format, channels[c][i])
		}
	}
	return [][]byte{data}, nil
}

func readSample(b []byte, f SampleFormat) float32 {
	switch f.Packed() {
	case SampleFormatU8:
		return (float32(b[0]) - 128) / 128
	case SampleFormatS16:
		return float32(int16(binary.LittleEndian.Uint16(b))) / 32768
	case SampleFormatS32:
		return float32(float64(int32(binary.LittleEndian.Uint32(b))) / 2147483648)
	case SampleFormatFLT:
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	case SampleFormatDBL:
		return float32(math.Float64frombits(binary.LittleEndian.Uint64(b)))
	}
	return 0
}

func writeSample(b []byte, f SampleFormat, v float32) {
	clipped := v
	if clipped > 1 {
		clipped = 1
	} else if clipped < -1 {
		clipped = -1
	}
	switch f.Packed() {
	case SampleFormatU8:
		b[0] = uint8(math.Round(float64(clipped)*127) + 128)
	case SampleFormatS16:
		binary.LittleEndian.PutUint16(b, uint16(int16(math.Round(float64(clipped)*32767))))
	case SampleFormatS32:
		binary.LittleEndian.PutUint32(b, uint32(int32(math.Round(float64(clipped)*2147483647))))
	case SampleFormatFLT:
		binary.LittleEndian.PutUint32(b, math.Float32bits(v))
	case SampleFormatDBL:
		binary.LittleEndian.PutUint64(b, math.Float64bits(float64(v)))
	}
}
