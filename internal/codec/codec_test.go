package codec

import (
	"math"
	"testing"

	"media-render/internal/rational"
)

func TestSampleFormatAlternate(t *testing.T) {
	tests := []struct {
		in   SampleFormat
		want SampleFormat
	}{
		{SampleFormatFLT, SampleFormatFLTP},
		{SampleFormatFLTP, SampleFormatFLT},
		{SampleFormatS16, SampleFormatS16P},
		{SampleFormatDBLP, SampleFormatDBL},
		{SampleFormatU8, SampleFormatU8P},
		{SampleFormatNone, SampleFormatNone},
	}
	for _, tt := range tests {
		t.Run(tt.in.String(), func(t *testing.T) {
			if got := tt.in.Alternate(); got != tt.want {
				t.Errorf("%v.Alternate() = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestBytesPerSample(t *testing.T) {
	if SampleFormatS16P.BytesPerSample() != 2 {
		t.Errorf("Expected 2 bytes for s16p, got %d", SampleFormatS16P.BytesPerSample())
	}
	if SampleFormatDBL.BytesPerSample() != 8 {
		t.Errorf("Expected 8 bytes for dbl, got %d", SampleFormatDBL.BytesPerSample())
	}
	if SampleFormatNone.BytesPerSample() != 0 {
		t.Errorf("Expected 0 bytes for none, got %d", SampleFormatNone.BytesPerSample())
	}
}

func TestParseSampleFormat(t *testing.T) {
	f, err := ParseSampleFormat(" FLTP ")
	if err != nil || f != SampleFormatFLTP {
		t.Errorf("Expected fltp, got %v (err %v)", f, err)
	}
	if _, err := ParseSampleFormat("none"); err == nil {
		t.Error("Expected error for none")
	}
}

func TestSampleConversionAcrossLayouts(t *testing.T) {
	src := [][]float32{
		{0, 0.5, -0.5, 1},
		{0.25, -0.25, 0.75, -1},
	}

	formats := []SampleFormat{
		SampleFormatFLT, SampleFormatFLTP, SampleFormatS16, SampleFormatS16P,
		SampleFormatS32, SampleFormatDBLP,
	}
	for _, format := range formats {
		t.Run(format.String(), func(t *testing.T) {
			spec := AudioSpec{SampleRate: 48000, Channels: 2, Format: format}
			planes, err := EncodeSamples(src, spec)
			if err != nil {
				t.Fatalf("EncodeSamples failed: %v", err)
			}
			if format.Planar() && len(planes) != 2 {
				t.Fatalf("Expected 2 planes, got %d", len(planes))
			}
			got, err := DecodeSamples(&Frame{Kind: KindAudio, Audio: spec, Samples: 4, Planes: planes})
			if err != nil {
				t.Fatalf("DecodeSamples failed: %v", err)
			}
			for c := range src {
				for i := range src[c] {
					if math.Abs(float64(got[c][i]-src[c][i])) > 1e-3 {
						t.Errorf("channel %d sample %d: got %v, want %v", c, i, got[c][i], src[c][i])
					}
				}
			}
		})
	}
}

func TestRescale(t *testing.T) {
	from := rational.MustNew(1, 1000)
	to := rational.MustNew(1, 90000)
	if got := Rescale(40, from, to); got != 3600 {
		t.Errorf("Expected 3600, got %d", got)
	}
	if got := Rescale(NoPTS, from, to); got != NoPTS {
		t.Errorf("Expected NoPTS to be preserved, got %d", got)
	}
}
