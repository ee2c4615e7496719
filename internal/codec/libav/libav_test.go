package libav

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/asticode/go-astiav"

	"media-render/internal/codec"
	"media-render/internal/rational"
)

func TestPixelFormatMapping(t *testing.T) {
	for _, m := range pixelFormats {
		t.Run(m.ours.String(), func(t *testing.T) {
			if got := toPixelFormat(m.ours); got != m.theirs {
				t.Errorf("Expected %v, got %v", m.theirs, got)
			}
			if got := fromPixelFormat(m.theirs); got != m.ours {
				t.Errorf("Expected %v, got %v", m.ours, got)
			}
		})
	}
	if got := fromPixelFormat(astiav.PixelFormatBgra); got != codec.PixelFormatNone {
		t.Errorf("Expected none for bgra, got %v", got)
	}
}

func TestSampleFormatMapping(t *testing.T) {
	for _, m := range sampleFormats {
		t.Run(m.ours.String(), func(t *testing.T) {
			if got := toSampleFormat(m.ours); got != m.theirs {
				t.Errorf("Expected %v, got %v", m.theirs, got)
			}
			if got := fromSampleFormat(m.theirs); got != m.ours {
				t.Errorf("Expected %v, got %v", m.ours, got)
			}
		})
	}
}

func TestMapErr(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"nil", nil, nil},
		{"again", astiav.ErrEagain, codec.ErrAgain},
		{"eof", astiav.ErrEof, io.EOF},
		{"other", io.ErrUnexpectedEOF, io.ErrUnexpectedEOF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapErr(tt.in); !errors.Is(got, tt.want) && got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestTimestampMapping(t *testing.T) {
	if got := toPTS(astiav.NoPtsValue); got != codec.NoPTS {
		t.Errorf("Expected NoPTS, got %d", got)
	}
	if got := fromPTS(codec.NoPTS); got != astiav.NoPtsValue {
		t.Errorf("Expected NoPtsValue, got %d", got)
	}
	if got := toPTS(1234); got != 1234 {
		t.Errorf("Expected 1234, got %d", got)
	}

	r := rational.MustNew(1, 90000)
	if got := toRational(fromRational(r)); !got.Equal(r) {
		t.Errorf("Expected %s, got %s", r, got)
	}
	if got := toRational(astiav.NewRational(1, 0)); !got.IsZero() {
		t.Errorf("Expected zero for a zero denominator, got %s", got)
	}
}

func TestChannelLayout(t *testing.T) {
	for _, n := range []int{1, 2, 6} {
		l, err := channelLayout(n)
		if err != nil {
			t.Fatalf("channelLayout(%d): %v", n, err)
		}
		if l.Channels() != n {
			t.Errorf("Expected %d channels, got %d", n, l.Channels())
		}
	}
	if _, err := channelLayout(3); err == nil {
		t.Error("Expected an error for 3 channels")
	}
}

func TestPacked(t *testing.T) {
	t.Run("padded rgba rows", func(t *testing.T) {
		f := &codec.Frame{
			Kind:    codec.KindVideo,
			Video:   codec.VideoSpec{Width: 1, Height: 2, Format: codec.PixelFormatRGBA},
			Planes:  [][]byte{{1, 2, 3, 4, 0, 0, 5, 6, 7, 8, 0, 0}},
			Strides: []int{6},
		}
		want := []byte{1, 2, 3, 4, 5, 6, 7, 8}
		if got := packed(f); !bytes.Equal(got, want) {
			t.Errorf("Expected %v, got %v", want, got)
		}
	})
	t.Run("planar audio", func(t *testing.T) {
		f := &codec.Frame{
			Kind:   codec.KindAudio,
			Audio:  codec.AudioSpec{SampleRate: 8000, Channels: 2, Format: codec.SampleFormatU8P},
			Planes: [][]byte{{1, 2}, {3, 4}},
		}
		want := []byte{1, 2, 3, 4}
		if got := packed(f); !bytes.Equal(got, want) {
			t.Errorf("Expected %v, got %v", want, got)
		}
	})
}

func TestDictionary(t *testing.T) {
	d, err := dictionary(nil)
	if err != nil || d != nil {
		t.Errorf("Expected no dictionary for no options, got %v, %v", d, err)
	}
	d, err = dictionary(map[string]string{"preset": "fast", "crf": "23"})
	if err != nil {
		t.Fatalf("dictionary: %v", err)
	}
	defer d.Free()
	if e := d.Get("crf", nil, 0); e == nil || e.Value() != "23" {
		t.Errorf("Expected crf=23, got %v", e)
	}
}
