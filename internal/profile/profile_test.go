package profile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"media-render/internal/rational"
)

const twoAtoms = `{
	"id": "demo",
	"atoms": [
		{"id": "intro", "from": 0, "to": "5", "layers": [
			{"id": "bg", "source": "bg.mp4", "video": true, "audio": true, "end": 3},
			{"id": "music", "source": "music.m4a", "audio": true, "offset": "1/2", "gain": 0.5}
		]},
		{"id": "main", "from": 5, "duration": 2.5, "layers": [
			{"id": "clip", "source": "clip.mp4", "video": true, "start": 1, "end": 4}
		]}
	]
}`

func TestParseNormalizes(t *testing.T) {
	r, err := Parse([]byte(twoAtoms))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if !r.Duration.Equal(rational.MustNew(15, 2)) {
		t.Errorf("Expected duration 15/2, got %v", r.Duration)
	}

	main := r.Atoms[1]
	if !main.To.Equal(rational.MustNew(15, 2)) {
		t.Errorf("Expected main.To=15/2, got %v", main.To)
	}

	clip := main.Layers[0]
	if !clip.From.Equal(rational.FromInt(5)) || !clip.To.Equal(main.To) {
		t.Errorf("Expected clip placed at [5, 15/2), got [%v, %v)", clip.From, clip.To)
	}
	if !clip.Offset.IsZero() {
		t.Errorf("Expected zero offset, got %v", clip.Offset)
	}

	music := r.Atoms[0].Layers[1]
	if !music.From.Equal(rational.MustNew(1, 2)) {
		t.Errorf("Expected music.From=1/2, got %v", music.From)
	}
	if music.LinearGain() != 0.5 {
		t.Errorf("Expected gain 0.5, got %v", music.LinearGain())
	}
	if r.Atoms[0].Layers[0].LinearGain() != 1 {
		t.Errorf("Expected default gain 1, got %v", r.Atoms[0].Layers[0].LinearGain())
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{
			name: "gap between atoms",
			json: `{"atoms":[{"id":"a","from":0,"to":2,"layers":[]},{"id":"b","from":3,"to":4,"layers":[]}]}`,
		},
		{
			name: "overlapping atoms",
			json: `{"atoms":[{"id":"a","from":0,"to":2,"layers":[]},{"id":"b","from":1,"to":4,"layers":[]}]}`,
		},
		{
			name: "first atom not at zero",
			json: `{"atoms":[{"id":"a","from":1,"to":2,"layers":[]}]}`,
		},
		{
			name: "layer outside atom",
			json: `{"atoms":[{"id":"a","from":0,"to":2,"layers":[{"id":"l","source":"x","video":true,"to":3}]}]}`,
		},
		{
			name: "layer before atom",
			json: `{"atoms":[{"id":"a","from":0,"to":2,"layers":[]},{"id":"b","from":2,"to":4,"layers":[{"id":"l","source":"x","video":true,"from":1}]}]}`,
		},
		{
			name: "empty trim window",
			json: `{"atoms":[{"id":"a","from":0,"to":2,"layers":[{"id":"l","source":"x","video":true,"start":3,"end":3}]}]}`,
		},
		{
			name: "no media selected",
			json: `{"atoms":[{"id":"a","from":0,"to":2,"layers":[{"id":"l","source":"x"}]}]}`,
		},
		{
			name: "mismatched offset",
			json: `{"atoms":[{"id":"a","from":0,"to":2,"layers":[{"id":"l","source":"x","video":true,"from":1,"offset":"1/2"}]}]}`,
		},
		{
			name: "duplicate layer ids",
			json: `{"atoms":[{"id":"a","from":0,"to":2,"layers":[{"id":"l","source":"x","video":true},{"id":"l","source":"y","audio":true}]}]}`,
		},
		{
			name: "wrong total duration",
			json: `{"duration":5,"atoms":[{"id":"a","from":0,"to":2,"layers":[]}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.json))
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.json")
	if err := os.WriteFile(path, []byte(twoAtoms), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(r.Atoms) != 2 {
		t.Errorf("Expected 2 atoms, got %d", len(r.Atoms))
	}
	if got := r.Sources(); len(got) != 3 {
		t.Errorf("Expected 3 sources, got %v", got)
	}
	if !r.HasVideo() || !r.HasAudio() {
		t.Error("Expected profile to have both video and audio")
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestAtomIndex(t *testing.T) {
	r, err := Parse([]byte(twoAtoms))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	tests := []struct {
		t    rational.Rational
		want int
	}{
		{rational.Zero, 0},
		{rational.MustNew(49, 10), 0},
		{rational.FromInt(5), 1},
		{rational.MustNew(15, 2), -1},
	}
	for _, tt := range tests {
		if got := r.AtomIndex(tt.t); got != tt.want {
			t.Errorf("AtomIndex(%v) = %d, want %d", tt.t, got, tt.want)
		}
	}
}

func TestDigestStable(t *testing.T) {
	a, _ := Parse([]byte(twoAtoms))
	b, _ := Parse([]byte(twoAtoms))
	da, err := a.Digest()
	if err != nil {
		t.Fatalf("Digest failed: %v", err)
	}
	db, _ := b.Digest()
	if da != db || len(da) != 64 {
		t.Errorf("Expected equal 64-char digests, got %q and %q", da, db)
	}

	b.Atoms[0].Layers[0].Source = "other.mp4"
	if dc, _ := b.Digest(); dc == da {
		t.Error("Expected digest to change with the profile")
	}
}
