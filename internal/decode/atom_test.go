package decode

import (
	"context"
	"testing"

	"media-render/internal/codec/codectest"
	"media-render/internal/profile"
	"media-render/internal/rational"
)

func TestAtomWithoutLayersEndsImmediately(t *testing.T) {
	a := NewAtomSource(profile.Atom{ID: "empty", To: sec(1), Duration: sec(1)}, testEnv(codectest.New()))
	if err := a.Init(context.Background(), rational.Zero); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer a.Close()

	if a.IsLayersActive() {
		t.Error("Expected no active layers")
	}
	res := a.Decode(Args{})
	if res.Code != AtomEnded {
		t.Errorf("Expected atom ended, got %v", res.Code)
	}
	if res.AtomID != "empty" {
		t.Errorf("Expected atom id empty, got %q", res.AtomID)
	}
}

func twoLayerAtom(b *codectest.Backend) profile.Atom {
	b.Add("a", codectest.Media{Duration: sec(1), Video: true})
	b.Add("b", codectest.Media{Duration: sec(1), Video: true})
	return profile.Atom{
		ID: "pair", To: sec(1), Duration: sec(1),
		Layers: []profile.Layer{
			{ID: "a", Source: "a", Video: true, To: sec(1)},
			{ID: "b", Source: "b", Video: true, To: sec(1)},
		},
	}
}

func TestAtomRoundRobin(t *testing.T) {
	b := codectest.New()
	a := NewAtomSource(twoLayerAtom(b), testEnv(b))
	if err := a.Init(context.Background(), rational.Zero); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer a.Close()

	perLayer := map[string]int{}
	var order []string
	for i := 0; i < 1000; i++ {
		res := a.Decode(Args{})
		if res.Code == AtomEnded {
			break
		}
		if res.Code == OK {
			perLayer[res.LayerID]++
			order = append(order, res.LayerID)
		}
	}

	if perLayer["a"] != 25 || perLayer["b"] != 25 {
		t.Errorf("Expected 25 units per layer, got %v", perLayer)
	}
	if len(order) >= 2 && order[0] == order[1] {
		t.Errorf("Expected layers to alternate, got %v", order[:2])
	}
	if a.IsLayersActive() {
		t.Error("Expected no active layers after atom ended")
	}
	if res := a.Decode(Args{}); res.Code != AtomEnded {
		t.Errorf("Expected atom ended to repeat, got %v", res.Code)
	}
}

func TestAtomRespectsUntil(t *testing.T) {
	b := codectest.New()
	a := NewAtomSource(twoLayerAtom(b), testEnv(b))
	if err := a.Init(context.Background(), rational.Zero); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer a.Close()

	until := ratio(1, 2)
	for i := 0; i < 500; i++ {
		if front, ok := a.DecodeFront(); ok && !front.Less(until) {
			break
		}
		if res := a.Decode(UpTo(until)); res.Code == Error {
			t.Fatalf("Decode failed: %v", res.Err)
		}
	}

	front, ok := a.DecodeFront()
	if !ok || front.Less(until) {
		t.Fatalf("Expected front at or past %v, got %v", until, front)
	}
	if res := a.Decode(UpTo(until)); res.Code != Retry {
		t.Errorf("Expected retry once every layer is ahead, got %v", res.Code)
	}
	if res := a.Decode(Args{}); res.Code != OK {
		t.Errorf("Expected an unbounded step to decode, got %v", res.Code)
	}
}

func TestAtomZeroBoundHolds(t *testing.T) {
	b := codectest.New()
	a := NewAtomSource(twoLayerAtom(b), testEnv(b))
	if err := a.Init(context.Background(), rational.Zero); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer a.Close()

	before, _ := a.DecodeFront()
	for i := 0; i < 10; i++ {
		if res := a.Decode(UpTo(rational.Zero)); res.Code != Retry {
			t.Fatalf("Expected retry at a zero bound, got %v", res.Code)
		}
	}
	if after, _ := a.DecodeFront(); after.Cmp(before) != 0 {
		t.Errorf("Expected front to stay at %v, got %v", before, after)
	}

	decoded := false
	for i := 0; i < 50 && !decoded; i++ {
		decoded = a.Decode(Args{}).Code == OK
	}
	if !decoded {
		t.Error("Expected unbounded steps to decode")
	}
}
