package encoding

import (
	"testing"

	"voxelwfc.ai/internal/sim/voxel"
)

func TestStates_RoundTrip(t *testing.T) {
	in := make([]int, 0, 200)
	in = append(in, 1, 1, 1, 2, 2, Unresolved, 3)
	for i := 0; i < 50; i++ {
		in = append(in, 0)
	}
	in = append(in, Unresolved, Unresolved, 63, 5, 5)

	enc, err := EncodeStates(in)
	if err != nil {
		t.Fatalf("EncodeStates: %v", err)
	}
	out, err := DecodeStates(enc, len(in))
	if err != nil {
		t.Fatalf("DecodeStates: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len mismatch: got %d want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("mismatch at %d: got %d want %d", i, out[i], in[i])
		}
	}
	if got := Runs(in); got != 8 {
		t.Fatalf("runs=%d want 8", got)
	}
}

func TestStates_Rejects(t *testing.T) {
	if _, err := EncodeStates([]int{0, -2}); err == nil {
		t.Fatalf("expected error for state below Unresolved")
	}
	enc, _ := EncodeStates([]int{1, 1, 1, 1})
	if _, err := DecodeStates(enc, 3); err == nil {
		t.Fatalf("expected length error for short want")
	}
	if _, err := DecodeStates(enc, 8); err == nil {
		t.Fatalf("expected length error for long want")
	}
	if _, err := DecodeStates("!!not base64", 0); err == nil {
		t.Fatalf("expected base64 error")
	}
	// (code=1, run=0)
	if _, err := DecodeStates("AQA=", 0); err == nil {
		t.Fatalf("expected zero-run error")
	}
	if _, err := EncodeStates([]int{voxel.MaxStates}); err == nil {
		t.Fatalf("expected error for state %d", voxel.MaxStates)
	}
	// (code=65, run=1) is one past the last state id.
	if _, err := DecodeStates("QQE=", 0); err == nil {
		t.Fatalf("expected error for code above MaxStates")
	}
	// (code=64, run=1) is state 63.
	out, err := DecodeStates("QAE=", 1)
	if err != nil || out[0] != voxel.MaxStates-1 {
		t.Fatalf("last state id: %v %v", out, err)
	}
}

func TestStates_UniformChunkIsOneRun(t *testing.T) {
	in := make([]int, 16*16*16)
	enc, err := EncodeStates(in)
	if err != nil {
		t.Fatalf("EncodeStates: %v", err)
	}
	if len(enc) > 8 {
		t.Fatalf("uniform chunk encoded to %d bytes: %q", len(enc), enc)
	}
}
