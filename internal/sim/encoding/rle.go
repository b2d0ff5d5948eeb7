package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"voxelwfc.ai/internal/sim/voxel"
)

// Unresolved marks a cell whose state is not decided yet.
const Unresolved = -1

// maxRun caps a single run so the varint stays small on 32-bit readers.
const maxRun = 1 << 31

// EncodeStates packs a chunk state array into base64(varint pairs).
// Pairs are (code, run_len) where code is state+1 and 0 means Unresolved.
func EncodeStates(states []int) (string, error) {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	for i := 0; i < len(states); {
		s := states[i]
		if s < Unresolved || s >= voxel.MaxStates {
			return "", fmt.Errorf("bad state %d at %d", s, i)
		}
		run := 1
		for j := i + 1; j < len(states) && states[j] == s && run < maxRun; j++ {
			run++
		}
		n := binary.PutUvarint(tmp[:], uint64(s+1))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])
		i += run
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeStates reverses EncodeStates. want > 0 rejects streams of a different length.
func DecodeStates(b64 string, want int) ([]int, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	out := make([]int, 0, want)
	for i := 0; i < len(raw); {
		code, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if code > voxel.MaxStates {
			return nil, fmt.Errorf("state code too large: %d", code)
		}
		if run == 0 {
			return nil, fmt.Errorf("zero run at %d", i)
		}
		if want > 0 && uint64(len(out))+run > uint64(want) {
			return nil, fmt.Errorf("stream longer than %d cells", want)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, int(code)-1)
		}
	}
	if want > 0 && len(out) != want {
		return nil, fmt.Errorf("stream has %d cells, want %d", len(out), want)
	}
	return out, nil
}

// Runs counts the (code, run) pairs EncodeStates would emit.
func Runs(states []int) int {
	runs := 0
	for i := 0; i < len(states); i++ {
		if i == 0 || states[i] != states[i-1] {
			runs++
		}
	}
	return runs
}
