package data

import (
	"encoding/binary"
	"math"
)

// Float32s decodes a little-endian float32 blob, the layout used for
// templates and tensors. Trailing bytes that do not form a full element
// are ignored.
func Float32s(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// PutFloat32s encodes f as a little-endian float32 blob.
func PutFloat32s(f []float32) []byte {
	out := make([]byte, len(f)*4)
	for i, x := range f {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(x))
	}
	return out
}
