package state

import (
	"encoding/binary"
	"math"
)

// #region vector-encoding
// EncodeVector packs v as little-endian float64s.
func EncodeVector(v []float64) []byte {
	buf := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

// DecodeVector unpacks a blob written by EncodeVector. Trailing bytes that
// do not form a full float are ignored.
func DecodeVector(b []byte) []float64 {
	v := make([]float64, len(b)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return v
}

// #endregion vector-encoding
