// Package linalg holds the dense vector and matrix helpers shared by the
// learned components. Matrices are row-major and sized at construction.
package linalg

import (
	"math"
	"math/rand"
)

// #region matrix
// Matrix is a dense row-major matrix.
type Matrix struct {
	Rows, Cols int
	Data       []float64
}

// NewMatrix returns a zero matrix.
func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
}

// NewRandom returns a matrix with entries drawn from N(0, (scale/sqrt(cols))^2).
func NewRandom(rng *rand.Rand, rows, cols int, scale float64) *Matrix {
	m := NewMatrix(rows, cols)
	std := scale / math.Sqrt(float64(cols))
	for i := range m.Data {
		m.Data[i] = rng.NormFloat64() * std
	}
	return m
}

// Row returns row i as a slice aliasing the matrix storage.
func (m *Matrix) Row(i int) []float64 {
	return m.Data[i*m.Cols : (i+1)*m.Cols]
}

// MulVec computes m·x into a new slice.
func (m *Matrix) MulVec(x []float64) []float64 {
	out := make([]float64, m.Rows)
	for i := 0; i < m.Rows; i++ {
		out[i] = Dot(m.Row(i), x)
	}
	return out
}

// MulVecT computes mᵀ·y into a new slice.
func (m *Matrix) MulVecT(y []float64) []float64 {
	out := make([]float64, m.Cols)
	for i := 0; i < m.Rows; i++ {
		if y[i] == 0 {
			continue
		}
		row := m.Row(i)
		for j, v := range row {
			out[j] += v * y[i]
		}
	}
	return out
}

// AddOuter performs m += alpha · a·bᵀ.
func (m *Matrix) AddOuter(alpha float64, a, b []float64) {
	for i := 0; i < m.Rows; i++ {
		s := alpha * a[i]
		if s == 0 {
			continue
		}
		row := m.Row(i)
		for j := range row {
			row[j] += s * b[j]
		}
	}
}

// Clone returns a deep copy.
func (m *Matrix) Clone() *Matrix {
	c := NewMatrix(m.Rows, m.Cols)
	copy(c.Data, m.Data)
	return c
}

// #endregion matrix

// #region vectors
// Dot returns the inner product of a and b over min(len(a), len(b)).
func Dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var s float64
	for i := 0; i < n; i++ {
		s += a[i] * b[i]
	}
	return s
}

// Concat returns a new slice holding a followed by b.
func Concat(a, b []float64) []float64 {
	out := make([]float64, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

// Copy returns a copy of v, or nil for a nil slice.
func Copy(v []float64) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

// Axpy performs y += alpha·x in place.
func Axpy(alpha float64, x, y []float64) {
	for i := range y {
		y[i] += alpha * x[i]
	}
}

// Tanh applies tanh element-wise in place and returns v.
func Tanh(v []float64) []float64 {
	for i, x := range v {
		v[i] = math.Tanh(x)
	}
	return v
}

// Mean returns the arithmetic mean, 0 for an empty slice.
func Mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var s float64
	for _, x := range v {
		s += x
	}
	return s / float64(len(v))
}

// Variance returns the population variance, 0 for an empty slice.
func Variance(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	m := Mean(v)
	var s float64
	for _, x := range v {
		d := x - m
		s += d * d
	}
	return s / float64(len(v))
}

// Norm returns the L2 norm.
func Norm(v []float64) float64 {
	return math.Sqrt(Dot(v, v))
}

// ClipNorm rescales v in place so its L2 norm does not exceed max.
func ClipNorm(v []float64, max float64) {
	n := Norm(v)
	if n <= max || n == 0 {
		return
	}
	s := max / n
	for i := range v {
		v[i] *= s
	}
}

// Clamp restricts x to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// #endregion vectors
