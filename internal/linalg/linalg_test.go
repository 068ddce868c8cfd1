package linalg

import (
	"math"
	"math/rand"
	"testing"
)

func TestMulVecAndTranspose(t *testing.T) {
	m := NewMatrix(2, 3)
	copy(m.Data, []float64{1, 2, 3, 4, 5, 6})

	got := m.MulVec([]float64{1, 0, -1})
	if got[0] != -2 || got[1] != -2 {
		t.Fatalf("MulVec = %v, want [-2 -2]", got)
	}

	gotT := m.MulVecT([]float64{1, 1})
	want := []float64{5, 7, 9}
	for i := range want {
		if gotT[i] != want[i] {
			t.Fatalf("MulVecT = %v, want %v", gotT, want)
		}
	}
}

func TestAddOuter(t *testing.T) {
	m := NewMatrix(2, 2)
	m.AddOuter(0.5, []float64{1, 2}, []float64{2, 4})
	want := []float64{1, 2, 2, 4}
	for i := range want {
		if m.Data[i] != want[i] {
			t.Fatalf("AddOuter data = %v, want %v", m.Data, want)
		}
	}
}

func TestNewRandomDeterministic(t *testing.T) {
	a := NewRandom(rand.New(rand.NewSource(7)), 3, 4, 1)
	b := NewRandom(rand.New(rand.NewSource(7)), 3, 4, 1)
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			t.Fatalf("same seed produced different weights at %d", i)
		}
	}
}

func TestVarianceAndMean(t *testing.T) {
	v := []float64{1, 2, 3, 4}
	if Mean(v) != 2.5 {
		t.Fatalf("mean = %f", Mean(v))
	}
	if math.Abs(Variance(v)-1.25) > 1e-12 {
		t.Fatalf("variance = %f", Variance(v))
	}
	if Mean(nil) != 0 || Variance(nil) != 0 {
		t.Fatal("empty slice should yield zero")
	}
}

func TestClipNorm(t *testing.T) {
	v := []float64{3, 4}
	ClipNorm(v, 1)
	if math.Abs(Norm(v)-1) > 1e-12 {
		t.Fatalf("norm after clip = %f", Norm(v))
	}
	w := []float64{0.1, 0.1}
	ClipNorm(w, 1)
	if w[0] != 0.1 {
		t.Fatal("short vector should be untouched")
	}
}
