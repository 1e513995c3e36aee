package vector

import (
	"errors"
	"fmt"
	"math"
)

// ErrDimensionMismatch indicates vectors of different lengths met in one computation.
// It signals corrupted data and is never silently repaired.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Dot returns the dot product of a and b, accumulated in float64.
func Dot(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot, nil
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// Cosine returns dot(a,b) / (|a| * |b|), or 0 when either norm is zero or the result is
// not finite (NaN or Inf components).
func Cosine(a, b []float32) (float64, error) {
	dot, err := Dot(a, b)
	if err != nil {
		return 0, err
	}
	na, nb := L2Norm(a), L2Norm(b)
	if na == 0 || nb == 0 {
		return 0, nil
	}
	c := dot / (na * nb)
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return 0, nil
	}
	return c, nil
}

// CosineDistance returns 1 - Cosine(a, b).
func CosineDistance(a, b []float32) (float64, error) {
	c, err := Cosine(a, b)
	if err != nil {
		return 0, err
	}
	return 1 - c, nil
}
