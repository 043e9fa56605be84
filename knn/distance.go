package knn

import (
	"fmt"
	"math"
)

// Metric selects how embedding similarity is computed.
type Metric int

const (
	// MetricCosine ranks by cosine similarity (default).
	MetricCosine Metric = iota
	// MetricL2 ranks by ascending squared Euclidean distance.
	MetricL2
	// MetricDot ranks by raw inner product.
	MetricDot
)

func (m Metric) String() string {
	switch m {
	case MetricCosine:
		return "Cosine"
	case MetricL2:
		return "L2"
	case MetricDot:
		return "Dot"
	default:
		return fmt.Sprintf("Unknown(%d)", m)
	}
}

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// SquaredL2 calculates the squared L2 (Euclidean) distance between two
// vectors. Assumes vectors are the same length.
func SquaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// Cosine calculates the cosine similarity of two vectors. Zero-norm
// inputs score 0.
func Cosine(a, b []float32) float32 {
	dot := Dot(a, b)
	na := Dot(a, a)
	nb := Dot(b, b)
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / float32(math.Sqrt(float64(na))*math.Sqrt(float64(nb)))
}

// scoreFunc returns the scoring function for m plus whether higher
// scores rank better.
func scoreFunc(m Metric) (fn func(a, b []float32) float32, higherIsBetter bool, err error) {
	switch m {
	case MetricCosine:
		return Cosine, true, nil
	case MetricDot:
		return Dot, true, nil
	case MetricL2:
		return SquaredL2, false, nil
	default:
		return nil, false, fmt.Errorf("unsupported metric: %v", m)
	}
}
