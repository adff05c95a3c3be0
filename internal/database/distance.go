package database

import (
	"fmt"
	"math"
)

// Metric selects the distance function used by the embedding index.
type Metric string

const (
	// MetricCosine measures 1 - cosine similarity, range [0, 2].
	MetricCosine Metric = "cosine"

	// MetricEuclidean measures the L2 norm, the metric used by
	// dlib-style 128-dim face encodings.
	MetricEuclidean Metric = "euclidean"
)

// ParseMetric maps a config value to a Metric.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricCosine:
		return MetricCosine, nil
	case MetricEuclidean:
		return MetricEuclidean, nil
	}
	return "", fmt.Errorf("unknown distance metric %q", s)
}

// Distance computes the distance between two vectors under the metric.
func (m Metric) Distance(a, b []float32) float64 {
	if m == MetricEuclidean {
		return EuclideanDistance(a, b)
	}
	return CosineDistance(a, b)
}

// CosineDistance computes the cosine distance between two vectors.
// Returns a value between 0 (identical) and 2 (opposite).
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2.0 // Maximum distance for invalid input
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 2.0 // Maximum distance for zero vectors
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp to [-1, 1] to handle floating point errors
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}

	return 1 - similarity
}

// EuclideanDistance computes the L2 distance between two vectors.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.MaxFloat64
	}

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
