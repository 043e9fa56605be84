// Package knn provides exact nearest-neighbor search over component
// embeddings via a brute-force flat index with pluggable metrics.
package knn
