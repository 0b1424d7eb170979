// Package utils contains small numeric and environment helpers shared across the planner.
package utils

import "math/rand"

// Square returns n*n, faster than math.Pow(n, 2).
func Square(n float64) float64 {
	return n * n
}

// MinInt returns the smaller of two ints.
func MinInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// MaxInt returns the larger of two ints.
func MaxInt(a, b int) int {
	if a < b {
		return b
	}
	return a
}

// NewRand returns a generator seeded with the given value. Every stochastic component takes one of
// these explicitly; there is no package level generator.
func NewRand(seed int64) *rand.Rand {
	//nolint:gosec
	return rand.New(rand.NewSource(seed))
}

// MixSeed derives a child seed from a parent seed and a set of indices, so that
// (parent, indices) always reproduces the same stream.
func MixSeed(parent int64, indices ...int) int64 {
	// splitmix64 finalizer
	h := uint64(parent) + 0x9e3779b97f4a7c15
	for _, idx := range indices {
		h ^= uint64(int64(idx)) + 0x9e3779b97f4a7c15 + (h << 6) + (h >> 2)
		h = (h ^ (h >> 30)) * 0xbf58476d1ce4e5b9
		h = (h ^ (h >> 27)) * 0x94d049bb133111eb
		h ^= h >> 31
	}
	return int64(h >> 1)
}
