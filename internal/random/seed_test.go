package random

import (
	"slices"
	"testing"
)

func TestNewSeed(t *testing.T) {
	t.Parallel()

	if _, err := NewSeed(); err != nil {
		t.Fatalf("new seed: %v", err)
	}
}

func TestSeededShufflerIsDeterministicPermutation(t *testing.T) {
	t.Parallel()

	ids := []string{"u1", "u2", "u3", "u4", "u5", "u6", "u7", "u8"}
	a := slices.Clone(ids)
	b := slices.Clone(ids)
	NewSeededShuffler(42).Shuffle(a)
	NewSeededShuffler(42).Shuffle(b)

	if !slices.Equal(a, b) {
		t.Fatalf("same seed produced different orders: %v vs %v", a, b)
	}
	sorted := slices.Clone(a)
	slices.Sort(sorted)
	if !slices.Equal(sorted, ids) {
		t.Fatalf("shuffle is not a permutation: %v", a)
	}
}
