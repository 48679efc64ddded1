// Package random provides the shuffle source used by lottery draws.
package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sync"
)

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}

	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// Shuffler produces uniform random permutations. It is safe for concurrent use.
type Shuffler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewShuffler returns a Shuffler seeded from crypto/rand.
func NewShuffler() (*Shuffler, error) {
	seed, err := NewSeed()
	if err != nil {
		return nil, err
	}
	return NewSeededShuffler(seed), nil
}

// NewSeededShuffler returns a deterministic Shuffler for replays and tests.
func NewSeededShuffler(seed int64) *Shuffler {
	return &Shuffler{rng: rand.New(rand.NewSource(seed))}
}

// Shuffle permutes ids in place with a Fisher-Yates shuffle.
func (s *Shuffler) Shuffle(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
}
