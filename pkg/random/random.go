// Package random provides the injectable random source used by game rolls and banter shuffles.
package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"sync"
)

// Source yields uniform random values. Implementations must be safe for concurrent use.
type Source interface {
	// Float64 returns a value in [0, 1).
	Float64() float64
	// IntN returns a value in [0, n). It panics if n <= 0.
	IntN(n int) int
}

// Locked is a PCG generator guarded by a mutex.
type Locked struct {
	mu  sync.Mutex
	rng *rand.Rand
}

var _ Source = (*Locked)(nil)

// New returns a Locked source seeded from crypto/rand.
func New() (*Locked, error) {
	hi, err := NewSeed()
	if err != nil {
		return nil, err
	}
	lo, err := NewSeed()
	if err != nil {
		return nil, err
	}
	return NewSeeded(hi, lo), nil
}

// NewSeeded returns a deterministic Locked source.
func NewSeeded(hi, lo uint64) *Locked {
	return &Locked{rng: rand.New(rand.NewPCG(hi, lo))}
}

func (l *Locked) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.Float64()
}

func (l *Locked) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.IntN(n)
}

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (uint64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}

	return binary.LittleEndian.Uint64(b[:]), nil
}

// Shuffle permutes lines in place with Fisher-Yates, drawing indices from src.
func Shuffle(src Source, lines []string) {
	for i := len(lines) - 1; i > 0; i-- {
		j := src.IntN(i + 1)
		lines[i], lines[j] = lines[j], lines[i]
	}
}
