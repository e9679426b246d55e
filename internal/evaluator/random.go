package evaluator

import (
	"math/rand/v2"
	"sync"
)

// RandomSource picks suggestion examples. It is never used for scoring.
type RandomSource interface {
	IntN(n int) int
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRandomSource returns a PCG source. Equal seeds give equal sequences.
// The result is safe for concurrent use.
func NewRandomSource(seed uint64) RandomSource {
	return &lockedRand{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}
