package dispatch

import (
	"math/rand/v2"
	"sync"

	"github.com/whisper/modbot/internal/report"
)

// FactChecker decides whether reported misinformation is false.
type FactChecker interface {
	ClassifiedFalse(r *report.Report) bool
}

// FactCheckerFunc adapts a function to FactChecker.
type FactCheckerFunc func(r *report.Report) bool

// ClassifiedFalse calls f(r).
func (f FactCheckerFunc) ClassifiedFalse(r *report.Report) bool { return f(r) }

// CoinFactChecker simulates a fact checker with a fair coin. It is safe for
// concurrent use.
type CoinFactChecker struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewCoinFactChecker draws from src. A nil src uses a randomly seeded PCG.
func NewCoinFactChecker(src rand.Source) *CoinFactChecker {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &CoinFactChecker{rng: rand.New(src)}
}

// ClassifiedFalse returns true with probability 0.5.
func (c *CoinFactChecker) ClassifiedFalse(*report.Report) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.Float64() < 0.5
}
