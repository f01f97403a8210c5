package simulator

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// AnswerStrategy decides how a charge point answers a command. ok is false
// when the command must be left unanswered.
type AnswerStrategy interface {
	Answer(ctx context.Context, action string) (status string, ok bool)
}

// AutoAnswer accepts every command after an optional fixed delay.
type AutoAnswer struct {
	Delay time.Duration
}

// Answer implements AnswerStrategy.
func (a AutoAnswer) Answer(ctx context.Context, _ string) (string, bool) {
	if !sleep(ctx, a.Delay) {
		return "", false
	}
	return "Accepted", true
}

// RandomAnswer drops answers with the configured probability and waits for
// the specified delay before accepting.
type RandomAnswer struct {
	Delay    time.Duration
	DropRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomAnswer seeds the strategy from the clock.
func NewRandomAnswer(delay time.Duration, dropRate float64) *RandomAnswer {
	return &RandomAnswer{Delay: delay, DropRate: dropRate, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Answer implements AnswerStrategy.
func (r *RandomAnswer) Answer(ctx context.Context, _ string) (string, bool) {
	if r.DropRate > 0 {
		r.mu.Lock()
		drop := r.rng.Float64() < r.DropRate
		r.mu.Unlock()
		if drop {
			return "", false
		}
	}
	if !sleep(ctx, r.Delay) {
		return "", false
	}
	return "Accepted", true
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
