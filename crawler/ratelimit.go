package crawler

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// emaAlpha weighs a new RTT observation against the running average.
	emaAlpha = 0.2

	// recoveryFactor is the per-observation speed-up once the server is fast again.
	recoveryFactor = 1.1

	// backoffFactor bounds how far the rate may drop in a single step.
	backoffFactor = 0.5

	// slowestFactor bounds the slowest rate as a fraction of the fastest.
	slowestFactor = 0.1

	// DefaultTargetRTT is the page response time the limiter aims to stay under.
	DefaultTargetRTT = 500 * time.Millisecond
)

// AdaptiveLimiter spaces consecutive page fetches by at least a minimal delay
// and widens the gap while the server answers slower than the target RTT.
// The rate never exceeds one fetch per minimal delay.
type AdaptiveLimiter struct {
	limiter   *rate.Limiter
	targetRTT time.Duration

	mu          sync.RWMutex
	emaRTT      time.Duration
	maxRate     float64
	minRate     float64
	currentRate float64
	fixed       bool
}

// NewAdaptiveLimiter creates a limiter allowing one fetch per minDelay.
// A zero minDelay disables spacing entirely.
func NewAdaptiveLimiter(minDelay, targetRTT time.Duration) *AdaptiveLimiter {
	if targetRTT <= 0 {
		targetRTT = DefaultTargetRTT
	}
	a := &AdaptiveLimiter{targetRTT: targetRTT, emaRTT: targetRTT}

	if minDelay <= 0 {
		a.limiter = rate.NewLimiter(rate.Inf, 1)
		a.fixed = true
		a.currentRate = math.Inf(1)
		return a
	}

	a.maxRate = float64(time.Second) / float64(minDelay)
	a.minRate = a.maxRate * slowestFactor
	a.currentRate = a.maxRate
	a.limiter = rate.NewLimiter(rate.Limit(a.maxRate), 1)
	return a
}

// Wait blocks until the next fetch may start or ctx is done.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// ObserveRTT feeds one page response time into the moving average and
// adjusts the rate.
func (a *AdaptiveLimiter) ObserveRTT(rtt time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.fixed {
		return
	}

	a.emaRTT = time.Duration(emaAlpha*float64(rtt) + (1-emaAlpha)*float64(a.emaRTT))
	ratio := float64(a.targetRTT) / float64(a.emaRTT)

	var next float64
	if ratio < 1 {
		next = math.Max(a.currentRate*ratio, a.currentRate*backoffFactor)
	} else {
		next = a.currentRate * recoveryFactor
	}
	next = math.Min(math.Max(next, a.minRate), a.maxRate)

	if math.Abs(next-a.currentRate) > 0.01 {
		a.currentRate = next
		a.limiter.SetLimit(rate.Limit(next))
	}
}

// CurrentRate returns the current rate in fetches per second.
func (a *AdaptiveLimiter) CurrentRate() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.currentRate
}

// CurrentDelay returns the current spacing between fetches.
func (a *AdaptiveLimiter) CurrentDelay() time.Duration {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.fixed || a.currentRate <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / a.currentRate)
}

// CurrentEMA returns the moving average of observed RTTs.
func (a *AdaptiveLimiter) CurrentEMA() time.Duration {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.emaRTT
}
