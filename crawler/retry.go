package crawler

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// RetryPolicy configures retries of failed page fetches. The zero value
// performs a single attempt.
type RetryPolicy struct {
	MaxRetries int           // 2 means 3 attempts in total
	BaseDelay  time.Duration // first backoff
	MaxDelay   time.Duration // backoff cap
}

// DefaultRetryPolicy returns 2 retries with a 1s base delay capped at 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// Do calls fn until it succeeds, fails permanently, the retries are
// exhausted or ctx is done. It returns the last error of fn.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	backoff := p.BaseDelay
	var err error

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return err
			case <-timer.C:
			}
			backoff *= 2
			if p.MaxDelay > 0 && backoff > p.MaxDelay {
				backoff = p.MaxDelay
			}
		}

		err = fn()
		if err == nil || !retryable(err) {
			return err
		}
	}
	return err
}

// retryable reports whether a page fetch failure is worth another attempt:
// throttling, server errors and transient network failures are; client
// errors, non-HTML content and cancellation are not.
func retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var fetchErr *PageFetchError
	if errors.As(err, &fetchErr) && fetchErr.StatusCode != 0 {
		return fetchErr.StatusCode == http.StatusTooManyRequests || fetchErr.StatusCode >= 500
	}
	if errors.Is(err, ErrNotHTML) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
