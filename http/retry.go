package http

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand/v2"
	"net"
	"strings"
	"syscall"
	"time"
)

// Retry defaults.
const (
	DefaultMaxAttempts    = 3
	DefaultAttemptTimeout = 30 * time.Second
	DefaultBackoffBase    = 200 * time.Millisecond
	DefaultBackoffMax     = 5 * time.Second
	DefaultJitter         = 0.2
)

// Delay returns the backoff before retry number attempt (0-based): base
// doubled per attempt, capped at maxDelay, then scaled by a random factor in
// [1-jitter, 1+jitter].
func Delay(base, maxDelay time.Duration, jitter float64, attempt int) time.Duration {
	delay := float64(base) * math.Pow(2, float64(attempt))
	if delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}
	if jitter > 0 {
		delay *= 1 - jitter + rand.Float64()*2*jitter
	}
	return time.Duration(delay)
}

var transientPatterns = []string{
	"connection refused",
	"connection reset",
	"connection timed out",
	"no route to host",
	"network is unreachable",
	"i/o timeout",
	"broken pipe",
	"unexpected eof",
}

// IsTransient reports whether err is a network failure worth retrying:
// timeouts, refused or reset connections and truncated responses. A
// cancelled context is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// sleep waits for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
