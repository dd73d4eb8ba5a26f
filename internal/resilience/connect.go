package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ConnectPolicy bounds how hard a job tries to reach its store before the
// run is given up. It never spans ticks: the next tick starts from scratch.
type ConnectPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultConnectPolicy returns the policy used when a backend sets none.
func DefaultConnectPolicy() ConnectPolicy {
	return ConnectPolicy{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// RetryNotify is called after a failed attempt that will be retried.
type RetryNotify func(err error, next time.Duration)

// Connect runs op until it succeeds, returns a permanent error, the retries
// are exhausted, or ctx is done.
func Connect(ctx context.Context, p ConnectPolicy, op func() error, notify RetryNotify) error {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	// Attempts are bounded by MaxRetries only.
	eb.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(eb, p.MaxRetries), ctx)

	operation := func() error {
		err := op()
		if IsPermanentError(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	var n backoff.Notify
	if notify != nil {
		n = backoff.Notify(notify)
	}
	return backoff.RetryNotify(operation, b, n)
}
