package driver

import (
	"context"
	"time"

	"github.com/qlab-core/qcore/internal/constants"
)

// TransientError is implemented by a Driver error that is worth
// retrying (spec.md §7 "DriverTransient"). A Driver that returns a
// plain error is treated as permanent — no retry.
type TransientError interface {
	error
	Transient() bool
}

// isTransient reports whether err opts into retry.
func isTransient(err error) bool {
	te, ok := err.(TransientError)
	return ok && te.Transient()
}

// withRetry calls fn up to constants.DefaultDriverRetries+1 times,
// retrying only while the error is transient, with linear backoff
// (constants.DefaultDriverRetryBackoff per attempt). It returns as soon
// as fn succeeds, returns a non-transient error immediately, or gives
// up after exhausting retries.
func withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= constants.DefaultDriverRetries; attempt++ {
		err = fn()
		if err == nil || !isTransient(err) {
			return err
		}
		if attempt == constants.DefaultDriverRetries {
			break
		}
		backoff := time.Duration(attempt+1) * constants.DefaultDriverRetryBackoff
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return err
}
