// Package retry runs an operation again after transient failures, with a
// fixed attempt budget and a fixed pause between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	DefaultAttempts = 3
	DefaultDelay    = time.Second
)

// Policy describes how many extra attempts are allowed after the first call
// and how long to wait between them.
type Policy struct {
	Attempts int
	Delay    time.Duration
	// Retryable reports whether err is worth another attempt. A nil func
	// treats every error as permanent.
	Retryable func(error) bool
	// OnRetry is called before each wait.
	OnRetry func(attempt int, err error)
}

func Default(retryable func(error) bool) Policy {
	return Policy{Attempts: DefaultAttempts, Delay: DefaultDelay, Retryable: retryable}
}

// ExhaustedError is returned once the budget is spent. It unwraps to the
// last failure.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d retries: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Do calls fn until it succeeds, fails permanently, the budget runs out or
// ctx is done.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(err) {
			return err
		}
		if attempt >= p.Attempts {
			return &ExhaustedError{Attempts: p.Attempts, Err: err}
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err)
		}

		timer := time.NewTimer(p.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(ctx.Err(), err)
		case <-timer.C:
		}
	}
}
