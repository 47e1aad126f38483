package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errTransient = errors.New("connection reset")
	errPermanent = errors.New("bad request")
)

func isTransient(err error) bool { return errors.Is(err, errTransient) }

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	p := Policy{Attempts: 3, Delay: time.Millisecond, Retryable: isTransient}

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsBudget(t *testing.T) {
	var retried []int
	p := Policy{
		Attempts:  3,
		Delay:     time.Millisecond,
		Retryable: isTransient,
		OnRetry:   func(attempt int, _ error) { retried = append(retried, attempt) },
	}

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errTransient
	})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 4, calls, "one call plus three retries")
	assert.Equal(t, []int{1, 2, 3}, retried)
}

func TestDo_PermanentErrorSurfacesImmediately(t *testing.T) {
	p := Policy{Attempts: 3, Delay: time.Millisecond, Retryable: isTransient}

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errPermanent
	})

	assert.ErrorIs(t, err, errPermanent)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelledWhileWaiting(t *testing.T) {
	p := Policy{Attempts: 3, Delay: time.Hour, Retryable: isTransient}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := p.Do(ctx, func(context.Context) error { return errTransient })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, errTransient)
}

func TestDefault(t *testing.T) {
	p := Default(isTransient)
	assert.Equal(t, 3, p.Attempts)
	assert.Equal(t, time.Second, p.Delay)
}
