package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	sentinel := errors.New("permanent")
	calls := 0
	err := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}.Do(context.Background(), func(context.Context) error {
		calls++
		return sentinel
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, calls)
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := Policy{MaxAttempts: 5, BaseDelay: time.Hour}.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return errors.New("fail")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "cancellation must stop the backoff wait")
}

func TestDo_CanceledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := DefaultPolicy().Do(ctx, func(context.Context) error {
		t.Fatal("op must not run with a dead context")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_OnRetryFiresOnlyBetweenAttempts(t *testing.T) {
	retries := 0
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, OnRetry: func(err error) {
		require.Error(t, err)
		retries++
	}}

	err := p.Do(context.Background(), func(context.Context) error {
		return errors.New("permanent")
	})
	require.Error(t, err)
	assert.Equal(t, 2, retries, "the exhausted final attempt is not a retry")

	retries = 0
	err = p.Do(context.Background(), func(context.Context) error {
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, retries)
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	err := Policy{}.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("fail")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
