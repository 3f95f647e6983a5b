package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultConfig(), nil, func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesUpToMaxAttempts(t *testing.T) {
	cfg := Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	calls := 0
	err := Do(context.Background(), cfg, nil, func(context.Context) error {
		calls++
		return errors.New("fail")
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsEarlyWhenNotRetryable(t *testing.T) {
	cfg := Config{MaxAttempts: 5, InitialDelay: time.Millisecond}
	calls := 0
	sentinel := errors.New("terminal")
	err := Do(context.Background(), cfg, func(err error) bool {
		return !errors.Is(err, sentinel)
	}, func(context.Context) error {
		calls++
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestDoRespectsPerCallTimeout(t *testing.T) {
	cfg := Config{MaxAttempts: 1, PerCallTimeout: time.Millisecond}
	err := Do(context.Background(), cfg, nil, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
