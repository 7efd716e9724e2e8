package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(n int) Policy {
	return Policy{MaxAttempts: n, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	res := Do(context.Background(), fastPolicy(3), nil, "test", func(_ context.Context, attempt int) (string, error) {
		if attempt < 3 {
			return "", errors.New("temporary")
		}
		return "ok", nil
	})

	require.True(t, res.OK())
	assert.Equal(t, "ok", res.Value)
	assert.Equal(t, 3, res.Attempts)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	res := Do(context.Background(), fastPolicy(3), nil, "test", func(context.Context, int) (int, error) {
		calls++
		return 0, errors.New("down")
	})

	assert.False(t, res.OK())
	assert.EqualError(t, res.Err, "down")
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, res.Attempts)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	sentinel := errors.New("bad request")
	res := Do(context.Background(), fastPolicy(5), nil, "test", func(context.Context, int) (int, error) {
		return 0, Permanent(sentinel)
	})

	assert.Equal(t, 1, res.Attempts)
	assert.ErrorIs(t, res.Err, sentinel)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}

	res := Do(ctx, p, nil, "test", func(context.Context, int) (int, error) {
		cancel()
		return 0, errors.New("down")
	})

	assert.False(t, res.OK())
	assert.Equal(t, 1, res.Attempts)
}

func TestPolicyDefaults(t *testing.T) {
	p := Policy{}.withDefaults()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, time.Second, p.BaseDelay)
	assert.Nil(t, Permanent(nil))
}
