package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func TestDoVal_SucceedsFirstTry(t *testing.T) {
	calls := 0
	got, err := DoVal(context.Background(), fastConfig(), func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 1, calls)
}

func TestDoVal_RetriesTransient(t *testing.T) {
	calls := 0
	got, err := DoVal(context.Background(), fastConfig(), func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, NewTransientError(eris.New("server busy"), 503)
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
}

func TestDoVal_StopsOnPermanentError(t *testing.T) {
	calls := 0
	_, err := DoVal(context.Background(), fastConfig(), func(context.Context) (int, error) {
		calls++
		return 0, eris.New("bad request")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_ExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := DoVal(context.Background(), fastConfig(), func(context.Context) (int, error) {
		calls++
		return 0, NewTransientError(eris.New("flaky"), 500)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoVal_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := DoVal(ctx, fastConfig(), func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, NewTransientError(eris.New("flaky"), 500)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(eris.New("validation failed")))
	assert.True(t, IsTransient(NewTransientError(eris.New("overloaded"), 529)))
	assert.True(t, IsTransient(eris.Wrap(NewTransientError(eris.New("inner"), 503), "outer")))
	assert.True(t, IsTransient(eris.New("dial tcp: i/o timeout")))
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "%d", code)
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "%d", code)
	}
}
