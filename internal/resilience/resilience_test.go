package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"503", &StatusError{StatusCode: 503}, true},
		{"429 wrapped", eris.Wrap(&StatusError{StatusCode: 429}, "stardog: select"), true},
		{"400", &StatusError{StatusCode: 400, Body: "bad query"}, false},
		{"401", &StatusError{StatusCode: 401}, false},
		{"timeout", fmt.Errorf("dial: %w", timeoutErr{}), true},
		{"refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"reset", syscall.ECONNRESET, true},
		{"canceled", context.Canceled, false},
		{"deadline", eris.Wrap(context.DeadlineExceeded, "select"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestStatusError_Error(t *testing.T) {
	assert.Equal(t, "unexpected status 502: upstream", (&StatusError{StatusCode: 502, Body: "upstream"}).Error())
}

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

func TestRetry_SucceedsAfterTransient(t *testing.T) {
	calls := 0
	v, err := Retry(context.Background(), fastPolicy(3), "select", func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, &StatusError{StatusCode: 503}
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnPermanent(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(5), "select", func(context.Context) (int, error) {
		calls++
		return 0, &StatusError{StatusCode: 400}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_Exhausted(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(2), "select", func(context.Context) (string, error) {
		calls++
		return "", syscall.ECONNREFUSED
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.ECONNREFUSED)
	assert.Equal(t, 2, calls)
}

func TestRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{MaxAttempts: 5, InitialBackoff: time.Hour, MaxBackoff: time.Hour}

	calls := 0
	_, err := Retry(ctx, p, "select", func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, &StatusError{StatusCode: 503}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond}.normalized()
	assert.Equal(t, 100*time.Millisecond, p.backoff(0))
	assert.Equal(t, 200*time.Millisecond, p.backoff(1))
	assert.Equal(t, 300*time.Millisecond, p.backoff(2))

	d := RetryPolicy{}.normalized()
	assert.Equal(t, 1, d.MaxAttempts)
	assert.NotNil(t, d.Retryable)
}

func TestBreaker_OpensAndRecovers(t *testing.T) {
	b := NewBreaker("stardog", 2, time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	fail := func(context.Context) (int, error) { return 0, errors.New("down") }
	ok := func(context.Context) (int, error) { return 1, nil }
	ctx := context.Background()

	_, _ = Call(ctx, b, fail)
	assert.Equal(t, Closed, b.State())
	_, _ = Call(ctx, b, fail)
	assert.Equal(t, Open, b.State())

	called := false
	_, err := Call(ctx, b, func(context.Context) (int, error) { called = true; return 0, nil })
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	now = now.Add(time.Minute)
	assert.Equal(t, HalfOpen, b.State())

	v, err := Call(ctx, b, ok)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker("stardog", 1, time.Second)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = Call(ctx, b, func(context.Context) (int, error) { return 0, errors.New("down") })
	require.Equal(t, Open, b.State())

	now = now.Add(2 * time.Second)
	_, err := Call(ctx, b, func(context.Context) (int, error) { return 0, errors.New("still down") })
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, Open, b.State())
}

func TestBreaker_CancellationNotCounted(t *testing.T) {
	b := NewBreaker("stardog", 1, time.Minute)
	_, _ = Call(context.Background(), b, func(context.Context) (int, error) { return 0, context.Canceled })
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_Nil(t *testing.T) {
	v, err := Call(context.Background(), (*Breaker)(nil), func(context.Context) (string, error) { return "x", nil })
	require.NoError(t, err)
	assert.Equal(t, "x", v)
}

func TestBreakerState_String(t *testing.T) {
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "open", Open.String())
	assert.Equal(t, "half-open", HalfOpen.String())
	assert.Equal(t, "unknown", BreakerState(7).String())
}
