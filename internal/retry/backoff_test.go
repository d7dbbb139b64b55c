package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts: attempts,
		BaseDelay:   5 * time.Millisecond,
		MaxDelay:    20 * time.Millisecond,
		Multiplier:  2.0,
		Jitter:      false,
	}
}

func TestRetryer_Success(t *testing.T) {
	r := New(fastPolicy(3), zap.NewNop())

	calls := 0
	err := r.Do(context.Background(), func(attempt int) error {
		calls++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls, "应该只调用一次")
}

func TestRetryer_RetryAndSuccess(t *testing.T) {
	r := New(fastPolicy(5), zap.NewNop())

	var seen []int
	err := r.Do(context.Background(), func(attempt int) error {
		seen = append(seen, attempt)
		if attempt < 3 {
			return errors.New("temporary error")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestRetryer_Exhausted(t *testing.T) {
	r := New(fastPolicy(3), zap.NewNop())
	testErr := errors.New("handshake refused")

	calls := 0
	err := r.Do(context.Background(), func(int) error {
		calls++
		return testErr
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, testErr)
	assert.Equal(t, 3, calls)
}

func TestRetryer_CancelDuringBackoff(t *testing.T) {
	p := fastPolicy(5)
	p.BaseDelay = time.Hour
	p.MaxDelay = time.Hour
	r := New(p, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- r.Do(ctx, func(int) error { return errors.New("fail") })
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrExhausted)
	case <-time.After(time.Second):
		t.Fatal("retry loop did not observe cancellation")
	}
}

func TestRetryer_OnRetryCallback(t *testing.T) {
	p := fastPolicy(3)
	var attempts []int
	p.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
		assert.Error(t, err)
		assert.Greater(t, delay, time.Duration(0))
	}
	r := New(p, nil)

	_ = r.Do(context.Background(), func(int) error { return errors.New("fail") })
	assert.Equal(t, []int{2, 3}, attempts)
}

func TestRetryer_Delay(t *testing.T) {
	r := New(Policy{
		MaxAttempts: 10,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    1 * time.Second,
		Multiplier:  2.0,
	}, nil)

	tests := []struct {
		n    int
		want time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, 1 * time.Second},
		{9, 1 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.Delay(tt.n), "delay for n=%d", tt.n)
	}
}

func TestRetryer_DelayJitterBounds(t *testing.T) {
	r := New(Policy{
		MaxAttempts: 5,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}, nil)

	for i := 0; i < 100; i++ {
		d := r.Delay(3)
		assert.GreaterOrEqual(t, d, 300*time.Millisecond)
		assert.LessOrEqual(t, d, 500*time.Millisecond)
	}
}

func TestPolicy_Normalize(t *testing.T) {
	r := New(Policy{}, nil)
	p := r.Policy()
	def := DefaultPolicy()

	assert.Equal(t, def.MaxAttempts, p.MaxAttempts)
	assert.Equal(t, def.BaseDelay, p.BaseDelay)
	assert.Equal(t, def.Multiplier, p.Multiplier)
	assert.GreaterOrEqual(t, p.MaxDelay, p.BaseDelay)
}

func TestDo_Typed(t *testing.T) {
	r := New(fastPolicy(3), nil)

	v, err := Do(context.Background(), r, func(attempt int) (string, error) {
		if attempt == 1 {
			return "", errors.New("not yet")
		}
		return "open", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "open", v)
}
