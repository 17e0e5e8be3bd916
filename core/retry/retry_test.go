package retry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/huangsam/backfill/internal/contract"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("connection reset")

// fastPolicy keeps waits negligible so tests stay quick.
func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:     attempts,
		BaseDelay:       time.Millisecond,
		MaxDelay:        5 * time.Millisecond,
		ExponentialBase: 2.0,
		Jitter:          true,
	}
}

// failing returns an operation that fails k times before succeeding.
func failing(k int, calls *atomic.Int32) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		n := int(calls.Add(1))
		if n <= k {
			return "", fmt.Errorf("attempt %d: %w", n, errFlaky)
		}
		return "ok", nil
	}
}

func TestDoSucceedsAfterFailures(t *testing.T) {
	for k := range 4 {
		t.Run(fmt.Sprintf("fails %d times", k), func(t *testing.T) {
			var calls atomic.Int32
			got, err := Do(context.Background(), fastPolicy(k+1), zerolog.Nop(), failing(k, &calls))
			require.NoError(t, err)
			assert.Equal(t, "ok", got)
			assert.Equal(t, int32(k+1), calls.Load())
		})
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	for _, attempts := range []int{1, 2, 3} {
		t.Run(fmt.Sprintf("max %d", attempts), func(t *testing.T) {
			var calls atomic.Int32
			_, err := Do(context.Background(), fastPolicy(attempts), zerolog.Nop(), failing(5, &calls))
			require.Error(t, err)
			assert.ErrorIs(t, err, errFlaky)
			assert.Equal(t, fmt.Sprintf("attempt %d: connection reset", attempts), err.Error())
			assert.Equal(t, int32(attempts), calls.Load())
		})
	}
}

func TestDoNonRetryable(t *testing.T) {
	errAuth := errors.New("permission denied")

	t.Run("not in retryable list", func(t *testing.T) {
		p := fastPolicy(5)
		p.RetryableErrors = []error{errFlaky}
		var calls atomic.Int32
		err := Run(context.Background(), p, zerolog.Nop(), func(context.Context) error {
			calls.Add(1)
			return errAuth
		})
		assert.ErrorIs(t, err, errAuth)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("in retryable list", func(t *testing.T) {
		p := fastPolicy(3)
		p.RetryableErrors = []error{errFlaky}
		var calls atomic.Int32
		_, err := Do(context.Background(), p, zerolog.Nop(), failing(1, &calls))
		assert.NoError(t, err)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("permanent", func(t *testing.T) {
		var calls atomic.Int32
		err := Run(context.Background(), fastPolicy(5), zerolog.Nop(), func(context.Context) error {
			calls.Add(1)
			return Permanent(errAuth)
		})
		assert.Equal(t, errAuth, err)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("configuration error", func(t *testing.T) {
		var calls atomic.Int32
		err := Run(context.Background(), fastPolicy(5), zerolog.Nop(), func(context.Context) error {
			calls.Add(1)
			return contract.NewConfigurationError("date", "2024", "bad")
		})
		assert.True(t, contract.IsConfigurationError(err))
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestDoStopsWhenContextCancelled(t *testing.T) {
	p := fastPolicy(10)
	p.BaseDelay = time.Hour
	p.MaxDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		_, err := Do(ctx, p, zerolog.Nop(), failing(100, &calls))
		done <- err
	}()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.ErrorIs(t, err, errFlaky)
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancellation")
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestPolicyDelay(t *testing.T) {
	p := Policy{BaseDelay: 30 * time.Second, MaxDelay: 300 * time.Second, ExponentialBase: 2.0}
	assert.Equal(t, 30*time.Second, p.Delay(0))
	assert.Equal(t, 60*time.Second, p.Delay(1))
	assert.Equal(t, 120*time.Second, p.Delay(2))
	assert.Equal(t, 240*time.Second, p.Delay(3))
	assert.Equal(t, 300*time.Second, p.Delay(4))
	assert.Equal(t, 300*time.Second, p.Delay(5000))
}

func TestPolicyJitterBounds(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, ExponentialBase: 2.0, Jitter: true}
	for range 200 {
		d := p.wait(1)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 200*time.Millisecond)
	}
}

func TestPolicyValidate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())
	assert.Error(t, Policy{MaxAttempts: 0, ExponentialBase: 2}.Validate())
	assert.Error(t, Policy{MaxAttempts: 1, ExponentialBase: 0.5}.Validate())
	assert.Error(t, Policy{MaxAttempts: 1, ExponentialBase: 2, BaseDelay: -time.Second}.Validate())
}

func TestFromSettings(t *testing.T) {
	p := FromSettings(contract.RetrySettings{
		MaxAttempts:     4,
		BaseDelay:       time.Second,
		MaxDelay:        time.Minute,
		ExponentialBase: 1.5,
	}).Named("download")
	assert.Equal(t, 4, p.MaxAttempts)
	assert.Equal(t, "download", p.Name)
	assert.False(t, p.Jitter)
}
