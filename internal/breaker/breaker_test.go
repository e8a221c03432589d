package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpensAfterThreshold(t *testing.T) {
	b := New(Config{FailureThreshold: 3, SuccessThreshold: 2, OpenTimeout: 50 * time.Millisecond})
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Allow())
		b.RecordFailure()
	}
	assert.Equal(t, Open, b.State())
	assert.ErrorIs(t, b.Allow(), ErrOpen)
}

func TestHalfOpenRequiresConsecutiveSuccesses(t *testing.T) {
	b := New(Config{FailureThreshold: 1, SuccessThreshold: 2, OpenTimeout: 10 * time.Millisecond})
	require.NoError(t, b.Allow())
	b.RecordFailure()
	assert.Equal(t, Open, b.State())

	time.Sleep(15 * time.Millisecond)
	assert.Equal(t, HalfOpen, b.State())

	require.NoError(t, b.Allow())
	b.RecordSuccess()
	assert.Equal(t, HalfOpen, b.State(), "one success must not yet close with SuccessThreshold=2")

	require.NoError(t, b.Allow())
	b.RecordSuccess()
	assert.Equal(t, Closed, b.State())
}

func TestHalfOpenAdmitsSingleProbe(t *testing.T) {
	b := New(Config{FailureThreshold: 1, SuccessThreshold: 2, OpenTimeout: 10 * time.Millisecond})
	require.NoError(t, b.Allow())
	b.RecordFailure()
	time.Sleep(15 * time.Millisecond)

	require.NoError(t, b.Allow())
	assert.ErrorIs(t, b.Allow(), ErrHalfOpenBusy)
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b := New(Config{FailureThreshold: 1, SuccessThreshold: 2, OpenTimeout: 10 * time.Millisecond})
	require.NoError(t, b.Allow())
	b.RecordFailure()
	time.Sleep(15 * time.Millisecond)
	require.NoError(t, b.Allow())
	b.RecordFailure()
	assert.Equal(t, Open, b.State())
}

func TestCallFailsFastWithoutInvokingFn(t *testing.T) {
	b := New(Config{FailureThreshold: 1, SuccessThreshold: 2, OpenTimeout: time.Hour})
	called := 0
	err := b.Call(context.Background(), func(ctx context.Context) error {
		called++
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, 1, called)

	err = b.Call(context.Background(), func(ctx context.Context) error {
		called++
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.Equal(t, 1, called, "fn must not be invoked while open")
}

func TestRegistryLazyCreation(t *testing.T) {
	r := NewRegistry(DefaultConfig())
	b1 := r.Get("openai")
	b2 := r.Get("openai")
	assert.Same(t, b1, b2)
	snap := r.Snapshot()
	assert.Equal(t, Closed, snap["openai"])
}
