package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashgate/gateway/internal/canon"
	"github.com/ashgate/gateway/internal/dispatch"
)

func TestRecordAttemptIncrementsSnapshot(t *testing.T) {
	c := New(Config{Namespace: "test_attempt"})
	c.RecordAttempt("openai")
	c.RecordAttempt("openai")
	snap := c.Snapshot()
	require.Contains(t, snap.Providers, "openai")
	assert.EqualValues(t, 2, snap.Providers["openai"].Attempts)
}

func TestRecordSuccessTracksTokensAndCostSavingsForLocalProvider(t *testing.T) {
	c := New(Config{
		Namespace:                 "test_success",
		CloudRatePerMillionTokens: 10,
		LocalProviders:            map[string]bool{"ollama": true},
	})
	c.RecordSuccess("ollama", 50*time.Millisecond, canon.Usage{InputTokens: 500_000, OutputTokens: 500_000})
	snap := c.Snapshot()
	ps := snap.Providers["ollama"]
	assert.EqualValues(t, 1, ps.Successes)
	assert.EqualValues(t, 500_000, ps.TokensIn)
	assert.EqualValues(t, 500_000, ps.TokensOut)
	assert.InDelta(t, 10.0, ps.CostSavingsUSD, 0.0001)
}

func TestRecordSuccessNoCostSavingsForCloudProvider(t *testing.T) {
	c := New(Config{Namespace: "test_cloud", CloudRatePerMillionTokens: 10, LocalProviders: map[string]bool{}})
	c.RecordSuccess("openai", time.Millisecond, canon.Usage{InputTokens: 1_000_000, OutputTokens: 0})
	snap := c.Snapshot()
	assert.Zero(t, snap.Providers["openai"].CostSavingsUSD)
}

func TestRecordFailureBucketsByCategory(t *testing.T) {
	c := New(Config{Namespace: "test_failure"})
	c.RecordFailure("ollama", dispatch.FailureTimeout)
	c.RecordFailure("ollama", dispatch.FailureTimeout)
	c.RecordFailure("ollama", dispatch.FailureCircuitBreaker)
	snap := c.Snapshot()
	assert.EqualValues(t, 2, snap.Providers["ollama"].Failures[dispatch.FailureTimeout])
	assert.EqualValues(t, 1, snap.Providers["ollama"].Failures[dispatch.FailureCircuitBreaker])
}

func TestRecordFallbackTracksSuccessAndFailure(t *testing.T) {
	c := New(Config{Namespace: "test_fallback"})
	c.RecordFallback("ollama", "openai", dispatch.FailureCircuitBreaker, true)
	c.RecordFallback("ollama", "openai", dispatch.FailureCircuitBreaker, false)
	snap := c.Snapshot()
	require.Len(t, snap.Fallbacks, 1)
	fb := snap.Fallbacks[0]
	assert.EqualValues(t, 2, fb.Attempts)
	assert.EqualValues(t, 1, fb.Successes)
	assert.EqualValues(t, 1, fb.Failures)
}

func TestEstimateTokensFallsBackToCharCountWithoutEncoder(t *testing.T) {
	c := &Collector{}
	assert.Equal(t, len("hello world")/4, c.estimateTokens("hello world"))
}
