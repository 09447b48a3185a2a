package shared

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOutboxEntry(t *testing.T) {
	aggID := NewUUID()
	event := newMoneyDeposited(aggID, 10)

	entry := NewOutboxEntry(event, []byte(`{"amount":10}`))

	assert.Equal(t, uuid.Version(7), entry.ID.Version())
	assert.Equal(t, event.EventID().UUID(), entry.EventID)
	assert.Equal(t, aggID.UUID(), entry.AggregateID)
	assert.Equal(t, "MoneyDeposited", entry.EventType)
	assert.Equal(t, "Account", entry.AggregateType)
	assert.Equal(t, OutboxStatusPending, entry.Status)
	assert.Equal(t, DefaultMaxRetries, entry.MaxRetries)
	assert.Zero(t, entry.RetryCount)
	assert.Nil(t, entry.NextRetryAt)
}

func TestRetryBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, time.Second},
		{2, 2 * time.Second},
		{4, 8 * time.Second},
		{9, 256 * time.Second},
		{10, MaxRetryBackoff},
		{64, MaxRetryBackoff},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RetryBackoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestOutboxEntry_Transitions(t *testing.T) {
	allowed := map[OutboxStatus][]OutboxStatus{
		OutboxStatusPending:    {OutboxStatusProcessing},
		OutboxStatusProcessing: {OutboxStatusSent, OutboxStatusFailed, OutboxStatusDead},
		OutboxStatusFailed:     {OutboxStatusProcessing},
		OutboxStatusSent:       nil,
		OutboxStatusDead:       {OutboxStatusPending},
	}
	all := []OutboxStatus{OutboxStatusPending, OutboxStatusProcessing, OutboxStatusSent, OutboxStatusFailed, OutboxStatusDead}

	for from, targets := range allowed {
		for _, to := range all {
			entry := &OutboxEntry{Status: from}
			want := false
			for _, target := range targets {
				want = want || target == to
			}
			assert.Equal(t, want, entry.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestOutboxEntry_MarkProcessing(t *testing.T) {
	for _, status := range []OutboxStatus{OutboxStatusPending, OutboxStatusFailed} {
		entry := &OutboxEntry{Status: status}
		require.NoError(t, entry.MarkProcessing())
		assert.Equal(t, OutboxStatusProcessing, entry.Status)
	}

	for _, status := range []OutboxStatus{OutboxStatusProcessing, OutboxStatusSent, OutboxStatusDead} {
		entry := &OutboxEntry{Status: status}
		err := entry.MarkProcessing()
		require.ErrorIs(t, err, NewDomainError("INVALID_STATUS", ""))
		assert.Equal(t, status, entry.Status)
	}
}

func TestOutboxEntry_MarkSent(t *testing.T) {
	retryAt := time.Now()
	entry := &OutboxEntry{Status: OutboxStatusProcessing, RetryCount: 2, NextRetryAt: &retryAt}

	entry.MarkSent()

	assert.Equal(t, OutboxStatusSent, entry.Status)
	assert.NotNil(t, entry.ProcessedAt)
	assert.Nil(t, entry.NextRetryAt)
	assert.Equal(t, 2, entry.RetryCount)
}

func TestOutboxEntry_MarkFailed(t *testing.T) {
	t.Run("schedules the next attempt with backoff", func(t *testing.T) {
		entry := &OutboxEntry{Status: OutboxStatusProcessing, MaxRetries: 5}

		for attempt := 1; attempt <= 3; attempt++ {
			before := time.Now()
			entry.Status = OutboxStatusProcessing
			entry.MarkFailed("handler failed")

			assert.Equal(t, OutboxStatusFailed, entry.Status)
			assert.Equal(t, attempt, entry.RetryCount)
			assert.True(t, entry.CanRetry())
			require.NotNil(t, entry.NextRetryAt)
			delay := entry.NextRetryAt.Sub(before)
			assert.GreaterOrEqual(t, delay, RetryBackoff(attempt))
			assert.Less(t, delay, RetryBackoff(attempt)+time.Second)
		}
	})

	t.Run("becomes a dead letter on the last attempt", func(t *testing.T) {
		entry := &OutboxEntry{Status: OutboxStatusProcessing, RetryCount: 4, MaxRetries: 5}

		entry.MarkFailed("final error")

		assert.Equal(t, OutboxStatusDead, entry.Status)
		assert.Equal(t, 5, entry.RetryCount)
		assert.Equal(t, "final error", entry.LastError)
		assert.Nil(t, entry.NextRetryAt)
		assert.True(t, entry.IsDead())
		assert.False(t, entry.CanRetry())
	})

	t.Run("truncates long errors on a rune boundary", func(t *testing.T) {
		entry := &OutboxEntry{Status: OutboxStatusProcessing, MaxRetries: 5}

		entry.MarkFailed("x" + strings.Repeat("é", maxLastErrorLength))

		assert.LessOrEqual(t, len(entry.LastError), maxLastErrorLength)
		assert.True(t, utf8.ValidString(entry.LastError))
		assert.True(t, strings.HasPrefix(entry.LastError, "xé"))
	})
}

func TestOutboxEntry_ResetForRetry(t *testing.T) {
	t.Run("requeues a dead letter", func(t *testing.T) {
		entry := &OutboxEntry{
			ID:         uuid.New(),
			Status:     OutboxStatusDead,
			RetryCount: 5,
			MaxRetries: 5,
			LastError:  "some error",
			UpdatedAt:  time.Now().Add(-time.Minute),
		}

		require.NoError(t, entry.ResetForRetry())
		assert.Equal(t, OutboxStatusPending, entry.Status)
		assert.Zero(t, entry.RetryCount)
		assert.Empty(t, entry.LastError)
		assert.Nil(t, entry.NextRetryAt)
		assert.WithinDuration(t, time.Now(), entry.UpdatedAt, time.Second)
	})

	t.Run("rejects entries that are not dead", func(t *testing.T) {
		for _, status := range []OutboxStatus{OutboxStatusPending, OutboxStatusProcessing, OutboxStatusSent, OutboxStatusFailed} {
			entry := &OutboxEntry{ID: uuid.New(), Status: status, RetryCount: 1}

			err := entry.ResetForRetry()

			var domainErr *DomainError
			require.ErrorAs(t, err, &domainErr)
			assert.Equal(t, "INVALID_STATUS", domainErr.Code)
			assert.Contains(t, err.Error(), string(status))
			assert.Equal(t, 1, entry.RetryCount)
		}
	})
}
