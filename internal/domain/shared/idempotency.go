package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers processed event IDs so redelivered events are
// handled once
type IdempotencyStore interface {
	// MarkProcessed claims eventID for ttl. It reports false when the ID
	// was already claimed.
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)

	IsProcessed(ctx context.Context, eventID string) (bool, error)

	// Release drops the claim so a redelivery runs again
	Release(ctx context.Context, eventID string) error

	Close() error
}

// IdempotencyConfig tunes IdempotentHandler
type IdempotencyConfig struct {
	// TTL is how long a claim blocks redeliveries
	TTL time.Duration
	Enabled bool
}

// DefaultIdempotencyConfig claims for 24 hours
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
