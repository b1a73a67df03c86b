package repository

import (
	"context"
	"time"

	"github.com/abakirov/outdialer/internal/domain"
)

// CustomerDirectory is the read-only boundary to the customer/policy store
// and the call-history log. The scheduler does not own those tables.
type CustomerDirectory interface {
	// FindExpiring returns active policy attachments whose end date falls in
	// [today, today+lookaheadDays], ordered by end date ascending. One row
	// per customer (the soonest-expiring attachment wins).
	FindExpiring(ctx context.Context, lookaheadDays int) ([]*domain.ExpiringPolicy, error)

	// LastCallStartedAt returns when the customer's most recent call started,
	// or nil when the customer has never been called.
	LastCallStartedAt(ctx context.Context, customerID string) (*time.Time, error)

	// CallCount returns how many calls the customer has received in total.
	CallCount(ctx context.Context, customerID string) (int, error)
}
