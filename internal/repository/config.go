package repository

import (
	"context"

	"github.com/abakirov/outdialer/internal/domain"
)

type ConfigRepository interface {
	// Get returns the singleton scheduler config, inserting the defaults on
	// first access.
	Get(ctx context.Context) (*domain.SchedulerConfig, error)

	// Update merges a validated patch onto the current record and persists
	// the result atomically. No partial update is applied on validation
	// failure.
	Update(ctx context.Context, patch domain.SchedulerConfigPatch) (*domain.SchedulerConfig, error)
}
