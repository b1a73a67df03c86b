package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/abakirov/outdialer/internal/domain"
	"github.com/abakirov/outdialer/internal/repository"
)

// dateOnly truncates t to its UTC calendar date.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Selector computes which customers are eligible for an outbound call today.
type Selector struct {
	directory repository.CustomerDirectory
	calls     repository.ScheduledCallRepository
	logger    *slog.Logger
}

func NewSelector(directory repository.CustomerDirectory, calls repository.ScheduledCallRepository, logger *slog.Logger) *Selector {
	return &Selector{
		directory: directory,
		calls:     calls,
		logger:    logger.With("component", "selector"),
	}
}

// Select intersects three filters: policy expiring inside the lookahead
// window, no call started inside the skip window, and no active scheduled
// call for today. Survivors come back ordered by days to expiry ascending,
// truncated to limit. An empty result is not an error.
func (s *Selector) Select(ctx context.Context, lookaheadDays, skipWithinDays, limit int) ([]*domain.Candidate, error) {
	expiring, err := s.directory.FindExpiring(ctx, lookaheadDays)
	if err != nil {
		return nil, fmt.Errorf("find expiring policies: %w", err)
	}

	today := dateOnly(time.Now())
	skipSince := today.AddDate(0, 0, -skipWithinDays)

	candidates := make([]*domain.Candidate, 0, limit)
	for _, p := range expiring {
		if len(candidates) >= limit {
			break
		}

		lastCall, err := s.directory.LastCallStartedAt(ctx, p.CustomerID)
		if err != nil {
			return nil, fmt.Errorf("last call for %s: %w", p.CustomerID, err)
		}
		if lastCall != nil && skipWithinDays > 0 && !dateOnly(*lastCall).Before(skipSince) {
			continue
		}

		active, err := s.calls.HasActiveForDate(ctx, p.CustomerID, today)
		if err != nil {
			return nil, fmt.Errorf("active schedule check for %s: %w", p.CustomerID, err)
		}
		if active {
			continue
		}

		count, err := s.directory.CallCount(ctx, p.CustomerID)
		if err != nil {
			return nil, fmt.Errorf("call count for %s: %w", p.CustomerID, err)
		}

		candidates = append(candidates, &domain.Candidate{
			CustomerID:    p.CustomerID,
			Name:          p.Name,
			Phone:         p.Phone,
			PolicyRef:     p.PolicyRef,
			PolicyEndDate: p.EndDate,
			DaysToExpiry:  int(dateOnly(p.EndDate).Sub(today).Hours() / 24),
			LastCallAt:    lastCall,
			CallCount:     count,
		})
	}

	return candidates, nil
}
