package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abakirov/outdialer/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CustomerDirectory reads the customer/policy tables and the call-history
// log. The scheduler never writes to them.
type CustomerDirectory struct {
	pool *pgxpool.Pool
}

func NewCustomerDirectory(pool *pgxpool.Pool) *CustomerDirectory {
	return &CustomerDirectory{pool: pool}
}

func (d *CustomerDirectory) FindExpiring(ctx context.Context, lookaheadDays int) ([]*domain.ExpiringPolicy, error) {
	// DISTINCT ON keeps one row per customer, the soonest-expiring
	// attachment; the outer ORDER BY restores expiry ordering.
	rows, err := d.pool.Query(ctx, `
		SELECT customer_id, name, phone, policy_ref, end_date FROM (
			SELECT DISTINCT ON (cp.customer_id)
			       cp.customer_id, c.name, c.phone, cp.policy_ref, cp.end_date
			FROM customer_policies cp
			JOIN customers c ON c.id = cp.customer_id
			WHERE cp.status = 'active'
			  AND cp.end_date >= CURRENT_DATE
			  AND cp.end_date <= CURRENT_DATE + $1::int
			ORDER BY cp.customer_id, cp.end_date ASC
		) expiring
		ORDER BY end_date ASC`, lookaheadDays)
	if err != nil {
		return nil, fmt.Errorf("find expiring policies: %w", err)
	}
	defer rows.Close()

	var result []*domain.ExpiringPolicy
	for rows.Next() {
		var p domain.ExpiringPolicy
		if err := rows.Scan(&p.CustomerID, &p.Name, &p.Phone, &p.PolicyRef, &p.EndDate); err != nil {
			return nil, fmt.Errorf("scan expiring policy: %w", err)
		}
		result = append(result, &p)
	}
	return result, rows.Err()
}

func (d *CustomerDirectory) LastCallStartedAt(ctx context.Context, customerID string) (*time.Time, error) {
	var startedAt time.Time
	err := d.pool.QueryRow(ctx, `
		SELECT started_at FROM calls
		WHERE customer_id = $1
		ORDER BY started_at DESC
		LIMIT 1`, customerID).Scan(&startedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("last call started at: %w", err)
	}
	return &startedAt, nil
}

func (d *CustomerDirectory) CallCount(ctx context.Context, customerID string) (int, error) {
	var count int
	err := d.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM calls WHERE customer_id = $1`, customerID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("call count: %w", err)
	}
	return count, nil
}
