package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abakirov/outdialer/internal/domain"
	"github.com/abakirov/outdialer/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const scheduledCallColumns = `id, customer_id, policy_ref, scheduled_date, status, reason,
	       priority, retry_count, max_retries, dispatch_task_ref, result_call_ref,
	       last_error, notes, executed_at, created_at, updated_at`

type ScheduledCallRepository struct {
	pool *pgxpool.Pool
}

func NewScheduledCallRepository(pool *pgxpool.Pool) *ScheduledCallRepository {
	return &ScheduledCallRepository{pool: pool}
}

func (r *ScheduledCallRepository) Create(ctx context.Context, call *domain.ScheduledCall) (*domain.ScheduledCall, error) {
	// The partial unique index scheduled_calls_active_per_day
	// (customer_id, scheduled_date) WHERE status IN ('pending','queued')
	// enforces the one-active-call-per-customer-per-day invariant.
	query := `
		INSERT INTO scheduled_calls (
			customer_id, policy_ref, scheduled_date, status, reason,
			priority, max_retries, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + scheduledCallColumns

	row := r.pool.QueryRow(ctx, query,
		call.CustomerID,
		call.PolicyRef,
		call.ScheduledDate,
		call.Status,
		call.Reason,
		call.Priority,
		call.MaxRetries,
		call.Notes,
	)

	created, err := scanScheduledCall(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrAlreadyScheduled
		}
		return nil, err
	}
	return created, nil
}

func (r *ScheduledCallRepository) GetByID(ctx context.Context, id string) (*domain.ScheduledCall, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+scheduledCallColumns+` FROM scheduled_calls WHERE id = $1`, id)
	return scanScheduledCall(row)
}

func (r *ScheduledCallRepository) List(ctx context.Context, input repository.ListCallsInput) ([]*repository.ScheduledCallRow, error) {
	args := []any{}
	where := []string{"TRUE"}

	if input.Date != nil {
		args = append(args, *input.Date)
		where = append(where, fmt.Sprintf("sc.scheduled_date = $%d", len(args)))
	}
	if input.Status != "" {
		args = append(args, input.Status)
		where = append(where, fmt.Sprintf("sc.status = $%d", len(args)))
	}
	if input.CustomerID != "" {
		args = append(args, input.CustomerID)
		where = append(where, fmt.Sprintf("sc.customer_id = $%d", len(args)))
	}
	args = append(args, input.Limit)

	query := fmt.Sprintf(`
		SELECT sc.id, sc.customer_id, sc.policy_ref, sc.scheduled_date, sc.status,
		       sc.reason, sc.priority, sc.retry_count, sc.max_retries,
		       sc.dispatch_task_ref, sc.result_call_ref, sc.last_error, sc.notes,
		       sc.executed_at, sc.created_at, sc.updated_at,
		       c.name, c.phone
		FROM scheduled_calls sc
		JOIN customers c ON c.id = sc.customer_id
		WHERE %s
		ORDER BY sc.scheduled_date DESC, sc.priority ASC, sc.created_at DESC
		LIMIT $%d`,
		strings.Join(where, " AND "), len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list scheduled calls: %w", err)
	}
	defer rows.Close()

	var result []*repository.ScheduledCallRow
	for rows.Next() {
		var sc repository.ScheduledCallRow
		err := rows.Scan(
			&sc.ID, &sc.CustomerID, &sc.PolicyRef, &sc.ScheduledDate, &sc.Status,
			&sc.Reason, &sc.Priority, &sc.RetryCount, &sc.MaxRetries,
			&sc.DispatchTaskRef, &sc.ResultCallRef, &sc.LastError, &sc.Notes,
			&sc.ExecutedAt, &sc.CreatedAt, &sc.UpdatedAt,
			&sc.CustomerName, &sc.CustomerPhone,
		)
		if err != nil {
			return nil, fmt.Errorf("scan scheduled call row: %w", err)
		}
		result = append(result, &sc)
	}
	return result, rows.Err()
}

func (r *ScheduledCallRepository) HasActiveForDate(ctx context.Context, customerID string, date time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM scheduled_calls
			WHERE customer_id = $1
			  AND scheduled_date = $2
			  AND status IN ('pending', 'queued')
		)`, customerID, date).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active scheduled call: %w", err)
	}
	return exists, nil
}

func (r *ScheduledCallRepository) MarkQueued(ctx context.Context, id, taskRef string) error {
	return r.swap(ctx, id, `
		UPDATE scheduled_calls
		SET    status = 'queued', dispatch_task_ref = $2, updated_at = NOW()
		WHERE  id = $1 AND status = 'pending'`, id, taskRef)
}

func (r *ScheduledCallRepository) Complete(ctx context.Context, id, callRef string) error {
	return r.swap(ctx, id, `
		UPDATE scheduled_calls
		SET    status = 'completed', result_call_ref = $2, last_error = NULL,
		       executed_at = NOW(), updated_at = NOW()
		WHERE  id = $1 AND status = 'queued'`, id, callRef)
}

func (r *ScheduledCallRepository) Requeue(ctx context.Context, id, dispatchErr string) error {
	return r.swap(ctx, id, `
		UPDATE scheduled_calls
		SET    status = 'pending', retry_count = retry_count + 1,
		       last_error = $2, updated_at = NOW()
		WHERE  id = $1 AND status = 'queued' AND retry_count < max_retries`, id, dispatchErr)
}

func (r *ScheduledCallRepository) Fail(ctx context.Context, id, dispatchErr string) error {
	return r.swap(ctx, id, `
		UPDATE scheduled_calls
		SET    status = 'failed', last_error = $2,
		       executed_at = NOW(), updated_at = NOW()
		WHERE  id = $1 AND status = 'queued'`, id, dispatchErr)
}

func (r *ScheduledCallRepository) Cancel(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE scheduled_calls
		SET    status = 'cancelled', updated_at = NOW()
		WHERE  id = $1 AND status IN ('pending', 'queued')`, id)
	if err != nil {
		return fmt.Errorf("cancel scheduled call: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Zero rows: either the id is unknown, the record is already cancelled
	// (idempotent success) or it reached another terminal state.
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == domain.StatusCancelled {
		return nil
	}
	return domain.ErrInvalidState
}

func (r *ScheduledCallRepository) Stats(ctx context.Context, date time.Time) (*domain.CallStats, error) {
	stats := &domain.CallStats{Date: date}
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE scheduled_date = $1),
			COUNT(*) FILTER (WHERE scheduled_date = $1 AND status = 'completed'),
			COUNT(*) FILTER (WHERE scheduled_date = $1 AND status = 'failed'),
			COUNT(*) FILTER (WHERE scheduled_date = $1 AND status = 'pending'),
			COUNT(*) FILTER (WHERE scheduled_date = $1 AND status = 'queued'),
			COUNT(*) FILTER (WHERE scheduled_date = $1 AND status = 'cancelled'),
			COUNT(*) FILTER (WHERE scheduled_date < $1 AND status = 'pending')
		FROM scheduled_calls`, date).Scan(
		&stats.Scheduled, &stats.Completed, &stats.Failed,
		&stats.Pending, &stats.Queued, &stats.Cancelled, &stats.Backlog,
	)
	if err != nil {
		return nil, fmt.Errorf("scheduled call stats: %w", err)
	}
	return stats, nil
}

func (r *ScheduledCallRepository) DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM scheduled_calls
		WHERE status IN ('completed', 'failed', 'cancelled')
		  AND created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup scheduled calls: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// swap runs a CAS update and maps a zero-row result to the right domain
// error: unknown id or a status that no longer matches the expected one.
func (r *ScheduledCallRepository) swap(ctx context.Context, id, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("scheduled call status swap: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return domain.ErrInvalidState
}

// pgx.Row and pgx.Rows both implement this.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanScheduledCall(row rowScanner) (*domain.ScheduledCall, error) {
	var sc domain.ScheduledCall
	err := row.Scan(
		&sc.ID, &sc.CustomerID, &sc.PolicyRef, &sc.ScheduledDate, &sc.Status,
		&sc.Reason, &sc.Priority, &sc.RetryCount, &sc.MaxRetries,
		&sc.DispatchTaskRef, &sc.ResultCallRef, &sc.LastError, &sc.Notes,
		&sc.ExecutedAt, &sc.CreatedAt, &sc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCallNotFound
		}
		return nil, fmt.Errorf("scan scheduled call: %w", err)
	}
	return &sc, nil
}
