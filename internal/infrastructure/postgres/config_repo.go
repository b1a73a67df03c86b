package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/abakirov/outdialer/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ConfigRepository struct {
	pool *pgxpool.Pool
}

func NewConfigRepository(pool *pgxpool.Pool) *ConfigRepository {
	return &ConfigRepository{pool: pool}
}

const configRowID = "default"

func (r *ConfigRepository) Get(ctx context.Context) (*domain.SchedulerConfig, error) {
	cfg, err := r.get(ctx, r.pool)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// First access: insert the defaults. ON CONFLICT guards against a
	// concurrent first access.
	def := domain.DefaultSchedulerConfig()
	_, err = r.pool.Exec(ctx, `
		INSERT INTO scheduler_config (
			id, enabled, daily_run_time, lookahead_days, max_calls_per_day,
			max_concurrent_calls, skip_if_called_within_days,
			retry_delay_seconds, max_retries
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		configRowID, def.Enabled, def.DailyRunTime, def.LookaheadDays,
		def.MaxCallsPerDay, def.MaxConcurrentCalls, def.SkipIfCalledWithinDays,
		def.RetryDelaySeconds, def.MaxRetries,
	)
	if err != nil {
		return nil, fmt.Errorf("insert default config: %w", err)
	}
	return r.get(ctx, r.pool)
}

func (r *ConfigRepository) Update(ctx context.Context, patch domain.SchedulerConfigPatch) (*domain.SchedulerConfig, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin config update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lock the singleton row so concurrent patches serialize instead of
	// clobbering each other's merged result.
	cfg, err := r.getForUpdate(ctx, tx)
	if err != nil {
		return nil, err
	}

	if err := cfg.Apply(patch); err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE scheduler_config
		SET enabled = $2, daily_run_time = $3, lookahead_days = $4,
		    max_calls_per_day = $5, max_concurrent_calls = $6,
		    skip_if_called_within_days = $7, retry_delay_seconds = $8,
		    max_retries = $9, updated_at = NOW()
		WHERE id = $1`,
		configRowID, cfg.Enabled, cfg.DailyRunTime, cfg.LookaheadDays,
		cfg.MaxCallsPerDay, cfg.MaxConcurrentCalls, cfg.SkipIfCalledWithinDays,
		cfg.RetryDelaySeconds, cfg.MaxRetries,
	)
	if err != nil {
		return nil, fmt.Errorf("update config: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit config update: %w", err)
	}
	return r.get(ctx, r.pool)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const configColumns = `enabled, daily_run_time, lookahead_days, max_calls_per_day,
	       max_concurrent_calls, skip_if_called_within_days,
	       retry_delay_seconds, max_retries, updated_at`

func (r *ConfigRepository) get(ctx context.Context, q querier) (*domain.SchedulerConfig, error) {
	var cfg domain.SchedulerConfig
	err := q.QueryRow(ctx,
		`SELECT `+configColumns+` FROM scheduler_config WHERE id = $1`, configRowID,
	).Scan(
		&cfg.Enabled, &cfg.DailyRunTime, &cfg.LookaheadDays, &cfg.MaxCallsPerDay,
		&cfg.MaxConcurrentCalls, &cfg.SkipIfCalledWithinDays,
		&cfg.RetryDelaySeconds, &cfg.MaxRetries, &cfg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *ConfigRepository) getForUpdate(ctx context.Context, tx pgx.Tx) (*domain.SchedulerConfig, error) {
	var cfg domain.SchedulerConfig
	err := tx.QueryRow(ctx,
		`SELECT `+configColumns+` FROM scheduler_config WHERE id = $1 FOR UPDATE`, configRowID,
	).Scan(
		&cfg.Enabled, &cfg.DailyRunTime, &cfg.LookaheadDays, &cfg.MaxCallsPerDay,
		&cfg.MaxConcurrentCalls, &cfg.SkipIfCalledWithinDays,
		&cfg.RetryDelaySeconds, &cfg.MaxRetries, &cfg.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("load config for update: %w", err)
	}
	return &cfg, nil
}
