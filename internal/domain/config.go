package domain

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

var ErrConfigInvalid = errors.New("invalid scheduler config")

var timeOfDayRe = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// SchedulerConfig is the singleton scheduling configuration. Exactly one
// record exists; updates are validated partial patches.
type SchedulerConfig struct {
	Enabled                bool
	DailyRunTime           string // "HH:MM", 24h
	LookaheadDays          int
	MaxCallsPerDay         int
	MaxConcurrentCalls     int
	SkipIfCalledWithinDays int
	RetryDelaySeconds      int
	MaxRetries             int
	UpdatedAt              time.Time
}

// DefaultSchedulerConfig is persisted on first access.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled:                true,
		DailyRunTime:           "10:00",
		LookaheadDays:          30,
		MaxCallsPerDay:         50,
		MaxConcurrentCalls:     5,
		SkipIfCalledWithinDays: 7,
		RetryDelaySeconds:      60,
		MaxRetries:             3,
	}
}

// SchedulerConfigPatch carries the fields of a partial config update.
// Nil fields are left unchanged.
type SchedulerConfigPatch struct {
	Enabled                *bool
	DailyRunTime           *string
	LookaheadDays          *int
	MaxCallsPerDay         *int
	MaxConcurrentCalls     *int
	SkipIfCalledWithinDays *int
	RetryDelaySeconds      *int
	MaxRetries             *int
}

// Apply merges the patch onto c and validates the result. On error the
// receiver is left untouched and no partial update is applied.
func (c *SchedulerConfig) Apply(p SchedulerConfigPatch) error {
	merged := *c
	if p.Enabled != nil {
		merged.Enabled = *p.Enabled
	}
	if p.DailyRunTime != nil {
		merged.DailyRunTime = *p.DailyRunTime
	}
	if p.LookaheadDays != nil {
		merged.LookaheadDays = *p.LookaheadDays
	}
	if p.MaxCallsPerDay != nil {
		merged.MaxCallsPerDay = *p.MaxCallsPerDay
	}
	if p.MaxConcurrentCalls != nil {
		merged.MaxConcurrentCalls = *p.MaxConcurrentCalls
	}
	if p.SkipIfCalledWithinDays != nil {
		merged.SkipIfCalledWithinDays = *p.SkipIfCalledWithinDays
	}
	if p.RetryDelaySeconds != nil {
		merged.RetryDelaySeconds = *p.RetryDelaySeconds
	}
	if p.MaxRetries != nil {
		merged.MaxRetries = *p.MaxRetries
	}
	if err := merged.Validate(); err != nil {
		return err
	}
	*c = merged
	return nil
}

func (c SchedulerConfig) Validate() error {
	if !timeOfDayRe.MatchString(c.DailyRunTime) {
		return fmt.Errorf("%w: daily_run_time %q is not HH:MM", ErrConfigInvalid, c.DailyRunTime)
	}
	if c.LookaheadDays < 1 {
		return fmt.Errorf("%w: lookahead_days must be >= 1", ErrConfigInvalid)
	}
	if c.MaxCallsPerDay < 1 {
		return fmt.Errorf("%w: max_calls_per_day must be >= 1", ErrConfigInvalid)
	}
	if c.MaxConcurrentCalls < 1 {
		return fmt.Errorf("%w: max_concurrent_calls must be >= 1", ErrConfigInvalid)
	}
	if c.SkipIfCalledWithinDays < 0 {
		return fmt.Errorf("%w: skip_if_called_within_days must be >= 0", ErrConfigInvalid)
	}
	if c.RetryDelaySeconds < 1 {
		return fmt.Errorf("%w: retry_delay_seconds must be >= 1", ErrConfigInvalid)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must be >= 0", ErrConfigInvalid)
	}
	return nil
}

// RetryDelay returns the configured retry delay as a duration.
func (c SchedulerConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}
