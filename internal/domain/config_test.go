package domain_test

import (
	"errors"
	"testing"

	"github.com/abakirov/outdialer/internal/domain"
)

func intp(v int) *int       { return &v }
func strp(v string) *string { return &v }
func boolp(v bool) *bool    { return &v }

func TestApplyPatch_MergesOnlySuppliedFields(t *testing.T) {
	cfg := domain.DefaultSchedulerConfig()

	err := cfg.Apply(domain.SchedulerConfigPatch{
		LookaheadDays:  intp(45),
		MaxCallsPerDay: intp(10),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.LookaheadDays != 45 {
		t.Errorf("LookaheadDays = %d, want 45", cfg.LookaheadDays)
	}
	if cfg.MaxCallsPerDay != 10 {
		t.Errorf("MaxCallsPerDay = %d, want 10", cfg.MaxCallsPerDay)
	}

	// Unspecified fields keep their defaults.
	def := domain.DefaultSchedulerConfig()
	if cfg.DailyRunTime != def.DailyRunTime {
		t.Errorf("DailyRunTime changed to %q", cfg.DailyRunTime)
	}
	if cfg.SkipIfCalledWithinDays != def.SkipIfCalledWithinDays {
		t.Errorf("SkipIfCalledWithinDays changed to %d", cfg.SkipIfCalledWithinDays)
	}
}

func TestApplyPatch_RejectsOutOfRange(t *testing.T) {
	cases := []struct {
		name  string
		patch domain.SchedulerConfigPatch
	}{
		{"zero lookahead", domain.SchedulerConfigPatch{LookaheadDays: intp(0)}},
		{"negative skip window", domain.SchedulerConfigPatch{SkipIfCalledWithinDays: intp(-1)}},
		{"zero daily cap", domain.SchedulerConfigPatch{MaxCallsPerDay: intp(0)}},
		{"zero concurrency", domain.SchedulerConfigPatch{MaxConcurrentCalls: intp(0)}},
		{"malformed time", domain.SchedulerConfigPatch{DailyRunTime: strp("25:99")}},
		{"not a time at all", domain.SchedulerConfigPatch{DailyRunTime: strp("morning")}},
		{"zero retry delay", domain.SchedulerConfigPatch{RetryDelaySeconds: intp(0)}},
		{"negative max retries", domain.SchedulerConfigPatch{MaxRetries: intp(-1)}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := domain.DefaultSchedulerConfig()
			before := cfg
			err := cfg.Apply(c.patch)
			if !errors.Is(err, domain.ErrConfigInvalid) {
				t.Fatalf("expected ErrConfigInvalid, got %v", err)
			}
			if cfg != before {
				t.Error("config was mutated despite validation failure")
			}
		})
	}
}

func TestApplyPatch_DisableScheduler(t *testing.T) {
	cfg := domain.DefaultSchedulerConfig()
	if err := cfg.Apply(domain.SchedulerConfigPatch{Enabled: boolp(false)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Enabled {
		t.Error("scheduler still enabled after patch")
	}
}
