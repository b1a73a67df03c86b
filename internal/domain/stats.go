package domain

import "time"

// CallStats is the per-date rollup of scheduled calls plus the backlog of
// still-pending records from earlier dates.
type CallStats struct {
	Date      time.Time
	Scheduled int
	Completed int
	Failed    int
	Pending   int
	Queued    int
	Cancelled int
	Backlog   int
}
