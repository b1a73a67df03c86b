package domain

import "time"

// Candidate is a customer eligible for an outbound call today: the policy
// expires within the lookahead window, the customer has not been called
// inside the skip window, and no active scheduled call exists for today.
type Candidate struct {
	CustomerID    string
	Name          string
	Phone         string
	PolicyRef     string
	PolicyEndDate time.Time
	DaysToExpiry  int

	// Preview extras from the call history.
	LastCallAt *time.Time
	CallCount  int
}

// ExpiringPolicy is a raw row from the customer/policy store before the
// skip-window and already-scheduled filters run.
type ExpiringPolicy struct {
	CustomerID string
	Name       string
	Phone      string
	PolicyRef  string
	EndDate    time.Time
}
