package domain

import (
	"errors"
	"time"
)

var (
	ErrCallNotFound     = errors.New("scheduled call not found")
	ErrInvalidState     = errors.New("invalid state for this operation")
	ErrAlreadyScheduled = errors.New("customer already has an active scheduled call for this date")
	ErrInvalidStatus    = errors.New("invalid status value")
	ErrInvalidReason    = errors.New("invalid reason value")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusQueued    Status = "queued"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusQueued, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Terminal statuses admit no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// transitions is the single authoritative transition table. Every mutation
// site (repository CAS updates, cancellation, dispatcher) consults it; nothing
// branches on raw status strings.
var transitions = map[Status][]Status{
	StatusPending: {StatusQueued, StatusCancelled},
	StatusQueued:  {StatusCompleted, StatusFailed, StatusPending, StatusCancelled},
}

// CanTransition reports whether a scheduled call may move from -> to.
// queued -> pending is the retry edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Reason string

const (
	ReasonExpiringPolicy Reason = "expiring_policy"
	ReasonFollowUp       Reason = "follow_up"
	ReasonManual         Reason = "manual"
)

func (r Reason) Valid() bool {
	switch r {
	case ReasonExpiringPolicy, ReasonFollowUp, ReasonManual:
		return true
	}
	return false
}

// ScheduledCall is one planned outbound call and its outcome. It is the only
// mutable shared record in the system; all writes go through status CAS.
type ScheduledCall struct {
	ID         string
	CustomerID string
	PolicyRef  *string // customer-policy attachment, not owned here

	ScheduledDate time.Time // date component only
	Status        Status
	Reason        Reason

	// Lower value = more urgent. Derived from days to policy expiry.
	Priority int

	RetryCount int
	MaxRetries int

	DispatchTaskRef *string // queue message ID of the last dispatch item
	ResultCallRef   *string // call record produced on completion
	LastError       *string
	Notes           *string

	ExecutedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
