// Package caller is the boundary to the voice gateway that places the
// actual outbound call and hosts the AI agent conversation.
package caller

import (
	"context"
	"errors"

	"github.com/abakirov/outdialer/internal/domain"
)

// ErrTransient marks failures worth retrying: timeouts, gateway overload,
// upstream unavailability.
var ErrTransient = errors.New("call initiation temporarily unavailable")

// ErrPermanent marks failures that retrying cannot fix, e.g. an invalid
// phone number. They consume no retries.
var ErrPermanent = errors.New("call initiation rejected")

// Result identifies what the gateway produced for a successful initiation.
type Result struct {
	CallRef  string
	RoomName string
}

// Initiator starts an outbound call to a customer. Implementations must
// classify every failure as ErrTransient or ErrPermanent.
type Initiator interface {
	InitiateCall(ctx context.Context, customerID string, reason domain.Reason) (*Result, error)
}
