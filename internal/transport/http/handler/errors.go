package handler

const (
	errInternalServer   = "Internal server error"
	errCallNotFound     = "Scheduled call not found"
	errAlreadyScheduled = "Customer already has an active call scheduled for this date"
	errAlreadyExecuted  = "Call has already been executed and cannot be cancelled"
	errBadDate          = "Date must be formatted as YYYY-MM-DD"
	errBadStatus        = "Unknown status filter"
	errBadReason        = "Unknown call reason"
)
