package models

import "errors"

// Validation: rejected synchronously, nothing applied.
var (
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// Conflict: rejected with no state change.
var (
	ErrAlreadyClaimed    = errors.New("request already claimed")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotAuthorized     = errors.New("not authorized")
	ErrVolunteerBusy     = errors.New("volunteer already holds an active dispatch")
	ErrNotInProgress     = errors.New("dispatch is not in progress")
	ErrDispatchClosed    = errors.New("dispatch is closed")
	ErrNoLocationYet     = errors.New("no location reported yet")
)

// Availability.
var (
	ErrRoutingUnavailable = errors.New("routing service unavailable")
	ErrNoCentresAvailable = errors.New("no active relief centres available")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrValidation, "VALIDATION"},
	{ErrNotFound, "NOT_FOUND"},
	{ErrAlreadyExists, "ALREADY_EXISTS"},
	{ErrAlreadyClaimed, "ALREADY_CLAIMED"},
	{ErrInvalidTransition, "INVALID_TRANSITION"},
	{ErrNotAuthorized, "NOT_AUTHORIZED"},
	{ErrVolunteerBusy, "VOLUNTEER_BUSY"},
	{ErrNotInProgress, "NOT_IN_PROGRESS"},
	{ErrDispatchClosed, "DISPATCH_CLOSED"},
	{ErrNoLocationYet, "NO_LOCATION_YET"},
	{ErrRoutingUnavailable, "ROUTING_UNAVAILABLE"},
	{ErrNoCentresAvailable, "NO_CENTRES_AVAILABLE"},
}

// Code returns the machine-readable code of a domain error, or "" for anything else.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ""
}
