package models

import "fmt"

// Status is the lifecycle state of a ReliefRequest.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusAccepted   Status = "ACCEPTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// Event drives a Status transition.
type Event string

const (
	EventAccept   Event = "ACCEPT"
	EventStart    Event = "START"
	EventComplete Event = "COMPLETE"
	EventCancel   Event = "CANCEL"
)

type transitionKey struct {
	from  Status
	event Event
}

// transitions is the whole state machine. Anything missing is invalid.
var transitions = map[transitionKey]Status{
	{StatusPending, EventAccept}:      StatusAccepted,
	{StatusAccepted, EventStart}:      StatusInProgress,
	{StatusInProgress, EventComplete}: StatusCompleted,
	{StatusPending, EventCancel}:      StatusCancelled,
	{StatusAccepted, EventCancel}:     StatusCancelled,
}

// Next returns the state reached from `from` on `event`, or ErrInvalidTransition.
func Next(from Status, event Event) (Status, error) {
	to, ok := transitions[transitionKey{from, event}]
	if !ok {
		return "", fmt.Errorf("%w: %s on %s", ErrInvalidTransition, event, from)
	}
	return to, nil
}

// EventFor maps a requested target status (as sent by a volunteer) to the event producing it.
func EventFor(target Status) (Event, bool) {
	switch target {
	case StatusInProgress:
		return EventStart, true
	case StatusCompleted:
		return EventComplete, true
	}
	return "", false
}

// ParseStatus accepts the wire spelling of a status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusAccepted, StatusInProgress, StatusCompleted, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrValidation, s)
}

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Active reports whether a dispatch in this state still occupies its volunteer.
func (s Status) Active() bool {
	return s == StatusAccepted || s == StatusInProgress
}
