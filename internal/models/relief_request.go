// server/internal/models/relief_request.go
package models

import "time"

// ReliefRequest is one call for help. Requester name and phone are copied at
// creation so later device edits never rewrite history. Only Status (and the
// dispatch/audit fields) change after creation.
//
// ActiveVolunteerID mirrors Dispatch.Volunteer.ID while the request is
// ACCEPTED or IN_PROGRESS and is unset otherwise.
type ReliefRequest struct {
	ID                string        `bson:"_id" json:"id"`
	RequesterDeviceID string        `bson:"requesterDeviceID" json:"-"`
	RequesterName     string        `bson:"requesterName" json:"requester_name"`
	RequesterPhone    string        `bson:"requesterPhone" json:"requester_phone"`
	Location          Coordinate    `bson:"location" json:"location"`
	ReliefCentreID    string        `bson:"reliefCentreID" json:"relief_centre_id"`
	Supplies          []string      `bson:"supplies" json:"supplies"`
	UrgencyLevel      int           `bson:"urgencyLevel" json:"urgency_level"`
	Status            Status        `bson:"status" json:"status"`
	Dispatch          *Dispatch     `bson:"dispatch,omitempty" json:"dispatch,omitempty"`
	ActiveVolunteerID *string       `bson:"activeVolunteerID,omitempty" json:"-"`
	History           []StatusEntry `bson:"history" json:"history,omitempty"`
	CreatedAt         time.Time     `bson:"createdAt" json:"created_at"`
	UpdatedAt         time.Time     `bson:"updatedAt" json:"updated_at"`
}

// StatusEntry is one line of the audit trail.
type StatusEntry struct {
	Status Status    `bson:"status" json:"status"`
	By     string    `bson:"by" json:"by"`
	At     time.Time `bson:"at" json:"at"`
}

// Dispatch records the single volunteer serving a request. Created once, at Accept.
type Dispatch struct {
	ID         string          `bson:"id" json:"id"`
	Volunteer  Volunteer       `bson:"volunteer" json:"volunteer"`
	AssignedAt time.Time       `bson:"assignedAt" json:"assigned_at"`
	Proofs     []DeliveryProof `bson:"proofs,omitempty" json:"proofs,omitempty"`
}

// Clone returns a deep copy safe to hand out of a store.
func (r *ReliefRequest) Clone() *ReliefRequest {
	if r == nil {
		return nil
	}
	out := *r
	out.Supplies = append([]string(nil), r.Supplies...)
	out.History = append([]StatusEntry(nil), r.History...)
	if r.Dispatch != nil {
		d := *r.Dispatch
		d.Proofs = append([]DeliveryProof(nil), r.Dispatch.Proofs...)
		out.Dispatch = &d
	}
	if r.ActiveVolunteerID != nil {
		v := *r.ActiveVolunteerID
		out.ActiveVolunteerID = &v
	}
	return &out
}
