// server/internal/models/facility.go
package models

import "time"

// CentreStatus is the administrative state of a relief centre.
type CentreStatus string

const (
	CentreActive   CentreStatus = "active"
	CentreInactive CentreStatus = "inactive"
)

// ReliefCentre is a fixed facility that receives requesters. Owned by admins,
// read-only to the dispatch core.
type ReliefCentre struct {
	ID        string       `bson:"_id" json:"id"`
	Name      string       `bson:"name" json:"name"`
	Latitude  float64      `bson:"latitude" json:"latitude"`
	Longitude float64      `bson:"longitude" json:"longitude"`
	Capacity  *int         `bson:"capacity,omitempty" json:"capacity"`
	Status    CentreStatus `bson:"status" json:"status"`
	CreatedAt time.Time    `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time    `bson:"updatedAt" json:"updatedAt"`
}

func (c ReliefCentre) Coordinate() Coordinate {
	return Coordinate{Latitude: c.Latitude, Longitude: c.Longitude}
}

func (c ReliefCentre) IsActive() bool { return c.Status == CentreActive }
