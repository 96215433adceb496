package models

import "time"

// Requester is an anonymous identity bound to one physical device.
type Requester struct {
	DeviceID     string    `bson:"_id" json:"device_id"`
	FullName     string    `bson:"fullName" json:"full_name"`
	Phone        string    `bson:"phone" json:"phone"`
	TokenVersion int       `bson:"tokenVersion" json:"-"`
	CreatedAt    time.Time `bson:"createdAt" json:"created_at"`
	UpdatedAt    time.Time `bson:"updatedAt" json:"updated_at"`
}
