package models

import "time"

// DeliveryProof is a photo the volunteer attached to a dispatch.
type DeliveryProof struct {
	ID         string    `bson:"id" json:"id"`
	PhotoURL   string    `bson:"photoURL" json:"photo_url"`
	PhotoHash  string    `bson:"photoHash" json:"photo_hash"`
	UploadedBy string    `bson:"uploadedBy" json:"uploaded_by"`
	CreatedAt  time.Time `bson:"createdAt" json:"created_at"`
}
