package models

import "time"

type Role string

const (
	RoleVolunteer Role = "VOLUNTEER"
	RoleAdmin     Role = "ADMIN"
)

// User is a staff account (volunteer or admin).
type User struct {
	ID           string    `bson:"_id" json:"id"`
	Email        string    `bson:"email" json:"email"`
	Name         string    `bson:"name" json:"name"`
	PasswordHash string    `bson:"password" json:"-"`
	Role         Role      `bson:"role" json:"role"`
	Phone        string    `bson:"phone,omitempty" json:"phone,omitempty"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
}

// Volunteer is the identity recorded on a dispatch.
type Volunteer struct {
	ID   string `bson:"id" json:"id"`
	Name string `bson:"name" json:"name"`
}
