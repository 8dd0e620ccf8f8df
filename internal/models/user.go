package models

import "go.mongodb.org/mongo-driver/bson/primitive"

const (
	RolePatient = "patient"
	RoleAdmin   = "admin"
)

type User struct {
	ID    primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Name  string             `bson:"name" json:"name"`
	Email string             `bson:"email" json:"email"`
	Role  string             `bson:"role" json:"role"` // "patient" or "admin"
}

// IsAdmin reports whether the user may run admin-only operations.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
