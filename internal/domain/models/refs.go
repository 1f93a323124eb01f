// internal/domain/models/refs.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserRef is the public projection of a user embedded in responses.
type UserRef struct {
	ID    primitive.ObjectID `json:"id"`
	Name  string             `json:"name"`
	Email string             `json:"email,omitempty"`
}

// RefOf builds a UserRef. The email is only included when withEmail is set.
func RefOf(u User, withEmail bool) UserRef {
	ref := UserRef{ID: u.ID, Name: u.DisplayName()}
	if withEmail {
		ref.Email = u.Email
	}
	return ref
}

// ActivityRef is the short form of an activity embedded in responses.
type ActivityRef struct {
	ID            primitive.ObjectID `json:"id"`
	Title         string             `json:"title"`
	Date          time.Time          `json:"date"`
	Location      string             `json:"location"`
	WorkloadHours int                `json:"workloadHours"`
	Status        string             `json:"status"`
}

// ActivityRefOf builds an ActivityRef.
func ActivityRefOf(a Activity) ActivityRef {
	return ActivityRef{
		ID:            a.ID,
		Title:         a.Title,
		Date:          a.Date,
		Location:      a.Location,
		WorkloadHours: a.WorkloadHours,
		Status:        a.Status,
	}
}
