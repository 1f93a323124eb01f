// internal/domain/models/views.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EnrollmentView is an enrollment with its resolved references. Which
// reference is filled depends on the listing: activity rosters carry the
// student, a student's own listing carries the activity.
type EnrollmentView struct {
	Enrollment
	Student  *UserRef     `json:"student,omitempty"`
	Activity *ActivityRef `json:"activity,omitempty"`
}

// CertificateView is a certificate with the names needed to display or
// verify it.
type CertificateView struct {
	ID               primitive.ObjectID `json:"id"`
	EnrollmentID     primitive.ObjectID `json:"enrollmentId"`
	VerificationCode string             `json:"verificationCode"`
	Hours            int                `json:"hours"`
	IssuedAt         time.Time          `json:"issuedAt"`
	Student          UserRef            `json:"student"`
	Organization     UserRef            `json:"organization"`
	Activity         ActivityRef        `json:"activity"`
}

// StudentSummary backs the student dashboard.
type StudentSummary struct {
	Enrollments  []EnrollmentView  `json:"enrollments"`
	Certificates []CertificateView `json:"certificates"`
	TotalHours   int               `json:"totalHours"`
}
