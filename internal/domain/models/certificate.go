// internal/domain/models/certificate.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Certificate is an immutable proof of completion. enrollment_id and
// verification_code are both unique.
type Certificate struct {
	ID               primitive.ObjectID `bson:"_id" json:"id"`
	UserID           primitive.ObjectID `bson:"user_id" json:"userId"`
	ActivityID       primitive.ObjectID `bson:"activity_id" json:"activityId"`
	EnrollmentID     primitive.ObjectID `bson:"enrollment_id" json:"enrollmentId"`
	Hours            int                `bson:"hours" json:"hours"`
	VerificationCode string             `bson:"verification_code" json:"verificationCode"`
	IssuedAt         time.Time          `bson:"issued_at" json:"issuedAt"`
}
