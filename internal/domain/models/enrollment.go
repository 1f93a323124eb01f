// internal/domain/models/enrollment.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Attendance decisions recorded on an enrollment.
const (
	AttendancePending = "pending"
	AttendancePresent = "present"
	AttendanceAbsent  = "absent"
)

// Enrollment is the ledger entry linking a student to an activity.
// (activity_id, user_id) is unique.
type Enrollment struct {
	ID               primitive.ObjectID  `bson:"_id" json:"id"`
	ActivityID       primitive.ObjectID  `bson:"activity_id" json:"activityId"`
	UserID           primitive.ObjectID  `bson:"user_id" json:"userId"`
	AttendanceStatus string              `bson:"attendance_status" json:"attendanceStatus"`
	ValidatedBy      *primitive.ObjectID `bson:"validated_by,omitempty" json:"validatedBy,omitempty"`
	EffectiveHours   int                 `bson:"effective_hours" json:"effectiveHours"`

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// IsPresent reports whether attendance was confirmed.
func (e Enrollment) IsPresent() bool { return e.AttendanceStatus == AttendancePresent }
