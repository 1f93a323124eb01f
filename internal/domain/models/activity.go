// internal/domain/models/activity.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Activity status values. Both finished and cancelled are terminal.
const (
	ActivityActive    = "active"
	ActivityFinished  = "finished"
	ActivityCancelled = "cancelled"
)

// Activity is a volunteer activity hosted by an organization.
//
// EnrolledCount, Inflight, Revision and GuardedAt are maintained by the
// activity store's conditional writes:
//   - EnrolledCount is the number of seats taken. Enrollment rows are the
//     source of truth; the reconciler repairs drift.
//   - Inflight counts guarded ledger writes that have not released yet.
//   - Revision is bumped by every guarded write so terminal transitions can
//     detect that the ledger moved under them.
type Activity struct {
	ID              primitive.ObjectID `bson:"_id" json:"id"`
	Title           string             `bson:"title" json:"title"`
	TitleCI         string             `bson:"title_ci" json:"-"`
	Description     string             `bson:"description" json:"description"`
	Location        string             `bson:"location" json:"location"`
	Date            time.Time          `bson:"date" json:"date"` // calendar day, UTC midnight
	StartTime       string             `bson:"start_time" json:"startTime"`
	EndTime         string             `bson:"end_time" json:"endTime"`
	WorkloadHours   int                `bson:"workload_hours" json:"workloadHours"`
	MinParticipants int                `bson:"min_participants" json:"minParticipants"`
	MaxParticipants int                `bson:"max_participants" json:"maxParticipants"`
	Status          string             `bson:"status" json:"status"`
	CreatedBy       primitive.ObjectID `bson:"created_by" json:"createdBy"`

	EnrolledCount int        `bson:"enrolled_count" json:"enrolledCount"`
	Inflight      int        `bson:"inflight" json:"-"`
	Revision      int64      `bson:"revision" json:"-"`
	GuardedAt     *time.Time `bson:"guarded_at,omitempty" json:"-"`
	Certified     bool       `bson:"certified" json:"-"` // all certificates issued after finish

	CreatedAt  time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt  time.Time  `bson:"updated_at" json:"updatedAt"`
	FinishedAt *time.Time `bson:"finished_at,omitempty" json:"finishedAt,omitempty"`
}

// IsActive reports whether the activity still accepts enrollments and edits.
func (a Activity) IsActive() bool { return a.Status == ActivityActive }

// DateString formats the calendar day as YYYY-MM-DD.
func (a Activity) DateString() string { return a.Date.UTC().Format("2006-01-02") }
