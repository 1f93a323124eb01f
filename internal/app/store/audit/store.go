// internal/app/store/audit/store.go
package audit

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Event categories
const (
	CategoryAuth     = "auth"
	CategoryActivity = "activity"
)

// Auth event types
const (
	EventUserRegistered           = "user_registered"
	EventLoginSuccess             = "login_success"
	EventLoginFailedUserNotFound  = "login_failed_user_not_found"
	EventLoginFailedWrongPassword = "login_failed_wrong_password"
	EventProfileUpdated           = "profile_updated"
)

// Activity event types
const (
	EventActivityCreated    = "activity_created"
	EventActivityUpdated    = "activity_updated"
	EventActivityFinished   = "activity_finished"
	EventActivityCancelled  = "activity_cancelled"
	EventActivityDeleted    = "activity_deleted"
	EventEnrollmentCreated  = "enrollment_created"
	EventAttendanceRecorded = "attendance_recorded"
	EventCertificateIssued  = "certificate_issued"
)

// Event represents an audit event.
type Event struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	CreatedAt time.Time          `bson:"created_at"`

	Category  string `bson:"category"`
	EventType string `bson:"event_type"`

	// Who
	ActorID *primitive.ObjectID `bson:"actor_id,omitempty"` // who performed the action
	UserID  *primitive.ObjectID `bson:"user_id,omitempty"`  // affected user

	// What
	ActivityID *primitive.ObjectID `bson:"activity_id,omitempty"`

	// Context
	IP        string `bson:"ip"`
	UserAgent string `bson:"user_agent,omitempty"`

	// Outcome
	Success       bool   `bson:"success"`
	FailureReason string `bson:"failure_reason,omitempty"`

	Details map[string]string `bson:"details,omitempty"`
}

// QueryFilter defines filters for querying audit events.
type QueryFilter struct {
	ActorID    *primitive.ObjectID
	UserID     *primitive.ObjectID
	ActivityID *primitive.ObjectID
	Category   string
	EventType  string
	StartTime  *time.Time
	EndTime    *time.Time
	Limit      int64
	Offset     int64
}

// Store manages audit event records. Indexes are created by indexes.EnsureAll.
type Store struct {
	c *mongo.Collection
}

// New creates a new audit Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("audit_events")}
}

// Log records an audit event.
func (s *Store) Log(ctx context.Context, event Event) error {
	if event.ID.IsZero() {
		event.ID = primitive.NewObjectID()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	_, err := s.c.InsertOne(ctx, event)
	return err
}

func (f QueryFilter) query() bson.M {
	q := bson.M{}
	if f.ActorID != nil {
		q["actor_id"] = *f.ActorID
	}
	if f.UserID != nil {
		q["user_id"] = *f.UserID
	}
	if f.ActivityID != nil {
		q["activity_id"] = *f.ActivityID
	}
	if f.Category != "" {
		q["category"] = f.Category
	}
	if f.EventType != "" {
		q["event_type"] = f.EventType
	}
	if f.StartTime != nil || f.EndTime != nil {
		tq := bson.M{}
		if f.StartTime != nil {
			tq["$gte"] = *f.StartTime
		}
		if f.EndTime != nil {
			tq["$lte"] = *f.EndTime
		}
		q["created_at"] = tq
	}
	return q
}

// Query retrieves audit events matching the given filter, newest first.
func (s *Store) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit).
		SetSkip(filter.Offset)

	cursor, err := s.c.Find(ctx, filter.query(), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	events := []Event{}
	if err := cursor.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// CountByFilter returns the count of events matching the filter.
func (s *Store) CountByFilter(ctx context.Context, filter QueryFilter) (int64, error) {
	return s.c.CountDocuments(ctx, filter.query())
}

// GetByActivity retrieves the recent history of an activity.
func (s *Store) GetByActivity(ctx context.Context, activityID primitive.ObjectID, limit int64) ([]Event, error) {
	return s.Query(ctx, QueryFilter{ActivityID: &activityID, Limit: limit})
}

// GetByUser retrieves recent audit events affecting a user.
func (s *Store) GetByUser(ctx context.Context, userID primitive.ObjectID, limit int64) ([]Event, error) {
	return s.Query(ctx, QueryFilter{UserID: &userID, Limit: limit})
}

// GetRecent retrieves the most recent audit events.
func (s *Store) GetRecent(ctx context.Context, limit int64) ([]Event, error) {
	return s.Query(ctx, QueryFilter{Limit: limit})
}
