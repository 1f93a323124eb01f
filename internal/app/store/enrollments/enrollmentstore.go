// internal/app/store/enrollments/enrollmentstore.go
package enrollmentstore

import (
	"context"
	"errors"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/maishoras/maishoras/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrDuplicateEnrollment is returned when the (activity, user) pair already
// has an enrollment. It comes from the unique index, so it also covers two
// concurrent inserts.
var ErrDuplicateEnrollment = errors.New("user is already enrolled in this activity")

// ErrNotFound is returned when no enrollment matches.
var ErrNotFound = errors.New("enrollment not found")

// Store is the enrollment ledger. It holds no business rules; the lifecycle
// controller decides when each write is allowed.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("enrollments")}
}

// Create inserts a pending enrollment.
func (s *Store) Create(ctx context.Context, e *models.Enrollment) error {
	now := time.Now().UTC()
	if e.ID.IsZero() {
		e.ID = primitive.NewObjectID()
	}
	if e.AttendanceStatus == "" {
		e.AttendanceStatus = models.AttendancePending
	}
	e.CreatedAt = now
	e.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, e); err != nil {
		if wafflemongo.IsDup(err) {
			return ErrDuplicateEnrollment
		}
		return err
	}
	return nil
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (models.Enrollment, error) {
	var e models.Enrollment
	err := s.c.FindOne(ctx, filter).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return e, ErrNotFound
	}
	return e, err
}

// GetByID loads an enrollment.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Enrollment, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

// FindByActivityAndUser loads the enrollment of userID in activityID.
func (s *Store) FindByActivityAndUser(ctx context.Context, activityID, userID primitive.ObjectID) (models.Enrollment, error) {
	return s.findOne(ctx, bson.M{"activity_id": activityID, "user_id": userID})
}

// CountByActivity counts an activity's enrollments, optionally restricted
// to one attendance status ("" counts all).
func (s *Store) CountByActivity(ctx context.Context, activityID primitive.ObjectID, status string) (int64, error) {
	filter := bson.M{"activity_id": activityID}
	if status != "" {
		filter["attendance_status"] = status
	}
	return s.c.CountDocuments(ctx, filter)
}

// ListByActivity returns an activity's enrollments in enrollment order,
// optionally restricted to one attendance status.
func (s *Store) ListByActivity(ctx context.Context, activityID primitive.ObjectID, status string) ([]models.Enrollment, error) {
	filter := bson.M{"activity_id": activityID}
	if status != "" {
		filter["attendance_status"] = status
	}
	return s.list(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
}

// ListByUser returns a user's enrollments, newest first.
func (s *Store) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Enrollment, error) {
	return s.list(ctx, bson.M{"user_id": userID}, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
}

func (s *Store) list(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Enrollment, error) {
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.Enrollment{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateAttendance overwrites the attendance decision and returns the
// updated enrollment.
func (s *Store) UpdateAttendance(ctx context.Context, id primitive.ObjectID, status string, validatedBy primitive.ObjectID, hours int) (models.Enrollment, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var e models.Enrollment
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"attendance_status": status,
			"validated_by":      validatedBy,
			"effective_hours":   hours,
			"updated_at":        time.Now().UTC(),
		}},
		opts,
	).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return e, ErrNotFound
	}
	return e, err
}

// SyncEffectiveHours sets effective_hours on every present enrollment of an
// activity. Called when the activity finishes so hours match its final
// workload.
func (s *Store) SyncEffectiveHours(ctx context.Context, activityID primitive.ObjectID, hours int) (int64, error) {
	res, err := s.c.UpdateMany(ctx,
		bson.M{
			"activity_id":       activityID,
			"attendance_status": models.AttendancePresent,
			"effective_hours":   bson.M{"$ne": hours},
		},
		bson.M{"$set": bson.M{"effective_hours": hours, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// DeleteByActivity removes an activity's ledger rows.
func (s *Store) DeleteByActivity(ctx context.Context, activityID primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"activity_id": activityID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// DeleteByActivities removes the ledger rows of several activities.
func (s *Store) DeleteByActivities(ctx context.Context, activityIDs []primitive.ObjectID) (int64, error) {
	if len(activityIDs) == 0 {
		return 0, nil
	}
	res, err := s.c.DeleteMany(ctx, bson.M{"activity_id": bson.M{"$in": activityIDs}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// ActivityIDs returns the distinct activity ids referenced by the ledger.
func (s *Store) ActivityIDs(ctx context.Context) ([]primitive.ObjectID, error) {
	vals, err := s.c.Distinct(ctx, "activity_id", bson.M{})
	if err != nil {
		return nil, err
	}
	out := make([]primitive.ObjectID, 0, len(vals))
	for _, v := range vals {
		if id, ok := v.(primitive.ObjectID); ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// Counts holds per-status enrollment counts of one activity.
type Counts struct {
	Total   int64
	Pending int64
	Present int64
	Absent  int64
}

// CountsByActivity aggregates per-status counts for several activities in
// one round trip. Activities without enrollments are absent from the map.
func (s *Store) CountsByActivity(ctx context.Context, activityIDs []primitive.ObjectID) (map[primitive.ObjectID]Counts, error) {
	out := make(map[primitive.ObjectID]Counts, len(activityIDs))
	if len(activityIDs) == 0 {
		return out, nil
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"activity_id": bson.M{"$in": activityIDs}}}},
		{{Key: "$group", Value: bson.M{
			"_id": bson.M{"activity": "$activity_id", "status": "$attendance_status"},
			"n":   bson.M{"$sum": 1},
		}}},
	}
	cur, err := s.c.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var row struct {
			ID struct {
				Activity primitive.ObjectID `bson:"activity"`
				Status   string             `bson:"status"`
			} `bson:"_id"`
			N int64 `bson:"n"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		c := out[row.ID.Activity]
		c.Total += row.N
		switch row.ID.Status {
		case models.AttendancePending:
			c.Pending += row.N
		case models.AttendancePresent:
			c.Present += row.N
		case models.AttendanceAbsent:
			c.Absent += row.N
		}
		out[row.ID.Activity] = c
	}
	return out, cur.Err()
}
