// internal/app/store/activities/activitystore.go
package activitystore

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/dalemusser/waffle/pantry/text"
	"github.com/maishoras/maishoras/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrNotFound is returned when no activity has the given id.
	ErrNotFound = errors.New("activity not found")
	// ErrNotAdmitted is returned by Admit when the activity is missing,
	// not active, or already at max_participants.
	ErrNotAdmitted = errors.New("activity is full or not accepting enrollments")
	// ErrNotActive is returned by Acquire when the activity is missing or
	// no longer active.
	ErrNotActive = errors.New("activity is not active")
	// ErrConflict is returned when a conditional write found the activity
	// changed since it was read.
	ErrConflict = errors.New("activity changed concurrently")
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("activities")}
}

// Create inserts a new active activity with empty counters.
func (s *Store) Create(ctx context.Context, a *models.Activity) error {
	now := time.Now().UTC()
	if a.ID.IsZero() {
		a.ID = primitive.NewObjectID()
	}
	a.TitleCI = text.Fold(a.Title)
	a.Status = models.ActivityActive
	a.EnrolledCount = 0
	a.Inflight = 0
	a.Revision = 0
	a.GuardedAt = nil
	a.Certified = false
	a.CreatedAt = now
	a.UpdatedAt = now
	_, err := s.c.InsertOne(ctx, a)
	return err
}

// GetByID loads an activity.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Activity, error) {
	var a models.Activity
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return a, ErrNotFound
	}
	return a, err
}

// GetMany loads activities by id. Missing ids are absent from the map.
func (s *Store) GetMany(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.Activity, error) {
	out := make(map[primitive.ObjectID]models.Activity, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := s.c.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var a models.Activity
		if err := cur.Decode(&a); err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, cur.Err()
}

// ListFilter narrows List. Zero values mean "any".
type ListFilter struct {
	Status    string
	Query     string // case and accent insensitive title prefix/substring
	CreatedBy primitive.ObjectID
	Limit     int64
}

// List returns activities newest date first.
func (s *Store) List(ctx context.Context, f ListFilter) ([]models.Activity, error) {
	filter := bson.M{}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if !f.CreatedBy.IsZero() {
		filter["created_by"] = f.CreatedBy
	}
	if q := text.Fold(f.Query); q != "" {
		filter["title_ci"] = bson.M{"$regex": regexp.QuoteMeta(q)}
	}

	opts := options.Find().SetSort(bson.D{{Key: "date", Value: -1}, {Key: "_id", Value: 1}})
	if f.Limit > 0 {
		opts.SetLimit(f.Limit)
	}
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.Activity{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

/* -------------------------------------------------------------------------- */
/* Seat admission and the write guard                                          */
/* -------------------------------------------------------------------------- */

// Admit takes one seat and the write guard in a single conditional update:
// it only matches an active activity whose enrolled_count is below
// max_participants. Returns the activity as written.
func (s *Store) Admit(ctx context.Context, id primitive.ObjectID) (models.Activity, error) {
	now := time.Now().UTC()
	filter := bson.M{
		"_id":    id,
		"status": models.ActivityActive,
		"$expr":  bson.M{"$lt": bson.A{"$enrolled_count", "$max_participants"}},
	}
	update := bson.M{
		"$inc": bson.M{"enrolled_count": 1, "inflight": 1, "revision": 1},
		"$set": bson.M{"guarded_at": now},
	}
	return s.guard(ctx, filter, update, ErrNotAdmitted)
}

// Acquire takes the write guard on an active activity without taking a seat.
// Used before rewriting attendance on the activity's enrollments.
func (s *Store) Acquire(ctx context.Context, id primitive.ObjectID) (models.Activity, error) {
	now := time.Now().UTC()
	filter := bson.M{"_id": id, "status": models.ActivityActive}
	update := bson.M{
		"$inc": bson.M{"inflight": 1, "revision": 1},
		"$set": bson.M{"guarded_at": now},
	}
	return s.guard(ctx, filter, update, ErrNotActive)
}

func (s *Store) guard(ctx context.Context, filter, update bson.M, notMatched error) (models.Activity, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var a models.Activity
	err := s.c.FindOneAndUpdate(ctx, filter, update, opts).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return a, notMatched
	}
	return a, err
}

// Release drops the write guard taken by Admit or Acquire and gives back
// seats (1 when an admitted enrollment was never written, else 0). The
// guard timestamp is removed with the last guard so the reconciler only
// sees activities whose guard was abandoned.
func (s *Store) Release(ctx context.Context, id primitive.ObjectID, seats int) error {
	set := bson.D{
		{Key: "inflight", Value: bson.D{{Key: "$add", Value: bson.A{"$inflight", -1}}}},
		{Key: "revision", Value: bson.D{{Key: "$add", Value: bson.A{"$revision", 1}}}},
		// Expressions in one stage see the document before the stage, so
		// inflight > 1 here means another guard is still held.
		{Key: "guarded_at", Value: bson.D{{Key: "$cond", Value: bson.A{
			bson.D{{Key: "$gt", Value: bson.A{"$inflight", 1}}},
			"$guarded_at",
			"$$REMOVE",
		}}}},
	}
	if seats > 0 {
		set = append(set, bson.E{Key: "enrolled_count", Value: bson.D{{Key: "$add", Value: bson.A{"$enrolled_count", -seats}}}})
	}
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "inflight": bson.M{"$gt": 0}},
		mongo.Pipeline{{{Key: "$set", Value: set}}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		// The reconciler already reset a guard it considered stale.
		return ErrConflict
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Owner writes                                                                */
/* -------------------------------------------------------------------------- */

// Transition moves an active activity to a terminal status. It only matches
// when no guarded write is in flight and the ledger has not moved since the
// caller read a (same revision and enrolled_count). Returns false when the
// activity changed; the caller re-reads and re-checks.
func (s *Store) Transition(ctx context.Context, a models.Activity, to string) (bool, error) {
	now := time.Now().UTC()
	set := bson.M{"status": to, "updated_at": now}
	if to == models.ActivityFinished {
		set["finished_at"] = now
		set["certified"] = false
	}
	res, err := s.c.UpdateOne(ctx,
		bson.M{
			"_id":            a.ID,
			"status":         models.ActivityActive,
			"inflight":       0,
			"revision":       a.Revision,
			"enrolled_count": a.EnrolledCount,
		},
		bson.M{"$set": set, "$inc": bson.M{"revision": 1}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

// MarkCertified records that every present enrollment of a finished activity
// has its certificate.
func (s *Store) MarkCertified(ctx context.Context, id primitive.ObjectID) error {
	_, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.ActivityFinished},
		bson.M{"$set": bson.M{"certified": true}},
	)
	return err
}

// Patch is a conditional edit of an active activity.
type Patch struct {
	Set bson.M
	// MaxEnrolled re-asserts enrolled_count <= the new max_participants.
	MaxEnrolled int
	// RequireEmpty re-asserts that no enrollment exists or is being written;
	// set when fields frozen by enrollments change.
	RequireEmpty bool
}

// ApplyPatch applies p in one conditional update. ErrConflict means a
// precondition no longer holds and the caller should re-evaluate.
func (s *Store) ApplyPatch(ctx context.Context, id primitive.ObjectID, p Patch) (models.Activity, error) {
	filter := bson.M{
		"_id":            id,
		"status":         models.ActivityActive,
		"enrolled_count": bson.M{"$lte": p.MaxEnrolled},
	}
	if p.RequireEmpty {
		filter["enrolled_count"] = 0
		filter["inflight"] = 0
	}

	set := bson.M{"updated_at": time.Now().UTC()}
	for k, v := range p.Set {
		set[k] = v
	}
	if title, ok := set["title"].(string); ok {
		set["title_ci"] = text.Fold(title)
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var a models.Activity
	err := s.c.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return a, ErrConflict
	}
	return a, err
}

// DeleteIfIdle deletes a when it is not finished, has no guarded write in
// flight and its revision is still the one the caller inspected.
func (s *Store) DeleteIfIdle(ctx context.Context, a models.Activity) (bool, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{
		"_id":      a.ID,
		"status":   bson.M{"$ne": models.ActivityFinished},
		"inflight": 0,
		"revision": a.Revision,
	})
	if err != nil {
		return false, err
	}
	return res.DeletedCount == 1, nil
}

/* -------------------------------------------------------------------------- */
/* Reconciler support                                                          */
/* -------------------------------------------------------------------------- */

// ListGuardedBefore returns activities whose last guard was taken at or
// before cutoff and has not been settled since.
func (s *Store) ListGuardedBefore(ctx context.Context, cutoff time.Time, limit int64) ([]models.Activity, error) {
	opts := options.Find().SetSort(bson.D{{Key: "guarded_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := s.c.Find(ctx, bson.M{"guarded_at": bson.M{"$lte": cutoff}}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Activity
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Settle writes the recomputed seat count, clears inflight and removes the
// guard timestamp. It only matches while no new guard was taken since a was
// read. Returns whether the activity was settled.
func (s *Store) Settle(ctx context.Context, a models.Activity, enrolled int) (bool, error) {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": a.ID, "revision": a.Revision},
		bson.M{
			"$set":   bson.M{"enrolled_count": enrolled, "inflight": 0},
			"$unset": bson.M{"guarded_at": ""},
			"$inc":   bson.M{"revision": 1},
		},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

// ListUncertified returns finished activities still missing certificates
// whose finish happened at or before cutoff.
func (s *Store) ListUncertified(ctx context.Context, cutoff time.Time, limit int64) ([]models.Activity, error) {
	opts := options.Find().SetSort(bson.D{{Key: "finished_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := s.c.Find(ctx, bson.M{
		"status":      models.ActivityFinished,
		"certified":   false,
		"finished_at": bson.M{"$lte": cutoff},
	}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Activity
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ExistingIDs reports which of ids still exist.
func (s *Store) ExistingIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]bool, error) {
	out := make(map[primitive.ObjectID]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := s.c.Find(ctx, bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var row struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out[row.ID] = true
	}
	return out, cur.Err()
}
