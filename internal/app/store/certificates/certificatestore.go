// internal/app/store/certificates/certificatestore.go
package certificatestore

import (
	"context"
	"errors"
	"strings"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/maishoras/maishoras/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrDuplicateEnrollment is returned when the enrollment already has a
	// certificate.
	ErrDuplicateEnrollment = errors.New("certificate already issued for this enrollment")
	// ErrDuplicateCode is returned when the verification code is taken.
	ErrDuplicateCode = errors.New("verification code already in use")
	// ErrNotFound is returned when no certificate matches.
	ErrNotFound = errors.New("certificate not found")
)

// Store persists certificates. Certificates are insert-only.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("certificates")}
}

// Create inserts c. A unique-index conflict is reported as
// ErrDuplicateEnrollment or ErrDuplicateCode depending on the index hit.
func (s *Store) Create(ctx context.Context, c *models.Certificate) error {
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	if c.IssuedAt.IsZero() {
		c.IssuedAt = time.Now().UTC()
	}
	_, err := s.c.InsertOne(ctx, c)
	if err == nil {
		return nil
	}
	if wafflemongo.IsDup(err) {
		if strings.Contains(err.Error(), "verification_code") {
			return ErrDuplicateCode
		}
		return ErrDuplicateEnrollment
	}
	return err
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (models.Certificate, error) {
	var c models.Certificate
	err := s.c.FindOne(ctx, filter).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return c, ErrNotFound
	}
	return c, err
}

// GetByID loads a certificate.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Certificate, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

// GetByEnrollment loads the certificate of an enrollment.
func (s *Store) GetByEnrollment(ctx context.Context, enrollmentID primitive.ObjectID) (models.Certificate, error) {
	return s.findOne(ctx, bson.M{"enrollment_id": enrollmentID})
}

// GetByCode loads a certificate by its public verification code.
func (s *Store) GetByCode(ctx context.Context, code string) (models.Certificate, error) {
	return s.findOne(ctx, bson.M{"verification_code": code})
}

// ListByUser returns a user's certificates, newest first.
func (s *Store) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Certificate, error) {
	cur, err := s.c.Find(ctx, bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "issued_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.Certificate{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CountByActivity counts certificates issued for an activity.
func (s *Store) CountByActivity(ctx context.Context, activityID primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"activity_id": activityID})
}

// EnrollmentIDsByActivity returns the enrollments of an activity that
// already hold a certificate.
func (s *Store) EnrollmentIDsByActivity(ctx context.Context, activityID primitive.ObjectID) (map[primitive.ObjectID]bool, error) {
	cur, err := s.c.Find(ctx, bson.M{"activity_id": activityID},
		options.Find().SetProjection(bson.M{"enrollment_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := map[primitive.ObjectID]bool{}
	for cur.Next(ctx) {
		var row struct {
			EnrollmentID primitive.ObjectID `bson:"enrollment_id"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out[row.EnrollmentID] = true
	}
	return out, cur.Err()
}
