package testutil

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/waffle/pantry/text"
	"github.com/go-chi/chi/v5"
	"github.com/maishoras/maishoras/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that need to access chi.URLParam values.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

func (f *Fixtures) createUser(ctx context.Context, name, role string, profile *models.OrganizationProfile) models.User {
	f.t.Helper()

	now := time.Now().UTC()
	id := primitive.NewObjectID()
	u := models.User{
		ID:           id,
		Name:         name,
		NameCI:       text.Fold(name),
		Email:        id.Hex() + "@test.com",
		PasswordHash: "$2a$04$notarealhashnotarealhashnotarealhashnotarealhashnotare",
		Role:         role,
		Organization: profile,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := f.db.Collection("users").InsertOne(ctx, u); err != nil {
		f.t.Fatalf("failed to create test user: %v", err)
	}
	return u
}

// CreateOrganization creates an organization account with a profile.
func (f *Fixtures) CreateOrganization(ctx context.Context, name string) models.User {
	f.t.Helper()
	return f.createUser(ctx, name+" Admin", models.RoleOrganization, &models.OrganizationProfile{
		OrganizationName: name,
		Description:      "Test organization",
	})
}

// CreateStudent creates a student account.
func (f *Fixtures) CreateStudent(ctx context.Context, name string) models.User {
	f.t.Helper()
	return f.createUser(ctx, name, models.RoleStudent, nil)
}

// CreateActivity creates an active activity owned by orgID. Callers may
// adjust fields with mutate before the insert.
func (f *Fixtures) CreateActivity(ctx context.Context, orgID primitive.ObjectID, mutate ...func(*models.Activity)) models.Activity {
	f.t.Helper()

	now := time.Now().UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 7)
	a := models.Activity{
		ID:              primitive.NewObjectID(),
		Title:           "Mutirão de limpeza",
		TitleCI:         text.Fold("Mutirão de limpeza"),
		Description:     "Limpeza da praia com a comunidade",
		Location:        "Praia Central",
		Date:            day,
		StartTime:       "08:00",
		EndTime:         "12:00",
		WorkloadHours:   4,
		MinParticipants: 1,
		MaxParticipants: 5,
		Status:          models.ActivityActive,
		CreatedBy:       orgID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, m := range mutate {
		m(&a)
	}
	a.TitleCI = text.Fold(a.Title)

	if _, err := f.db.Collection("activities").InsertOne(ctx, a); err != nil {
		f.t.Fatalf("failed to create test activity: %v", err)
	}
	return a
}

// CreateEnrollment inserts an enrollment and takes its seat on the activity,
// bypassing the lifecycle controller.
func (f *Fixtures) CreateEnrollment(ctx context.Context, activityID, userID primitive.ObjectID, status string) models.Enrollment {
	f.t.Helper()

	now := time.Now().UTC()
	e := models.Enrollment{
		ID:               primitive.NewObjectID(),
		ActivityID:       activityID,
		UserID:           userID,
		AttendanceStatus: status,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if status == models.AttendancePresent || status == models.AttendanceAbsent {
		// Mirror a recorded decision: validated by the owner, hours on present.
		var a models.Activity
		if err := f.db.Collection("activities").FindOne(ctx, bson.M{"_id": activityID}).Decode(&a); err == nil {
			owner := a.CreatedBy
			e.ValidatedBy = &owner
			if status == models.AttendancePresent {
				e.EffectiveHours = a.WorkloadHours
			}
		}
	}
	if _, err := f.db.Collection("enrollments").InsertOne(ctx, e); err != nil {
		f.t.Fatalf("failed to create test enrollment: %v", err)
	}
	_, err := f.db.Collection("activities").UpdateOne(ctx,
		bson.M{"_id": activityID},
		bson.M{"$inc": bson.M{"enrolled_count": 1, "revision": 1}})
	if err != nil {
		f.t.Fatalf("failed to bump enrolled_count: %v", err)
	}
	return e
}

// Activity reloads an activity straight from the collection.
func (f *Fixtures) Activity(ctx context.Context, id primitive.ObjectID) models.Activity {
	f.t.Helper()
	var a models.Activity
	if err := f.db.Collection("activities").FindOne(ctx, bson.M{"_id": id}).Decode(&a); err != nil {
		f.t.Fatalf("failed to load activity: %v", err)
	}
	return a
}

// CountEnrollments counts ledger rows for an activity.
func (f *Fixtures) CountEnrollments(ctx context.Context, activityID primitive.ObjectID) int64 {
	f.t.Helper()
	n, err := f.db.Collection("enrollments").CountDocuments(ctx, bson.M{"activity_id": activityID})
	if err != nil {
		f.t.Fatalf("failed to count enrollments: %v", err)
	}
	return n
}
