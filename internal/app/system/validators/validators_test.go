package validators_test

import (
	"context"
	"testing"
	"time"

	"github.com/maishoras/maishoras/internal/app/system/validators"
	"github.com/maishoras/maishoras/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func setup(t *testing.T) (*mongo.Database, context.Context) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	t.Cleanup(cancel)

	if err := validators.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}
	return db, ctx
}

func validActivity() bson.M {
	return bson.M{
		"title":            "Mutirão",
		"description":      "Limpeza da praia",
		"location":         "Praia",
		"date":             time.Date(2030, 1, 10, 0, 0, 0, 0, time.UTC),
		"start_time":       "08:00",
		"end_time":         "12:00",
		"workload_hours":   4,
		"min_participants": 1,
		"max_participants": 5,
		"status":           "active",
		"created_by":       primitive.NewObjectID(),
		"enrolled_count":   0,
		"inflight":         0,
		"revision":         int64(0),
	}
}

func TestEnsureAll_Idempotent(t *testing.T) {
	db, ctx := setup(t)

	if err := validators.EnsureAll(ctx, db); err != nil {
		t.Fatalf("Second EnsureAll failed: %v", err)
	}

	names, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		t.Fatalf("ListCollectionNames failed: %v", err)
	}
	have := map[string]bool{}
	for _, n := range names {
		have[n] = true
	}
	for _, want := range []string{"users", "activities", "enrollments", "certificates", "audit_events"} {
		if !have[want] {
			t.Errorf("expected collection %q to exist", want)
		}
	}
}

func TestActivitiesValidator(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(bson.M)
		wantErr bool
	}{
		{"valid", func(bson.M) {}, false},
		{"max below min", func(d bson.M) { d["min_participants"] = 6 }, true},
		{"zero workload", func(d bson.M) { d["workload_hours"] = 0 }, true},
		{"unknown status", func(d bson.M) { d["status"] = "archived" }, true},
		{"bad start time", func(d bson.M) { d["start_time"] = "8h" }, true},
		{"negative count", func(d bson.M) { d["enrolled_count"] = -1 }, true},
		{"missing title", func(d bson.M) { delete(d, "title") }, true},
	}

	db, ctx := setup(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := validActivity()
			tt.mutate(doc)
			_, err := db.Collection("activities").InsertOne(ctx, doc)
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("insert failed: %v", err)
			}
		})
	}
}

func TestActivitiesValidator_RejectsShrinkingBelowMin(t *testing.T) {
	db, ctx := setup(t)

	res, err := db.Collection("activities").InsertOne(ctx, validActivity())
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	_, err = db.Collection("activities").UpdateOne(ctx,
		bson.M{"_id": res.InsertedID},
		bson.M{"$set": bson.M{"max_participants": 0}})
	if err == nil {
		t.Error("expected validation error when max drops below min")
	}
}

func TestEnrollmentsValidator_InvalidStatus(t *testing.T) {
	db, ctx := setup(t)

	_, err := db.Collection("enrollments").InsertOne(ctx, bson.M{
		"activity_id":       primitive.NewObjectID(),
		"user_id":           primitive.NewObjectID(),
		"attendance_status": "late",
		"effective_hours":   0,
	})
	if err == nil {
		t.Error("expected validation error for unknown attendance status")
	}
}

func TestCertificatesValidator_CodeFormat(t *testing.T) {
	db, ctx := setup(t)

	doc := func(code string) bson.M {
		return bson.M{
			"user_id":           primitive.NewObjectID(),
			"activity_id":       primitive.NewObjectID(),
			"enrollment_id":     primitive.NewObjectID(),
			"hours":             4,
			"verification_code": code,
			"issued_at":         time.Now(),
		}
	}

	if _, err := db.Collection("certificates").InsertOne(ctx, doc("0123456789abcdef0123456789abcdef")); err != nil {
		t.Errorf("insert valid certificate failed: %v", err)
	}
	if _, err := db.Collection("certificates").InsertOne(ctx, doc("NOT-A-CODE")); err == nil {
		t.Error("expected validation error for malformed code")
	}
}

func TestUsersValidator_InvalidRole(t *testing.T) {
	db, ctx := setup(t)

	_, err := db.Collection("users").InsertOne(ctx, bson.M{
		"name":          "Ana",
		"email":         "ana@example.com",
		"password_hash": "x",
		"role":          "admin",
	})
	if err == nil {
		t.Error("expected validation error for unknown role")
	}
}
