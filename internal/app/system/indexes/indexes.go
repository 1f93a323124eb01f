// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

/*
EnsureAll is called at startup. Each ensure* function is idempotent.
The unique indexes here are load-bearing: they are what makes enrollment
and certificate issuance safe under concurrent requests.
*/
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	sets := []struct {
		name string
		fn   func(context.Context, *mongo.Database) error
	}{
		{"users", ensureUsers},
		{"activities", ensureActivities},
		{"enrollments", ensureEnrollments},
		{"certificates", ensureCertificates},
		{"audit_events", ensureAuditEvents},
	}
	for _, s := range sets {
		if err := s.fn(ctx, db); err != nil {
			problems = append(problems, s.name+": "+err.Error())
		}
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Core helper: reconcile a set of desired indexes for one collection         */
/* -------------------------------------------------------------------------- */

type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func isTrue(b *bool) bool { return b != nil && *b }

func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if mongo.IsDuplicateKeyError(err) {
		return true
	}
	return strings.Contains(err.Error(), "E11000")
}

func listExisting(ctx context.Context, coll *mongo.Collection) (map[string]existingIndex, error) {
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := map[string]existingIndex{}
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			zap.L().Warn("failed to decode existing index",
				zap.String("collection", coll.Name()),
				zap.Error(err))
			continue
		}
		out[keySig(idx.Key)] = idx
	}
	return out, cur.Err()
}

// ensureIndexSet makes coll carry every index in models. An index with the
// same key pattern is reused when its uniqueness and name match, and dropped
// and recreated otherwise.
func ensureIndexSet(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) error {
	existing, err := listExisting(ctx, coll)
	if err != nil {
		// A missing namespace lists as an error on some servers; treat as empty.
		existing = map[string]existingIndex{}
	}

	var errs []string
	for _, m := range models {
		var name string
		var unique *bool
		if m.Options != nil {
			if m.Options.Name != nil {
				name = *m.Options.Name
			}
			unique = m.Options.Unique
		}
		sig := keySig(m.Keys.(bson.D))
		start := time.Now()
		log := zap.L().With(
			zap.String("collection", coll.Name()),
			zap.String("name", name),
			zap.String("keys", sig),
			zap.Bool("unique", isTrue(unique)))

		if ex, ok := existing[sig]; ok {
			if isTrue(ex.Unique) == isTrue(unique) && (name == "" || ex.Name == name) {
				log.Debug("reusing existing index")
				continue
			}
			log.Info("replacing index with drifted options", zap.String("existing_name", ex.Name))
			if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
				errs = append(errs, fmt.Sprintf("%s(%s): drop failed: %v", coll.Name(), name, err))
				continue
			}
		}

		if _, err := coll.Indexes().CreateOne(ctx, m); err != nil {
			if isDuplicateKeyErr(err) && isTrue(unique) {
				errs = append(errs, fmt.Sprintf("%s(%s): cannot create unique index (duplicates present)", coll.Name(), name))
			} else {
				errs = append(errs, fmt.Sprintf("%s(%s): %v", coll.Name(), name, err))
			}
			log.Warn("index ensure failed", zap.Error(err))
			continue
		}
		log.Info("index ensured", zap.String("took", time.Since(start).String()))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Collection-specific index sets                                              */
/* -------------------------------------------------------------------------- */

func ensureUsers(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("users"), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_users_email"),
		},
		{
			Keys:    bson.D{{Key: "role", Value: 1}, {Key: "name_ci", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("idx_users_role_nameci_id"),
		},
	})
}

func ensureActivities(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("activities"), []mongo.IndexModel{
		// public list: newest date first, optional status filter
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "date", Value: -1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("idx_activities_status_date_id"),
		},
		{
			Keys:    bson.D{{Key: "date", Value: -1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("idx_activities_date_id"),
		},
		// organization dashboard
		{
			Keys:    bson.D{{Key: "created_by", Value: 1}, {Key: "date", Value: -1}},
			Options: options.Index().SetName("idx_activities_createdby_date"),
		},
		{
			Keys:    bson.D{{Key: "title_ci", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("idx_activities_titleci_id"),
		},
		// reconciler scans
		{
			Keys:    bson.D{{Key: "guarded_at", Value: 1}},
			Options: options.Index().SetName("idx_activities_guardedat").SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "certified", Value: 1}, {Key: "finished_at", Value: 1}},
			Options: options.Index().SetName("idx_activities_status_certified_finishedat"),
		},
	})
}

func ensureEnrollments(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("enrollments"), []mongo.IndexModel{
		// at most one enrollment per (activity, user)
		{
			Keys:    bson.D{{Key: "activity_id", Value: 1}, {Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_enrollments_activity_user"),
		},
		// pending/present counts gate finish and update
		{
			Keys:    bson.D{{Key: "activity_id", Value: 1}, {Key: "attendance_status", Value: 1}},
			Options: options.Index().SetName("idx_enrollments_activity_status"),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_enrollments_user_createdat"),
		},
	})
}

func ensureCertificates(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("certificates"), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "enrollment_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_certificates_enrollment"),
		},
		{
			Keys:    bson.D{{Key: "verification_code", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_certificates_code"),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "issued_at", Value: -1}},
			Options: options.Index().SetName("idx_certificates_user_issuedat"),
		},
		{
			Keys:    bson.D{{Key: "activity_id", Value: 1}},
			Options: options.Index().SetName("idx_certificates_activity"),
		},
	})
}

func ensureAuditEvents(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("audit_events"), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_audit_createdat"),
		},
		{
			Keys:    bson.D{{Key: "activity_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_audit_activity_createdat"),
		},
		{
			Keys:    bson.D{{Key: "actor_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_audit_actor_createdat"),
		},
	})
}
