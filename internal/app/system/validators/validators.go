// internal/app/system/validators/validators.go
package validators

import (
	"context"
	"errors"
	"strings"

	"github.com/maishoras/maishoras/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// EnsureAll creates collections (if missing) and attaches JSON-Schema
// validators. Collections must exist before the first write that runs
// inside a transaction. Servers that reject collMod are logged and skipped.
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	ensure := func(coll string, validator bson.M) {
		if _, err := ensureCollection(ctx, db, coll); err != nil {
			problems = append(problems, coll+": "+err.Error())
			return
		}
		if validator == nil {
			return
		}
		if err := setValidator(ctx, db, coll, validator); err != nil {
			if isNoSuchCommand(err) || isNotImplemented(err) {
				zap.L().Info("validator skipped (unsupported)", zap.String("collection", coll))
				return
			}
			problems = append(problems, coll+": "+err.Error())
		}
	}

	ensure("users", usersSchema())
	ensure("activities", activitiesSchema())
	ensure("enrollments", enrollmentsSchema())
	ensure("certificates", certificatesSchema())
	ensure("audit_events", nil)

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* ---------------------- collection helpers ---------------------- */

// ensureCollection idempotently makes sure <name> exists.
// Returns created==true only if it was created by this call.
func ensureCollection(ctx context.Context, db *mongo.Database, name string) (created bool, err error) {
	names, listErr := db.ListCollectionNames(ctx, bson.M{"name": name})
	if listErr == nil && len(names) > 0 {
		zap.L().Debug("collection exists", zap.String("collection", name))
		return false, nil
	}
	if err := db.CreateCollection(ctx, name); err != nil {
		if isNamespaceExistsErr(err) {
			return false, nil
		}
		zap.L().Warn("createCollection failed", zap.String("collection", name), zap.Error(err))
		return false, err
	}
	zap.L().Info("created collection", zap.String("collection", name))
	return true, nil
}

func setValidator(ctx context.Context, db *mongo.Database, name string, validator bson.M) error {
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
		{Key: "validationLevel", Value: "strict"},
		{Key: "validationAction", Value: "error"},
	}
	if err := db.RunCommand(ctx, cmd).Err(); err != nil {
		return err
	}
	zap.L().Info("validator ensured", zap.String("collection", name))
	return nil
}

/* ------------------------- error helpers ------------------------- */

func isNamespaceExistsErr(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 48 || strings.Contains(strings.ToLower(ce.Message), "already exists")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "already exists") || strings.Contains(s, "namespace exists")
}

func isNoSuchCommand(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 59 || strings.Contains(strings.ToLower(ce.Message), "no such command")) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such command")
}

func isNotImplemented(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 115 ||
		strings.Contains(strings.ToLower(ce.Message), "not implemented") ||
		strings.Contains(strings.ToLower(ce.Message), "not supported")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "not implemented") || strings.Contains(s, "not supported")
}

/* ------------------------- JSON-Schema docs ---------------------- */

var (
	nonBlank = bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"}
	integer  = bson.A{"int", "long"}
	hhmm     = bson.M{"bsonType": "string", "pattern": "^([01][0-9]|2[0-3]):[0-5][0-9]$"}
)

func usersSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"name", "email", "password_hash", "role"},
			"properties": bson.M{
				"name":          nonBlank,
				"email":         nonBlank,
				"password_hash": nonBlank,
				"role":          bson.M{"enum": bson.A{models.RoleStudent, models.RoleOrganization}},
				"organization_profile": bson.M{"bsonType": bson.A{"object", "null"}},
			},
		},
	}
}

// activitiesSchema also keeps max_participants >= min_participants and the
// concurrency counters non-negative.
func activitiesSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{
				"title", "description", "location", "date", "start_time", "end_time",
				"workload_hours", "min_participants", "max_participants", "status",
				"created_by", "enrolled_count", "inflight", "revision",
			},
			"properties": bson.M{
				"title":            bson.M{"bsonType": "string", "minLength": 1, "maxLength": 40},
				"description":      bson.M{"bsonType": "string", "minLength": 1, "maxLength": 1500},
				"location":         bson.M{"bsonType": "string", "minLength": 1, "maxLength": 50},
				"date":             bson.M{"bsonType": "date"},
				"start_time":       hhmm,
				"end_time":         hhmm,
				"workload_hours":   bson.M{"bsonType": integer, "minimum": 1},
				"min_participants": bson.M{"bsonType": integer, "minimum": 1},
				"max_participants": bson.M{"bsonType": integer, "minimum": 1},
				"status":           bson.M{"enum": bson.A{models.ActivityActive, models.ActivityFinished, models.ActivityCancelled}},
				"created_by":       bson.M{"bsonType": "objectId"},
				"enrolled_count":   bson.M{"bsonType": integer, "minimum": 0},
				"inflight":         bson.M{"bsonType": integer, "minimum": 0},
				"revision":         bson.M{"bsonType": integer, "minimum": 0},
			},
		},
		"$expr": bson.M{"$gte": bson.A{"$max_participants", "$min_participants"}},
	}
}

func enrollmentsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"activity_id", "user_id", "attendance_status", "effective_hours"},
			"properties": bson.M{
				"activity_id":       bson.M{"bsonType": "objectId"},
				"user_id":           bson.M{"bsonType": "objectId"},
				"attendance_status": bson.M{"enum": bson.A{models.AttendancePending, models.AttendancePresent, models.AttendanceAbsent}},
				"validated_by":      bson.M{"bsonType": bson.A{"objectId", "null"}},
				"effective_hours":   bson.M{"bsonType": integer, "minimum": 0},
			},
		},
	}
}

func certificatesSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"user_id", "activity_id", "enrollment_id", "hours", "verification_code", "issued_at"},
			"properties": bson.M{
				"user_id":           bson.M{"bsonType": "objectId"},
				"activity_id":       bson.M{"bsonType": "objectId"},
				"enrollment_id":     bson.M{"bsonType": "objectId"},
				"hours":             bson.M{"bsonType": integer, "minimum": 0},
				"verification_code": bson.M{"bsonType": "string", "pattern": "^[0-9a-f]{32}$"},
				"issued_at":         bson.M{"bsonType": "date"},
			},
		},
	}
}
