// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"net/http"
	"strconv"

	"github.com/maishoras/maishoras/internal/app/store/audit"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Destination settings for a category.
const (
	ModeAll = "all" // MongoDB + zap
	ModeDB  = "db"  // MongoDB only
	ModeLog = "log" // zap only
	ModeOff = "off" // disabled
)

// Config holds audit logging configuration.
type Config struct {
	// Auth controls logging for registration, login and profile events.
	Auth string
	// Activity controls logging for activity lifecycle, enrollment,
	// attendance and certificate events.
	Activity string
}

// ConfigFromMode applies one mode to every category.
func ConfigFromMode(mode string) Config {
	return Config{Auth: mode, Activity: mode}
}

// Logger provides convenience methods for logging audit events.
// It logs to both MongoDB (via audit.Store) and structured logs (via zap).
type Logger struct {
	store  *audit.Store
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(store *audit.Store, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

// getClientIP extracts the client IP from the request.
func getClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

func userAgent(r *http.Request) string {
	if r == nil {
		return ""
	}
	return r.UserAgent()
}

// logToZap logs the event to zap with consistent structure.
func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
		zap.String("ip", event.IP),
	}

	if event.ActorID != nil {
		fields = append(fields, zap.String("actor_id", event.ActorID.Hex()))
	}
	if event.UserID != nil {
		fields = append(fields, zap.String("user_id", event.UserID.Hex()))
	}
	if event.ActivityID != nil {
		fields = append(fields, zap.String("activity_id", event.ActivityID.Hex()))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an audit event based on configuration.
// A nil Logger is a no-op so handlers can run without auditing in tests.
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	var setting string
	switch event.Category {
	case audit.CategoryAuth:
		setting = l.config.Auth
	case audit.CategoryActivity:
		setting = l.config.Activity
	}
	if setting == "" {
		setting = ModeAll
	}

	if setting == ModeOff {
		return
	}
	if setting == ModeAll || setting == ModeLog {
		l.logToZap(event)
	}
	if (setting == ModeAll || setting == ModeDB) && l.store != nil {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

// --- Authentication Events ---

// UserRegistered logs a new account.
func (l *Logger) UserRegistered(ctx context.Context, r *http.Request, userID primitive.ObjectID, role string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventUserRegistered,
		ActorID:   &userID,
		UserID:    &userID,
		IP:        getClientIP(r),
		UserAgent: userAgent(r),
		Success:   true,
		Details:   map[string]string{"role": role},
	})
}

// LoginSuccess logs a successful login.
func (l *Logger) LoginSuccess(ctx context.Context, r *http.Request, userID primitive.ObjectID) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventLoginSuccess,
		UserID:    &userID,
		IP:        getClientIP(r),
		UserAgent: userAgent(r),
		Success:   true,
	})
}

// LoginFailedUserNotFound logs a failed login due to an unknown email.
func (l *Logger) LoginFailedUserNotFound(ctx context.Context, r *http.Request, attemptedEmail string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     audit.EventLoginFailedUserNotFound,
		IP:            getClientIP(r),
		UserAgent:     userAgent(r),
		Success:       false,
		FailureReason: "user not found",
		Details:       map[string]string{"attempted_email": attemptedEmail},
	})
}

// LoginFailedWrongPassword logs a failed login due to wrong password.
func (l *Logger) LoginFailedWrongPassword(ctx context.Context, r *http.Request, userID primitive.ObjectID) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     audit.EventLoginFailedWrongPassword,
		UserID:        &userID,
		IP:            getClientIP(r),
		UserAgent:     userAgent(r),
		Success:       false,
		FailureReason: "wrong password",
	})
}

// ProfileUpdated logs a profile edit.
func (l *Logger) ProfileUpdated(ctx context.Context, r *http.Request, userID primitive.ObjectID) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventProfileUpdated,
		ActorID:   &userID,
		UserID:    &userID,
		IP:        getClientIP(r),
		UserAgent: userAgent(r),
		Success:   true,
	})
}

// --- Activity Events ---

func (l *Logger) activityEvent(ctx context.Context, r *http.Request, eventType string, actorID, activityID primitive.ObjectID, userID *primitive.ObjectID, details map[string]string) {
	l.Log(ctx, audit.Event{
		Category:   audit.CategoryActivity,
		EventType:  eventType,
		ActorID:    &actorID,
		UserID:     userID,
		ActivityID: &activityID,
		IP:         getClientIP(r),
		UserAgent:  userAgent(r),
		Success:    true,
		Details:    details,
	})
}

// ActivityCreated logs a new activity.
func (l *Logger) ActivityCreated(ctx context.Context, r *http.Request, actorID, activityID primitive.ObjectID, title string) {
	l.activityEvent(ctx, r, audit.EventActivityCreated, actorID, activityID, nil,
		map[string]string{"title": title})
}

// ActivityUpdated logs an edit.
func (l *Logger) ActivityUpdated(ctx context.Context, r *http.Request, actorID, activityID primitive.ObjectID, enrolled int) {
	l.activityEvent(ctx, r, audit.EventActivityUpdated, actorID, activityID, nil,
		map[string]string{"enrolled": strconv.Itoa(enrolled)})
}

// ActivityFinished logs a finish and how many certificates it issued.
func (l *Logger) ActivityFinished(ctx context.Context, r *http.Request, actorID, activityID primitive.ObjectID, certificatesIssued int) {
	l.activityEvent(ctx, r, audit.EventActivityFinished, actorID, activityID, nil,
		map[string]string{"certificates_issued": strconv.Itoa(certificatesIssued)})
}

// ActivityCancelled logs a cancellation.
func (l *Logger) ActivityCancelled(ctx context.Context, r *http.Request, actorID, activityID primitive.ObjectID) {
	l.activityEvent(ctx, r, audit.EventActivityCancelled, actorID, activityID, nil, nil)
}

// ActivityDeleted logs a deletion.
func (l *Logger) ActivityDeleted(ctx context.Context, r *http.Request, actorID, activityID primitive.ObjectID, title string) {
	l.activityEvent(ctx, r, audit.EventActivityDeleted, actorID, activityID, nil,
		map[string]string{"title": title})
}

// EnrollmentCreated logs a student taking a seat.
func (l *Logger) EnrollmentCreated(ctx context.Context, r *http.Request, studentID, activityID, enrollmentID primitive.ObjectID) {
	l.activityEvent(ctx, r, audit.EventEnrollmentCreated, studentID, activityID, &studentID,
		map[string]string{"enrollment_id": enrollmentID.Hex()})
}

// AttendanceRecorded logs an attendance decision.
func (l *Logger) AttendanceRecorded(ctx context.Context, r *http.Request, actorID, studentID, activityID primitive.ObjectID, decision string) {
	l.activityEvent(ctx, r, audit.EventAttendanceRecorded, actorID, activityID, &studentID,
		map[string]string{"decision": decision})
}

// CertificateIssued logs a manual certificate issuance.
func (l *Logger) CertificateIssued(ctx context.Context, r *http.Request, actorID, studentID, activityID, certificateID primitive.ObjectID) {
	l.activityEvent(ctx, r, audit.EventCertificateIssued, actorID, activityID, &studentID,
		map[string]string{"certificate_id": certificateID.Hex()})
}
