// internal/app/certify/issuer.go
package certify

import (
	"context"
	"errors"
	"fmt"

	activitystore "github.com/maishoras/maishoras/internal/app/store/activities"
	certificatestore "github.com/maishoras/maishoras/internal/app/store/certificates"
	enrollmentstore "github.com/maishoras/maishoras/internal/app/store/enrollments"
	userstore "github.com/maishoras/maishoras/internal/app/store/users"
	"github.com/maishoras/maishoras/internal/app/system/apperr"
	"github.com/maishoras/maishoras/internal/app/system/metrics"
	"github.com/maishoras/maishoras/internal/app/system/timeouts"
	"github.com/maishoras/maishoras/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// maxCodeAttempts bounds verification-code regeneration on collisions.
const maxCodeAttempts = 5

// Issuer creates certificates for present enrollments and resolves them for
// display and public verification.
type Issuer struct {
	certs       *certificatestore.Store
	enrollments *enrollmentstore.Store
	activities  *activitystore.Store
	users       *userstore.Store
	log         *zap.Logger

	newCode func() (string, error)
}

// New builds an Issuer over db.
func New(db *mongo.Database, logger *zap.Logger) *Issuer {
	return &Issuer{
		certs:       certificatestore.New(db),
		enrollments: enrollmentstore.New(db),
		activities:  activitystore.New(db),
		users:       userstore.New(db),
		log:         logger,
		newCode:     NewVerificationCode,
	}
}

// IssueIfEligible issues the certificate of e. It returns (nil, nil) when the
// enrollment already has one, including one inserted concurrently.
func (i *Issuer) IssueIfEligible(ctx context.Context, e models.Enrollment) (*models.Certificate, error) {
	_, err := i.certs.GetByEnrollment(ctx, e.ID)
	if err == nil {
		return nil, nil
	}
	if !errors.Is(err, certificatestore.ErrNotFound) {
		return nil, err
	}
	if !e.IsPresent() {
		return nil, apperr.InvalidState("attendance is %s; only present participants receive certificates", e.AttendanceStatus)
	}

	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := i.newCode()
		if err != nil {
			return nil, err
		}
		c := &models.Certificate{
			ID:               primitive.NewObjectID(),
			UserID:           e.UserID,
			ActivityID:       e.ActivityID,
			EnrollmentID:     e.ID,
			Hours:            e.EffectiveHours,
			VerificationCode: code,
		}
		err = i.certs.Create(ctx, c)
		switch {
		case err == nil:
			return c, nil
		case errors.Is(err, certificatestore.ErrDuplicateEnrollment):
			return nil, nil
		case errors.Is(err, certificatestore.ErrDuplicateCode):
			i.log.Warn("verification code collision, regenerating",
				zap.String("enrollment_id", e.ID.Hex()),
				zap.Int("attempt", attempt))
		default:
			return nil, err
		}
	}
	return nil, fmt.Errorf("certify: no unique verification code after %d attempts", maxCodeAttempts)
}

// IssueForActivity issues a certificate for every present enrollment of the
// activity that lacks one and returns how many were created.
func (i *Issuer) IssueForActivity(ctx context.Context, activityID primitive.ObjectID) (int, error) {
	present, err := i.enrollments.ListByActivity(ctx, activityID, models.AttendancePresent)
	if err != nil {
		return 0, err
	}
	held, err := i.certs.EnrollmentIDsByActivity(ctx, activityID)
	if err != nil {
		return 0, err
	}

	issued := 0
	for _, e := range present {
		if held[e.ID] {
			continue
		}
		c, err := i.IssueIfEligible(ctx, e)
		if err != nil {
			return issued, err
		}
		if c != nil {
			issued++
		}
	}
	return issued, nil
}

// IssueForEnrollment is the manual issuance path used by the owning
// organization. It is idempotent: an existing certificate is returned with
// created=false.
func (i *Issuer) IssueForEnrollment(ctx context.Context, enrollmentID, organizationID primitive.ObjectID) (models.Certificate, bool, error) {
	e, err := i.enrollments.GetByID(ctx, enrollmentID)
	if errors.Is(err, enrollmentstore.ErrNotFound) {
		return models.Certificate{}, false, apperr.NotFound("enrollment")
	}
	if err != nil {
		return models.Certificate{}, false, err
	}
	a, err := i.activities.GetByID(ctx, e.ActivityID)
	if errors.Is(err, activitystore.ErrNotFound) {
		return models.Certificate{}, false, apperr.NotFound("activity")
	}
	if err != nil {
		return models.Certificate{}, false, err
	}
	if a.CreatedBy != organizationID {
		return models.Certificate{}, false, apperr.Forbidden("only the organization that owns this activity can issue its certificates")
	}

	if existing, err := i.certs.GetByEnrollment(ctx, e.ID); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, certificatestore.ErrNotFound) {
		return models.Certificate{}, false, err
	}

	if a.Status == models.ActivityCancelled {
		return models.Certificate{}, false, apperr.InvalidState("activity was cancelled")
	}

	// While the activity is active, attendance can still change: hold the
	// write guard so the decision read below stays valid until the insert.
	if a.Status == models.ActivityActive {
		_, err := i.activities.Acquire(ctx, a.ID)
		switch {
		case err == nil:
			defer i.release(ctx, a.ID)
		case errors.Is(err, activitystore.ErrNotActive):
			// Finished or cancelled in the meantime.
			a, err = i.activities.GetByID(ctx, a.ID)
			if err != nil {
				return models.Certificate{}, false, err
			}
			if a.Status != models.ActivityFinished {
				return models.Certificate{}, false, apperr.InvalidState("activity is %s", a.Status)
			}
		default:
			return models.Certificate{}, false, err
		}

		if e, err = i.enrollments.GetByID(ctx, e.ID); err != nil {
			return models.Certificate{}, false, err
		}
	}

	c, err := i.IssueIfEligible(ctx, e)
	if err != nil {
		return models.Certificate{}, false, err
	}
	if c == nil {
		existing, err := i.certs.GetByEnrollment(ctx, e.ID)
		return existing, false, err
	}
	metrics.RecordCertificates(metrics.SourceManual, 1)
	return *c, true, nil
}

// release drops the guard taken for manual issuance, even when the request
// was cancelled.
func (i *Issuer) release(ctx context.Context, activityID primitive.ObjectID) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeouts.Short())
	defer cancel()
	if err := i.activities.Release(ctx, activityID, 0); err != nil {
		i.log.Warn("release after manual issuance failed",
			zap.String("activity_id", activityID.Hex()), zap.Error(err))
	}
}
