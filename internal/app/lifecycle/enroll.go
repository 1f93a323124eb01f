// internal/app/lifecycle/enroll.go
package lifecycle

import (
	"context"
	"errors"

	activitystore "github.com/maishoras/maishoras/internal/app/store/activities"
	enrollmentstore "github.com/maishoras/maishoras/internal/app/store/enrollments"
	"github.com/maishoras/maishoras/internal/app/system/apperr"
	"github.com/maishoras/maishoras/internal/app/system/metrics"
	"github.com/maishoras/maishoras/internal/app/system/txn"
	"github.com/maishoras/maishoras/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Enroll registers userID in an active activity that still has a free seat.
//
// The seat is taken by a conditional increment, so concurrent callers can
// never push the activity past maxParticipants; the unique
// (activity, user) index turns a racing second enrollment of the same
// student into DuplicateEnrollment.
func (c *Controller) Enroll(ctx context.Context, activityID, userID primitive.ObjectID) (models.Enrollment, error) {
	var out models.Enrollment
	err := c.txn.Run(ctx, func(ctx context.Context) error {
		e, err := c.enroll(ctx, activityID, userID)
		out = e
		return err
	})

	switch {
	case err == nil:
		metrics.RecordEnrollment(metrics.EnrollAdmitted)
	case errors.Is(err, apperr.ErrDuplicateEnrollment):
		metrics.RecordEnrollment(metrics.EnrollDuplicate)
	case errors.Is(err, apperr.ErrActivityFullOrClosed):
		metrics.RecordEnrollment(metrics.EnrollFullOrClosed)
	default:
		metrics.RecordEnrollment(metrics.EnrollError)
	}
	if err != nil {
		return models.Enrollment{}, err
	}
	return out, nil
}

func (c *Controller) enroll(ctx context.Context, activityID, userID primitive.ObjectID) (models.Enrollment, error) {
	_, err := c.enrollments.FindByActivityAndUser(ctx, activityID, userID)
	if err == nil {
		return models.Enrollment{}, apperr.DuplicateEnrollment()
	}
	if !errors.Is(err, enrollmentstore.ErrNotFound) {
		return models.Enrollment{}, err
	}

	if _, err := c.activities.Admit(ctx, activityID); err != nil {
		if !errors.Is(err, activitystore.ErrNotAdmitted) {
			return models.Enrollment{}, err
		}
		if _, err := c.loadActivity(ctx, activityID); err != nil {
			return models.Enrollment{}, err
		}
		return models.Enrollment{}, apperr.ActivityFullOrClosed()
	}

	e := models.Enrollment{
		ActivityID:       activityID,
		UserID:           userID,
		AttendanceStatus: models.AttendancePending,
	}
	if err := c.enrollments.Create(ctx, &e); err != nil {
		// Give the seat back. Inside a transaction the abort does it, and
		// the server rejects further writes once the insert failed.
		if !txn.InTransaction(ctx) {
			_ = c.release(ctx, activityID, 1)
		}
		if errors.Is(err, enrollmentstore.ErrDuplicateEnrollment) {
			return models.Enrollment{}, apperr.DuplicateEnrollment()
		}
		return models.Enrollment{}, err
	}

	if err := c.release(ctx, activityID, 0); err != nil {
		return models.Enrollment{}, err
	}
	return e, nil
}
