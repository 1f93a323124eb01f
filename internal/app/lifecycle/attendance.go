// internal/app/lifecycle/attendance.go
package lifecycle

import (
	"context"
	"errors"

	activitystore "github.com/maishoras/maishoras/internal/app/store/activities"
	certificatestore "github.com/maishoras/maishoras/internal/app/store/certificates"
	enrollmentstore "github.com/maishoras/maishoras/internal/app/store/enrollments"
	"github.com/maishoras/maishoras/internal/app/system/apperr"
	"github.com/maishoras/maishoras/internal/app/system/metrics"
	"github.com/maishoras/maishoras/internal/app/system/normalize"
	"github.com/maishoras/maishoras/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RecordAttendance sets the decision ("present" or "absent") for userID's
// enrollment in an active activity owned by orgID. Decisions may be changed
// until the activity finishes or a certificate was issued for the
// enrollment.
func (c *Controller) RecordAttendance(ctx context.Context, activityID, orgID, userID primitive.ObjectID, decision string) (models.Enrollment, error) {
	a, err := c.ownedActivity(ctx, activityID, orgID)
	if err != nil {
		return models.Enrollment{}, err
	}
	e, err := c.enrollments.FindByActivityAndUser(ctx, activityID, userID)
	if errors.Is(err, enrollmentstore.ErrNotFound) {
		return models.Enrollment{}, apperr.NotFound("enrollment")
	}
	if err != nil {
		return models.Enrollment{}, err
	}
	return c.recordAttendance(ctx, a, e, orgID, decision)
}

// RecordAttendanceByEnrollment is RecordAttendance addressed by enrollment id.
func (c *Controller) RecordAttendanceByEnrollment(ctx context.Context, enrollmentID, orgID primitive.ObjectID, decision string) (models.Enrollment, error) {
	e, err := c.enrollments.GetByID(ctx, enrollmentID)
	if errors.Is(err, enrollmentstore.ErrNotFound) {
		return models.Enrollment{}, apperr.NotFound("enrollment")
	}
	if err != nil {
		return models.Enrollment{}, err
	}
	a, err := c.ownedActivity(ctx, e.ActivityID, orgID)
	if err != nil {
		return models.Enrollment{}, err
	}
	return c.recordAttendance(ctx, a, e, orgID, decision)
}

func (c *Controller) recordAttendance(ctx context.Context, a models.Activity, e models.Enrollment, orgID primitive.ObjectID, decision string) (models.Enrollment, error) {
	decision = normalize.Status(decision)
	if decision != models.AttendancePresent && decision != models.AttendanceAbsent {
		return models.Enrollment{}, apperr.Validation("status", "status must be present or absent.")
	}
	if !a.IsActive() {
		return models.Enrollment{}, apperr.InvalidState("attendance can only be recorded while the activity is active; it is %s", a.Status)
	}

	// The guard keeps Finish from closing the activity between the checks
	// below and the write.
	guarded, err := c.activities.Acquire(ctx, a.ID)
	if errors.Is(err, activitystore.ErrNotActive) {
		return models.Enrollment{}, apperr.InvalidState("activity is no longer active")
	}
	if err != nil {
		return models.Enrollment{}, err
	}
	defer func() { _ = c.release(ctx, a.ID, 0) }()

	if _, err := c.certs.GetByEnrollment(ctx, e.ID); err == nil {
		return models.Enrollment{}, apperr.InvalidState("a certificate was already issued for this enrollment; attendance can no longer change")
	} else if !errors.Is(err, certificatestore.ErrNotFound) {
		return models.Enrollment{}, err
	}

	hours := 0
	if decision == models.AttendancePresent {
		if guarded.WorkloadHours <= 0 {
			return models.Enrollment{}, apperr.InvalidState("activity has no workload hours defined")
		}
		hours = guarded.WorkloadHours
	}

	updated, err := c.enrollments.UpdateAttendance(ctx, e.ID, decision, orgID, hours)
	if errors.Is(err, enrollmentstore.ErrNotFound) {
		return models.Enrollment{}, apperr.NotFound("enrollment")
	}
	if err != nil {
		return models.Enrollment{}, err
	}
	metrics.RecordAttendance(decision)
	return updated, nil
}
