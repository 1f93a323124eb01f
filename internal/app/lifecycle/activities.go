// internal/app/lifecycle/activities.go
package lifecycle

import (
	"context"
	"errors"

	activitystore "github.com/maishoras/maishoras/internal/app/store/activities"
	"github.com/maishoras/maishoras/internal/app/system/apperr"
	"github.com/maishoras/maishoras/internal/app/system/metrics"
	"github.com/maishoras/maishoras/internal/app/system/txn"
	"github.com/maishoras/maishoras/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Create validates in and stores a new active activity owned by orgID.
func (c *Controller) Create(ctx context.Context, orgID primitive.ObjectID, in ActivityInput) (models.Activity, error) {
	in = in.normalized()
	if err := in.validate(c.today(), true); err != nil {
		return models.Activity{}, err
	}

	a := models.Activity{
		Title:           in.Title,
		Description:     in.Description,
		Location:        in.Location,
		Date:            in.day(),
		StartTime:       in.StartTime,
		EndTime:         in.EndTime,
		WorkloadHours:   in.WorkloadHours,
		MinParticipants: in.MinParticipants,
		MaxParticipants: in.MaxParticipants,
		CreatedBy:       orgID,
	}
	if err := c.activities.Create(ctx, &a); err != nil {
		return models.Activity{}, err
	}
	return a, nil
}

// Update applies p to an active activity owned by orgID.
//
// Once anyone is enrolled only workloadHours, minParticipants and
// maxParticipants may change; other supplied fields are ignored, and
// maxParticipants cannot drop below the number enrolled. Every write is
// conditional on the enrollment state it was checked against, so a
// concurrent enrollment makes the edit re-evaluate instead of slipping past
// the checks.
func (c *Controller) Update(ctx context.Context, id, orgID primitive.ObjectID, p ActivityPatch) (models.Activity, error) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		a, err := c.ownedActivity(ctx, id, orgID)
		if err != nil {
			return a, err
		}
		if !a.IsActive() {
			return a, apperr.InvalidState("only active activities can be edited; this one is %s", a.Status)
		}

		frozen := a.EnrolledCount > 0
		if frozen && p.MaxParticipants != nil && *p.MaxParticipants < a.EnrolledCount {
			return a, apperr.CapacityViolation(a.EnrolledCount)
		}

		merged := inputOf(a)
		set := bson.M{}
		reshaped := false // a field frozen by enrollments was supplied

		if !frozen {
			if p.Title != nil {
				merged.Title = *p.Title
				reshaped = true
			}
			if p.Description != nil {
				merged.Description = *p.Description
				reshaped = true
			}
			if p.Location != nil {
				merged.Location = *p.Location
				reshaped = true
			}
			if p.Date != nil {
				merged.Date = *p.Date
				reshaped = true
			}
			if p.StartTime != nil {
				merged.StartTime = *p.StartTime
				reshaped = true
			}
			if p.EndTime != nil {
				merged.EndTime = *p.EndTime
				reshaped = true
			}
		}
		if p.WorkloadHours != nil {
			merged.WorkloadHours = *p.WorkloadHours
		}
		if p.MinParticipants != nil {
			merged.MinParticipants = *p.MinParticipants
		}
		if p.MaxParticipants != nil {
			merged.MaxParticipants = *p.MaxParticipants
		}

		merged = merged.normalized()
		if err := merged.validate(c.today(), !frozen && p.Date != nil); err != nil {
			return a, err
		}

		if reshaped {
			set["title"] = merged.Title
			set["description"] = merged.Description
			set["location"] = merged.Location
			set["date"] = merged.day()
			set["start_time"] = merged.StartTime
			set["end_time"] = merged.EndTime
		}
		if p.WorkloadHours != nil {
			set["workload_hours"] = merged.WorkloadHours
		}
		if p.MinParticipants != nil {
			set["min_participants"] = merged.MinParticipants
		}
		if p.MaxParticipants != nil {
			set["max_participants"] = merged.MaxParticipants
		}
		if len(set) == 0 {
			return a, nil
		}

		updated, err := c.activities.ApplyPatch(ctx, a.ID, activitystore.Patch{
			Set:          set,
			MaxEnrolled:  merged.MaxParticipants,
			RequireEmpty: reshaped,
		})
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, activitystore.ErrConflict) {
			return a, err
		}

		metrics.RecordConflictRetry("update")
		if err := backoff(ctx, attempt); err != nil {
			return a, err
		}
	}
	return models.Activity{}, apperr.InvalidState("activity is being changed by other requests; try again")
}

// FinishResult is what Finish reports back to the organization.
type FinishResult struct {
	Activity           models.Activity `json:"activity"`
	CertificatesIssued int             `json:"certificatesIssued"`
}

// Finish closes an active activity whose every enrollment has a recorded
// decision, then issues the certificates of present participants.
//
// The status flip and the effective-hours sync commit together. Issuance
// runs after the commit; if it is interrupted the activity stays
// uncertified and the reconciler completes it. Without transactions a
// failed sync cannot be rolled back, so issuance is left to the reconciler,
// which syncs hours again before issuing.
func (c *Controller) Finish(ctx context.Context, id, orgID primitive.ObjectID) (FinishResult, error) {
	synced := false
	err := c.terminate(ctx, id, orgID, models.ActivityFinished, func(ctx context.Context, a models.Activity) error {
		if a.WorkloadHours <= 0 {
			return apperr.Validation("workloadHours", "workloadHours must be greater than 0 before finishing.")
		}
		pending, err := c.enrollments.CountByActivity(ctx, a.ID, models.AttendancePending)
		if err != nil {
			return err
		}
		if pending > 0 {
			return apperr.PendingAttendance(pending)
		}
		return nil
	}, func(ctx context.Context, a models.Activity) error {
		if _, err := c.enrollments.SyncEffectiveHours(ctx, a.ID, a.WorkloadHours); err != nil {
			return err
		}
		synced = true
		return nil
	})
	if err != nil {
		return FinishResult{}, err
	}
	if !synced {
		a, err := c.loadActivity(ctx, id)
		if err != nil {
			return FinishResult{}, err
		}
		return FinishResult{Activity: a}, nil
	}

	issued, err := c.issuer.IssueForActivity(ctx, id)
	switch {
	case err != nil:
		c.log.Warn("certificate issuance after finish incomplete; reconciler will resume",
			zap.String("activity_id", id.Hex()),
			zap.Int("issued", issued),
			zap.Error(err))
	default:
		if err := c.activities.MarkCertified(ctx, id); err != nil {
			c.log.Warn("mark certified failed",
				zap.String("activity_id", id.Hex()), zap.Error(err))
		}
	}
	metrics.RecordCertificates(metrics.SourceFinish, issued)

	a, err := c.loadActivity(ctx, id)
	if err != nil {
		return FinishResult{}, err
	}
	return FinishResult{Activity: a, CertificatesIssued: issued}, nil
}

// Cancel closes an active activity without issuing anything. Enrollments
// are kept as history.
func (c *Controller) Cancel(ctx context.Context, id, orgID primitive.ObjectID) (models.Activity, error) {
	if err := c.terminate(ctx, id, orgID, models.ActivityCancelled, nil, nil); err != nil {
		return models.Activity{}, err
	}
	return c.loadActivity(ctx, id)
}

// terminate moves an owned, active activity to status to. check runs
// against the state the transition is conditional on; after runs in the same
// transaction once the transition matched. Each attempt is its own
// transaction so a retry reads fresh state. Outside a transaction the
// transition is already committed when after runs, so its failure is logged
// and the transition still reported as done.
func (c *Controller) terminate(ctx context.Context, id, orgID primitive.ObjectID, to string,
	check, after func(context.Context, models.Activity) error) error {

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		done := false
		err := c.txn.Run(ctx, func(ctx context.Context) error {
			done = false
			a, err := c.ownedActivity(ctx, id, orgID)
			if err != nil {
				return err
			}
			if !a.IsActive() {
				return apperr.InvalidState("activity is already %s", a.Status)
			}
			if check != nil {
				if err := check(ctx, a); err != nil {
					return err
				}
			}
			if a.Inflight > 0 {
				return nil
			}
			ok, err := c.activities.Transition(ctx, a, to)
			if err != nil || !ok {
				return err
			}
			if after != nil {
				if err := after(ctx, a); err != nil {
					if txn.InTransaction(ctx) {
						return err
					}
					c.log.Warn("follow-up to status change failed; reconciler will complete it",
						zap.String("activity_id", a.ID.Hex()),
						zap.String("status", to),
						zap.Error(err))
				}
			}
			done = true
			return nil
		})
		if err != nil {
			return err
		}
		if done {
			metrics.RecordTransition(to)
			return nil
		}

		metrics.RecordConflictRetry(to)
		if err := backoff(ctx, attempt); err != nil {
			return err
		}
	}
	return apperr.InvalidState("activity is busy with enrollments or attendance updates; try again")
}

// Delete removes an activity that never finished and has no certificates,
// together with its enrollments.
//
// The activity goes first, conditional on no guarded write being in flight,
// so no enrollment can be admitted after its siblings were removed. Rows
// left behind by a crash in between are swept by the reconciler.
func (c *Controller) Delete(ctx context.Context, id, orgID primitive.ObjectID) (models.Activity, error) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var deleted models.Activity
		done := false
		err := c.txn.Run(ctx, func(ctx context.Context) error {
			done = false
			a, err := c.ownedActivity(ctx, id, orgID)
			if err != nil {
				return err
			}
			if a.Status == models.ActivityFinished {
				return apperr.InvalidState("finished activities are kept as the record of issued hours and cannot be deleted")
			}
			n, err := c.certs.CountByActivity(ctx, a.ID)
			if err != nil {
				return err
			}
			if n > 0 {
				return apperr.InvalidState("certificates were issued for this activity; it cannot be deleted")
			}

			ok, err := c.activities.DeleteIfIdle(ctx, a)
			if err != nil || !ok {
				return err
			}
			if _, err := c.enrollments.DeleteByActivity(ctx, a.ID); err != nil {
				return err
			}
			deleted = a
			done = true
			return nil
		})
		if err != nil {
			return models.Activity{}, err
		}
		if done {
			return deleted, nil
		}

		metrics.RecordConflictRetry("delete")
		if err := backoff(ctx, attempt); err != nil {
			return models.Activity{}, err
		}
	}
	return models.Activity{}, apperr.InvalidState("activity is busy with enrollments or attendance updates; try again")
}
