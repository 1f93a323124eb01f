// internal/app/lifecycle/queries.go
package lifecycle

import (
	"context"

	activitystore "github.com/maishoras/maishoras/internal/app/store/activities"
	"github.com/maishoras/maishoras/internal/app/system/normalize"
	"github.com/maishoras/maishoras/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ActivityDetail is an activity with its organization and roster.
type ActivityDetail struct {
	models.Activity
	Organization models.UserRef          `json:"organization"`
	Participants []models.EnrollmentView `json:"participants"`
}

// ListQuery narrows List.
type ListQuery struct {
	Status string
	Query  string
}

// Detail returns an activity with its organization and enrolled students.
// Student emails are only included for the owning organization.
func (c *Controller) Detail(ctx context.Context, id, viewerID primitive.ObjectID) (ActivityDetail, error) {
	a, err := c.loadActivity(ctx, id)
	if err != nil {
		return ActivityDetail{}, err
	}
	roster, err := c.roster(ctx, a.ID, viewerID == a.CreatedBy)
	if err != nil {
		return ActivityDetail{}, err
	}

	d := ActivityDetail{Activity: a, Participants: roster}
	owners, err := c.users.GetMany(ctx, []primitive.ObjectID{a.CreatedBy})
	if err != nil {
		return ActivityDetail{}, err
	}
	if org, ok := owners[a.CreatedBy]; ok {
		d.Organization = models.RefOf(org, false)
	} else {
		d.Organization = models.UserRef{ID: a.CreatedBy}
	}
	return d, nil
}

// List returns every activity, newest date first.
func (c *Controller) List(ctx context.Context, q ListQuery) ([]models.Activity, error) {
	return c.activities.List(ctx, activitystore.ListFilter{
		Status: normalize.Status(q.Status),
		Query:  normalize.QueryParam(q.Query),
	})
}

// ListByOrganization returns the activities orgID created.
func (c *Controller) ListByOrganization(ctx context.Context, orgID primitive.ObjectID) ([]models.Activity, error) {
	return c.activities.List(ctx, activitystore.ListFilter{CreatedBy: orgID})
}

// ListEnrollmentsForActivity returns the roster of an activity owned by orgID.
func (c *Controller) ListEnrollmentsForActivity(ctx context.Context, activityID, orgID primitive.ObjectID) ([]models.EnrollmentView, error) {
	a, err := c.ownedActivity(ctx, activityID, orgID)
	if err != nil {
		return nil, err
	}
	return c.roster(ctx, a.ID, true)
}

// ListEnrollmentsForUser returns userID's enrollments with their activities.
// Enrollments whose activity is gone are skipped.
func (c *Controller) ListEnrollmentsForUser(ctx context.Context, userID primitive.ObjectID) ([]models.EnrollmentView, error) {
	rows, err := c.enrollments.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]primitive.ObjectID, 0, len(rows))
	for _, e := range rows {
		ids = append(ids, e.ActivityID)
	}
	acts, err := c.activities.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]models.EnrollmentView, 0, len(rows))
	for _, e := range rows {
		a, ok := acts[e.ActivityID]
		if !ok {
			continue
		}
		ref := models.ActivityRefOf(a)
		out = append(out, models.EnrollmentView{Enrollment: e, Activity: &ref})
	}
	return out, nil
}

func (c *Controller) roster(ctx context.Context, activityID primitive.ObjectID, withEmail bool) ([]models.EnrollmentView, error) {
	rows, err := c.enrollments.ListByActivity(ctx, activityID, "")
	if err != nil {
		return nil, err
	}
	ids := make([]primitive.ObjectID, 0, len(rows))
	for _, e := range rows {
		ids = append(ids, e.UserID)
	}
	users, err := c.users.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]models.EnrollmentView, 0, len(rows))
	for _, e := range rows {
		ref := models.UserRef{ID: e.UserID}
		if u, ok := users[e.UserID]; ok {
			ref = models.RefOf(u, withEmail)
		}
		out = append(out, models.EnrollmentView{Enrollment: e, Student: &ref})
	}
	return out, nil
}
