// Package lifecycle owns every state change of activities and their
// enrollments: creation, seat admission, attendance, edits, the terminal
// transitions and deletion.
//
// Seat counts and attendance are protected by conditional writes on the
// activity document (see activitystore). When the deployment supports
// transactions the multi-step writes also run inside one, so a crash between
// steps leaves nothing behind; otherwise the reconciler repairs what a crash
// interrupted.
package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/maishoras/maishoras/internal/app/certify"
	activitystore "github.com/maishoras/maishoras/internal/app/store/activities"
	certificatestore "github.com/maishoras/maishoras/internal/app/store/certificates"
	enrollmentstore "github.com/maishoras/maishoras/internal/app/store/enrollments"
	userstore "github.com/maishoras/maishoras/internal/app/store/users"
	"github.com/maishoras/maishoras/internal/app/system/apperr"
	"github.com/maishoras/maishoras/internal/app/system/timeouts"
	"github.com/maishoras/maishoras/internal/app/system/txn"
	"github.com/maishoras/maishoras/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// maxAttempts bounds optimistic retries of edits and transitions.
const maxAttempts = 5

// Controller coordinates the activity, enrollment and certificate stores.
type Controller struct {
	activities  *activitystore.Store
	enrollments *enrollmentstore.Store
	certs       *certificatestore.Store
	users       *userstore.Store
	issuer      *certify.Issuer
	txn         *txn.Runner
	log         *zap.Logger

	loc *time.Location
	now func() time.Time
}

// New builds a Controller. loc is the zone "today" is computed in when
// validating activity dates; nil means UTC.
func New(db *mongo.Database, runner *txn.Runner, issuer *certify.Issuer, loc *time.Location, logger *zap.Logger) *Controller {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		activities:  activitystore.New(db),
		enrollments: enrollmentstore.New(db),
		certs:       certificatestore.New(db),
		users:       userstore.New(db),
		issuer:      issuer,
		txn:         runner,
		log:         logger,
		loc:         loc,
		now:         time.Now,
	}
}

// today is the current calendar day in the configured zone, as UTC midnight.
func (c *Controller) today() time.Time {
	t := c.now().In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// loadActivity maps the store's not-found sentinel to an apperr.
func (c *Controller) loadActivity(ctx context.Context, id primitive.ObjectID) (models.Activity, error) {
	a, err := c.activities.GetByID(ctx, id)
	if errors.Is(err, activitystore.ErrNotFound) {
		return a, apperr.NotFound("activity")
	}
	return a, err
}

// ownedActivity loads an activity and checks that orgID created it.
func (c *Controller) ownedActivity(ctx context.Context, id, orgID primitive.ObjectID) (models.Activity, error) {
	a, err := c.loadActivity(ctx, id)
	if err != nil {
		return a, err
	}
	if a.CreatedBy != orgID {
		return a, apperr.Forbidden("only the organization that created this activity can manage it")
	}
	return a, nil
}

// release drops a write guard. Outside a transaction a failure is logged and
// left to the reconciler; inside one it is returned so the transaction
// aborts.
func (c *Controller) release(ctx context.Context, activityID primitive.ObjectID, seats int) error {
	inTxn := txn.InTransaction(ctx)
	if !inTxn {
		// The guard must come off even when the request was cancelled.
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), timeouts.Short())
		defer cancel()
	}
	err := c.activities.Release(ctx, activityID, seats)
	if err == nil {
		return nil
	}
	if inTxn {
		return err
	}
	c.log.Warn("release of activity write guard failed",
		zap.String("activity_id", activityID.Hex()),
		zap.Int("seats", seats),
		zap.Error(err))
	return nil
}

// backoff sleeps before retry attempt n (1-based).
func backoff(ctx context.Context, n int) error {
	t := time.NewTimer(time.Duration(n*n) * 10 * time.Millisecond)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
