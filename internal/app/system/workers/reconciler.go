// internal/app/system/workers/reconciler.go
package workers

import (
	"context"
	"sync"
	"time"

	"github.com/maishoras/maishoras/internal/app/certify"
	activitystore "github.com/maishoras/maishoras/internal/app/store/activities"
	enrollmentstore "github.com/maishoras/maishoras/internal/app/store/enrollments"
	"github.com/maishoras/maishoras/internal/app/system/metrics"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Repair kinds reported to metrics.
const (
	RepairGuard       = "guard"
	RepairOrphan      = "orphan_enrollments"
	RepairCertificate = "certificate"
)

// batchSize bounds how many activities one pass looks at per repair kind.
const batchSize = 200

// Report summarizes one reconciliation pass.
type Report struct {
	GuardsSettled      int
	OrphansRemoved     int64
	CertificatesIssued int
}

// Reconciler is a background worker that repairs derived state left behind
// by interrupted requests: write guards that were never released, seat
// counts that drifted from the enrollment rows, enrollments whose activity
// was deleted, and finished activities whose certificates were not all
// issued.
type Reconciler struct {
	activities  *activitystore.Store
	enrollments *enrollmentstore.Store
	issuer      *certify.Issuer
	log         *zap.Logger
	interval    time.Duration
	grace       time.Duration
	now         func() time.Time
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// NewReconciler creates a reconciler.
//
// Parameters:
//   - db: the application database
//   - issuer: used to backfill certificates
//   - logger: zap logger for logging
//   - interval: how often to run a pass (e.g., 1 minute)
//   - grace: how old a guard or a finish must be before it is repaired; keep
//     it above the longest request timeout (e.g., 2 minutes)
func NewReconciler(db *mongo.Database, issuer *certify.Issuer, logger *zap.Logger, interval, grace time.Duration) *Reconciler {
	return &Reconciler{
		activities:  activitystore.New(db),
		enrollments: enrollmentstore.New(db),
		issuer:      issuer,
		log:         logger,
		interval:    interval,
		grace:       grace,
		now:         time.Now,
		stopCh:      make(chan struct{}),
	}
}

// Start begins the background loop.
func (w *Reconciler) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("reconciler started",
		zap.Duration("interval", w.interval),
		zap.Duration("grace", w.grace))
}

// Stop signals the worker to stop and waits for it to finish.
func (w *Reconciler) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("reconciler stopped")
}

func (w *Reconciler) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			rep := w.RunOnce(ctx)
			cancel()
			if rep.GuardsSettled > 0 || rep.OrphansRemoved > 0 || rep.CertificatesIssued > 0 {
				w.log.Info("reconciler repaired state",
					zap.Int("guards_settled", rep.GuardsSettled),
					zap.Int64("orphans_removed", rep.OrphansRemoved),
					zap.Int("certificates_issued", rep.CertificatesIssued))
			}
		}
	}
}

// RunOnce performs one pass. Each repair kind is attempted even when an
// earlier one failed; failures are logged.
func (w *Reconciler) RunOnce(ctx context.Context) Report {
	cutoff := w.now().UTC().Add(-w.grace)
	var rep Report

	n, err := w.settleGuards(ctx, cutoff)
	if err != nil {
		w.log.Error("settling stale guards failed", zap.Error(err))
	}
	rep.GuardsSettled = n
	metrics.RecordRepairs(RepairGuard, n)

	removed, err := w.sweepOrphans(ctx)
	if err != nil {
		w.log.Error("orphan enrollment sweep failed", zap.Error(err))
	}
	rep.OrphansRemoved = removed
	metrics.RecordRepairs(RepairOrphan, int(removed))

	issued, err := w.backfillCertificates(ctx, cutoff)
	if err != nil {
		w.log.Error("certificate backfill failed", zap.Error(err))
	}
	rep.CertificatesIssued = issued
	metrics.RecordRepairs(RepairCertificate, issued)
	metrics.RecordCertificates(metrics.SourceReconcile, issued)

	return rep
}

// settleGuards recomputes enrolled_count from the ledger and clears the
// guard of every activity last guarded before cutoff. Settle is conditional
// on the revision read here, so an activity guarded again meanwhile is left
// for a later pass.
func (w *Reconciler) settleGuards(ctx context.Context, cutoff time.Time) (int, error) {
	stale, err := w.activities.ListGuardedBefore(ctx, cutoff, batchSize)
	if err != nil || len(stale) == 0 {
		return 0, err
	}
	ids := make([]primitive.ObjectID, 0, len(stale))
	for _, a := range stale {
		ids = append(ids, a.ID)
	}
	counts, err := w.enrollments.CountsByActivity(ctx, ids)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, a := range stale {
		enrolled := int(counts[a.ID].Total)
		ok, err := w.activities.Settle(ctx, a, enrolled)
		if err != nil {
			return settled, err
		}
		if !ok {
			continue
		}
		settled++
		if a.Inflight != 0 || a.EnrolledCount != enrolled {
			w.log.Warn("repaired activity counters",
				zap.String("activity_id", a.ID.Hex()),
				zap.Int("inflight_was", a.Inflight),
				zap.Int("enrolled_was", a.EnrolledCount),
				zap.Int("enrolled", enrolled))
		}
	}
	return settled, nil
}

// sweepOrphans deletes enrollments whose activity no longer exists.
func (w *Reconciler) sweepOrphans(ctx context.Context) (int64, error) {
	ids, err := w.enrollments.ActivityIDs(ctx)
	if err != nil || len(ids) == 0 {
		return 0, err
	}
	existing, err := w.activities.ExistingIDs(ctx, ids)
	if err != nil {
		return 0, err
	}
	var gone []primitive.ObjectID
	for _, id := range ids {
		if !existing[id] {
			gone = append(gone, id)
		}
	}
	if len(gone) == 0 {
		return 0, nil
	}
	return w.enrollments.DeleteByActivities(ctx, gone)
}

// backfillCertificates completes issuance for activities finished before
// cutoff that were never marked certified. Effective hours are synced to the
// final workload first, since the finish that left the activity
// uncertified may not have done it.
func (w *Reconciler) backfillCertificates(ctx context.Context, cutoff time.Time) (int, error) {
	pending, err := w.activities.ListUncertified(ctx, cutoff, batchSize)
	if err != nil {
		return 0, err
	}
	issued := 0
	for _, a := range pending {
		if a.WorkloadHours > 0 {
			if _, err := w.enrollments.SyncEffectiveHours(ctx, a.ID, a.WorkloadHours); err != nil {
				return issued, err
			}
		}
		n, err := w.issuer.IssueForActivity(ctx, a.ID)
		issued += n
		if err != nil {
			return issued, err
		}
		if err := w.activities.MarkCertified(ctx, a.ID); err != nil {
			return issued, err
		}
	}
	return issued, nil
}
