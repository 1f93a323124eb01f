package lifecycle_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/maishoras/maishoras/internal/app/certify"
	"github.com/maishoras/maishoras/internal/app/lifecycle"
	"github.com/maishoras/maishoras/internal/app/system/apperr"
	"github.com/maishoras/maishoras/internal/app/system/indexes"
	"github.com/maishoras/maishoras/internal/app/system/txn"
	"github.com/maishoras/maishoras/internal/domain/models"
	"github.com/maishoras/maishoras/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type env struct {
	db     *mongo.Database
	fx     *testutil.Fixtures
	ctl    *lifecycle.Controller
	issuer *certify.Issuer
	org    models.User
}

func setup(t *testing.T) *env {
	t.Helper()
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}
	logger := zap.NewNop()
	issuer := certify.New(db, logger)
	runner := txn.New(testutil.TestClient(t), logger)
	fx := testutil.NewFixtures(t, db)

	return &env{
		db:     db,
		fx:     fx,
		ctl:    lifecycle.New(db, runner, issuer, time.UTC, logger),
		issuer: issuer,
		org:    fx.CreateOrganization(ctx, "Instituto Mais"),
	}
}

func (e *env) students(ctx context.Context, n int) []models.User {
	out := make([]models.User, n)
	for i := range out {
		out[i] = e.fx.CreateStudent(ctx, "Aluno")
	}
	return out
}

func (e *env) count(t *testing.T, coll string, filter bson.M) int64 {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()
	n, err := e.db.Collection(coll).CountDocuments(ctx, filter)
	if err != nil {
		t.Fatalf("count %s: %v", coll, err)
	}
	return n
}

func wantKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	if got := apperr.KindOf(err); got != kind || err == nil {
		t.Fatalf("expected %s error, got %v (%v)", kind, got, err)
	}
}

func ptr[T any](v T) *T { return &v }

func futureDate() string {
	return time.Now().UTC().AddDate(0, 0, 10).Format("2006-01-02")
}

func TestCreate(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a, err := e.ctl.Create(ctx, e.org.ID, lifecycle.ActivityInput{
		Title:           "  plantio de mudas ",
		Description:     "Plantio no parque",
		Location:        "Parque da Cidade",
		Date:            futureDate(),
		StartTime:       "09:00",
		EndTime:         "11:30",
		WorkloadHours:   3,
		MinParticipants: 2,
		MaxParticipants: 8,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if a.Status != models.ActivityActive {
		t.Errorf("Status = %q, want active", a.Status)
	}
	if a.Title != "Plantio de mudas" {
		t.Errorf("Title = %q", a.Title)
	}
	if a.CreatedBy != e.org.ID {
		t.Errorf("CreatedBy = %s, want %s", a.CreatedBy.Hex(), e.org.ID.Hex())
	}
	if a.DateString() != futureDate() {
		t.Errorf("Date = %s, want %s", a.DateString(), futureDate())
	}

	stored := e.fx.Activity(ctx, a.ID)
	if stored.Title != a.Title || stored.EnrolledCount != 0 {
		t.Errorf("stored activity = %+v", stored)
	}
}

func TestCreate_Validation(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	_, err := e.ctl.Create(ctx, e.org.ID, lifecycle.ActivityInput{
		Title:           "Mutirão",
		Description:     "Limpeza",
		Location:        "Praia",
		Date:            yesterday,
		StartTime:       "08:00",
		EndTime:         "12:00",
		WorkloadHours:   4,
		MinParticipants: 1,
		MaxParticipants: 5,
	})
	wantKind(t, err, apperr.KindValidation)

	if n := e.count(t, "activities", bson.M{}); n != 0 {
		t.Errorf("expected nothing stored, found %d activities", n)
	}
}

// Scenario A: three concurrent enrollments for two seats.
func TestEnroll_ConcurrentSeats(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a := e.fx.CreateActivity(ctx, e.org.ID, func(a *models.Activity) {
		a.MinParticipants = 1
		a.MaxParticipants = 2
	})
	users := e.students(ctx, 3)

	errs := make([]error, len(users))
	var wg sync.WaitGroup
	for i, u := range users {
		wg.Add(1)
		go func(i int, uid primitive.ObjectID) {
			defer wg.Done()
			_, errs[i] = e.ctl.Enroll(ctx, a.ID, uid)
		}(i, u.ID)
	}
	wg.Wait()

	ok, full := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperr.KindOf(err) == apperr.KindActivityFullOrClosed:
			full++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 2 || full != 1 {
		t.Errorf("got %d admitted and %d rejected, want 2 and 1", ok, full)
	}
	if n := e.fx.CountEnrollments(ctx, a.ID); n != 2 {
		t.Errorf("enrollment rows = %d, want 2", n)
	}
	stored := e.fx.Activity(ctx, a.ID)
	if stored.EnrolledCount != 2 || stored.Inflight != 0 {
		t.Errorf("counters = enrolled %d inflight %d, want 2 and 0", stored.EnrolledCount, stored.Inflight)
	}
}

func TestEnroll_NeverExceedsCapacity(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	const seats, callers = 5, 20
	a := e.fx.CreateActivity(ctx, e.org.ID, func(a *models.Activity) { a.MaxParticipants = seats })
	users := e.students(ctx, callers)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for _, u := range users {
		wg.Add(1)
		go func(uid primitive.ObjectID) {
			defer wg.Done()
			_, err := e.ctl.Enroll(ctx, a.ID, uid)
			if err != nil && apperr.KindOf(err) != apperr.KindActivityFullOrClosed {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}(u.ID)
	}
	wg.Wait()

	if admitted != seats {
		t.Errorf("admitted = %d, want %d", admitted, seats)
	}
	if n := e.fx.CountEnrollments(ctx, a.ID); n != seats {
		t.Errorf("enrollment rows = %d, want %d", n, seats)
	}
}

func TestEnroll_Duplicate(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a := e.fx.CreateActivity(ctx, e.org.ID)
	u := e.fx.CreateStudent(ctx, "Ana")

	enr, err := e.ctl.Enroll(ctx, a.ID, u.ID)
	if err != nil {
		t.Fatalf("first Enroll failed: %v", err)
	}
	if enr.AttendanceStatus != models.AttendancePending {
		t.Errorf("AttendanceStatus = %q, want pending", enr.AttendanceStatus)
	}

	_, err = e.ctl.Enroll(ctx, a.ID, u.ID)
	wantKind(t, err, apperr.KindDuplicateEnrollment)

	if n := e.fx.CountEnrollments(ctx, a.ID); n != 1 {
		t.Errorf("enrollment rows = %d, want 1", n)
	}
	if got := e.fx.Activity(ctx, a.ID).EnrolledCount; got != 1 {
		t.Errorf("EnrolledCount = %d, want 1", got)
	}
}

func TestEnroll_ConcurrentDuplicate(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	const callers = 6
	// Enough seats that a duplicate is never mistaken for a full activity.
	a := e.fx.CreateActivity(ctx, e.org.ID, func(a *models.Activity) { a.MaxParticipants = callers + 1 })
	u := e.fx.CreateStudent(ctx, "Ana")

	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.ctl.Enroll(ctx, a.ID, u.ID)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		if apperr.KindOf(err) != apperr.KindDuplicateEnrollment {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Errorf("%d calls succeeded, want exactly 1", ok)
	}
	if n := e.fx.CountEnrollments(ctx, a.ID); n != 1 {
		t.Errorf("enrollment rows = %d, want 1", n)
	}
	stored := e.fx.Activity(ctx, a.ID)
	if stored.EnrolledCount != 1 || stored.Inflight != 0 {
		t.Errorf("counters = enrolled %d inflight %d, want 1 and 0", stored.EnrolledCount, stored.Inflight)
	}
}

func TestEnroll_MissingOrClosed(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u := e.fx.CreateStudent(ctx, "Ana")

	_, err := e.ctl.Enroll(ctx, primitive.NewObjectID(), u.ID)
	wantKind(t, err, apperr.KindNotFound)

	cancelled := e.fx.CreateActivity(ctx, e.org.ID, func(a *models.Activity) { a.Status = models.ActivityCancelled })
	_, err = e.ctl.Enroll(ctx, cancelled.ID, u.ID)
	wantKind(t, err, apperr.KindActivityFullOrClosed)
}

func TestRecordAttendance(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a := e.fx.CreateActivity(ctx, e.org.ID)
	u := e.fx.CreateStudent(ctx, "Ana")
	enr := e.fx.CreateEnrollment(ctx, a.ID, u.ID, models.AttendancePending)

	t.Run("present copies workload", func(t *testing.T) {
		got, err := e.ctl.RecordAttendance(ctx, a.ID, e.org.ID, u.ID, "Present")
		if err != nil {
			t.Fatalf("RecordAttendance failed: %v", err)
		}
		if got.AttendanceStatus != models.AttendancePresent || got.EffectiveHours != a.WorkloadHours {
			t.Errorf("got %s/%d, want present/%d", got.AttendanceStatus, got.EffectiveHours, a.WorkloadHours)
		}
		if got.ValidatedBy == nil || *got.ValidatedBy != e.org.ID {
			t.Errorf("ValidatedBy = %v, want %s", got.ValidatedBy, e.org.ID.Hex())
		}
	})

	t.Run("absent by enrollment id zeroes hours", func(t *testing.T) {
		got, err := e.ctl.RecordAttendanceByEnrollment(ctx, enr.ID, e.org.ID, "absent")
		if err != nil {
			t.Fatalf("RecordAttendanceByEnrollment failed: %v", err)
		}
		if got.AttendanceStatus != models.AttendanceAbsent || got.EffectiveHours != 0 {
			t.Errorf("got %s/%d, want absent/0", got.AttendanceStatus, got.EffectiveHours)
		}
	})

	t.Run("rejections", func(t *testing.T) {
		other := e.fx.CreateOrganization(ctx, "Outra ONG")
		_, err := e.ctl.RecordAttendance(ctx, a.ID, other.ID, u.ID, "present")
		wantKind(t, err, apperr.KindForbidden)

		_, err = e.ctl.RecordAttendance(ctx, a.ID, e.org.ID, primitive.NewObjectID(), "present")
		wantKind(t, err, apperr.KindNotFound)

		_, err = e.ctl.RecordAttendance(ctx, a.ID, e.org.ID, u.ID, "late")
		wantKind(t, err, apperr.KindValidation)

		_, err = e.ctl.RecordAttendanceByEnrollment(ctx, primitive.NewObjectID(), e.org.ID, "present")
		wantKind(t, err, apperr.KindNotFound)
	})

	if got := e.fx.Activity(ctx, a.ID).Inflight; got != 0 {
		t.Errorf("Inflight = %d after attendance writes, want 0", got)
	}
}

func TestRecordAttendance_LockedStates(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	finished := e.fx.CreateActivity(ctx, e.org.ID, func(a *models.Activity) { a.Status = models.ActivityFinished })
	u := e.fx.CreateStudent(ctx, "Ana")
	e.fx.CreateEnrollment(ctx, finished.ID, u.ID, models.AttendancePresent)

	_, err := e.ctl.RecordAttendance(ctx, finished.ID, e.org.ID, u.ID, "absent")
	wantKind(t, err, apperr.KindInvalidState)

	// A certificate issued while active freezes the decision.
	a := e.fx.CreateActivity(ctx, e.org.ID)
	enr := e.fx.CreateEnrollment(ctx, a.ID, u.ID, models.AttendancePresent)
	if _, _, err := e.issuer.IssueForEnrollment(ctx, enr.ID, e.org.ID); err != nil {
		t.Fatalf("IssueForEnrollment failed: %v", err)
	}
	_, err = e.ctl.RecordAttendance(ctx, a.ID, e.org.ID, u.ID, "absent")
	wantKind(t, err, apperr.KindInvalidState)
	if got := e.fx.Activity(ctx, a.ID).Inflight; got != 0 {
		t.Errorf("Inflight = %d after rejected write, want 0", got)
	}
}

// Scenario B: enroll, mark present, finish, verify.
func TestFinish_IssuesCertificates(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a := e.fx.CreateActivity(ctx, e.org.ID, func(a *models.Activity) { a.MaxParticipants = 5 })
	u := e.fx.CreateStudent(ctx, "Ana")

	if _, err := e.ctl.Enroll(ctx, a.ID, u.ID); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}
	if _, err := e.ctl.RecordAttendance(ctx, a.ID, e.org.ID, u.ID, "present"); err != nil {
		t.Fatalf("RecordAttendance failed: %v", err)
	}

	res, err := e.ctl.Finish(ctx, a.ID, e.org.ID)
	if err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	if res.CertificatesIssued != 1 {
		t.Errorf("CertificatesIssued = %d, want 1", res.CertificatesIssued)
	}
	if res.Activity.Status != models.ActivityFinished || res.Activity.FinishedAt == nil {
		t.Errorf("activity = %s finishedAt=%v, want finished with timestamp", res.Activity.Status, res.Activity.FinishedAt)
	}
	if !e.fx.Activity(ctx, a.ID).Certified {
		t.Error("expected activity to be marked certified")
	}

	var cert models.Certificate
	if err := e.db.Collection("certificates").FindOne(ctx, bson.M{"user_id": u.ID}).Decode(&cert); err != nil {
		t.Fatalf("load certificate: %v", err)
	}
	view, err := e.issuer.Validate(ctx, cert.VerificationCode)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if view.Hours != a.WorkloadHours {
		t.Errorf("Hours = %d, want %d", view.Hours, a.WorkloadHours)
	}

	// A second finish is rejected and issues nothing.
	_, err = e.ctl.Finish(ctx, a.ID, e.org.ID)
	wantKind(t, err, apperr.KindInvalidState)
	if n := e.count(t, "certificates", bson.M{"activity_id": a.ID}); n != 1 {
		t.Errorf("certificates = %d after second finish, want 1", n)
	}
}

// Scenario C: pending attendance blocks finish.
func TestFinish_PendingAttendance(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a := e.fx.CreateActivity(ctx, e.org.ID)
	u := e.fx.CreateStudent(ctx, "Ana")
	if _, err := e.ctl.Enroll(ctx, a.ID, u.ID); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}

	_, err := e.ctl.Finish(ctx, a.ID, e.org.ID)
	wantKind(t, err, apperr.KindPendingAttendance)
	if got := e.fx.Activity(ctx, a.ID).Status; got != models.ActivityActive {
		t.Errorf("Status = %q, want active", got)
	}
}

func TestFinish_CertificateCorrespondence(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a := e.fx.CreateActivity(ctx, e.org.ID, func(a *models.Activity) { a.MaxParticipants = 10 })
	users := e.students(ctx, 4)
	early := e.fx.CreateEnrollment(ctx, a.ID, users[0].ID, models.AttendancePresent)
	e.fx.CreateEnrollment(ctx, a.ID, users[1].ID, models.AttendancePresent)
	e.fx.CreateEnrollment(ctx, a.ID, users[2].ID, models.AttendancePresent)
	e.fx.CreateEnrollment(ctx, a.ID, users[3].ID, models.AttendanceAbsent)

	if _, created, err := e.issuer.IssueForEnrollment(ctx, early.ID, e.org.ID); err != nil || !created {
		t.Fatalf("manual issuance: created=%v err=%v", created, err)
	}

	// Workload may still change once enrolled; finish applies the final value.
	if _, err := e.ctl.Update(ctx, a.ID, e.org.ID, lifecycle.ActivityPatch{WorkloadHours: ptr(6)}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	res, err := e.ctl.Finish(ctx, a.ID, e.org.ID)
	if err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	if res.CertificatesIssued != 2 {
		t.Errorf("CertificatesIssued = %d, want 2", res.CertificatesIssued)
	}
	if n := e.count(t, "certificates", bson.M{"activity_id": a.ID}); n != 3 {
		t.Errorf("certificates = %d, want 3", n)
	}
	if n := e.count(t, "certificates", bson.M{"user_id": users[3].ID}); n != 0 {
		t.Errorf("absent student has %d certificates", n)
	}
	if n := e.count(t, "certificates", bson.M{"activity_id": a.ID, "hours": 6}); n != 2 {
		t.Errorf("certificates issued at finish with hours 6 = %d, want 2", n)
	}
	if n := e.count(t, "enrollments", bson.M{"activity_id": a.ID, "attendance_status": "present", "effective_hours": 6}); n != 3 {
		t.Errorf("present enrollments synced to 6 hours = %d, want 3", n)
	}
}

func TestFinish_BusyGuard(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a := e.fx.CreateActivity(ctx, e.org.ID)
	// A guard that never releases, as left by a crashed request.
	if _, err := e.db.Collection("activities").UpdateOne(ctx,
		bson.M{"_id": a.ID}, bson.M{"$set": bson.M{"inflight": 1}}); err != nil {
		t.Fatalf("set inflight: %v", err)
	}

	_, err := e.ctl.Finish(ctx, a.ID, e.org.ID)
	wantKind(t, err, apperr.KindInvalidState)
	if got := e.fx.Activity(ctx, a.ID).Status; got != models.ActivityActive {
		t.Errorf("Status = %q, want active", got)
	}
}

func TestFinish_RacingEnrollments(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a := e.fx.CreateActivity(ctx, e.org.ID, func(a *models.Activity) { a.MaxParticipants = 20 })
	first := e.fx.CreateStudent(ctx, "Ana")
	e.fx.CreateEnrollment(ctx, a.ID, first.ID, models.AttendancePresent)
	users := e.students(ctx, 8)

	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(uid primitive.ObjectID) {
			defer wg.Done()
			_, _ = e.ctl.Enroll(ctx, a.ID, uid)
		}(u.ID)
	}
	var finishErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, finishErr = e.ctl.Finish(ctx, a.ID, e.org.ID)
	}()
	wg.Wait()

	stored := e.fx.Activity(ctx, a.ID)
	pending := e.count(t, "enrollments", bson.M{"activity_id": a.ID, "attendance_status": "pending"})
	if stored.Status == models.ActivityFinished && pending > 0 {
		t.Fatalf("activity finished with %d pending enrollments", pending)
	}
	if finishErr == nil && stored.Status != models.ActivityFinished {
		t.Errorf("Finish succeeded but status is %q", stored.Status)
	}
	if finishErr != nil {
		switch apperr.KindOf(finishErr) {
		case apperr.KindPendingAttendance, apperr.KindInvalidState:
		default:
			t.Errorf("unexpected finish error: %v", finishErr)
		}
	}
	if rows := e.fx.CountEnrollments(ctx, a.ID); int64(stored.EnrolledCount) != rows {
		t.Errorf("EnrolledCount = %d, rows = %d", stored.EnrolledCount, rows)
	}
}

func TestUpdate_EditLock(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a := e.fx.CreateActivity(ctx, e.org.ID, func(a *models.Activity) { a.MaxParticipants = 5 })
	users := e.students(ctx, 3)
	for _, u := range users {
		e.fx.CreateEnrollment(ctx, a.ID, u.ID, models.AttendancePending)
	}

	got, err := e.ctl.Update(ctx, a.ID, e.org.ID, lifecycle.ActivityPatch{
		Title:           ptr("Outro título"),
		Location:        ptr("Outro lugar"),
		MaxParticipants: ptr(3),
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if got.Title != a.Title || got.Location != a.Location {
		t.Errorf("frozen fields changed: title %q location %q", got.Title, got.Location)
	}
	if got.MaxParticipants != 3 {
		t.Errorf("MaxParticipants = %d, want 3", got.MaxParticipants)
	}

	stored := e.fx.Activity(ctx, a.ID)
	if stored.Title != a.Title || stored.MaxParticipants != 3 {
		t.Errorf("stored title %q max %d", stored.Title, stored.MaxParticipants)
	}
}

func TestUpdate_CapacityFloor(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a := e.fx.CreateActivity(ctx, e.org.ID, func(a *models.Activity) { a.MaxParticipants = 5 })
	for _, u := range e.students(ctx, 3) {
		e.fx.CreateEnrollment(ctx, a.ID, u.ID, models.AttendancePending)
	}

	for _, k := range []int{0, 1, 2} {
		_, err := e.ctl.Update(ctx, a.ID, e.org.ID, lifecycle.ActivityPatch{MaxParticipants: ptr(k)})
		wantKind(t, err, apperr.KindCapacityViolation)
	}
	if got := e.fx.Activity(ctx, a.ID).MaxParticipants; got != 5 {
		t.Errorf("MaxParticipants = %d, want 5", got)
	}
}

func TestUpdate_EmptyActivity(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a := e.fx.CreateActivity(ctx, e.org.ID)

	got, err := e.ctl.Update(ctx, a.ID, e.org.ID, lifecycle.ActivityPatch{
		Title: ptr("oficina de leitura"),
		Date:  ptr(futureDate()),
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if got.Title != "Oficina de leitura" || got.DateString() != futureDate() {
		t.Errorf("got title %q date %s", got.Title, got.DateString())
	}

	past := time.Now().UTC().AddDate(0, 0, -3).Format("2006-01-02")
	_, err = e.ctl.Update(ctx, a.ID, e.org.ID, lifecycle.ActivityPatch{Date: ptr(past)})
	wantKind(t, err, apperr.KindValidation)

	_, err = e.ctl.Update(ctx, a.ID, e.org.ID, lifecycle.ActivityPatch{MinParticipants: ptr(9)})
	wantKind(t, err, apperr.KindValidation)
}

// Scenario D: another organization cannot edit.
func TestUpdate_NotOwner(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a := e.fx.CreateActivity(ctx, e.org.ID)
	other := e.fx.CreateOrganization(ctx, "Outra ONG")

	_, err := e.ctl.Update(ctx, a.ID, other.ID, lifecycle.ActivityPatch{
		Title:           ptr("Sequestrada"),
		MaxParticipants: ptr(50),
	})
	wantKind(t, err, apperr.KindForbidden)

	stored := e.fx.Activity(ctx, a.ID)
	if stored.Title != a.Title || stored.MaxParticipants != a.MaxParticipants {
		t.Errorf("activity changed: %+v", stored)
	}
}

func TestUpdate_TerminalActivity(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a := e.fx.CreateActivity(ctx, e.org.ID, func(a *models.Activity) { a.Status = models.ActivityFinished })
	_, err := e.ctl.Update(ctx, a.ID, e.org.ID, lifecycle.ActivityPatch{WorkloadHours: ptr(8)})
	wantKind(t, err, apperr.KindInvalidState)
}

func TestCancel(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a := e.fx.CreateActivity(ctx, e.org.ID)
	u := e.fx.CreateStudent(ctx, "Ana")
	e.fx.CreateEnrollment(ctx, a.ID, u.ID, models.AttendancePending)

	got, err := e.ctl.Cancel(ctx, a.ID, e.org.ID)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if got.Status != models.ActivityCancelled {
		t.Errorf("Status = %q, want cancelled", got.Status)
	}
	if n := e.fx.CountEnrollments(ctx, a.ID); n != 1 {
		t.Errorf("enrollments = %d, want history kept", n)
	}

	_, err = e.ctl.Cancel(ctx, a.ID, e.org.ID)
	wantKind(t, err, apperr.KindInvalidState)

	late := e.fx.CreateStudent(ctx, "Bia")
	_, err = e.ctl.Enroll(ctx, a.ID, late.ID)
	wantKind(t, err, apperr.KindActivityFullOrClosed)

	_, err = e.ctl.Finish(ctx, a.ID, e.org.ID)
	wantKind(t, err, apperr.KindInvalidState)
}

func TestDelete(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	t.Run("removes activity and enrollments", func(t *testing.T) {
		a := e.fx.CreateActivity(ctx, e.org.ID)
		for _, u := range e.students(ctx, 2) {
			e.fx.CreateEnrollment(ctx, a.ID, u.ID, models.AttendancePending)
		}

		other := e.fx.CreateOrganization(ctx, "Outra ONG")
		_, err := e.ctl.Delete(ctx, a.ID, other.ID)
		wantKind(t, err, apperr.KindForbidden)

		deleted, err := e.ctl.Delete(ctx, a.ID, e.org.ID)
		if err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if deleted.ID != a.ID {
			t.Errorf("deleted %s, want %s", deleted.ID.Hex(), a.ID.Hex())
		}
		if n := e.count(t, "activities", bson.M{"_id": a.ID}); n != 0 {
			t.Error("activity still stored")
		}
		if n := e.fx.CountEnrollments(ctx, a.ID); n != 0 {
			t.Errorf("enrollments left = %d", n)
		}

		_, err = e.ctl.Delete(ctx, a.ID, e.org.ID)
		wantKind(t, err, apperr.KindNotFound)
	})

	t.Run("finished is kept", func(t *testing.T) {
		a := e.fx.CreateActivity(ctx, e.org.ID, func(a *models.Activity) { a.Status = models.ActivityFinished })
		_, err := e.ctl.Delete(ctx, a.ID, e.org.ID)
		wantKind(t, err, apperr.KindInvalidState)
	})

	t.Run("certificates block deletion", func(t *testing.T) {
		a := e.fx.CreateActivity(ctx, e.org.ID)
		u := e.fx.CreateStudent(ctx, "Ana")
		enr := e.fx.CreateEnrollment(ctx, a.ID, u.ID, models.AttendancePresent)
		if _, _, err := e.issuer.IssueForEnrollment(ctx, enr.ID, e.org.ID); err != nil {
			t.Fatalf("IssueForEnrollment failed: %v", err)
		}
		_, err := e.ctl.Delete(ctx, a.ID, e.org.ID)
		wantKind(t, err, apperr.KindInvalidState)
		if n := e.fx.CountEnrollments(ctx, a.ID); n != 1 {
			t.Errorf("enrollments = %d, want 1", n)
		}
	})
}

func TestQueries(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a := e.fx.CreateActivity(ctx, e.org.ID, func(a *models.Activity) { a.Title = "Horta comunitária" })
	e.fx.CreateActivity(ctx, e.org.ID, func(a *models.Activity) {
		a.Title = "Bazar"
		a.Status = models.ActivityCancelled
	})
	u := e.fx.CreateStudent(ctx, "Ana")
	e.fx.CreateEnrollment(ctx, a.ID, u.ID, models.AttendancePending)

	t.Run("detail hides emails from others", func(t *testing.T) {
		owner, err := e.ctl.Detail(ctx, a.ID, e.org.ID)
		if err != nil {
			t.Fatalf("Detail failed: %v", err)
		}
		if len(owner.Participants) != 1 || owner.Participants[0].Student.Email != u.Email {
			t.Fatalf("owner roster = %+v", owner.Participants)
		}
		if owner.Organization.Name != e.org.DisplayName() {
			t.Errorf("Organization = %+v", owner.Organization)
		}

		student, err := e.ctl.Detail(ctx, a.ID, u.ID)
		if err != nil {
			t.Fatalf("Detail failed: %v", err)
		}
		if student.Participants[0].Student.Email != "" {
			t.Error("email exposed to non-owner")
		}
		if student.Participants[0].Student.Name != "Ana" {
			t.Errorf("Name = %q", student.Participants[0].Student.Name)
		}
	})

	t.Run("list filters", func(t *testing.T) {
		all, err := e.ctl.List(ctx, lifecycle.ListQuery{})
		if err != nil || len(all) != 2 {
			t.Fatalf("List = %d activities, err %v", len(all), err)
		}
		active, err := e.ctl.List(ctx, lifecycle.ListQuery{Status: "ACTIVE"})
		if err != nil || len(active) != 1 || active[0].ID != a.ID {
			t.Errorf("List(active) = %+v, err %v", active, err)
		}
		found, err := e.ctl.List(ctx, lifecycle.ListQuery{Query: "HORTA"})
		if err != nil || len(found) != 1 {
			t.Errorf("List(q) = %d, err %v", len(found), err)
		}
		mine, err := e.ctl.ListByOrganization(ctx, e.org.ID)
		if err != nil || len(mine) != 2 {
			t.Errorf("ListByOrganization = %d, err %v", len(mine), err)
		}
	})

	t.Run("enrollment listings", func(t *testing.T) {
		roster, err := e.ctl.ListEnrollmentsForActivity(ctx, a.ID, e.org.ID)
		if err != nil || len(roster) != 1 {
			t.Fatalf("roster = %d, err %v", len(roster), err)
		}
		other := e.fx.CreateOrganization(ctx, "Outra ONG")
		_, err = e.ctl.ListEnrollmentsForActivity(ctx, a.ID, other.ID)
		wantKind(t, err, apperr.KindForbidden)

		mine, err := e.ctl.ListEnrollmentsForUser(ctx, u.ID)
		if err != nil || len(mine) != 1 {
			t.Fatalf("ListEnrollmentsForUser = %d, err %v", len(mine), err)
		}
		if mine[0].Activity == nil || mine[0].Activity.Title != "Horta comunitária" {
			t.Errorf("activity ref = %+v", mine[0].Activity)
		}
	})

	_, err := e.ctl.Detail(ctx, primitive.NewObjectID(), e.org.ID)
	wantKind(t, err, apperr.KindNotFound)
}
