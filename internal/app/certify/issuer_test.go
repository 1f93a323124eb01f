package certify_test

import (
	"strings"
	"sync"
	"testing"

	"github.com/maishoras/maishoras/internal/app/certify"
	"github.com/maishoras/maishoras/internal/app/system/apperr"
	"github.com/maishoras/maishoras/internal/app/system/indexes"
	"github.com/maishoras/maishoras/internal/domain/models"
	"github.com/maishoras/maishoras/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type env struct {
	db       *mongo.Database
	fx       *testutil.Fixtures
	issuer   *certify.Issuer
	org      models.User
	student  models.User
	activity models.Activity
}

func setup(t *testing.T) *env {
	t.Helper()
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}
	fx := testutil.NewFixtures(t, db)
	org := fx.CreateOrganization(ctx, "Instituto Mais")
	return &env{
		db:       db,
		fx:       fx,
		issuer:   certify.New(db, zap.NewNop()),
		org:      org,
		student:  fx.CreateStudent(ctx, "Ana"),
		activity: fx.CreateActivity(ctx, org.ID),
	}
}

func (e *env) countCerts(t *testing.T, filter bson.M) int64 {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()
	n, err := e.db.Collection("certificates").CountDocuments(ctx, filter)
	if err != nil {
		t.Fatalf("count certificates: %v", err)
	}
	return n
}

func TestIssueIfEligible(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	pending := e.fx.CreateEnrollment(ctx, e.activity.ID, e.student.ID, models.AttendancePending)
	if _, err := e.issuer.IssueIfEligible(ctx, pending); apperr.KindOf(err) != apperr.KindInvalidState {
		t.Errorf("expected invalid_state for pending attendance, got %v", err)
	}

	other := e.fx.CreateStudent(ctx, "Bia")
	present := e.fx.CreateEnrollment(ctx, e.activity.ID, other.ID, models.AttendancePresent)

	c, err := e.issuer.IssueIfEligible(ctx, present)
	if err != nil {
		t.Fatalf("IssueIfEligible failed: %v", err)
	}
	if c == nil {
		t.Fatal("expected a certificate")
	}
	if c.Hours != e.activity.WorkloadHours {
		t.Errorf("expected hours %d, got %d", e.activity.WorkloadHours, c.Hours)
	}
	if len(c.VerificationCode) != 32 {
		t.Errorf("expected 32-char code, got %q", c.VerificationCode)
	}

	again, err := e.issuer.IssueIfEligible(ctx, present)
	if err != nil || again != nil {
		t.Errorf("expected silent no-op on re-issue, got %v / %v", again, err)
	}
	if n := e.countCerts(t, bson.M{"enrollment_id": present.ID}); n != 1 {
		t.Errorf("expected exactly 1 certificate, got %d", n)
	}
}

func TestIssueIfEligible_ConcurrentCallsIssueOnce(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	present := e.fx.CreateEnrollment(ctx, e.activity.ID, e.student.ID, models.AttendancePresent)

	const workers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := e.issuer.IssueIfEligible(ctx, present)
			if err != nil {
				errs <- err
				return
			}
			if c != nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}

	if created != 1 {
		t.Errorf("expected exactly one caller to create the certificate, got %d", created)
	}
	if n := e.countCerts(t, bson.M{"enrollment_id": present.ID}); n != 1 {
		t.Errorf("expected 1 stored certificate, got %d", n)
	}
}

func TestIssueForActivity(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	already := e.fx.CreateEnrollment(ctx, e.activity.ID, e.student.ID, models.AttendancePresent)
	if _, err := e.issuer.IssueIfEligible(ctx, already); err != nil {
		t.Fatalf("IssueIfEligible failed: %v", err)
	}
	for _, name := range []string{"Bia", "Caio"} {
		s := e.fx.CreateStudent(ctx, name)
		e.fx.CreateEnrollment(ctx, e.activity.ID, s.ID, models.AttendancePresent)
	}
	absent := e.fx.CreateStudent(ctx, "Duda")
	e.fx.CreateEnrollment(ctx, e.activity.ID, absent.ID, models.AttendanceAbsent)

	issued, err := e.issuer.IssueForActivity(ctx, e.activity.ID)
	if err != nil {
		t.Fatalf("IssueForActivity failed: %v", err)
	}
	if issued != 2 {
		t.Errorf("expected 2 new certificates, got %d", issued)
	}
	if n := e.countCerts(t, bson.M{"activity_id": e.activity.ID}); n != 3 {
		t.Errorf("expected 3 certificates in total, got %d", n)
	}
	if n := e.countCerts(t, bson.M{"user_id": absent.ID}); n != 0 {
		t.Errorf("absent student must not be certified, got %d", n)
	}

	issued, err = e.issuer.IssueForActivity(ctx, e.activity.ID)
	if err != nil || issued != 0 {
		t.Errorf("expected second pass to issue nothing, got %d (%v)", issued, err)
	}
}

func TestIssueForEnrollment(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	pending := e.fx.CreateEnrollment(ctx, e.activity.ID, e.student.ID, models.AttendancePending)
	other := e.fx.CreateStudent(ctx, "Bia")
	present := e.fx.CreateEnrollment(ctx, e.activity.ID, other.ID, models.AttendancePresent)
	stranger := e.fx.CreateOrganization(ctx, "Outra ONG")

	t.Run("not found", func(t *testing.T) {
		_, _, err := e.issuer.IssueForEnrollment(ctx, primitive.NewObjectID(), e.org.ID)
		if apperr.KindOf(err) != apperr.KindNotFound {
			t.Errorf("expected not_found, got %v", err)
		}
	})
	t.Run("not owner", func(t *testing.T) {
		_, _, err := e.issuer.IssueForEnrollment(ctx, present.ID, stranger.ID)
		if apperr.KindOf(err) != apperr.KindForbidden {
			t.Errorf("expected forbidden, got %v", err)
		}
	})
	t.Run("pending", func(t *testing.T) {
		_, _, err := e.issuer.IssueForEnrollment(ctx, pending.ID, e.org.ID)
		if apperr.KindOf(err) != apperr.KindInvalidState {
			t.Errorf("expected invalid_state, got %v", err)
		}
	})
	t.Run("idempotent", func(t *testing.T) {
		first, created, err := e.issuer.IssueForEnrollment(ctx, present.ID, e.org.ID)
		if err != nil || !created {
			t.Fatalf("expected created certificate, got created=%v err=%v", created, err)
		}
		second, created, err := e.issuer.IssueForEnrollment(ctx, present.ID, e.org.ID)
		if err != nil || created {
			t.Fatalf("expected existing certificate, got created=%v err=%v", created, err)
		}
		if first.ID != second.ID {
			t.Errorf("expected same certificate, got %s and %s", first.ID.Hex(), second.ID.Hex())
		}
	})

	a := e.fx.Activity(ctx, e.activity.ID)
	if a.Inflight != 0 {
		t.Errorf("expected write guard released, inflight=%d", a.Inflight)
	}
}

func TestIssueForEnrollment_CancelledActivity(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	cancelled := e.fx.CreateActivity(ctx, e.org.ID, func(a *models.Activity) {
		a.Status = models.ActivityCancelled
	})
	present := e.fx.CreateEnrollment(ctx, cancelled.ID, e.student.ID, models.AttendancePresent)

	_, _, err := e.issuer.IssueForEnrollment(ctx, present.ID, e.org.ID)
	if apperr.KindOf(err) != apperr.KindInvalidState {
		t.Errorf("expected invalid_state, got %v", err)
	}
}

func TestValidateAndViews(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	present := e.fx.CreateEnrollment(ctx, e.activity.ID, e.student.ID, models.AttendancePresent)
	c, err := e.issuer.IssueIfEligible(ctx, present)
	if err != nil || c == nil {
		t.Fatalf("IssueIfEligible failed: %v", err)
	}

	v, err := e.issuer.Validate(ctx, " "+strings.ToUpper(c.VerificationCode)+" ")
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if v.Student.Name != e.student.Name {
		t.Errorf("expected student %q, got %q", e.student.Name, v.Student.Name)
	}
	if v.Student.Email != "" {
		t.Error("public view must not expose the student's email")
	}
	if v.Organization.Name != e.org.DisplayName() {
		t.Errorf("expected organization %q, got %q", e.org.DisplayName(), v.Organization.Name)
	}
	if v.Activity.Title != e.activity.Title || v.Hours != e.activity.WorkloadHours {
		t.Errorf("unexpected activity data: %+v hours=%d", v.Activity, v.Hours)
	}

	for _, bad := range []string{"", "xyz", strings.Repeat("0", 32)} {
		if _, err := e.issuer.Validate(ctx, bad); apperr.KindOf(err) != apperr.KindNotFound {
			t.Errorf("Validate(%q): expected not_found, got %v", bad, err)
		}
	}

	if _, err := e.issuer.Get(ctx, c.ID, e.student.ID); err != nil {
		t.Errorf("student should see own certificate: %v", err)
	}
	if _, err := e.issuer.Get(ctx, c.ID, e.org.ID); err != nil {
		t.Errorf("issuing organization should see certificate: %v", err)
	}
	if _, err := e.issuer.Get(ctx, c.ID, primitive.NewObjectID()); apperr.KindOf(err) != apperr.KindForbidden {
		t.Errorf("expected forbidden for stranger, got %v", err)
	}

	mine, err := e.issuer.ListForUser(ctx, e.student.ID)
	if err != nil || len(mine) != 1 {
		t.Errorf("expected 1 certificate, got %d (%v)", len(mine), err)
	}
}

func TestSummary(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	second := e.fx.CreateActivity(ctx, e.org.ID, func(a *models.Activity) {
		a.Title = "Horta comunitária"
		a.WorkloadHours = 6
	})
	third := e.fx.CreateActivity(ctx, e.org.ID)

	for _, a := range []models.Activity{e.activity, second} {
		en := e.fx.CreateEnrollment(ctx, a.ID, e.student.ID, models.AttendancePresent)
		if _, err := e.issuer.IssueIfEligible(ctx, en); err != nil {
			t.Fatalf("IssueIfEligible failed: %v", err)
		}
	}
	e.fx.CreateEnrollment(ctx, third.ID, e.student.ID, models.AttendancePending)

	sum, err := e.issuer.Summary(ctx, e.student.ID)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if len(sum.Enrollments) != 3 {
		t.Errorf("expected 3 enrollments, got %d", len(sum.Enrollments))
	}
	if len(sum.Certificates) != 2 {
		t.Errorf("expected 2 certificates, got %d", len(sum.Certificates))
	}
	if sum.TotalHours != e.activity.WorkloadHours+6 {
		t.Errorf("expected %d total hours, got %d", e.activity.WorkloadHours+6, sum.TotalHours)
	}
	for _, v := range sum.Enrollments {
		if v.Activity == nil {
			t.Error("expected every enrollment to carry its activity")
		}
	}
}
