// internal/app/certify/views.go
package certify

import (
	"context"
	"errors"

	certificatestore "github.com/maishoras/maishoras/internal/app/store/certificates"
	"github.com/maishoras/maishoras/internal/app/system/apperr"
	"github.com/maishoras/maishoras/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Validate resolves a verification code for public display. Unknown or
// malformed codes are reported as not found.
func (i *Issuer) Validate(ctx context.Context, code string) (models.CertificateView, error) {
	code = normalizeCode(code)
	if !looksLikeCode(code) {
		return models.CertificateView{}, apperr.NotFound("certificate")
	}
	c, err := i.certs.GetByCode(ctx, code)
	if errors.Is(err, certificatestore.ErrNotFound) {
		return models.CertificateView{}, apperr.NotFound("certificate")
	}
	if err != nil {
		return models.CertificateView{}, err
	}
	views, err := i.resolve(ctx, []models.Certificate{c})
	if err != nil {
		return models.CertificateView{}, err
	}
	return views[0], nil
}

// Get returns one certificate to its student or to the issuing organization.
func (i *Issuer) Get(ctx context.Context, id, requesterID primitive.ObjectID) (models.CertificateView, error) {
	c, err := i.certs.GetByID(ctx, id)
	if errors.Is(err, certificatestore.ErrNotFound) {
		return models.CertificateView{}, apperr.NotFound("certificate")
	}
	if err != nil {
		return models.CertificateView{}, err
	}
	views, err := i.resolve(ctx, []models.Certificate{c})
	if err != nil {
		return models.CertificateView{}, err
	}
	v := views[0]
	if requesterID != v.Student.ID && requesterID != v.Organization.ID {
		return models.CertificateView{}, apperr.Forbidden("this certificate belongs to another user")
	}
	return v, nil
}

// ListForUser returns a student's certificates, newest first.
func (i *Issuer) ListForUser(ctx context.Context, userID primitive.ObjectID) ([]models.CertificateView, error) {
	certs, err := i.certs.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return i.resolve(ctx, certs)
}

// Summary backs the student dashboard: enrollments with their activities,
// certificates and the certified hour total.
func (i *Issuer) Summary(ctx context.Context, userID primitive.ObjectID) (models.StudentSummary, error) {
	certs, err := i.ListForUser(ctx, userID)
	if err != nil {
		return models.StudentSummary{}, err
	}
	rows, err := i.enrollments.ListByUser(ctx, userID)
	if err != nil {
		return models.StudentSummary{}, err
	}

	ids := make([]primitive.ObjectID, 0, len(rows))
	for _, e := range rows {
		ids = append(ids, e.ActivityID)
	}
	acts, err := i.activities.GetMany(ctx, ids)
	if err != nil {
		return models.StudentSummary{}, err
	}

	out := models.StudentSummary{
		Enrollments:  make([]models.EnrollmentView, 0, len(rows)),
		Certificates: certs,
	}
	for _, e := range rows {
		v := models.EnrollmentView{Enrollment: e}
		if a, ok := acts[e.ActivityID]; ok {
			ref := models.ActivityRefOf(a)
			v.Activity = &ref
		}
		out.Enrollments = append(out.Enrollments, v)
	}
	for _, c := range certs {
		out.TotalHours += c.Hours
	}
	return out, nil
}

// resolve joins certificates with their activities, students and issuing
// organizations.
func (i *Issuer) resolve(ctx context.Context, certs []models.Certificate) ([]models.CertificateView, error) {
	out := make([]models.CertificateView, 0, len(certs))
	if len(certs) == 0 {
		return out, nil
	}

	activityIDs := make([]primitive.ObjectID, 0, len(certs))
	for _, c := range certs {
		activityIDs = append(activityIDs, c.ActivityID)
	}
	acts, err := i.activities.GetMany(ctx, activityIDs)
	if err != nil {
		return nil, err
	}

	userIDs := make([]primitive.ObjectID, 0, len(certs)*2)
	for _, c := range certs {
		userIDs = append(userIDs, c.UserID)
		if a, ok := acts[c.ActivityID]; ok {
			userIDs = append(userIDs, a.CreatedBy)
		}
	}
	users, err := i.users.GetMany(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	for _, c := range certs {
		v := models.CertificateView{
			ID:               c.ID,
			EnrollmentID:     c.EnrollmentID,
			VerificationCode: c.VerificationCode,
			Hours:            c.Hours,
			IssuedAt:         c.IssuedAt,
			Student:          models.UserRef{ID: c.UserID},
		}
		if u, ok := users[c.UserID]; ok {
			v.Student = models.RefOf(u, false)
		}
		if a, ok := acts[c.ActivityID]; ok {
			v.Activity = models.ActivityRefOf(a)
			v.Organization = models.UserRef{ID: a.CreatedBy}
			if org, ok := users[a.CreatedBy]; ok {
				v.Organization = models.RefOf(org, false)
			}
		}
		out = append(out, v)
	}
	return out, nil
}
