// internal/app/system/authz/authz.go
package authz

import (
	"net/http"
	"strings"

	"github.com/maishoras/maishoras/internal/app/system/auth"
	"github.com/maishoras/maishoras/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserCtx returns the user's role (lowercased), name, Mongo ObjectID, and a found flag.
// If no user is present in context or the user ID is malformed, it returns
// "visitor", "", NilObjectID, false. ok=true means a valid, authenticated user
// with a valid ObjectID.
func UserCtx(r *http.Request) (role string, name string, userID primitive.ObjectID, ok bool) {
	user, ok := auth.CurrentUser(r)
	if !ok {
		return "visitor", "", primitive.NilObjectID, false
	}
	userID, err := primitive.ObjectIDFromHex(user.ID)
	if err != nil {
		// Malformed subject in a signed token: fail closed.
		return "visitor", "", primitive.NilObjectID, false
	}
	return strings.ToLower(user.Role), user.Name, userID, true
}

// IsOrganization reports whether the current request's user is an organization.
func IsOrganization(r *http.Request) bool {
	role, _, _, ok := UserCtx(r)
	return ok && role == models.RoleOrganization
}

// IsStudent reports whether the current request's user is a student.
func IsStudent(r *http.Request) bool {
	role, _, _, ok := UserCtx(r)
	return ok && role == models.RoleStudent
}
