// internal/domain/models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User roles.
const (
	RoleStudent      = "student"
	RoleOrganization = "organization"
)

// OrganizationProfile carries the public details of an organization account.
type OrganizationProfile struct {
	OrganizationName string `bson:"organization_name,omitempty" json:"organizationName,omitempty"`
	CNPJ             string `bson:"cnpj,omitempty" json:"cnpj,omitempty"`
	Description      string `bson:"description,omitempty" json:"description,omitempty"`
	Phone            string `bson:"phone,omitempty" json:"phone,omitempty"`
	Address          string `bson:"address,omitempty" json:"address,omitempty"`
	Website          string `bson:"website,omitempty" json:"website,omitempty"`
	Instagram        string `bson:"instagram,omitempty" json:"instagram,omitempty"`
}

// User represents students and organizations.
type User struct {
	ID           primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Name         string               `bson:"name" json:"name"`
	NameCI       string               `bson:"name_ci" json:"-"` // folded for sorting
	Email        string               `bson:"email" json:"email"`
	PasswordHash string               `bson:"password_hash" json:"-"`
	Role         string               `bson:"role" json:"role"` // student | organization
	Organization *OrganizationProfile `bson:"organization_profile,omitempty" json:"organizationProfile,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// DisplayName prefers the organization name for organization accounts.
func (u User) DisplayName() string {
	if u.Role == RoleOrganization && u.Organization != nil && u.Organization.OrganizationName != "" {
		return u.Organization.OrganizationName
	}
	return u.Name
}
