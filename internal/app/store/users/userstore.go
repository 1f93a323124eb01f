// internal/app/store/users/userstore.go
package userstore

import (
	"context"
	"errors"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/maishoras/maishoras/internal/app/system/normalize"
	"github.com/maishoras/maishoras/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("users")}
}

var (
	// ErrDuplicateEmail is returned when attempting to create a user with an email that already exists.
	ErrDuplicateEmail = errors.New("a user with this email already exists")
	// ErrNotFound is returned when no user matches.
	ErrNotFound = errors.New("user not found")
	errBadRole  = errors.New(`role must be "student"|"organization"`)
)

// Create inserts a new user after normalizing & validating fields.
// An empty role defaults to student.
func (s *Store) Create(ctx context.Context, u models.User) (models.User, error) {
	u.ID = primitive.NewObjectID()
	u.Name = normalize.Name(u.Name)
	u.NameCI = text.Fold(u.Name)
	u.Email = normalize.Email(u.Email)
	u.Role = normalize.Role(u.Role)
	if u.Role == "" {
		u.Role = models.RoleStudent
	}

	switch u.Role {
	case models.RoleStudent:
		u.Organization = nil
	case models.RoleOrganization:
	default:
		return models.User{}, errBadRole
	}

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, u); err != nil {
		if wafflemongo.IsDup(err) {
			return models.User{}, ErrDuplicateEmail
		}
		return models.User{}, err
	}
	return u, nil
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (models.User, error) {
	var u models.User
	err := s.c.FindOne(ctx, filter).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return u, ErrNotFound
	}
	return u, err
}

// GetByID loads a user by ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.User, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

// GetByEmail looks up a user by case-insensitive email.
func (s *Store) GetByEmail(ctx context.Context, email string) (models.User, error) {
	return s.findOne(ctx, bson.M{"email": normalize.Email(email)})
}

// GetMany loads the users with the given ids, keyed by id. Missing ids are
// simply absent from the map.
func (s *Store) GetMany(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.User, error) {
	out := make(map[primitive.ObjectID]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := s.c.Find(ctx, bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetProjection(bson.M{"password_hash": 0}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var u models.User
		if err := cur.Decode(&u); err != nil {
			return nil, err
		}
		out[u.ID] = u
	}
	return out, cur.Err()
}

// ProfileUpdate holds the editable profile fields. Nil fields are left as is;
// organization fields are ignored for students.
type ProfileUpdate struct {
	Name             *string
	OrganizationName *string
	Description      *string
	Phone            *string
	Address          *string
	Website          *string
	Instagram        *string
}

// UpdateProfile applies upd to the user and returns the stored result.
func (s *Store) UpdateProfile(ctx context.Context, id primitive.ObjectID, upd ProfileUpdate) (models.User, error) {
	u, err := s.GetByID(ctx, id)
	if err != nil {
		return models.User{}, err
	}

	set := bson.M{"updated_at": time.Now().UTC()}
	if upd.Name != nil {
		name := normalize.Name(*upd.Name)
		set["name"] = name
		set["name_ci"] = text.Fold(name)
	}
	if u.Role == models.RoleOrganization {
		orgFields := map[string]*string{
			"organization_profile.organization_name": upd.OrganizationName,
			"organization_profile.description":       upd.Description,
			"organization_profile.phone":             upd.Phone,
			"organization_profile.address":           upd.Address,
			"organization_profile.website":           upd.Website,
			"organization_profile.instagram":         upd.Instagram,
		}
		for key, v := range orgFields {
			if v != nil {
				set[key] = normalize.StripMarkup(*v)
			}
		}
	}

	var out models.User
	err = s.c.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, ErrNotFound
	}
	return out, err
}
