// internal/app/features/users/handler.go
package users

import (
	"errors"
	"net/http"
	"time"

	userstore "github.com/maishoras/maishoras/internal/app/store/users"
	"github.com/maishoras/maishoras/internal/app/system/apperr"
	"github.com/maishoras/maishoras/internal/app/system/auditlog"
	"github.com/maishoras/maishoras/internal/app/system/auth"
	"github.com/maishoras/maishoras/internal/app/system/authz"
	"github.com/maishoras/maishoras/internal/app/system/inputval"
	"github.com/maishoras/maishoras/internal/app/system/normalize"
	"github.com/maishoras/maishoras/internal/app/system/ratelimit"
	"github.com/maishoras/maishoras/internal/app/system/respond"
	"github.com/maishoras/maishoras/internal/app/system/timeouts"
	"github.com/maishoras/maishoras/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler serves account registration, login and the current user's profile.
type Handler struct {
	Users      *userstore.Store
	Tokens     *auth.Tokens
	AuditLog   *auditlog.Logger
	BcryptCost int
	Limiter    *ratelimit.LoginLimiter
	Log        *zap.Logger
}

func NewHandler(db *mongo.Database, tokens *auth.Tokens, audit *auditlog.Logger, bcryptCost int, logger *zap.Logger) *Handler {
	return &Handler{
		Users:      userstore.New(db),
		Tokens:     tokens,
		AuditLog:   audit,
		BcryptCost: bcryptCost,
		Limiter:    ratelimit.NewLoginLimiter(),
		Log:        logger,
	}
}

type registerRequest struct {
	Name             string `json:"name" validate:"notblank,max=100"`
	Email            string `json:"email" validate:"required,email,max=254"`
	Password         string `json:"password" validate:"required,min=6,maxbytes=72"`
	Role             string `json:"role" validate:"omitempty,oneof=student organization"`
	OrganizationName string `json:"organizationName" validate:"required_if=Role organization,max=100"`
	CNPJ             string `json:"cnpj" validate:"max=20"`
	Description      string `json:"description" validate:"max=1500"`
	Phone            string `json:"phone" validate:"max=30"`
	Address          string `json:"address" validate:"max=200"`
	Website          string `json:"website" validate:"omitempty,url,max=200"`
	Instagram        string `json:"instagram" validate:"max=100"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      models.User `json:"user"`
}

type profileRequest struct {
	Name             *string `json:"name" validate:"omitempty,notblank,max=100"`
	OrganizationName *string `json:"organizationName" validate:"omitempty,notblank,max=100"`
	Description      *string `json:"description" validate:"omitempty,max=1500"`
	Phone            *string `json:"phone" validate:"omitempty,max=30"`
	Address          *string `json:"address" validate:"omitempty,max=200"`
	Website          *string `json:"website" validate:"omitempty,url,max=200"`
	Instagram        *string `json:"instagram" validate:"omitempty,max=100"`
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /users/register                                                        |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	req.Name = normalize.Name(req.Name)
	req.Email = normalize.Email(req.Email)
	req.Role = normalize.Role(req.Role)
	req.OrganizationName = normalize.Name(req.OrganizationName)
	if err := inputval.Validate(req).Err(); err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	hash, err := auth.HashPassword(req.Password, h.BcryptCost)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	u := models.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         req.Role,
	}
	if req.Role == models.RoleOrganization {
		u.Organization = &models.OrganizationProfile{
			OrganizationName: req.OrganizationName,
			CNPJ:             normalize.Name(req.CNPJ),
			Description:      normalize.StripMarkup(req.Description),
			Phone:            normalize.Name(req.Phone),
			Address:          normalize.StripMarkup(req.Address),
			Website:          normalize.QueryParam(req.Website),
			Instagram:        normalize.Name(req.Instagram),
		}
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "register user")
	defer cancel()

	created, err := h.Users.Create(ctx, u)
	if errors.Is(err, userstore.ErrDuplicateEmail) {
		respond.Error(w, h.Log, apperr.Conflict("an account with this email already exists"))
		return
	}
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	h.AuditLog.UserRegistered(ctx, r, created.ID, created.Role)
	respond.JSON(w, http.StatusCreated, created)
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /users/login                                                           |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	req.Email = normalize.Email(req.Email)
	if err := inputval.Validate(req).Err(); err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	if err := h.Limiter.Check(r, req.Email); err != nil {
		h.Log.Warn("login rate limited", zap.String("ip", ratelimit.ClientIP(r)))
		respond.Error(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "login")
	defer cancel()

	// Both failures answer the same way so the endpoint does not reveal
	// which emails have accounts.
	invalid := apperr.Unauthorized("invalid email or password")

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if errors.Is(err, userstore.ErrNotFound) {
		h.AuditLog.LoginFailedUserNotFound(ctx, r, req.Email)
		respond.Error(w, h.Log, invalid)
		return
	}
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	if !auth.CheckPassword(u.PasswordHash, req.Password) {
		h.AuditLog.LoginFailedWrongPassword(ctx, r, u.ID)
		respond.Error(w, h.Log, invalid)
		return
	}

	token, exp, err := h.Tokens.Issue(auth.SessionUser{
		ID:    u.ID.Hex(),
		Name:  u.DisplayName(),
		Email: u.Email,
		Role:  u.Role,
	})
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	h.Limiter.Succeeded(req.Email)
	h.AuditLog.LoginSuccess(ctx, r, u.ID)
	respond.JSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: exp, User: u})
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /users/me, PUT /users/me                                                |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	_, _, uid, ok := authz.UserCtx(r)
	if !ok {
		respond.Error(w, h.Log, apperr.Unauthorized("authentication required"))
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "load current user")
	defer cancel()

	u, err := h.Users.GetByID(ctx, uid)
	if errors.Is(err, userstore.ErrNotFound) {
		respond.Error(w, h.Log, apperr.NotFound("user"))
		return
	}
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, u)
}

func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	_, _, uid, ok := authz.UserCtx(r)
	if !ok {
		respond.Error(w, h.Log, apperr.Unauthorized("authentication required"))
		return
	}

	var req profileRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	if err := inputval.Validate(req).Err(); err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "update profile")
	defer cancel()

	u, err := h.Users.UpdateProfile(ctx, uid, userstore.ProfileUpdate{
		Name:             req.Name,
		OrganizationName: req.OrganizationName,
		Description:      req.Description,
		Phone:            req.Phone,
		Address:          req.Address,
		Website:          req.Website,
		Instagram:        req.Instagram,
	})
	if errors.Is(err, userstore.ErrNotFound) {
		respond.Error(w, h.Log, apperr.NotFound("user"))
		return
	}
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	h.AuditLog.ProfileUpdated(ctx, r, uid)
	respond.JSON(w, http.StatusOK, u)
}
