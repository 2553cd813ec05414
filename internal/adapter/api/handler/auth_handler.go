package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/V4T54L/event-analytics/internal/adapter/api/middleware"
	"github.com/V4T54L/event-analytics/internal/adapter/api/response"
	"github.com/V4T54L/event-analytics/internal/domain"
)

// CredentialUseCase manages app registration and API keys.
type CredentialUseCase interface {
	Issue(ctx context.Context, in domain.NewApp) (domain.App, string, error)
	LookupByEmail(ctx context.Context, email string) (domain.App, error)
	Revoke(ctx context.Context, id uuid.UUID) (domain.App, error)
	Regenerate(ctx context.Context, id uuid.UUID) (domain.App, string, error)
}

type registerRequest struct {
	Name       string `json:"name" validate:"required,min=3,max=100"`
	OwnerEmail string `json:"ownerEmail" validate:"required,email"`
}

type lookupRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type appIDRequest struct {
	AppID string `json:"appId" validate:"required,uuid"`
}

type registerResponse struct {
	AppID      uuid.UUID `json:"appId"`
	Name       string    `json:"name"`
	OwnerEmail string    `json:"ownerEmail"`
	APIKey     string    `json:"apiKey"`
	ExpiresAt  time.Time `json:"expiresAt"`
	CreatedAt  time.Time `json:"createdAt"`
}

type regenerateResponse struct {
	AppID  uuid.UUID `json:"appId"`
	Name   string    `json:"name"`
	APIKey string    `json:"apiKey"`
}

// AuthHandler serves the /api/auth endpoints.
type AuthHandler struct {
	creds    CredentialUseCase
	validate *validator.Validate
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(creds CredentialUseCase, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		creds:    creds,
		validate: newValidator(),
		logger:   logger.With("component", "auth_handler"),
	}
}

// Register issues a new app and returns its key. The key is shown only here.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.bind(w, r, &req) {
		return
	}

	app, key, err := h.creds.Issue(r.Context(), domain.NewApp{Name: req.Name, OwnerEmail: req.OwnerEmail})
	if err != nil {
		response.Error(w, h.logger, err, response.Messages{Failure: "Failed to register app"})
		return
	}

	response.OK(w, http.StatusCreated, registerResponse{
		AppID:      app.ID,
		Name:       app.Name,
		OwnerEmail: app.OwnerEmail,
		APIKey:     key,
		ExpiresAt:  app.ExpiresAt,
		CreatedAt:  app.CreatedAt,
	}, "App registered successfully. Store your API key securely.")
}

// LookupKey returns the public record of the app registered to an email.
func (h *AuthHandler) LookupKey(w http.ResponseWriter, r *http.Request) {
	var req lookupRequest
	if !h.bind(w, r, &req) {
		return
	}

	p, _ := middleware.PrincipalFromContext(r.Context())
	if !p.Admin && !strings.EqualFold(p.App.OwnerEmail, req.Email) {
		response.Fail(w, http.StatusForbidden, "Not allowed to access this app")
		return
	}

	app, err := h.creds.LookupByEmail(r.Context(), req.Email)
	if err != nil {
		response.Error(w, h.logger, err, response.Messages{
			NotFound: "No app found with this email",
			Failure:  "Failed to retrieve API key info",
		})
		return
	}
	response.OK(w, http.StatusOK, app, "API key cannot be retrieved for security. Use regenerate if needed.")
}

// Revoke disables the app's current key.
func (h *AuthHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id, ok := h.bindAppID(w, r)
	if !ok {
		return
	}

	if _, err := h.creds.Revoke(r.Context(), id); err != nil {
		response.Error(w, h.logger, err, response.Messages{NotFound: "App not found", Failure: "Failed to revoke API key"})
		return
	}
	response.OK(w, http.StatusOK, nil, "API key revoked successfully")
}

// Regenerate replaces the app's key and returns the new one.
func (h *AuthHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.bindAppID(w, r)
	if !ok {
		return
	}

	app, key, err := h.creds.Regenerate(r.Context(), id)
	if err != nil {
		response.Error(w, h.logger, err, response.Messages{NotFound: "App not found", Failure: "Failed to regenerate API key"})
		return
	}
	response.OK(w, http.StatusOK, regenerateResponse{AppID: app.ID, Name: app.Name, APIKey: key},
		"API key regenerated successfully. Store it securely.")
}

func (h *AuthHandler) bindAppID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	var req appIDRequest
	if !h.bind(w, r, &req) {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(req.AppID)
	if err != nil {
		response.Fail(w, http.StatusBadRequest, "Validation failed", `"appId" must be a valid GUID`)
		return uuid.Nil, false
	}

	p, _ := middleware.PrincipalFromContext(r.Context())
	if !p.CanManage(id.String()) {
		response.Fail(w, http.StatusForbidden, "Not allowed to manage this app")
		return uuid.Nil, false
	}
	return id, true
}

// bind decodes a small JSON body into dst and validates it.
func (h *AuthHandler) bind(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		response.Fail(w, http.StatusBadRequest, "Validation failed", "request body must be a JSON object: "+err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		response.Fail(w, http.StatusBadRequest, "Validation failed", validationDetails(err)...)
		return false
	}
	return true
}
