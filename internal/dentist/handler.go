package dentist

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dentaportal/portal-api/internal/auth"
	"github.com/dentaportal/portal-api/internal/httputil"
	"github.com/dentaportal/portal-api/internal/logging"
	"github.com/dentaportal/portal-api/internal/monitoring"
)

// Handler exposes dentist profile operations
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// VerificationRequest is the body of the approval endpoint
type VerificationRequest struct {
	IsVerified *bool `json:"is_verified"`
}

// ActiveRequest is the body of the active flag endpoint
type ActiveRequest struct {
	IsActive *bool `json:"is_active"`
}

// SetVerification approves or revokes a dentist
// @Summary      Approve or revoke a dentist
// @Description  Sets the administrator approval gate. Dentists cannot log in until it is set.
// @Tags         dentists
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Dentist profile ID"
// @Param        request body VerificationRequest true "Approval flag"
// @Success      200 {object} account.DentistProfile
// @Failure      400 {object} httputil.ErrorResponse "Invalid request"
// @Failure      401 {object} httputil.ErrorResponse "Unauthenticated"
// @Failure      403 {object} httputil.ErrorResponse "Requires ADMIN"
// @Failure      404 {object} httputil.ErrorResponse "Profile not found"
// @Router       /admin/dentists/{id}/verification [patch]
func (h *Handler) SetVerification(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	logger := logging.GetLoggerFromContext(r.Context())

	id, ok := profileID(w, r)
	if !ok {
		return
	}

	var req VerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IsVerified == nil {
		httputil.RespondErrorWithCode(w, "is_verified is required", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	profile, err := h.service.SetVerified(r.Context(), principal, id, *req.IsVerified)
	if err != nil {
		respondError(w, r, logger, "update dentist verification", err)
		return
	}

	httputil.RespondJSON(w, profile, http.StatusOK)
}

// SetActive toggles the active flag
// @Summary      Activate or deactivate a dentist profile
// @Tags         dentists
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Dentist profile ID"
// @Param        request body ActiveRequest true "Active flag"
// @Success      200 {object} account.DentistProfile
// @Failure      400 {object} httputil.ErrorResponse "Invalid request"
// @Failure      403 {object} httputil.ErrorResponse "Not the owner"
// @Failure      404 {object} httputil.ErrorResponse "Profile not found"
// @Router       /dentists/{id}/active [patch]
func (h *Handler) SetActive(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	logger := logging.GetLoggerFromContext(r.Context())

	id, ok := profileID(w, r)
	if !ok {
		return
	}

	var req ActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IsActive == nil {
		httputil.RespondErrorWithCode(w, "is_active is required", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	profile, err := h.service.SetActive(r.Context(), principal, id, *req.IsActive)
	if err != nil {
		respondError(w, r, logger, "update dentist active flag", err)
		return
	}

	httputil.RespondJSON(w, profile, http.StatusOK)
}

// Get returns a dentist profile
// @Summary      Get a dentist profile
// @Tags         dentists
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Dentist profile ID"
// @Success      200 {object} account.DentistProfile
// @Failure      403 {object} httputil.ErrorResponse "Not the owner"
// @Failure      404 {object} httputil.ErrorResponse "Profile not found"
// @Router       /dentists/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	logger := logging.GetLoggerFromContext(r.Context())

	id, ok := profileID(w, r)
	if !ok {
		return
	}

	profile, err := h.service.Get(r.Context(), principal, id)
	if err != nil {
		respondError(w, r, logger, "get dentist profile", err)
		return
	}

	httputil.RespondJSON(w, profile, http.StatusOK)
}

func profileID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.RespondErrorWithCode(w, "invalid dentist profile id", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func respondError(w http.ResponseWriter, r *http.Request, logger *logging.Logger, op string, err error) {
	var forbidden *auth.ForbiddenError
	switch {
	case errors.As(err, &forbidden):
		logger.Warn(op+" denied", "role", forbidden.Role)
		httputil.RespondErrorWithCode(w, forbidden.Error(), httputil.CodeForbidden, http.StatusForbidden)
	case errors.Is(err, ErrNotOwner):
		logger.Warn(op + " denied: not the owner")
		httputil.RespondErrorWithCode(w, err.Error(), httputil.CodeForbidden, http.StatusForbidden)
	case errors.Is(err, ErrNotFound):
		httputil.RespondErrorWithCode(w, err.Error(), httputil.CodeNotFound, http.StatusNotFound)
	default:
		logger.Error(op+" failed: internal error", "error", err.Error())
		monitoring.CaptureError(r.Context(), err)
		httputil.RespondErrorWithCode(w, "failed to "+op, httputil.CodeInternalError, http.StatusInternalServerError)
	}
}
