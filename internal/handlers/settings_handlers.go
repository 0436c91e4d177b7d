package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/jmiconnect/portal/internal/middleware"
	"github.com/jmiconnect/portal/internal/models"
	"github.com/jmiconnect/portal/internal/service"
	"github.com/sirupsen/logrus"
)

type SettingsHandlers struct {
	settingsService *service.SettingsService
	logger          *logrus.Logger
}

func NewSettingsHandlers(settingsService *service.SettingsService, logger *logrus.Logger) *SettingsHandlers {
	return &SettingsHandlers{
		settingsService: settingsService,
		logger:          logger,
	}
}

type SettingsRequest struct {
	Email           string `json:"email"`
	Mobile          string `json:"mobile"`
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

type SettingsResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	User    *models.Session `json:"user"`
}

// Update saves the caller's profile and, optionally, a new password. It must
// be mounted behind AuthMiddleware.RequireSession.
func (h *SettingsHandlers) Update(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, service.ErrInvalidSession.Message)
		return
	}

	var req SettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.settingsService.Update(r.Context(), *session, service.SettingsInput{
		Email:           req.Email,
		Mobile:          req.Mobile,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.WithError(err).Error("Settings update failed")
		}
		h.respondWithError(w, status, service.MessageOf(err))
		return
	}

	respondWithJSON(w, http.StatusOK, SettingsResponse{
		Status:  "success",
		Message: res.Message,
		User:    &res.Session,
	})
}

func (h *SettingsHandlers) respondWithError(w http.ResponseWriter, status int, message string) {
	respondWithJSON(w, status, StatusResponse{
		Status:  "error",
		Message: message,
	})
}
