package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jmiconnect/portal/internal/service"
	"github.com/sirupsen/logrus"
)

const (
	// Returned for unknown accounts so the response does not reveal whether
	// an account exists.
	msgResetRequestAccepted = "If this username exists, an OTP has been sent to the registered email"
	msgResetRequestSent     = "OTP has been sent to your registered email address"
	msgOTPVerified          = "OTP verified successfully"
	msgPasswordReset        = "Password reset successful. You can now login with your new password."
)

type PasswordResetHandlers struct {
	resetService *service.PasswordResetService
	logger       *logrus.Logger
}

func NewPasswordResetHandlers(resetService *service.PasswordResetService, logger *logrus.Logger) *PasswordResetHandlers {
	return &PasswordResetHandlers{
		resetService: resetService,
		logger:       logger,
	}
}

type RequestResetRequest struct {
	Username string `json:"username"`
}

type VerifyOTPRequest struct {
	Username string `json:"username"`
	OTP      string `json:"otp"`
}

type ResetPasswordRequest struct {
	Username        string `json:"username"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

type ResetResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (h *PasswordResetHandlers) RequestReset(w http.ResponseWriter, r *http.Request) {
	var req RequestResetRequest
	decodeLenient(r, &req)

	res, err := h.resetService.RequestReset(r.Context(), strings.TrimSpace(req.Username))
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	switch res.Status {
	case service.RequestUnknownAccount:
		h.respond(w, http.StatusOK, true, msgResetRequestAccepted)
	case service.RequestDelivered:
		h.respond(w, http.StatusOK, true, msgResetRequestSent)
	default:
		h.respond(w, http.StatusInternalServerError, false, res.Message)
	}
}

func (h *PasswordResetHandlers) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	decodeLenient(r, &req)

	err := h.resetService.Verify(r.Context(), strings.TrimSpace(req.Username), strings.TrimSpace(req.OTP))
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	h.respond(w, http.StatusOK, true, msgOTPVerified)
}

func (h *PasswordResetHandlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	decodeLenient(r, &req)

	err := h.resetService.ResetPassword(r.Context(), strings.TrimSpace(req.Username), req.NewPassword, req.ConfirmPassword)
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	h.respond(w, http.StatusOK, true, msgPasswordReset)
}

// decodeLenient leaves dst zero-valued when the body is not valid JSON, so
// malformed input surfaces as missing fields.
func decodeLenient(r *http.Request, dst interface{}) {
	if r.Body == nil {
		return
	}
	_ = json.NewDecoder(r.Body).Decode(dst)
}

func statusFor(err error) int {
	switch service.KindOf(err) {
	case service.KindValidation,
		service.KindOTPNotFound,
		service.KindOTPAlreadyUsed,
		service.KindOTPExpired,
		service.KindOTPMismatch,
		service.KindOTPNotVerified:
		return http.StatusBadRequest
	case service.KindUserNotFound:
		return http.StatusNotFound
	case service.KindInvalidCredentials, service.KindInvalidSession:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func (h *PasswordResetHandlers) respondWithServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.WithError(err).Error("Password reset step failed")
	}
	h.respond(w, status, false, service.MessageOf(err))
}

func (h *PasswordResetHandlers) respond(w http.ResponseWriter, status int, success bool, message string) {
	respondWithJSON(w, status, ResetResponse{Success: success, Message: message})
}

func respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
