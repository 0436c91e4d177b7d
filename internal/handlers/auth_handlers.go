package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/jmiconnect/portal/internal/config"
	"github.com/jmiconnect/portal/internal/middleware"
	"github.com/jmiconnect/portal/internal/models"
	"github.com/jmiconnect/portal/internal/service"
	"github.com/sirupsen/logrus"
)

type AuthHandlers struct {
	sessionService *service.SessionService
	cookie         config.SessionConfig
	logger         *logrus.Logger
}

func NewAuthHandlers(sessionService *service.SessionService, cookie config.SessionConfig, logger *logrus.Logger) *AuthHandlers {
	return &AuthHandlers{
		sessionService: sessionService,
		cookie:         cookie,
		logger:         logger,
	}
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Status   string          `json:"status"`
	Message  string          `json:"message"`
	User     *models.Session `json:"user"`
	Redirect string          `json:"redirect"`
}

type SessionResponse struct {
	Status string          `json:"status"`
	User   *models.Session `json:"user"`
}

type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.sessionService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.WithError(err).Error("Login failed")
		}
		h.respondWithError(w, status, service.MessageOf(err))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.CookieName,
		Value:    res.Token,
		Path:     "/",
		MaxAge:   int(h.cookie.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	respondWithJSON(w, http.StatusOK, LoginResponse{
		Status:   "success",
		Message:  "Login successful",
		User:     &res.Session,
		Redirect: service.RedirectFor(res.Session.Role),
	})
}

func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(h.cookie.CookieName); err == nil {
		if err := h.sessionService.Logout(r.Context(), cookie.Value); err != nil {
			h.logger.WithError(err).Warn("Session could not be removed on logout")
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	respondWithJSON(w, http.StatusOK, StatusResponse{
		Status:  "success",
		Message: "Logged out",
	})
}

// Session returns the caller's session. It must be mounted behind
// AuthMiddleware.RequireSession.
func (h *AuthHandlers) Session(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, service.ErrInvalidSession.Message)
		return
	}

	respondWithJSON(w, http.StatusOK, SessionResponse{
		Status: "success",
		User:   session,
	})
}

func (h *AuthHandlers) respondWithError(w http.ResponseWriter, status int, message string) {
	respondWithJSON(w, status, StatusResponse{
		Status:  "error",
		Message: message,
	})
}
