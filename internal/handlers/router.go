package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jmiconnect/portal/internal/middleware"
	"github.com/sirupsen/logrus"
)

type RouterDeps struct {
	PasswordReset  *PasswordResetHandlers
	Auth           *AuthHandlers
	Settings       *SettingsHandlers
	AuthMiddleware *middleware.AuthMiddleware
	// RequestLimiter wraps the OTP request route. Nil disables limiting.
	RequestLimiter func(http.Handler) http.Handler
	AllowOrigin    string
	Logger         *logrus.Logger
}

func NewRouter(deps RouterDeps) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.CORSMiddleware(deps.AllowOrigin))
	router.Use(middleware.LoggingMiddleware(deps.Logger))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET", "OPTIONS")

	reset := router.PathPrefix("/password-reset").Subrouter()
	var requestHandler http.Handler = http.HandlerFunc(deps.PasswordReset.RequestReset)
	if deps.RequestLimiter != nil {
		requestHandler = deps.RequestLimiter(requestHandler)
	}
	reset.Handle("/request", requestHandler).Methods("POST", "OPTIONS")
	reset.HandleFunc("/verify", deps.PasswordReset.VerifyOTP).Methods("POST", "OPTIONS")
	reset.HandleFunc("/reset", deps.PasswordReset.ResetPassword).Methods("POST", "OPTIONS")

	auth := router.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/login", deps.Auth.Login).Methods("POST", "OPTIONS")
	auth.HandleFunc("/logout", deps.Auth.Logout).Methods("GET", "OPTIONS")
	auth.Handle("/session", deps.AuthMiddleware.RequireSession(http.HandlerFunc(deps.Auth.Session))).Methods("GET", "OPTIONS")
	auth.Handle("/settings", deps.AuthMiddleware.RequireSession(http.HandlerFunc(deps.Settings.Update))).Methods("POST", "OPTIONS")

	return router
}
