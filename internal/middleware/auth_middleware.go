package middleware

import (
	"context"
	"net/http"

	"github.com/jmiconnect/portal/internal/models"
	"github.com/jmiconnect/portal/internal/service"
	"github.com/sirupsen/logrus"
)

const sessionKey contextKey = "session"

type AuthMiddleware struct {
	sessionService *service.SessionService
	cookieName     string
	logger         *logrus.Logger
}

func NewAuthMiddleware(sessionService *service.SessionService, cookieName string, logger *logrus.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		sessionService: sessionService,
		cookieName:     cookieName,
		logger:         logger,
	}
}

// RequireSession rejects requests without a live session cookie and exposes
// the session to downstream handlers through the request context.
func (m *AuthMiddleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(m.cookieName)
		if err != nil || cookie.Value == "" {
			m.respondUnauthorized(w, service.ErrInvalidSession.Message)
			return
		}

		session, err := m.sessionService.Authenticate(r.Context(), cookie.Value)
		if err != nil {
			if service.KindOf(err) != service.KindInvalidSession {
				m.logger.WithError(err).Error("Session lookup failed")
			}
			m.respondUnauthorized(w, service.ErrInvalidSession.Message)
			return
		}

		ctx := context.WithValue(r.Context(), sessionKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionFromContext returns the session attached by RequireSession.
func SessionFromContext(ctx context.Context) (*models.Session, bool) {
	session, ok := ctx.Value(sessionKey).(*models.Session)
	return session, ok
}

func (m *AuthMiddleware) respondUnauthorized(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusUnauthorized, map[string]string{
		"status":  "error",
		"message": message,
	})
}
