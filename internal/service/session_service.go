package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmiconnect/portal/internal/models"
	"github.com/jmiconnect/portal/internal/repository"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// AccountReader looks up accounts by their document id.
type AccountReader interface {
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// SessionStore keeps one live session per username.
type SessionStore interface {
	Store(ctx context.Context, session models.Session) error
	Get(ctx context.Context, username string) (*models.Session, error)
	Delete(ctx context.Context, username, sessionID string) error
}

type SessionService struct {
	accounts AccountReader
	sessions SessionStore
	jwt      *JWTService
	ttl      time.Duration
	clock    Clock
	logger   *logrus.Logger
}

func NewSessionService(accounts AccountReader, sessions SessionStore, jwtService *JWTService, ttl time.Duration, logger *logrus.Logger) *SessionService {
	return &SessionService{
		accounts: accounts,
		sessions: sessions,
		jwt:      jwtService,
		ttl:      ttl,
		clock:    systemClock{},
		logger:   logger,
	}
}

// LoginResult is a freshly created session and the signed cookie value
// naming it.
type LoginResult struct {
	Session models.Session
	Token   string
}

// Login checks credentials and replaces any previous session of the user.
func (s *SessionService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.accounts.GetByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		s.logger.WithError(err).Error("Failed to look up account for login")
		return nil, newInternalError(err)
	}

	if !passwordMatches(user.Password, password) {
		s.logger.WithField("username", username).Info("Login rejected")
		return nil, ErrInvalidCredentials
	}

	now := s.clock.Now()
	session := models.NewSession(uuid.New().String(), user, now, s.ttl)
	if err := s.sessions.Store(ctx, session); err != nil {
		return nil, newInternalError(err)
	}

	token, err := s.jwt.GenerateSessionToken(session.Username, session.SessionID, now)
	if err != nil {
		return nil, newInternalError(err)
	}

	s.logger.WithFields(logrus.Fields{
		"username": session.Username,
		"role":     session.Role,
	}).Info("User logged in")

	return &LoginResult{Session: session, Token: token}, nil
}

// passwordMatches accepts bcrypt hashes and, for accounts created before
// hashing was introduced, a plaintext value.
func passwordMatches(stored, password string) bool {
	if stored == "" {
		return false
	}
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1
}

// Authenticate resolves a cookie value to its live session. A token whose
// session was replaced by a later login is rejected.
func (s *SessionService) Authenticate(ctx context.Context, token string) (*models.Session, error) {
	if token == "" {
		return nil, ErrInvalidSession
	}

	claims, err := s.jwt.VerifyToken(token)
	if err != nil {
		s.logger.WithError(err).Debug("Session token verification failed")
		return nil, ErrInvalidSession
	}

	session, err := s.sessions.Get(ctx, claims.Username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidSession
	}
	if err != nil {
		s.logger.WithError(err).Error("Failed to load session")
		return nil, newInternalError(err)
	}

	if subtle.ConstantTimeCompare([]byte(session.SessionID), []byte(claims.SessionID)) != 1 {
		return nil, ErrInvalidSession
	}

	return session, nil
}

// Logout drops the session named by token. Invalid or stale tokens are
// ignored so logout always succeeds from the caller's point of view.
func (s *SessionService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	claims, err := s.jwt.VerifyToken(token)
	if err != nil {
		return nil
	}

	if err := s.sessions.Delete(ctx, claims.Username, claims.SessionID); err != nil {
		s.logger.WithError(err).Error("Failed to delete session")
		return newInternalError(err)
	}

	s.logger.WithField("username", claims.Username).Info("User logged out")
	return nil
}

// RedirectFor returns the landing page for role.
func RedirectFor(role string) string {
	if role == models.RoleCR {
		return "/cr/dashboard"
	}
	return "/notes"
}
