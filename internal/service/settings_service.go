package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jmiconnect/portal/internal/models"
	"github.com/jmiconnect/portal/internal/repository"
	"github.com/jmiconnect/portal/internal/validation"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	msgProfileUpdated  = "Profile updated successfully."
	msgPasswordUpdated = "Password updated successfully."
)

// ProfileStore reads and updates the account behind a session.
type ProfileStore interface {
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateProfile(ctx context.Context, username string, update models.ProfileUpdate) error
}

// SettingsInput is a settings form submission. Empty fields are left
// unchanged; a password change needs all three password fields.
type SettingsInput struct {
	Email           string
	Mobile          string
	CurrentPassword string
	NewPassword     string
	ConfirmPassword string
}

type profileInput struct {
	Email  string `validate:"omitempty,email"`
	Mobile string `validate:"omitempty,max=20"`
}

type currentPasswordInput struct {
	CurrentPassword string `validate:"required"`
}

type newPasswordInput struct {
	NewPassword     string `validate:"min=6,maxbytes=72"`
	ConfirmPassword string `validate:"eqfield=NewPassword"`
}

var (
	profileRules = []rule{
		{"email", "Please enter a valid email address."},
		{"max", "Mobile number must be at most 20 characters."},
	}
	currentPasswordRules = []rule{
		{"required", "Enter current password to set a new one."},
	}
	newPasswordRules = []rule{
		{"eqfield", "New passwords do not match."},
		{"min", "Password must be at least 6 characters."},
		{"maxbytes", "Password must be at most 72 bytes."},
	}
)

// SettingsResult carries the refreshed session and the confirmation to show.
type SettingsResult struct {
	Session models.Session
	Message string
}

type SettingsService struct {
	accounts   ProfileStore
	sessions   SessionStore
	bcryptCost int
	validate   *validation.Validator
	logger     *logrus.Logger
}

func NewSettingsService(accounts ProfileStore, sessions SessionStore, logger *logrus.Logger) *SettingsService {
	return &SettingsService{
		accounts:   accounts,
		sessions:   sessions,
		bcryptCost: bcrypt.DefaultCost,
		validate:   validation.New(),
		logger:     logger,
	}
}

// WithBcryptCost overrides the hashing cost. Tests use bcrypt.MinCost.
func (s *SettingsService) WithBcryptCost(cost int) *SettingsService {
	s.bcryptCost = cost
	return s
}

// Update applies a settings submission for the owner of session. Every check
// runs before anything is written, so a rejected submission changes nothing.
// Password checks run in order: current password present, current password
// correct, confirmation matches, new password length.
func (s *SettingsService) Update(ctx context.Context, session models.Session, in SettingsInput) (*SettingsResult, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Mobile = strings.TrimSpace(in.Mobile)

	if err := checkInput(s.validate, profileInput{Email: in.Email, Mobile: in.Mobile}, profileRules); err != nil {
		return nil, err
	}

	user, err := s.accounts.GetByUsername(ctx, session.Username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		s.logger.WithError(err).Error("Failed to look up account for settings")
		return nil, newInternalError(err)
	}

	update := models.ProfileUpdate{Email: in.Email, Mobile: in.Mobile}
	if in.NewPassword != "" {
		hash, err := s.newPasswordHash(user, in)
		if err != nil {
			return nil, err
		}
		update.PasswordHash = hash
	}

	if err := s.accounts.UpdateProfile(ctx, user.Username, update); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		s.logger.WithError(err).WithField("username", user.Username).Error("Failed to update profile")
		return nil, newPersistenceError("Failed to update profile. Please try again.", err)
	}

	if update.Email != "" {
		session.Email = update.Email
	}
	if update.Mobile != "" {
		session.Mobile = update.Mobile
	}
	if err := s.sessions.Store(ctx, session); err != nil {
		s.logger.WithError(err).WithField("username", user.Username).Warn("Profile updated but session could not be refreshed")
	}

	message := msgProfileUpdated
	if update.PasswordHash != "" {
		message = msgPasswordUpdated
		s.logger.WithField("username", user.Username).Info("Password changed from settings")
	}

	return &SettingsResult{Session: session, Message: message}, nil
}

func (s *SettingsService) newPasswordHash(user *models.User, in SettingsInput) (string, error) {
	if err := checkInput(s.validate, currentPasswordInput{CurrentPassword: in.CurrentPassword}, currentPasswordRules); err != nil {
		return "", err
	}
	if !passwordMatches(user.Password, in.CurrentPassword) {
		return "", newValidationError("Incorrect current password.")
	}

	input := newPasswordInput{NewPassword: in.NewPassword, ConfirmPassword: in.ConfirmPassword}
	if err := checkInput(s.validate, input, newPasswordRules); err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.NewPassword), s.bcryptCost)
	if err != nil {
		s.logger.WithError(err).Error("Failed to hash password")
		return "", newInternalError(err)
	}
	return string(hash), nil
}
