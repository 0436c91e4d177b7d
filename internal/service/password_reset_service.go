package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jmiconnect/portal/internal/models"
	"github.com/jmiconnect/portal/internal/notification"
	"github.com/jmiconnect/portal/internal/repository"
	"github.com/jmiconnect/portal/internal/validation"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

type resetRequestInput struct {
	Identifier string `validate:"required"`
}

type verifyInput struct {
	Identifier string `validate:"required"`
	Code       string `validate:"required"`
}

type resetInput struct {
	Identifier      string `validate:"required"`
	NewPassword     string `validate:"required,min=6,maxbytes=72"`
	ConfirmPassword string `validate:"required,eqfield=NewPassword"`
}

var (
	requestRules = []rule{
		{"required", "Username is required"},
	}
	verifyRules = []rule{
		{"required", "Username and OTP are required"},
	}
	resetRules = []rule{
		{"required", "All fields are required"},
		{"min", "Password must be at least 6 characters long"},
		{"maxbytes", "Password must be at most 72 bytes long"},
		{"eqfield", "Passwords do not match"},
	}
)

// UserStore resolves accounts and persists password hashes.
type UserStore interface {
	GetByIdentifier(ctx context.Context, identifier string) (*models.User, error)
	UpdatePassword(ctx context.Context, username, passwordHash string) error
}

// Mailer delivers an OTP to its recipient.
type Mailer interface {
	SendOTP(ctx context.Context, msg notification.OTPMessage) error
}

// RequestStatus describes the outcome of a reset request.
type RequestStatus int

const (
	// RequestUnknownAccount means no account matched. Callers must answer
	// exactly as they would for a delivered code.
	RequestUnknownAccount RequestStatus = iota
	RequestDelivered
	RequestDeliveryFailed
)

// RequestResult reports whether the code reached the account's inbox. The
// OTP record is stored regardless of the delivery outcome.
type RequestResult struct {
	Status  RequestStatus
	Message string
}

// Delivered reports whether the OTP email was accepted by the relay.
func (r RequestResult) Delivered() bool {
	return r.Status == RequestDelivered
}

type PasswordResetService struct {
	otp        *OTPService
	users      UserStore
	mailer     Mailer
	bcryptCost int
	validate   *validation.Validator
	logger     *logrus.Logger
}

func NewPasswordResetService(otp *OTPService, users UserStore, mailer Mailer, logger *logrus.Logger) *PasswordResetService {
	return &PasswordResetService{
		otp:        otp,
		users:      users,
		mailer:     mailer,
		bcryptCost: bcrypt.DefaultCost,
		validate:   validation.New(),
		logger:     logger,
	}
}

// WithBcryptCost overrides the hashing cost. Tests use bcrypt.MinCost.
func (s *PasswordResetService) WithBcryptCost(cost int) *PasswordResetService {
	s.bcryptCost = cost
	return s
}

// RequestReset issues a fresh code for identifier and emails it to the
// account on file. Unknown accounts are reported through the result status,
// never as an error.
func (s *PasswordResetService) RequestReset(ctx context.Context, identifier string) (RequestResult, error) {
	identifier = strings.TrimSpace(identifier)
	if err := checkInput(s.validate, resetRequestInput{Identifier: identifier}, requestRules); err != nil {
		return RequestResult{}, err
	}

	user, err := s.users.GetByIdentifier(ctx, identifier)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.WithField("identifier", identifier).Info("Password reset requested for unknown account")
		return RequestResult{Status: RequestUnknownAccount}, nil
	}
	if err != nil {
		s.logger.WithError(err).Error("Failed to look up account for password reset")
		return RequestResult{}, newInternalError(err)
	}

	if user.Email == "" {
		return RequestResult{}, newValidationError("No email associated with this account. Please contact your CR.")
	}

	code, err := s.otp.Issue(ctx, identifier)
	if err != nil {
		s.logger.WithError(err).Error("Failed to issue password reset OTP")
		return RequestResult{}, newInternalError(err)
	}

	err = s.mailer.SendOTP(ctx, notification.OTPMessage{
		To:           user.Email,
		AccountLabel: user.Username,
		Code:         code,
		ValidFor:     s.otp.Expiry(),
	})
	if err != nil {
		return RequestResult{Status: RequestDeliveryFailed, Message: deliveryFailureMessage(err)}, nil
	}

	return RequestResult{Status: RequestDelivered}, nil
}

func deliveryFailureMessage(err error) string {
	switch {
	case errors.Is(err, notification.ErrNotConfigured):
		return "Email service not configured"
	case errors.Is(err, notification.ErrAuthentication):
		return "Email authentication failed"
	case errors.Is(err, notification.ErrDelivery):
		return "Failed to send email"
	default:
		return "An error occurred while sending email"
	}
}

// Verify checks a submitted code. See OTPService.Verify for the order of
// checks.
func (s *PasswordResetService) Verify(ctx context.Context, identifier, code string) error {
	identifier = strings.TrimSpace(identifier)
	code = strings.TrimSpace(code)
	if err := checkInput(s.validate, verifyInput{Identifier: identifier, Code: code}, verifyRules); err != nil {
		return err
	}

	return s.otp.Verify(ctx, identifier, code)
}

// ResetPassword commits a new password for an identifier whose code has been
// verified. The OTP record is consumed only after the new hash is stored.
func (s *PasswordResetService) ResetPassword(ctx context.Context, identifier, newPassword, confirmPassword string) error {
	identifier = strings.TrimSpace(identifier)
	input := resetInput{
		Identifier:      identifier,
		NewPassword:     newPassword,
		ConfirmPassword: confirmPassword,
	}
	if err := checkInput(s.validate, input, resetRules); err != nil {
		return err
	}

	code, verified, err := s.otp.VerifiedCode(ctx, identifier)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load OTP for password reset")
		return newInternalError(err)
	}
	if !verified {
		return ErrOTPNotVerified
	}

	user, err := s.users.GetByIdentifier(ctx, identifier)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		s.logger.WithError(err).Error("Failed to look up account for password reset")
		return newInternalError(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		s.logger.WithError(err).Error("Failed to hash password")
		return newInternalError(err)
	}

	if err := s.users.UpdatePassword(ctx, user.Username, string(hash)); err != nil {
		s.logger.WithError(err).WithField("username", user.Username).Error("Failed to update password")
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return newPersistenceError("Failed to update password. Please try again.", err)
	}

	deleted, err := s.otp.Invalidate(ctx, identifier, code)
	if err != nil {
		s.logger.WithError(err).WithField("identifier", identifier).Warn("Password updated but OTP could not be deleted")
	} else if !deleted {
		s.logger.WithField("identifier", identifier).Info("Password updated; a newer OTP was issued meanwhile and is kept")
	}

	s.logger.WithField("username", user.Username).Info("Password reset completed")
	return nil
}
