package service

import (
	"errors"
	"fmt"

	"github.com/jmiconnect/portal/internal/validation"
)

// Kind classifies service errors so the transport layer can pick a status
// code without matching on messages.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindOTPNotFound
	KindOTPAlreadyUsed
	KindOTPExpired
	KindOTPMismatch
	KindOTPNotVerified
	KindUserNotFound
	KindInvalidCredentials
	KindInvalidSession
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "VALIDATION"
	case KindOTPNotFound:
		return "OTP_NOT_FOUND"
	case KindOTPAlreadyUsed:
		return "OTP_ALREADY_USED"
	case KindOTPExpired:
		return "OTP_EXPIRED"
	case KindOTPMismatch:
		return "OTP_MISMATCH"
	case KindOTPNotVerified:
		return "OTP_NOT_VERIFIED"
	case KindUserNotFound:
		return "USER_NOT_FOUND"
	case KindInvalidCredentials:
		return "INVALID_CREDENTIALS"
	case KindInvalidSession:
		return "INVALID_SESSION"
	case KindPersistence:
		return "PERSISTENCE"
	default:
		return "INTERNAL"
	}
}

// Error carries a user-facing message and, for infrastructure failures, the
// underlying cause. Only Message is safe to show to callers.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

var (
	ErrOTPNotFound        = &Error{Kind: KindOTPNotFound, Message: "No OTP found for this username"}
	ErrOTPAlreadyUsed     = &Error{Kind: KindOTPAlreadyUsed, Message: "OTP has already been used"}
	ErrOTPExpired         = &Error{Kind: KindOTPExpired, Message: "OTP has expired"}
	ErrOTPMismatch        = &Error{Kind: KindOTPMismatch, Message: "Invalid OTP"}
	ErrOTPNotVerified     = &Error{Kind: KindOTPNotVerified, Message: "Please verify OTP first"}
	ErrUserNotFound       = &Error{Kind: KindUserNotFound, Message: "User not found"}
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials, Message: "Invalid username or password"}
	ErrInvalidSession     = &Error{Kind: KindInvalidSession, Message: "Invalid session"}
)

func newValidationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func newPersistenceError(message string, err error) *Error {
	return &Error{Kind: KindPersistence, Message: message, Err: err}
}

func newInternalError(err error) *Error {
	return &Error{Kind: KindInternal, Message: "An unexpected error occurred. Please try again.", Err: err}
}

// rule maps a failed validation tag to the message shown to the caller.
// Earlier rules win when several fields fail.
type rule struct {
	tag     string
	message string
}

// checkInput validates input and reports the first failure under rules as a
// validation error.
func checkInput(v *validation.Validator, input any, rules []rule) error {
	tags := make([]string, len(rules))
	for i, r := range rules {
		tags[i] = r.tag
	}

	err := v.Validate(input, tags...)
	if err == nil {
		return nil
	}

	var fe *validation.FieldError
	if !errors.As(err, &fe) {
		return newInternalError(err)
	}
	for _, r := range rules {
		if r.tag == fe.Tag {
			return newValidationError(r.message)
		}
	}
	return newInternalError(err)
}

// KindOf returns the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the user-facing message of err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "An unexpected error occurred. Please try again."
}
