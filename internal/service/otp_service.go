package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"time"

	"github.com/jmiconnect/portal/internal/config"
	"github.com/jmiconnect/portal/internal/models"
	"github.com/jmiconnect/portal/internal/repository"
	"github.com/sirupsen/logrus"
)

const (
	otpMin = 100000
	otpMax = 999999
)

// OTPStore holds at most one OTP record per identifier. MarkUsed and
// DeleteIfCode must be atomic: they only touch a record still holding code,
// so a code issued in between is left alone.
type OTPStore interface {
	Put(ctx context.Context, identifier string, record models.OTPRecord) error
	Get(ctx context.Context, identifier string) (*models.OTPRecord, error)
	MarkUsed(ctx context.Context, identifier, code string) (bool, error)
	DeleteIfCode(ctx context.Context, identifier, code string) (bool, error)
}

// Clock abstracts time so expiry can be tested.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type OTPService struct {
	store  OTPStore
	expiry time.Duration
	clock  Clock
	random io.Reader
	logger *logrus.Logger
}

func NewOTPService(store OTPStore, cfg *config.OTPConfig, logger *logrus.Logger) *OTPService {
	return &OTPService{
		store:  store,
		expiry: cfg.Expiry,
		clock:  systemClock{},
		random: rand.Reader,
		logger: logger,
	}
}

// WithClock replaces the time source. Intended for tests.
func (s *OTPService) WithClock(clock Clock) *OTPService {
	s.clock = clock
	return s
}

// Expiry is how long an issued code stays valid.
func (s *OTPService) Expiry() time.Duration {
	return s.expiry
}

// Issue generates a fresh code for identifier and stores it, replacing any
// earlier record whatever its state.
func (s *OTPService) Issue(ctx context.Context, identifier string) (string, error) {
	code, err := s.generateCode()
	if err != nil {
		return "", fmt.Errorf("failed to generate OTP: %w", err)
	}

	now := s.clock.Now()
	record := models.OTPRecord{
		Code:      code,
		Used:      false,
		CreatedAt: now,
		ExpiresAt: now.Add(s.expiry),
	}

	if err := s.store.Put(ctx, identifier, record); err != nil {
		return "", err
	}

	s.logger.WithFields(logrus.Fields{
		"identifier": identifier,
		"expires_at": record.ExpiresAt,
	}).Info("Password reset OTP issued")

	return code, nil
}

// Verify checks code against the stored record and consumes it on success.
// Checks run in a fixed order: missing, used, expired, mismatch. An expired
// record is deleted when detected.
func (s *OTPService) Verify(ctx context.Context, identifier, code string) error {
	// A lost compare-and-swap means the record changed under us; one re-read
	// reports its new state.
	for attempt := 0; attempt < 2; attempt++ {
		record, err := s.store.Get(ctx, identifier)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrOTPNotFound
		}
		if err != nil {
			s.logger.WithError(err).Error("Failed to load OTP")
			return newInternalError(err)
		}

		if record.Used {
			return ErrOTPAlreadyUsed
		}

		if record.IsExpired(s.clock.Now()) {
			if _, err := s.store.DeleteIfCode(ctx, identifier, record.Code); err != nil {
				s.logger.WithError(err).WithField("identifier", identifier).Warn("Failed to delete expired OTP")
			}
			return ErrOTPExpired
		}

		if subtle.ConstantTimeCompare([]byte(record.Code), []byte(code)) != 1 {
			return ErrOTPMismatch
		}

		ok, err := s.store.MarkUsed(ctx, identifier, code)
		if err != nil {
			s.logger.WithError(err).Error("Failed to mark OTP as used")
			return newInternalError(err)
		}
		if ok {
			s.logger.WithField("identifier", identifier).Info("Password reset OTP verified")
			return nil
		}
	}

	return ErrOTPAlreadyUsed
}

// VerifiedCode returns the code of a record that passed Verify and has not
// been consumed yet. ok is false when there is no such record.
func (s *OTPService) VerifiedCode(ctx context.Context, identifier string) (code string, ok bool, err error) {
	record, err := s.store.Get(ctx, identifier)
	if errors.Is(err, repository.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if !record.Used {
		return "", false, nil
	}
	return record.Code, true, nil
}

// Invalidate removes the record for identifier if it still holds code. It
// reports false when the record is gone or was replaced by a newer code.
func (s *OTPService) Invalidate(ctx context.Context, identifier, code string) (bool, error) {
	return s.store.DeleteIfCode(ctx, identifier, code)
}

func (s *OTPService) generateCode() (string, error) {
	n, err := rand.Int(s.random, big.NewInt(otpMax-otpMin+1))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+otpMin, 10), nil
}
