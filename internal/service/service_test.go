package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/jmiconnect/portal/internal/config"
	"github.com/jmiconnect/portal/internal/models"
	"github.com/jmiconnect/portal/internal/notification"
	"github.com/jmiconnect/portal/internal/repository"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeUserStore struct {
	mu        sync.Mutex
	users     map[string]*models.User
	updateErr error
	lookupErr error
}

func newFakeUserStore(users ...*models.User) *fakeUserStore {
	s := &fakeUserStore{users: map[string]*models.User{}}
	for _, u := range users {
		s.users[u.Username] = u
	}
	return s
}

func (s *fakeUserStore) GetByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	u, ok := s.users[username]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *fakeUserStore) GetByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	u, err := s.GetByUsername(ctx, identifier)
	if !errors.Is(err, repository.ErrNotFound) {
		return u, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email != "" && u.Email == identifier {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *fakeUserStore) UpdatePassword(_ context.Context, username, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	u, ok := s.users[username]
	if !ok {
		return repository.ErrNotFound
	}
	u.Password = hash
	return nil
}

func (s *fakeUserStore) UpdateProfile(_ context.Context, username string, update models.ProfileUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	u, ok := s.users[username]
	if !ok {
		return repository.ErrNotFound
	}
	if update.Email != "" {
		u.Email = update.Email
	}
	if update.Mobile != "" {
		u.Mobile = update.Mobile
	}
	if update.PasswordHash != "" {
		u.Password = update.PasswordHash
	}
	return nil
}

func (s *fakeUserStore) user(username string) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.users[username]
}

func (s *fakeUserStore) password(username string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[username].Password
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []notification.OTPMessage
	err  error
}

func (m *fakeMailer) SendOTP(_ context.Context, msg notification.OTPMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.err
}

func (m *fakeMailer) last() notification.OTPMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}

type resetFixture struct {
	store  *repository.MemoryOTPRepository
	clock  *fakeClock
	users  *fakeUserStore
	mailer *fakeMailer
	otp    *OTPService
	svc    *PasswordResetService
}

func newResetFixture() *resetFixture {
	f := &resetFixture{
		store: repository.NewMemoryOTPRepository(),
		clock: newFakeClock(),
		users: newFakeUserStore(
			&models.User{Username: "alice", Email: "alice@jmi.ac.in", Password: "old", Role: models.RoleCR},
			&models.User{Username: "nomail", Password: "old"},
		),
		mailer: &fakeMailer{},
	}
	f.otp = NewOTPService(f.store, &config.OTPConfig{Expiry: 10 * time.Minute}, discardLogger()).WithClock(f.clock)
	f.svc = NewPasswordResetService(f.otp, f.users, f.mailer, discardLogger()).WithBcryptCost(bcrypt.MinCost)
	return f
}

func (f *resetFixture) record(identifier string) *models.OTPRecord {
	rec, err := f.store.Get(context.Background(), identifier)
	if err != nil {
		return nil
	}
	return rec
}

// useStore rebuilds the services around store, keeping the fixture's clock,
// users and mailer.
func (f *resetFixture) useStore(store OTPStore) {
	f.otp = NewOTPService(store, &config.OTPConfig{Expiry: 10 * time.Minute}, discardLogger()).WithClock(f.clock)
	f.svc = NewPasswordResetService(f.otp, f.users, f.mailer, discardLogger()).WithBcryptCost(bcrypt.MinCost)
}

// reissuingStore runs beforeDelete ahead of every conditional delete, so a
// test can slip a newer record in between a read and the delete.
type reissuingStore struct {
	*repository.MemoryOTPRepository
	beforeDelete func()
}

func (s *reissuingStore) DeleteIfCode(ctx context.Context, identifier, code string) (bool, error) {
	if s.beforeDelete != nil {
		s.beforeDelete()
	}
	return s.MemoryOTPRepository.DeleteIfCode(ctx, identifier, code)
}
