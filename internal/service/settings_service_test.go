package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jmiconnect/portal/internal/models"
	"golang.org/x/crypto/bcrypt"
)

type settingsFixture struct {
	users    *fakeUserStore
	sessions *fakeSessionStore
	svc      *SettingsService
	session  models.Session
}

func newSettingsFixture(t *testing.T) *settingsFixture {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	f := &settingsFixture{
		users: newFakeUserStore(
			&models.User{Username: "alice", Email: "alice@jmi.ac.in", Password: string(hash), Mobile: "111", Role: models.RoleCR},
			&models.User{Username: "bob", Password: "legacy-pass"},
		),
		sessions: newFakeSessionStore(),
	}
	f.svc = NewSettingsService(f.users, f.sessions, discardLogger()).WithBcryptCost(bcrypt.MinCost)
	f.session = models.Session{SessionID: "sid-1", Username: "alice", Email: "alice@jmi.ac.in", Mobile: "111", Role: models.RoleCR}
	if err := f.sessions.Store(context.Background(), f.session); err != nil {
		t.Fatalf("store session: %v", err)
	}
	return f
}

func TestSettingsUpdateProfile(t *testing.T) {
	f := newSettingsFixture(t)

	res, err := f.svc.Update(context.Background(), f.session, SettingsInput{Email: " alice@example.org ", Mobile: "9876543210"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res.Message != "Profile updated successfully." {
		t.Fatalf("unexpected message %q", res.Message)
	}

	user := f.users.user("alice")
	if user.Email != "alice@example.org" || user.Mobile != "9876543210" {
		t.Fatalf("profile not saved: %+v", user)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("hunter22")); err != nil {
		t.Fatalf("password must be unchanged: %v", err)
	}

	stored := f.sessions.sessions["alice"]
	if stored.Email != "alice@example.org" || stored.Mobile != "9876543210" || stored.SessionID != "sid-1" {
		t.Fatalf("session not refreshed: %+v", stored)
	}
	if res.Session.Email != "alice@example.org" {
		t.Fatalf("unexpected result session %+v", res.Session)
	}
}

func TestSettingsEmptyFieldsKeepStoredValues(t *testing.T) {
	f := newSettingsFixture(t)

	if _, err := f.svc.Update(context.Background(), f.session, SettingsInput{}); err != nil {
		t.Fatalf("update: %v", err)
	}
	user := f.users.user("alice")
	if user.Email != "alice@jmi.ac.in" || user.Mobile != "111" {
		t.Fatalf("empty fields must not clear values: %+v", user)
	}
}

func TestSettingsChangePassword(t *testing.T) {
	f := newSettingsFixture(t)

	res, err := f.svc.Update(context.Background(), f.session, SettingsInput{
		CurrentPassword: "hunter22",
		NewPassword:     "n3wpass!",
		ConfirmPassword: "n3wpass!",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res.Message != "Password updated successfully." {
		t.Fatalf("unexpected message %q", res.Message)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(f.users.password("alice")), []byte("n3wpass!")); err != nil {
		t.Fatalf("stored hash does not match new password: %v", err)
	}
}

func TestSettingsChangeLegacyPassword(t *testing.T) {
	f := newSettingsFixture(t)
	session := models.Session{SessionID: "sid-2", Username: "bob"}

	if _, err := f.svc.Update(context.Background(), session, SettingsInput{
		CurrentPassword: "legacy-pass",
		NewPassword:     "n3wpass!",
		ConfirmPassword: "n3wpass!",
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if !strings.HasPrefix(f.users.password("bob"), "$2") {
		t.Fatalf("expected a bcrypt hash, got %q", f.users.password("bob"))
	}
}

func TestSettingsPasswordCheckOrder(t *testing.T) {
	cases := []struct {
		name string
		in   SettingsInput
		want string
	}{
		{"missing current", SettingsInput{NewPassword: "abc", ConfirmPassword: "xyz"}, "Enter current password to set a new one."},
		{"wrong current", SettingsInput{CurrentPassword: "nope", NewPassword: "abc", ConfirmPassword: "xyz"}, "Incorrect current password."},
		{"mismatch before length", SettingsInput{CurrentPassword: "hunter22", NewPassword: "abc", ConfirmPassword: "xyz"}, "New passwords do not match."},
		{"short", SettingsInput{CurrentPassword: "hunter22", NewPassword: "abc", ConfirmPassword: "abc"}, "Password must be at least 6 characters."},
		{"short counts characters", SettingsInput{CurrentPassword: "hunter22", NewPassword: "ééé", ConfirmPassword: "ééé"}, "Password must be at least 6 characters."},
		{"too long", SettingsInput{CurrentPassword: "hunter22", NewPassword: strings.Repeat("a", 73), ConfirmPassword: strings.Repeat("a", 73)}, "Password must be at most 72 bytes."},
		{"bad email", SettingsInput{Email: "not-an-email"}, "Please enter a valid email address."},
		{"long mobile", SettingsInput{Mobile: strings.Repeat("9", 21)}, "Mobile number must be at most 20 characters."},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newSettingsFixture(t)
			before := f.users.user("alice")

			_, err := f.svc.Update(context.Background(), f.session, tc.in)
			if KindOf(err) != KindValidation || MessageOf(err) != tc.want {
				t.Fatalf("expected %q, got %v", tc.want, err)
			}
			if after := f.users.user("alice"); after != before {
				t.Fatalf("rejected submission must not write, got %+v", after)
			}
		})
	}
}

func TestSettingsRejectedPasswordKeepsProfile(t *testing.T) {
	f := newSettingsFixture(t)

	_, err := f.svc.Update(context.Background(), f.session, SettingsInput{
		Mobile:          "222",
		CurrentPassword: "nope",
		NewPassword:     "n3wpass!",
		ConfirmPassword: "n3wpass!",
	})
	if MessageOf(err) != "Incorrect current password." {
		t.Fatalf("unexpected error %v", err)
	}
	if f.users.user("alice").Mobile != "111" {
		t.Fatalf("mobile must not be saved alongside a rejected password change")
	}
}

func TestSettingsUnknownAccount(t *testing.T) {
	f := newSettingsFixture(t)

	_, err := f.svc.Update(context.Background(), models.Session{Username: "ghost"}, SettingsInput{Mobile: "1"})
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestSettingsPersistenceFailure(t *testing.T) {
	f := newSettingsFixture(t)
	f.users.updateErr = errors.New("throughput exceeded")

	_, err := f.svc.Update(context.Background(), f.session, SettingsInput{Mobile: "222"})
	if KindOf(err) != KindPersistence || MessageOf(err) != "Failed to update profile. Please try again." {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if f.sessions.sessions["alice"].Mobile != "111" {
		t.Fatalf("session must not change when the account write fails")
	}
}
