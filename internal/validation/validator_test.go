package validation

import (
	"errors"
	"strings"
	"testing"
)

type passwordForm struct {
	Username string `validate:"required"`
	Password string `validate:"required,min=6,maxbytes=72"`
	Confirm  string `validate:"required,eqfield=Password"`
}

func TestValidatePassesValidStruct(t *testing.T) {
	v := New()
	if err := v.Validate(passwordForm{Username: "alice", Password: "secret1", Confirm: "secret1"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateRanksByPriority(t *testing.T) {
	v := New()
	priority := []string{"required", "min", "maxbytes", "eqfield"}

	tests := []struct {
		name  string
		form  passwordForm
		field string
		tag   string
	}{
		{"missing confirm beats short password", passwordForm{Username: "alice", Password: "abc"}, "Confirm", "required"},
		{"short password beats mismatch", passwordForm{Username: "alice", Password: "abc", Confirm: "abd"}, "Password", "min"},
		{"mismatch", passwordForm{Username: "alice", Password: "secret1", Confirm: "secret2"}, "Confirm", "eqfield"},
		{"too many bytes", passwordForm{Username: "alice", Password: strings.Repeat("a", 73), Confirm: strings.Repeat("a", 73)}, "Password", "maxbytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.form, priority...)
			var fe *FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("expected *FieldError, got %v", err)
			}
			if fe.Field != tt.field || fe.Tag != tt.tag {
				t.Fatalf("expected %s/%s, got %s/%s", tt.field, tt.tag, fe.Field, fe.Tag)
			}
		})
	}
}

func TestMinCountsCharactersNotBytes(t *testing.T) {
	v := New()

	// Three two-byte characters are six bytes but only three characters.
	err := v.Validate(passwordForm{Username: "alice", Password: "ééé", Confirm: "ééé"})
	var fe *FieldError
	if !errors.As(err, &fe) || fe.Tag != "min" {
		t.Fatalf("expected min failure, got %v", err)
	}

	if err := v.Validate(passwordForm{Username: "alice", Password: "éééééé", Confirm: "éééééé"}); err != nil {
		t.Fatalf("six characters should pass, got %v", err)
	}
}

func TestMaxBytesBoundary(t *testing.T) {
	v := New()

	exact := strings.Repeat("a", 72)
	if err := v.Validate(passwordForm{Username: "alice", Password: exact, Confirm: exact}); err != nil {
		t.Fatalf("72 bytes should pass, got %v", err)
	}

	// 37 two-byte characters are 74 bytes.
	wide := strings.Repeat("é", 37)
	err := v.Validate(passwordForm{Username: "alice", Password: wide, Confirm: wide})
	var fe *FieldError
	if !errors.As(err, &fe) || fe.Tag != "maxbytes" {
		t.Fatalf("expected maxbytes failure, got %v", err)
	}
}

func TestValidateRejectsNonStruct(t *testing.T) {
	v := New()
	err := v.Validate("not a struct")
	var fe *FieldError
	if err == nil || errors.As(err, &fe) {
		t.Fatalf("expected a plain error, got %v", err)
	}
}
