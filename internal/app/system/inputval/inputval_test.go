package inputval

import (
	"errors"
	"strings"
	"testing"

	"github.com/maishoras/maishoras/internal/app/system/apperr"
)

func TestValidate(t *testing.T) {
	type testInput struct {
		Name  string `json:"name" validate:"notblank,max=10"`
		Email string `json:"email" validate:"required,email"`
		Hours int    `json:"hours" validate:"gt=0"`
	}

	tests := []struct {
		name       string
		input      testInput
		wantErrors bool
		wantField  string
		wantFirst  string
	}{
		{
			name:  "valid input",
			input: testInput{Name: "Ana", Email: "ana@example.com", Hours: 2},
		},
		{
			name:       "blank name",
			input:      testInput{Name: "   ", Email: "ana@example.com", Hours: 2},
			wantErrors: true,
			wantField:  "name",
			wantFirst:  "name is required.",
		},
		{
			name:       "name too long",
			input:      testInput{Name: "VeryLongNameThatExceedsLimit", Email: "ana@example.com", Hours: 2},
			wantErrors: true,
			wantField:  "name",
			wantFirst:  "name must be at most 10 characters.",
		},
		{
			name:       "invalid email",
			input:      testInput{Name: "Ana", Email: "not-an-email", Hours: 2},
			wantErrors: true,
			wantField:  "email",
			wantFirst:  "A valid email address is required.",
		},
		{
			name:       "first error wins",
			input:      testInput{Name: "", Email: "", Hours: 0},
			wantErrors: true,
			wantField:  "name",
			wantFirst:  "name is required.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(tt.input)

			if result.HasErrors() != tt.wantErrors {
				t.Fatalf("HasErrors = %v, want %v (%v)", result.HasErrors(), tt.wantErrors, result.Errors)
			}
			if !tt.wantErrors {
				return
			}
			if result.First() != tt.wantFirst {
				t.Errorf("First() = %q, want %q", result.First(), tt.wantFirst)
			}
			if result.Errors[0].Field != tt.wantField {
				t.Errorf("Field = %q, want %q", result.Errors[0].Field, tt.wantField)
			}
		})
	}
}

func TestValidate_NameCountsRunes(t *testing.T) {
	type in struct {
		Title string `json:"title" validate:"max=5"`
	}
	if r := Validate(in{Title: "ação!"}); r.HasErrors() {
		t.Errorf("expected 5 runes to pass max=5, got %v", r.Errors)
	}
}

func TestValidate_MaxBytes(t *testing.T) {
	type in struct {
		Password string `json:"password" validate:"max=72,maxbytes=72"`
	}
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"ascii at limit", strings.Repeat("a", 72), false},
		{"multibyte within limit", strings.Repeat("ç", 36), false},
		{"multibyte over limit", strings.Repeat("ç", 40), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Validate(in{Password: tt.password})
			if r.HasErrors() != tt.wantErr {
				t.Fatalf("HasErrors = %v, want %v (%v)", r.HasErrors(), tt.wantErr, r.Errors)
			}
			if tt.wantErr && r.First() != "password is too long." {
				t.Errorf("First() = %q", r.First())
			}
		})
	}
}

func TestResult_Err(t *testing.T) {
	r := &Result{}
	if r.Err() != nil {
		t.Errorf("expected nil error for empty result, got %v", r.Err())
	}

	r.Errors = []FieldError{{Field: "date", Message: "date is required."}, {Field: "title", Message: "x"}}
	err := r.Err()
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	var ae *apperr.Error
	errors.As(err, &ae)
	if ae.Details["field"] != "date" {
		t.Errorf("expected field date, got %v", ae.Details["field"])
	}
	if ae.Message != "date is required." {
		t.Errorf("expected first message, got %q", ae.Message)
	}
}

func TestCustomRules(t *testing.T) {
	tests := []struct {
		name string
		fn   func(string) bool
		in   string
		want bool
	}{
		{"time ok", IsValidTimeOfDay, "09:30", true},
		{"time midnight", IsValidTimeOfDay, "00:00", true},
		{"time hour 24", IsValidTimeOfDay, "24:00", false},
		{"time no pad", IsValidTimeOfDay, "9:30", false},
		{"date ok", IsValidDate, "2026-02-28", true},
		{"date invalid day", IsValidDate, "2026-02-30", false},
		{"date wrong layout", IsValidDate, "28/02/2026", false},
		{"objectid ok", IsValidObjectID, "507f1f77bcf86cd799439011", true},
		{"objectid short", IsValidObjectID, "507f1f77", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(tt.in); got != tt.want {
				t.Errorf("got %v for %q, want %v", got, tt.in, tt.want)
			}
		})
	}
}
