// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package validation

import (
	"errors"
	"strings"
	"testing"
)

type signupForm struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type otpForm struct {
	Email   string `json:"email" validate:"required,email"`
	Code    string `json:"otp" validate:"otp"`
	Purpose string `json:"purpose" validate:"otp_purpose"`
}

type point struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lng float64 `json:"lng" validate:"longitude"`
}

func TestGetValidatorSingleton(t *testing.T) {
	t.Parallel()

	if GetValidator() != GetValidator() {
		t.Error("GetValidator() should return the same instance")
	}
}

func TestValidateStruct(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   any
		wantErr string
	}{
		{"valid signup", &signupForm{Name: "Ada", Email: "ada@example.com", Password: "secret1"}, ""},
		{"short password", &signupForm{Name: "Ada", Email: "ada@example.com", Password: "abc"}, "password must be at least 6 characters"},
		{"bad email", &signupForm{Name: "Ada", Email: "ada", Password: "secret1"}, "email must be a valid email address"},
		{"missing name", &signupForm{Email: "ada@example.com", Password: "secret1"}, "name is required"},
		{"valid otp", &otpForm{Email: "a@b.co", Code: "012345", Purpose: PurposeSignupVerification}, ""},
		{"letters in otp", &otpForm{Email: "a@b.co", Code: "12a456", Purpose: PurposePasswordReset}, "otp must be a 6-digit code"},
		{"short otp", &otpForm{Email: "a@b.co", Code: "123", Purpose: PurposePasswordReset}, "otp must be a 6-digit code"},
		{"bad purpose", &otpForm{Email: "a@b.co", Code: "123456", Purpose: "login"}, "purpose must be"},
		{"bad latitude", &point{Lat: 95, Lng: 0}, "lat must be a valid latitude"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateStruct(tt.input)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("ValidateStruct() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("ValidateStruct() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidateStruct() = %q, want containing %q", err.Error(), tt.wantErr)
			}
			var verrs *Errors
			if !errors.As(err, &verrs) || len(verrs.Fields) == 0 {
				t.Errorf("expected *Errors with fields, got %T", err)
			}
		})
	}
}

func TestValidateVar(t *testing.T) {
	t.Parallel()

	if err := ValidateVar("email", "someone@example.com", "required,email"); err != nil {
		t.Errorf("ValidateVar() unexpected error: %v", err)
	}
	err := ValidateVar("email", "nope", "required,email")
	if err == nil || err.Error() != "email must be a valid email address" {
		t.Errorf("ValidateVar() = %v", err)
	}
}
