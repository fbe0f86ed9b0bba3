// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package session

import (
	"errors"
	"fmt"
	"time"
)

// ErrValidation matches every input or local-state validation failure.
// These are never retryable.
var ErrValidation = errors.New("validation failed")

var (
	// ErrNoPendingSignup means VerifyOTP ran without a stored signup.
	ErrNoPendingSignup = &validationError{msg: "no pending signup found, please sign up again"}

	// ErrEmailMismatch means the email differs from the pending signup.
	ErrEmailMismatch = &validationError{msg: "email does not match the pending signup"}

	// ErrResendCooldown is matched by *CooldownError.
	ErrResendCooldown = errors.New("please wait before requesting another code")

	// ErrQuickLoginDisabled is returned when guest quick login is off.
	ErrQuickLoginDisabled = errors.New("quick login is disabled")

	// ErrNotAuthenticated is returned by operations that need a token.
	ErrNotAuthenticated = errors.New("not signed in")
)

// validationError keeps the human-readable message intact while matching
// ErrValidation.
type validationError struct {
	msg   string
	cause error
}

func (e *validationError) Error() string { return e.msg }

func (e *validationError) Unwrap() error { return e.cause }

func (e *validationError) Is(target error) bool { return target == ErrValidation }

func invalid(err error) error {
	return &validationError{msg: err.Error(), cause: err}
}

// CooldownError reports how long until another OTP may be sent.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	secs := int(e.Remaining.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("please wait %ds before requesting another code", secs)
}

func (e *CooldownError) Is(target error) bool { return target == ErrResendCooldown }
