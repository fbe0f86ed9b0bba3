// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package session

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/waymark/internal/kvstore"
	"github.com/tomtom215/waymark/internal/logging"
	"github.com/tomtom215/waymark/internal/models"
	"github.com/tomtom215/waymark/internal/validation"
)

type credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

func validateCredentials(email, password string) error {
	if err := validation.ValidateStruct(&credentials{Email: email, Password: password}); err != nil {
		return invalid(err)
	}
	return nil
}

// SignupRequest is the signup form.
type SignupRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// Signup starts the OTP-gated signup: the form is stored locally and a
// verification code is emailed. The account is created by VerifyOTP.
func (m *Manager) Signup(ctx context.Context, req SignupRequest) error {
	if err := validation.ValidateStruct(&req); err != nil {
		return invalid(err)
	}

	pending := models.PendingSignup{
		Name:        req.Name,
		Email:       req.Email,
		Password:    req.Password,
		RequestedAt: m.now(),
	}
	if err := kvstore.SetJSON(ctx, m.store, kvstore.KeyPendingSignup, pending); err != nil {
		return fmt.Errorf("store pending signup: %w", err)
	}

	if err := m.auth.SendOTP(ctx, req.Email, validation.PurposeSignupVerification); err != nil {
		if delErr := m.store.Delete(ctx, kvstore.KeyPendingSignup); delErr != nil {
			logging.Ctx(ctx).Warn().Err(delErr).Msg("Failed to drop pending signup")
		}
		return err
	}
	m.markSent(req.Email, validation.PurposeSignupVerification)

	logging.Ctx(ctx).Info().Msg("Signup verification code sent")
	return nil
}

// ResendOTP sends another code for purpose. Within the cooldown window
// it returns a *CooldownError.
func (m *Manager) ResendOTP(ctx context.Context, email, purpose string) error {
	if err := validation.ValidateVar("email", email, "required,email"); err != nil {
		return invalid(err)
	}
	if err := validation.ValidateVar("purpose", purpose, "required,otp_purpose"); err != nil {
		return invalid(err)
	}
	if remaining := m.cooldownRemaining(email, purpose); remaining > 0 {
		return &CooldownError{Remaining: remaining}
	}

	if err := m.auth.SendOTP(ctx, email, purpose); err != nil {
		return err
	}
	m.markSent(email, purpose)
	return nil
}

// VerifyOTP completes the signup. The stored signup must exist and its
// email must equal email exactly; otherwise the error matches
// ErrValidation and retrying cannot help.
func (m *Manager) VerifyOTP(ctx context.Context, email, otp string) (*models.Session, error) {
	var pending models.PendingSignup
	ok, err := kvstore.GetJSON(ctx, m.store, kvstore.KeyPendingSignup, &pending)
	if err != nil {
		return nil, fmt.Errorf("read pending signup: %w", err)
	}
	if !ok || pending.Email == "" {
		return nil, ErrNoPendingSignup
	}
	if pending.Email != email {
		return nil, ErrEmailMismatch
	}
	if err := validation.ValidateVar("otp", otp, "required,otp"); err != nil {
		return nil, invalid(err)
	}

	if err := m.auth.VerifyOTP(ctx, email, otp, validation.PurposeSignupVerification); err != nil {
		return nil, err
	}

	res, err := m.auth.SignUp(ctx, pending.Name, pending.Email, pending.Password)
	if err != nil {
		return nil, err
	}
	if res == nil || res.AccessToken == "" || res.User == nil {
		// Some deployments create the account without issuing a token.
		if res, err = m.auth.SignIn(ctx, pending.Email, pending.Password); err != nil {
			return nil, err
		}
	}

	sess, err := m.establish(ctx, res)
	if err != nil {
		return nil, err
	}
	if err := m.store.Delete(ctx, kvstore.KeyPendingSignup); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to drop pending signup")
	}
	return sess, nil
}

// PendingEmail returns the email of the stored signup, "" when none.
func (m *Manager) PendingEmail(ctx context.Context) string {
	var pending models.PendingSignup
	if ok, err := kvstore.GetJSON(ctx, m.store, kvstore.KeyPendingSignup, &pending); err != nil || !ok {
		return ""
	}
	return pending.Email
}

// RequestPasswordReset emails a password reset code.
func (m *Manager) RequestPasswordReset(ctx context.Context, email string) error {
	if err := validation.ValidateVar("email", email, "required,email"); err != nil {
		return invalid(err)
	}
	if remaining := m.cooldownRemaining(email, validation.PurposePasswordReset); remaining > 0 {
		return &CooldownError{Remaining: remaining}
	}
	if err := m.auth.SendOTP(ctx, email, validation.PurposePasswordReset); err != nil {
		return err
	}
	m.markSent(email, validation.PurposePasswordReset)
	return nil
}

type resetRequest struct {
	Email       string `json:"email" validate:"required,email"`
	OTP         string `json:"otp" validate:"required,otp"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

// ResetPassword sets a new password using an emailed reset code.
func (m *Manager) ResetPassword(ctx context.Context, email, otp, newPassword string) error {
	if err := validation.ValidateStruct(&resetRequest{Email: email, OTP: otp, NewPassword: newPassword}); err != nil {
		return invalid(err)
	}
	if err := m.auth.ResetPassword(ctx, email, otp, newPassword); err != nil {
		return err
	}
	logging.Ctx(ctx).Info().Msg("Password reset")
	return nil
}

func resendKey(email, purpose string) string {
	return purpose + "|" + email
}

func (m *Manager) cooldownRemaining(email, purpose string) time.Duration {
	m.resendMu.Lock()
	defer m.resendMu.Unlock()
	last, ok := m.lastSent[resendKey(email, purpose)]
	if !ok {
		return 0
	}
	return m.cfg.OTPResendCooldown - m.now().Sub(last)
}

func (m *Manager) markSent(email, purpose string) {
	m.resendMu.Lock()
	defer m.resendMu.Unlock()
	m.lastSent[resendKey(email, purpose)] = m.now()
}
