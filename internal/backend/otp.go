// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package backend

import (
	"context"
	"net/http"
)

type otpRequest struct {
	Email   string `json:"email"`
	OTP     string `json:"otp,omitempty"`
	Purpose string `json:"purpose"`
}

// SendOTP asks the backend to email a one-time code for purpose.
func (c *Client) SendOTP(ctx context.Context, email, purpose string) error {
	return c.do(ctx, call{
		endpoint: "otp.send",
		method:   http.MethodPost,
		path:     "/api/otp/send",
		body:     otpRequest{Email: email, Purpose: purpose},
	}, nil)
}

// VerifyOTP checks a code. A wrong or expired code is an APIError with
// the backend's message.
func (c *Client) VerifyOTP(ctx context.Context, email, otp, purpose string) error {
	var resp struct {
		Verified *bool  `json:"verified"`
		Message  string `json:"message"`
	}
	err := c.do(ctx, call{
		endpoint: "otp.verify",
		method:   http.MethodPost,
		path:     "/api/otp/verify",
		body:     otpRequest{Email: email, OTP: otp, Purpose: purpose},
	}, &resp)
	if err != nil {
		return err
	}
	if resp.Verified != nil && !*resp.Verified {
		msg := resp.Message
		if msg == "" {
			msg = "invalid or expired code"
		}
		return &APIError{Endpoint: "otp.verify", Status: http.StatusBadRequest, Message: msg}
	}
	return nil
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}

// ResetPassword sets a new password after OTP verification.
func (c *Client) ResetPassword(ctx context.Context, email, otp, newPassword string) error {
	return c.do(ctx, call{
		endpoint: "auth.reset_password",
		method:   http.MethodPost,
		path:     "/api/auth/reset-password",
		body:     resetPasswordRequest{Email: email, OTP: otp, NewPassword: newPassword},
	}, nil)
}
