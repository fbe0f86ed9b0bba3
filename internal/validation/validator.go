// Waymark - Route Finding Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

// Package validation wraps a singleton go-playground/validator instance
// with Waymark's custom tags and human-readable messages.
//
//	type credentials struct {
//	    Email    string `json:"email" validate:"required,email"`
//	    Password string `json:"password" validate:"required,min=6"`
//	}
//
//	if err := validation.ValidateStruct(&c); err != nil {
//	    return err // "password must be at least 6 characters"
//	}
//
// Custom tags:
//   - otp: exactly six ASCII digits
//   - otp_purpose: signup_verification or password_reset
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// OTP purposes understood by the backend.
const (
	PurposeSignupVerification = "signup_verification"
	PurposePasswordReset      = "password_reset"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is a single failed rule.
type FieldError struct {
	Field   string
	Tag     string
	Param   string
	Message string
}

// Error returns the human-readable message.
func (e FieldError) Error() string {
	return e.Message
}

// Errors collects every failed rule of one struct.
type Errors struct {
	Fields []FieldError
}

// Error joins the field messages.
func (e *Errors) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return strings.Join(msgs, "; ")
}

// GetValidator returns the shared validator, building it on first use.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())

		// Report json names ("email") rather than Go names ("Email").
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return strings.ToLower(fld.Name)
			}
			return name
		})

		_ = v.RegisterValidation("otp", validateOTP)
		_ = v.RegisterValidation("otp_purpose", validateOTPPurpose)
		validate = v
	})
	return validate
}

func validateOTP(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if len(s) != 6 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func validateOTPPurpose(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case PurposeSignupVerification, PurposePasswordReset:
		return true
	default:
		return false
	}
}

// ValidateStruct validates s. It returns nil or an *Errors value.
func ValidateStruct(s any) error {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &Errors{Fields: []FieldError{{Field: "unknown", Tag: "unknown", Message: err.Error()}}}
	}

	out := &Errors{Fields: make([]FieldError, len(fieldErrs))}
	for i, fe := range fieldErrs {
		out.Fields[i] = FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: translateError(fe),
		}
	}
	return out
}

// ValidateVar validates a single value against tag, naming it field in
// the message.
func ValidateVar(field string, value any, tag string) error {
	err := GetValidator().Var(value, tag)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &Errors{Fields: []FieldError{{Field: field, Message: err.Error()}}}
	}
	fe := fieldErrs[0]
	return &Errors{Fields: []FieldError{{
		Field:   field,
		Tag:     fe.Tag(),
		Param:   fe.Param(),
		Message: translate(field, fe),
	}}}
}

var messageTemplates = map[string]string{
	"required":    "%s is required",
	"email":       "%s must be a valid email address",
	"latitude":    "%s must be a valid latitude (-90 to 90)",
	"longitude":   "%s must be a valid longitude (-180 to 180)",
	"otp":         "%s must be a 6-digit code",
	"otp_purpose": "%s must be signup_verification or password_reset",
	"url":         "%s must be a valid URL",
}

var paramTemplates = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
	"len":   "%s must be exactly %s characters",
}

func translateError(fe validator.FieldError) string {
	return translate(fe.Field(), fe)
}

func translate(field string, fe validator.FieldError) string {
	tag, param := fe.Tag(), fe.Param()
	if tmpl, ok := messageTemplates[tag]; ok {
		return fmt.Sprintf(tmpl, field)
	}
	if tmpl, ok := paramTemplates[tag]; ok {
		return fmt.Sprintf(tmpl, field, param)
	}

	isString := fe.Kind() == reflect.String
	switch tag {
	case "min":
		if isString {
			return fmt.Sprintf("%s must be at least %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		if isString {
			return fmt.Sprintf("%s must be at most %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at most %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, tag)
	}
}
