package httptransport

import (
	"strings"

	dErrors "portico/pkg/domain-errors"
	str "portico/pkg/string"
	"portico/pkg/validation"
)

// HTTP request DTOs. Each carries validator tags; Validate delegates to the
// shared validator so error messages stay uniform across endpoints.

type SignInRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=128"`
}

func (r *SignInRequest) Normalize() {
	if r == nil {
		return
	}
	str.TrimStrings(&r.Email)
	r.Email = strings.ToLower(r.Email)
}

func (r *SignInRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.Validate(r)
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
}

func (r *ForgotPasswordRequest) Normalize() {
	if r == nil {
		return
	}
	str.TrimStrings(&r.Email)
	r.Email = strings.ToLower(r.Email)
}

func (r *ForgotPasswordRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.Validate(r)
}

type ResetPasswordRequest struct {
	Token    string `json:"token" validate:"required,notblank,max=256"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

func (r *ResetPasswordRequest) Normalize() {
	if r == nil {
		return
	}
	str.TrimStrings(&r.Token)
}

func (r *ResetPasswordRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.Validate(r)
}

type VerifyEmailRequest struct {
	Token    string `json:"token" validate:"required,notblank,max=256"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

func (r *VerifyEmailRequest) Normalize() {
	if r == nil {
		return
	}
	str.TrimStrings(&r.Token)
}

func (r *VerifyEmailRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.Validate(r)
}
