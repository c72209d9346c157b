package services

import "errors"

var (
	ErrInstallUnavailable = errors.New("install service unavailable")
	ErrOAuthStateMismatch = errors.New("oauth state mismatch")
	ErrTenantInactive     = errors.New("tenant is not active")
	ErrValidationFailed   = errors.New("payload validation failed")
)
