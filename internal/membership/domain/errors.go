package domain

import "errors"

var (
	ErrMissingOrganization = errors.New("missing_organization")
	ErrMissingTarget       = errors.New("missing_target")
	ErrInvalidRole         = errors.New("invalid_role")
	ErrMissingPermission   = errors.New("missing_permission")
	ErrUpstream            = errors.New("upstream_error")
)
