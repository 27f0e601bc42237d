package domain

import "errors"

var (
	ErrMissingOrganization  = errors.New("missing_organization")
	ErrMissingEmail         = errors.New("missing_email")
	ErrInvalidRole          = errors.New("invalid_role")
	ErrMissingToken         = errors.New("missing_token")
	ErrInvalidOutputMode    = errors.New("invalid_output_mode")
	ErrInviteGone           = errors.New("invite_gone")
	ErrInviteCreationFailed = errors.New("invite_creation_failed")
	ErrIntegrity            = errors.New("integrity_error")
	ErrUpstream             = errors.New("upstream_error")
)
