package domain

import (
	"context"

	"github.com/smallbiznis/orgaccess/internal/datastore"
	"github.com/smallbiznis/orgaccess/internal/providers/email"
)

// Service runs invite operations against a store bound to the caller's identity.
type Service interface {
	Create(ctx context.Context, store datastore.Store, req CreateRequest) (*CreateResult, error)
	Accept(ctx context.Context, store datastore.Store, req AcceptRequest) (*AcceptResult, error)
	Resend(ctx context.Context, store datastore.Store, req ResendRequest) (*ResendResult, error)
	Revoke(ctx context.Context, store datastore.Store, req RevokeRequest) error
}

type CreateRequest struct {
	OrgID     string
	Email     string
	Role      string
	SendEmail bool
	Origin    string
}

type InviteView struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type CreateResult struct {
	AcceptURL string           `json:"acceptUrl"`
	Invite    InviteView       `json:"invite"`
	Email     email.MailResult `json:"email"`
}

type AcceptRequest struct {
	Token  string
	Origin string
}

type AcceptResult struct {
	Success      bool   `json:"success"`
	OrgID        string `json:"org_id"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	MembershipID string `json:"-"`
	RedirectURL  string `json:"-"`
}

type ResendRequest struct {
	OrgID     string
	Email     string
	SendEmail bool
	Origin    string
}

type ResendResult struct {
	Token     string           `json:"token"`
	AcceptURL string           `json:"acceptUrl"`
	Email     email.MailResult `json:"email"`
}

type RevokeRequest struct {
	Token string
}
