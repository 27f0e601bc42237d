package datastore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Procedure names of the external contract.
const (
	ProcCreateInvite     = "create_invite"
	ProcAcceptInvite     = "accept_invite"
	ProcResendInvite     = "resend_invite"
	ProcRevokeInvite     = "revoke_invite"
	ProcUpdateMemberRole = "update_member_role"
	ProcDeleteMember     = "delete_member"
	ProcHasPermission    = "has_permission"
)

// Store is a data-store client scoped to a single caller identity.
type Store interface {
	CurrentUser(ctx context.Context) (*User, error)
	GetMembership(ctx context.Context, orgID, userID string) (*Membership, error)
	ListMyMemberships(ctx context.Context) ([]Membership, error)
	ListMembers(ctx context.Context, orgID string) ([]Member, error)

	CreateInvite(ctx context.Context, orgID, email string, role Role) (*Invite, error)
	AcceptInvite(ctx context.Context, token string) (*AcceptedInvite, error)
	ResendInvite(ctx context.Context, orgID, email string) (string, error)
	RevokeInvite(ctx context.Context, token string) error

	UpdateMemberRole(ctx context.Context, orgID, userID string, role Role) error
	DeleteMember(ctx context.Context, orgID, userID string) error
	HasPermission(ctx context.Context, permission, orgID string) (bool, error)
}

// Connector builds a Store that forwards the given bearer credential on every call.
type Connector interface {
	ForToken(token string) (Store, error)
}

// ErrNotConfigured marks a deployment defect: the backend is missing required settings.
var ErrNotConfigured = errors.New("datastore_not_configured")

type unconfigured struct {
	missing []string
}

// Unconfigured returns a Connector that fails every request with ErrNotConfigured.
func Unconfigured(missing ...string) Connector {
	return &unconfigured{missing: missing}
}

func (u *unconfigured) ForToken(string) (Store, error) {
	return nil, fmt.Errorf("%w: missing %s", ErrNotConfigured, strings.Join(u.missing, ", "))
}
