package domain

import (
	"context"
	"errors"
)

const (
	ActionInviteCreate     = "invite.create"
	ActionInviteAccept     = "invite.accept"
	ActionInviteResend     = "invite.resend"
	ActionInviteRevoke     = "invite.revoke"
	ActionMemberRoleUpdate = "member.role_update"
	ActionMemberDelete     = "member.delete"
)

const (
	TargetInvite     = "invite"
	TargetMembership = "membership"
)

// Event describes one state change performed on behalf of a caller.
// OrgID falls back to the organization bound to ctx when empty.
type Event struct {
	Action     string
	OrgID      string
	ActorID    string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

type Service interface {
	AuditLog(ctx context.Context, event Event) error
}

var ErrInvalidAction = errors.New("invalid_action")
