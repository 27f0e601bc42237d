// Package datastore describes the external data store the workflow delegates to:
// identity lookup, membership reads and the named invite/membership procedures.
// Every Store is bound to one caller credential; the store enforces authorization.
package datastore

import (
	"errors"
	"strings"
	"time"
)

// Role is an organization membership role.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleTeam     Role = "TEAM"
	RoleCustomer Role = "CUSTOMER"
)

var ErrInvalidRole = errors.New("invalid_role")

// ParseRole normalizes case and rejects anything outside ADMIN, TEAM, CUSTOMER.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	switch role {
	case RoleAdmin, RoleTeam, RoleCustomer:
		return role, nil
	default:
		return "", ErrInvalidRole
	}
}

func (r Role) rank() int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleTeam:
		return 2
	case RoleCustomer:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether r is as privileged as other (ADMIN > TEAM > CUSTOMER).
func (r Role) AtLeast(other Role) bool {
	return r.rank() > 0 && r.rank() >= other.rank()
}

// NormalizeEmail trims and lowercases an address for comparison and storage.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

type User struct {
	ID    string
	Email string
}

type Membership struct {
	OrgID     string
	UserID    string
	Role      Role
	CreatedAt time.Time
}

// Member is a membership joined with the member's profile email.
type Member struct {
	OrgID     string
	UserID    string
	Role      Role
	Email     string
	CreatedAt time.Time
}

type Invite struct {
	ID        string
	OrgID     string
	Email     string
	Role      Role
	Token     string
	ExpiresAt *time.Time
}

type AcceptedInvite struct {
	OrgID        string
	MembershipID string
	Email        string
	Role         Role
}
