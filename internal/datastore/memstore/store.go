package memstore

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/smallbiznis/orgaccess/internal/datastore"
)

// Store is a Memory view bound to one caller.
type Store struct {
	mem  *Memory
	user datastore.User
}

func (s *Store) record(proc string) {
	s.mem.calls = append(s.mem.calls, proc)
}

func (s *Store) requireAdmin(orgID string) error {
	role, ok := s.mem.role(orgID, s.user.ID)
	if !ok || role != datastore.RoleAdmin {
		return errNotAdmin()
	}
	return nil
}

func (s *Store) CurrentUser(ctx context.Context) (*datastore.User, error) {
	user := s.user
	return &user, nil
}

func (s *Store) GetMembership(ctx context.Context, orgID, userID string) (*datastore.Membership, error) {
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()
	mem, ok := s.mem.memberships[orgID][userID]
	if !ok {
		return nil, nil
	}
	// row-level security: callers only see orgs they belong to
	if _, visible := s.mem.role(orgID, s.user.ID); !visible {
		return nil, nil
	}
	return &datastore.Membership{OrgID: orgID, UserID: userID, Role: mem.role, CreatedAt: mem.createdAt}, nil
}

func (s *Store) ListMyMemberships(ctx context.Context) ([]datastore.Membership, error) {
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()
	out := []datastore.Membership{}
	for orgID, members := range s.mem.memberships {
		if mem, ok := members[s.user.ID]; ok {
			out = append(out, datastore.Membership{OrgID: orgID, UserID: s.user.ID, Role: mem.role, CreatedAt: mem.createdAt})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].OrgID < out[j].OrgID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) ListMembers(ctx context.Context, orgID string) ([]datastore.Member, error) {
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()
	out := []datastore.Member{}
	if _, visible := s.mem.role(orgID, s.user.ID); !visible {
		return out, nil
	}
	for userID, mem := range s.mem.memberships[orgID] {
		out = append(out, datastore.Member{
			OrgID:     orgID,
			UserID:    userID,
			Role:      mem.role,
			Email:     s.mem.emails[userID],
			CreatedAt: mem.createdAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CreateInvite(ctx context.Context, orgID, email string, role datastore.Role) (*datastore.Invite, error) {
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()
	s.record(datastore.ProcCreateInvite)

	if err := s.requireAdmin(orgID); err != nil {
		return nil, err
	}
	email = datastore.NormalizeEmail(email)
	if email == "" {
		return nil, errInvalid("invalid email")
	}
	if _, err := datastore.ParseRole(string(role)); err != nil {
		return nil, errInvalid("invalid role")
	}

	token, err := s.uniqueToken()
	if err != nil {
		return nil, err
	}
	now := s.mem.clock.Now()
	inv := &invite{
		id:        uuid.NewString(),
		orgID:     orgID,
		email:     email,
		role:      role,
		token:     token,
		createdAt: now,
		expiresAt: now.Add(s.mem.inviteTTL),
	}
	s.mem.invites[token] = inv

	expires := inv.expiresAt
	return &datastore.Invite{ID: inv.id, OrgID: orgID, Email: email, Role: role, Token: token, ExpiresAt: &expires}, nil
}

func (s *Store) uniqueToken() (string, error) {
	for {
		token, err := newToken()
		if err != nil {
			return "", err
		}
		if _, taken := s.mem.invites[token]; !taken {
			return token, nil
		}
	}
}

func (s *Store) AcceptInvite(ctx context.Context, token string) (*datastore.AcceptedInvite, error) {
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()
	s.record(datastore.ProcAcceptInvite)

	inv, ok := s.mem.invites[token]
	if !ok {
		return nil, errInvalid("invalid invite token")
	}
	switch inv.state {
	case stateConsumed:
		return nil, errGone("invite already used")
	case stateRevoked:
		return nil, errGone("invite revoked")
	}
	if !s.mem.clock.Now().Before(inv.expiresAt) {
		return nil, errGone("invite expired")
	}
	if inv.email != s.user.Email {
		return nil, errEmailMismatch()
	}

	role := inv.role
	if current, ok := s.mem.role(inv.orgID, s.user.ID); ok && current.AtLeast(role) {
		role = current
	}
	mem := s.mem.upsertMembership(inv.orgID, s.user.ID, role)
	inv.state = stateConsumed

	return &datastore.AcceptedInvite{OrgID: inv.orgID, MembershipID: mem.id, Email: inv.email, Role: mem.role}, nil
}

func (s *Store) ResendInvite(ctx context.Context, orgID, email string) (string, error) {
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()
	s.record(datastore.ProcResendInvite)

	if err := s.requireAdmin(orgID); err != nil {
		return "", err
	}
	email = datastore.NormalizeEmail(email)

	var latest *invite
	for _, inv := range s.mem.invites {
		if inv.orgID != orgID || inv.email != email || inv.state != statePending {
			continue
		}
		if latest == nil || inv.createdAt.After(latest.createdAt) {
			latest = inv
		}
	}
	if latest == nil {
		return "", errNotFound("invite not found")
	}

	token, err := s.uniqueToken()
	if err != nil {
		return "", err
	}
	delete(s.mem.invites, latest.token)
	latest.token = token
	latest.expiresAt = s.mem.clock.Now().Add(s.mem.inviteTTL)
	s.mem.invites[token] = latest
	return token, nil
}

func (s *Store) RevokeInvite(ctx context.Context, token string) error {
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()
	s.record(datastore.ProcRevokeInvite)

	inv, ok := s.mem.invites[token]
	if !ok {
		return errNotFound("invite not found")
	}
	if err := s.requireAdmin(inv.orgID); err != nil {
		return err
	}
	switch inv.state {
	case stateConsumed:
		return errGone("invite already used")
	case stateRevoked:
		return nil
	}
	inv.state = stateRevoked
	return nil
}

func (s *Store) UpdateMemberRole(ctx context.Context, orgID, userID string, role datastore.Role) error {
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()
	s.record(datastore.ProcUpdateMemberRole)

	if err := s.requireAdmin(orgID); err != nil {
		return err
	}
	if _, err := datastore.ParseRole(string(role)); err != nil {
		return errInvalid("invalid role")
	}
	current, ok := s.mem.role(orgID, userID)
	if !ok {
		return errNotFound("member not found")
	}
	if current == role {
		return nil
	}
	if current == datastore.RoleAdmin && s.mem.adminCount(orgID) == 1 {
		return errConflict("cannot demote the last admin")
	}
	s.mem.memberships[orgID][userID].role = role
	return nil
}

func (s *Store) DeleteMember(ctx context.Context, orgID, userID string) error {
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()
	s.record(datastore.ProcDeleteMember)

	if err := s.requireAdmin(orgID); err != nil {
		return err
	}
	current, ok := s.mem.role(orgID, userID)
	if !ok {
		return nil
	}
	if current == datastore.RoleAdmin && s.mem.adminCount(orgID) == 1 {
		return errConflict("cannot remove the last admin")
	}
	delete(s.mem.memberships[orgID], userID)
	return nil
}

func (s *Store) HasPermission(ctx context.Context, permission, orgID string) (bool, error) {
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()
	s.record(datastore.ProcHasPermission)

	role, ok := s.mem.role(orgID, s.user.ID)
	if !ok {
		return false, nil
	}
	return s.mem.permission(role, strings.ToLower(strings.TrimSpace(permission))), nil
}
