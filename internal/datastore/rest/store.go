package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/orgaccess/internal/datastore"
)

type userRow struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type membershipRow struct {
	OrgID     string     `json:"org_id"`
	UserID    string     `json:"user_id"`
	Role      string     `json:"role"`
	CreatedAt *time.Time `json:"created_at"`
	Profiles  *struct {
		Email string `json:"email"`
	} `json:"profiles"`
}

func (r membershipRow) membership() datastore.Membership {
	m := datastore.Membership{OrgID: r.OrgID, UserID: r.UserID, Role: datastore.Role(strings.ToUpper(r.Role))}
	if r.CreatedAt != nil {
		m.CreatedAt = *r.CreatedAt
	}
	return m
}

func (s *Store) CurrentUser(ctx context.Context) (*datastore.User, error) {
	if s.user != nil {
		return s.user, nil
	}
	var row userRow
	if err := s.do(ctx, http.MethodGet, authUserPath, nil, nil, &row); err != nil {
		return nil, err
	}
	if row.ID == "" {
		return nil, &datastore.Error{Status: http.StatusUnauthorized, Code: "PT401", Message: "not_authenticated"}
	}
	s.user = &datastore.User{ID: row.ID, Email: datastore.NormalizeEmail(row.Email)}
	return s.user, nil
}

func (s *Store) GetMembership(ctx context.Context, orgID, userID string) (*datastore.Membership, error) {
	query := url.Values{}
	query.Set("select", "org_id,user_id,role,created_at")
	query.Set("org_id", "eq."+orgID)
	query.Set("user_id", "eq."+userID)
	query.Set("limit", "1")

	var rows []membershipRow
	if err := s.do(ctx, http.MethodGet, restPath+"memberships", query, nil, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	m := rows[0].membership()
	return &m, nil
}

func (s *Store) ListMyMemberships(ctx context.Context) ([]datastore.Membership, error) {
	user, err := s.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	query := url.Values{}
	query.Set("select", "org_id,user_id,role,created_at")
	query.Set("user_id", "eq."+user.ID)
	query.Set("order", "created_at.asc")

	var rows []membershipRow
	if err := s.do(ctx, http.MethodGet, restPath+"memberships", query, nil, &rows); err != nil {
		return nil, err
	}
	out := make([]datastore.Membership, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.membership())
	}
	return out, nil
}

func (s *Store) ListMembers(ctx context.Context, orgID string) ([]datastore.Member, error) {
	query := url.Values{}
	query.Set("select", "org_id,user_id,role,created_at,profiles(email)")
	query.Set("org_id", "eq."+orgID)
	query.Set("order", "created_at.desc")

	var rows []membershipRow
	if err := s.do(ctx, http.MethodGet, restPath+"memberships", query, nil, &rows); err != nil {
		return nil, err
	}
	out := make([]datastore.Member, 0, len(rows))
	for _, row := range rows {
		m := row.membership()
		member := datastore.Member{OrgID: m.OrgID, UserID: m.UserID, Role: m.Role, CreatedAt: m.CreatedAt}
		if row.Profiles != nil {
			member.Email = row.Profiles.Email
		}
		out = append(out, member)
	}
	return out, nil
}

type inviteRow struct {
	ID        json.RawMessage `json:"id"`
	OrgID     string          `json:"org_id"`
	Email     string          `json:"email"`
	Role      string          `json:"role"`
	Token     string          `json:"token"`
	ExpiresAt *time.Time      `json:"expires_at"`
}

func (s *Store) CreateInvite(ctx context.Context, orgID, email string, role datastore.Role) (*datastore.Invite, error) {
	var raw json.RawMessage
	err := s.rpc(ctx, datastore.ProcCreateInvite, map[string]any{
		"p_org":   orgID,
		"p_email": email,
		"p_role":  string(role),
	}, &raw)
	if err != nil {
		return nil, err
	}

	var row inviteRow
	if err := decodeSingle(raw, &row); err != nil {
		return nil, err
	}
	return &datastore.Invite{
		ID:        rawID(row.ID),
		OrgID:     row.OrgID,
		Email:     row.Email,
		Role:      datastore.Role(strings.ToUpper(row.Role)),
		Token:     row.Token,
		ExpiresAt: row.ExpiresAt,
	}, nil
}

type acceptRow struct {
	OrgID        string          `json:"org_id"`
	MembershipID json.RawMessage `json:"membership_id"`
	Email        string          `json:"email"`
	Role         string          `json:"role"`
}

func (s *Store) AcceptInvite(ctx context.Context, token string) (*datastore.AcceptedInvite, error) {
	var raw json.RawMessage
	if err := s.rpc(ctx, datastore.ProcAcceptInvite, map[string]any{"p_token": token}, &raw); err != nil {
		return nil, err
	}
	var row acceptRow
	if err := decodeSingle(raw, &row); err != nil {
		return nil, err
	}
	return &datastore.AcceptedInvite{
		OrgID:        row.OrgID,
		MembershipID: rawID(row.MembershipID),
		Email:        row.Email,
		Role:         datastore.Role(strings.ToUpper(row.Role)),
	}, nil
}

func (s *Store) ResendInvite(ctx context.Context, orgID, email string) (string, error) {
	var raw json.RawMessage
	err := s.rpc(ctx, datastore.ProcResendInvite, map[string]any{
		"p_org_id": orgID,
		"p_email":  email,
	}, &raw)
	if err != nil {
		return "", err
	}

	var token string
	if err := json.Unmarshal(raw, &token); err == nil {
		return token, nil
	}
	var row struct {
		Token string `json:"token"`
	}
	if err := decodeSingle(raw, &row); err != nil {
		return "", err
	}
	return row.Token, nil
}

func (s *Store) RevokeInvite(ctx context.Context, token string) error {
	return s.rpc(ctx, datastore.ProcRevokeInvite, map[string]any{"p_token": token}, nil)
}

func (s *Store) UpdateMemberRole(ctx context.Context, orgID, userID string, role datastore.Role) error {
	return s.rpc(ctx, datastore.ProcUpdateMemberRole, map[string]any{
		"p_org":    orgID,
		"p_target": userID,
		"p_role":   string(role),
	}, nil)
}

func (s *Store) DeleteMember(ctx context.Context, orgID, userID string) error {
	return s.rpc(ctx, datastore.ProcDeleteMember, map[string]any{
		"p_org":    orgID,
		"p_target": userID,
	}, nil)
}

func (s *Store) HasPermission(ctx context.Context, permission, orgID string) (bool, error) {
	var allowed bool
	err := s.rpc(ctx, datastore.ProcHasPermission, map[string]any{
		"p_perm": permission,
		"p_org":  orgID,
	}, &allowed)
	return allowed, err
}

// decodeSingle accepts either a single object or a set-returning array.
func decodeSingle(raw json.RawMessage, out any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return invalidResponse(err)
		}
		if len(items) == 0 {
			return nil
		}
		trimmed = items[0]
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return invalidResponse(err)
	}
	return nil
}

func invalidResponse(err error) error {
	return &datastore.Error{Status: http.StatusOK, Code: "invalid_response", Message: "unexpected response from data store", Details: err.Error()}
}

func rawID(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s
	}
	return string(trimmed)
}
