package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/smallbiznis/orgaccess/internal/datastore"
	"github.com/smallbiznis/orgaccess/pkg/db"
	"github.com/smallbiznis/orgaccess/pkg/rls"
	"gorm.io/gorm"
)

type Store struct {
	db         *gorm.DB
	claims     *Claims
	claimsJSON string
}

type membershipRow struct {
	OrgID     string         `gorm:"column:org_id"`
	UserID    string         `gorm:"column:user_id"`
	Role      string         `gorm:"column:role"`
	Email     sql.NullString `gorm:"column:email"`
	CreatedAt time.Time      `gorm:"column:created_at"`
}

func (r membershipRow) membership() datastore.Membership {
	return datastore.Membership{
		OrgID:     r.OrgID,
		UserID:    r.UserID,
		Role:      datastore.Role(strings.ToUpper(r.Role)),
		CreatedAt: r.CreatedAt,
	}
}

type inviteRow struct {
	ID        string     `gorm:"column:id"`
	OrgID     string     `gorm:"column:org_id"`
	Email     string     `gorm:"column:email"`
	Role      string     `gorm:"column:role"`
	Token     string     `gorm:"column:token"`
	ExpiresAt *time.Time `gorm:"column:expires_at"`
}

type acceptRow struct {
	OrgID        string `gorm:"column:org_id"`
	MembershipID string `gorm:"column:membership_id"`
	Email        string `gorm:"column:email"`
	Role         string `gorm:"column:role"`
}

// asCaller runs fn in a transaction bound to the caller's claims.
func (s *Store) asCaller(ctx context.Context, fn func(tx *gorm.DB) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithCaller(tx, s.claimsJSON); err != nil {
			return err
		}
		return fn(tx)
	})
	return toStoreError(err)
}

func (s *Store) CurrentUser(ctx context.Context) (*datastore.User, error) {
	return &datastore.User{ID: s.claims.Subject, Email: datastore.NormalizeEmail(s.claims.Email)}, nil
}

func (s *Store) GetMembership(ctx context.Context, orgID, userID string) (*datastore.Membership, error) {
	var rows []membershipRow
	err := s.asCaller(ctx, func(tx *gorm.DB) error {
		return tx.Raw(`
			SELECT org_id, user_id, role, created_at
			FROM memberships
			WHERE org_id = ? AND user_id = ?
			LIMIT 1`,
			orgID, userID,
		).Scan(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	m := rows[0].membership()
	return &m, nil
}

func (s *Store) ListMyMemberships(ctx context.Context) ([]datastore.Membership, error) {
	var rows []membershipRow
	err := s.asCaller(ctx, func(tx *gorm.DB) error {
		return tx.Raw(`
			SELECT org_id, user_id, role, created_at
			FROM memberships
			WHERE user_id = ?
			ORDER BY created_at ASC`,
			s.claims.Subject,
		).Scan(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	out := make([]datastore.Membership, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.membership())
	}
	return out, nil
}

func (s *Store) ListMembers(ctx context.Context, orgID string) ([]datastore.Member, error) {
	var rows []membershipRow
	err := s.asCaller(ctx, func(tx *gorm.DB) error {
		return tx.Raw(`
			SELECT m.org_id, m.user_id, m.role, m.created_at, p.email
			FROM memberships m
			LEFT JOIN profiles p ON p.id = m.user_id
			WHERE m.org_id = ?
			ORDER BY m.created_at DESC`,
			orgID,
		).Scan(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	out := make([]datastore.Member, 0, len(rows))
	for _, row := range rows {
		m := row.membership()
		out = append(out, datastore.Member{
			OrgID:     m.OrgID,
			UserID:    m.UserID,
			Role:      m.Role,
			Email:     row.Email.String,
			CreatedAt: m.CreatedAt,
		})
	}
	return out, nil
}

func (s *Store) CreateInvite(ctx context.Context, orgID, email string, role datastore.Role) (*datastore.Invite, error) {
	var rows []inviteRow
	err := s.asCaller(ctx, func(tx *gorm.DB) error {
		return tx.Raw(
			`SELECT id::text AS id, org_id::text AS org_id, email, role::text AS role, token, expires_at
			FROM public.create_invite(p_org => ?, p_email => ?, p_role => ?)`,
			orgID, email, string(role),
		).Scan(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return &datastore.Invite{OrgID: orgID, Email: email, Role: role}, nil
	}
	row := rows[0]
	return &datastore.Invite{
		ID:        row.ID,
		OrgID:     row.OrgID,
		Email:     row.Email,
		Role:      datastore.Role(strings.ToUpper(row.Role)),
		Token:     row.Token,
		ExpiresAt: row.ExpiresAt,
	}, nil
}

func (s *Store) AcceptInvite(ctx context.Context, token string) (*datastore.AcceptedInvite, error) {
	var rows []acceptRow
	err := s.asCaller(ctx, func(tx *gorm.DB) error {
		return tx.Raw(
			`SELECT org_id::text AS org_id, membership_id::text AS membership_id, email, role::text AS role
			FROM public.accept_invite(p_token => ?)`,
			token,
		).Scan(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return &datastore.AcceptedInvite{}, nil
	}
	row := rows[0]
	return &datastore.AcceptedInvite{
		OrgID:        row.OrgID,
		MembershipID: row.MembershipID,
		Email:        row.Email,
		Role:         datastore.Role(strings.ToUpper(row.Role)),
	}, nil
}

func (s *Store) ResendInvite(ctx context.Context, orgID, email string) (string, error) {
	var token sql.NullString
	err := s.asCaller(ctx, func(tx *gorm.DB) error {
		return tx.Raw(
			`SELECT public.resend_invite(p_org_id => ?, p_email => ?)::text`,
			orgID, email,
		).Row().Scan(&token)
	})
	if err != nil {
		return "", err
	}
	return token.String, nil
}

func (s *Store) RevokeInvite(ctx context.Context, token string) error {
	return s.asCaller(ctx, func(tx *gorm.DB) error {
		return tx.Exec(`SELECT public.revoke_invite(p_token => ?)`, token).Error
	})
}

func (s *Store) UpdateMemberRole(ctx context.Context, orgID, userID string, role datastore.Role) error {
	return s.asCaller(ctx, func(tx *gorm.DB) error {
		return tx.Exec(
			`SELECT public.update_member_role(p_org => ?, p_target => ?, p_role => ?)`,
			orgID, userID, string(role),
		).Error
	})
}

func (s *Store) DeleteMember(ctx context.Context, orgID, userID string) error {
	return s.asCaller(ctx, func(tx *gorm.DB) error {
		return tx.Exec(
			`SELECT public.delete_member(p_org => ?, p_target => ?)`,
			orgID, userID,
		).Error
	})
}

func (s *Store) HasPermission(ctx context.Context, permission, orgID string) (bool, error) {
	var allowed sql.NullBool
	err := s.asCaller(ctx, func(tx *gorm.DB) error {
		return tx.Raw(
			`SELECT public.has_permission(p_perm => ?, p_org => ?)`,
			permission, orgID,
		).Row().Scan(&allowed)
	})
	return allowed.Valid && allowed.Bool, err
}

// toStoreError converts driver errors into datastore.Error so callers can
// classify them by SQLSTATE.
func toStoreError(err error) error {
	if err == nil {
		return nil
	}
	var dsErr *datastore.Error
	if errors.As(err, &dsErr) {
		return dsErr
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &datastore.Error{
			Code:    pgErr.Code,
			Message: pgErr.Message,
			Details: pgErr.Detail,
			Hint:    pgErr.Hint,
		}
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, sql.ErrNoRows):
		return &datastore.Error{Code: "P0002", Message: "not found"}
	case db.IsDuplicateKeyErr(err):
		return &datastore.Error{Code: "23505", Message: "duplicate key", Details: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return &datastore.Error{Code: datastore.CodeTimeout, Message: "data store timeout", Details: err.Error()}
	default:
		return &datastore.Error{Code: datastore.CodeTransport, Message: "data store unavailable", Details: fmt.Sprintf("%v", err)}
	}
}
