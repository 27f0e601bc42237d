package service

import (
	"context"
	"fmt"
	"strings"

	auditdomain "github.com/smallbiznis/orgaccess/internal/audit/domain"
	"github.com/smallbiznis/orgaccess/internal/datastore"
	"github.com/smallbiznis/orgaccess/internal/membership/domain"
	"github.com/smallbiznis/orgaccess/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	actionUpdateRole = "update_role"
	actionDelete     = "delete"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Metrics *metrics.Metrics    `optional:"true"`
	Audit   auditdomain.Service `optional:"true"`
}

type service struct {
	log     *zap.Logger
	metrics *metrics.Metrics
	audit   auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &service{
		log:     p.Log.Named("membership.service"),
		metrics: p.Metrics,
		audit:   p.Audit,
	}
}

func (s *service) List(ctx context.Context, store datastore.Store, orgID string) ([]domain.MemberView, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return nil, domain.ErrMissingOrganization
	}
	members, err := store.ListMembers(ctx, orgID)
	if err != nil {
		return nil, s.upstream("list members", err)
	}
	items := make([]domain.MemberView, 0, len(members))
	for _, m := range members {
		items = append(items, domain.MemberView{
			OrgID:  m.OrgID,
			UserID: m.UserID,
			Role:   string(m.Role),
			Email:  m.Email,
		})
	}
	return items, nil
}

func (s *service) UpdateRole(ctx context.Context, store datastore.Store, req domain.UpdateRoleRequest) error {
	orgID, target, err := requireTarget(req.OrgID, req.TargetID)
	if err != nil {
		return err
	}
	role, err := datastore.ParseRole(req.Role)
	if err != nil {
		return domain.ErrInvalidRole
	}
	if err := store.UpdateMemberRole(ctx, orgID, target, role); err != nil {
		return s.upstream("update_member_role", err)
	}
	s.metrics.RecordMembershipChange(ctx, actionUpdateRole)
	s.record(ctx, auditdomain.Event{
		Action:     auditdomain.ActionMemberRoleUpdate,
		OrgID:      orgID,
		TargetType: auditdomain.TargetMembership,
		TargetID:   target,
		Metadata:   map[string]any{"role": string(role)},
	})
	return nil
}

func (s *service) Delete(ctx context.Context, store datastore.Store, req domain.DeleteRequest) error {
	orgID, target, err := requireTarget(req.OrgID, req.TargetID)
	if err != nil {
		return err
	}
	if err := store.DeleteMember(ctx, orgID, target); err != nil {
		return s.upstream("delete_member", err)
	}
	s.metrics.RecordMembershipChange(ctx, actionDelete)
	s.record(ctx, auditdomain.Event{
		Action:     auditdomain.ActionMemberDelete,
		OrgID:      orgID,
		TargetType: auditdomain.TargetMembership,
		TargetID:   target,
	})
	return nil
}

func (s *service) ListMine(ctx context.Context, store datastore.Store) ([]domain.OrganizationView, error) {
	memberships, err := store.ListMyMemberships(ctx)
	if err != nil {
		return nil, s.upstream("list memberships", err)
	}
	items := make([]domain.OrganizationView, 0, len(memberships))
	for _, m := range memberships {
		items = append(items, domain.OrganizationView{OrgID: m.OrgID, Role: string(m.Role)})
	}
	return items, nil
}

func (s *service) HasPermission(ctx context.Context, store datastore.Store, permission, orgID string) (bool, error) {
	permission = strings.TrimSpace(permission)
	if permission == "" {
		return false, domain.ErrMissingPermission
	}
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return false, domain.ErrMissingOrganization
	}
	allowed, err := store.HasPermission(ctx, permission, orgID)
	if err != nil {
		return false, s.upstream("has_permission", err)
	}
	return allowed, nil
}

func (s *service) upstream(op string, err error) error {
	if datastore.KindOf(err) == datastore.KindUnauthenticated {
		return err
	}
	s.log.Debug("data store rejected request", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%w: %w", domain.ErrUpstream, err)
}

func requireTarget(orgID, target string) (string, string, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return "", "", domain.ErrMissingOrganization
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return "", "", domain.ErrMissingTarget
	}
	return orgID, target, nil
}

func (s *service) record(ctx context.Context, event auditdomain.Event) {
	if s.audit == nil {
		return
	}
	if err := s.audit.AuditLog(ctx, event); err != nil {
		s.log.Warn("audit log failed", zap.String("action", event.Action), zap.Error(err))
	}
}
