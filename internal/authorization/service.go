package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/smallbiznis/orgaccess/internal/config"
	"github.com/smallbiznis/orgaccess/internal/datastore"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

//go:embed model.conf
var modelText string

const (
	ObjectInvite = "invite"
	ObjectMember = "member"
)

const (
	ActionCreate = "create"
	ActionResend = "resend"
	ActionRevoke = "revoke"
	ActionView   = "view"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

type Params struct {
	fx.In

	Log    *zap.Logger
	Policy *config.AccessPolicyHolder
}

// Service decides whether an organization role may act on an object.
// Role membership itself is always read from the data store as the caller.
type Service struct {
	log      *zap.Logger
	enforcer atomic.Pointer[casbin.SyncedEnforcer]
}

func NewService(p Params) (*Service, error) {
	s := &Service{log: p.Log.Named("authorization.service")}
	if err := s.Reload(p.Policy.Get()); err != nil {
		return nil, err
	}
	p.Policy.OnChange(func(policy config.AccessPolicy) {
		if err := s.Reload(policy); err != nil {
			s.log.Error("failed to apply access policy", zap.Error(err))
		}
	})
	return s, nil
}

// Reload swaps in an enforcer seeded from policy.
func (s *Service) Reload(policy config.AccessPolicy) error {
	enforcer, err := NewEnforcer(policy)
	if err != nil {
		return err
	}
	s.enforcer.Store(enforcer)
	return nil
}

func NewEnforcer(policy config.AccessPolicy) (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	rules, err := policyRules(policy)
	if err != nil {
		return nil, err
	}
	if len(rules) > 0 {
		if _, err := enforcer.AddPolicies(rules); err != nil {
			return nil, err
		}
	}
	return enforcer, nil
}

func policyRules(policy config.AccessPolicy) ([][]string, error) {
	roles := make([]string, 0, len(policy.Roles))
	for role := range policy.Roles {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	seen := map[string]struct{}{}
	rules := [][]string{}
	for _, role := range roles {
		for _, perm := range policy.Roles[role] {
			object, action, ok := strings.Cut(perm, ":")
			if !ok || object == "" || action == "" {
				return nil, fmt.Errorf("invalid permission %q for role %s", perm, role)
			}
			rule := []string{subject(datastore.Role(role)), object, action}
			key := strings.Join(rule, "|")
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			rules = append(rules, rule)
		}
	}
	return rules, nil
}

func subject(role datastore.Role) string {
	return "role:" + strings.ToLower(string(role))
}

// Allowed reports whether role grants action on object. Invite actions are
// reserved for ADMIN whatever the loaded policy says.
func (s *Service) Allowed(role datastore.Role, object, action string) bool {
	if object == ObjectInvite {
		return role == datastore.RoleAdmin
	}
	enforcer := s.enforcer.Load()
	if enforcer == nil {
		return false
	}
	ok, err := enforcer.Enforce(subject(role), object, action)
	if err != nil {
		s.log.Warn("policy evaluation failed", zap.String("role", string(role)), zap.Error(err))
		return false
	}
	return ok
}

// Permits evaluates a permission written as "object:action".
func (s *Service) Permits(role datastore.Role, permission string) bool {
	object, action, ok := strings.Cut(strings.ToLower(strings.TrimSpace(permission)), ":")
	if !ok {
		return false
	}
	return s.Allowed(role, object, action)
}

// RequireRole resolves the caller and their membership in orgID through store
// and checks the role grants action on object. Non-members are forbidden.
func (s *Service) RequireRole(ctx context.Context, store datastore.Store, orgID, object, action string) (*datastore.Membership, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return nil, ErrInvalidOrganization
	}
	if strings.TrimSpace(object) == "" {
		return nil, ErrInvalidObject
	}
	if strings.TrimSpace(action) == "" {
		return nil, ErrInvalidAction
	}

	user, err := store.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	membership, err := store.GetMembership(ctx, orgID, user.ID)
	if err != nil {
		return nil, err
	}
	if membership == nil {
		s.log.Debug("authorization denied: not a member",
			zap.String("org_id", orgID),
			zap.String("user_id", user.ID),
			zap.String("object", object),
			zap.String("action", action),
		)
		return nil, ErrForbidden
	}
	if !s.Allowed(membership.Role, object, action) {
		s.log.Debug("authorization denied",
			zap.String("org_id", orgID),
			zap.String("user_id", user.ID),
			zap.String("role", string(membership.Role)),
			zap.String("object", object),
			zap.String("action", action),
		)
		return membership, ErrForbidden
	}
	return membership, nil
}
