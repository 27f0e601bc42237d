package authorization

import (
	"context"
	"testing"

	"github.com/smallbiznis/orgaccess/internal/config"
	"github.com/smallbiznis/orgaccess/internal/datastore"
	"github.com/smallbiznis/orgaccess/internal/datastore/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestService(t *testing.T, policy config.AccessPolicy) *Service {
	t.Helper()
	svc, err := NewService(Params{
		Log:    zaptest.NewLogger(t),
		Policy: config.NewStaticAccessPolicyHolder(policy),
	})
	require.NoError(t, err)
	return svc
}

func TestDefaultPolicy(t *testing.T) {
	svc := newTestService(t, config.DefaultAccessPolicy())

	assert.True(t, svc.Allowed(datastore.RoleAdmin, ObjectInvite, ActionCreate))
	assert.True(t, svc.Allowed(datastore.RoleAdmin, ObjectMember, ActionDelete))
	assert.True(t, svc.Allowed(datastore.RoleTeam, ObjectMember, ActionView))
	assert.False(t, svc.Allowed(datastore.RoleTeam, ObjectInvite, ActionCreate))
	assert.False(t, svc.Allowed(datastore.RoleCustomer, ObjectMember, ActionView))
	assert.False(t, svc.Allowed(datastore.Role("OWNER"), ObjectInvite, ActionCreate))

	assert.True(t, svc.Permits(datastore.RoleAdmin, "Invite:Revoke"))
	assert.False(t, svc.Permits(datastore.RoleAdmin, "invite"))
}

func TestWildcardActionAndReload(t *testing.T) {
	svc := newTestService(t, config.AccessPolicy{Roles: map[string][]string{
		"ADMIN": {"member:*"},
	}})
	assert.True(t, svc.Allowed(datastore.RoleAdmin, ObjectMember, ActionDelete))
	assert.False(t, svc.Allowed(datastore.RoleTeam, ObjectMember, ActionView))

	require.NoError(t, svc.Reload(config.AccessPolicy{Roles: map[string][]string{
		"ADMIN": {"member:view"},
	}}))
	assert.False(t, svc.Allowed(datastore.RoleAdmin, ObjectMember, ActionDelete))
	assert.True(t, svc.Allowed(datastore.RoleAdmin, ObjectMember, ActionView))
}

func TestInviteActionsStayAdminOnly(t *testing.T) {
	svc := newTestService(t, config.AccessPolicy{Roles: map[string][]string{
		"ADMIN": {"member:view"},
		"TEAM":  {"invite:create", "invite:*"},
	}})

	for _, action := range []string{ActionCreate, ActionResend, ActionRevoke} {
		assert.True(t, svc.Allowed(datastore.RoleAdmin, ObjectInvite, action), action)
		assert.False(t, svc.Allowed(datastore.RoleTeam, ObjectInvite, action), action)
		assert.False(t, svc.Allowed(datastore.RoleCustomer, ObjectInvite, action), action)
	}
	assert.False(t, svc.Permits(datastore.RoleTeam, "invite:create"))
	assert.True(t, svc.Permits(datastore.RoleAdmin, "invite:create"))
}

func TestRequireRole(t *testing.T) {
	svc := newTestService(t, config.DefaultAccessPolicy())
	mem := memstore.New()
	mem.AddUser("alice-token", "alice", "alice@example.com")
	mem.AddUser("carol-token", "carol", "carol@example.com")
	mem.AddUser("eve-token", "eve", "eve@example.com")
	mem.AddMembership("org1", "alice", datastore.RoleAdmin)
	mem.AddMembership("org1", "carol", datastore.RoleCustomer)
	ctx := context.Background()

	alice, err := mem.ForToken("alice-token")
	require.NoError(t, err)
	membership, err := svc.RequireRole(ctx, alice, "org1", ObjectInvite, ActionCreate)
	require.NoError(t, err)
	assert.Equal(t, datastore.RoleAdmin, membership.Role)

	carol, err := mem.ForToken("carol-token")
	require.NoError(t, err)
	_, err = svc.RequireRole(ctx, carol, "org1", ObjectInvite, ActionCreate)
	assert.ErrorIs(t, err, ErrForbidden)

	eve, err := mem.ForToken("eve-token")
	require.NoError(t, err)
	_, err = svc.RequireRole(ctx, eve, "org1", ObjectInvite, ActionCreate)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.RequireRole(ctx, alice, " ", ObjectInvite, ActionCreate)
	assert.ErrorIs(t, err, ErrInvalidOrganization)

	assert.Empty(t, mem.Calls())
}
