package service

import (
	"context"
	"testing"

	auditdomain "github.com/smallbiznis/orgaccess/internal/audit/domain"
	obscontext "github.com/smallbiznis/orgaccess/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAuditLogWritesMaskedEvent(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	svc := NewService(Params{Log: zap.New(core)})

	ctx := obscontext.WithOrgID(context.Background(), "org1")
	err := svc.AuditLog(ctx, auditdomain.Event{
		Action:     auditdomain.ActionInviteCreate,
		ActorID:    "alice",
		TargetType: auditdomain.TargetInvite,
		TargetID:   "inv-1",
		Metadata:   map[string]any{"email": "bob@example.com", "role": "TEAM"},
	})
	require.NoError(t, err)

	entries := logs.FilterMessage("audit").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "invite.create", fields["action"])
	assert.Equal(t, "org1", fields["org_id"])
	assert.Equal(t, "alice", fields["actor_id"])
	assert.Equal(t, "inv-1", fields["target_id"])
	assert.Equal(t, "b****@example.com", fields["meta.email"])
	assert.Equal(t, "TEAM", fields["meta.role"])
}

func TestAuditLogRequiresAction(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	svc := NewService(Params{Log: zap.New(core)})

	err := svc.AuditLog(context.Background(), auditdomain.Event{Action: " "})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
	assert.Zero(t, logs.Len())
}
