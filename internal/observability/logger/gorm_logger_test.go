package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestOperationFromSQL(t *testing.T) {
	cases := []struct {
		sql       string
		operation string
		procedure string
	}{
		{"SELECT set_config('request.jwt.claims', $1, true)", operationRLS, ""},
		{"SET LOCAL ROLE authenticated", operationRLS, ""},
		{"SELECT token FROM public.create_invite(p_org => $1, p_email => $2, p_role => $3)", operationRPC, "create_invite"},
		{"SELECT public.revoke_invite(p_token => $1)", operationRPC, "revoke_invite"},
		{"WITH m AS (SELECT 1) SELECT * FROM memberships", "SELECT", ""},
		{"  ", operationUnknown, ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.operation, operationFromSQL(tc.sql), tc.sql)
		assert.Equal(t, tc.procedure, procedureFromSQL(tc.sql), tc.sql)
	}
}

func TestGormTraceSkipsCallerBinding(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	l := NewGormLogger(GormLoggerConfig{Level: gormlogger.Info})
	ctx := context.Background()
	begin := time.Now()

	l.Trace(ctx, begin, func() (string, int64) { return "SET LOCAL ROLE authenticated", 0 }, nil)
	assert.Zero(t, logs.Len())

	l.Trace(ctx, begin, func() (string, int64) {
		return "SELECT * FROM public.accept_invite(p_token => $1)", 1
	}, nil)
	entries := logs.TakeAll()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "RPC", fields["operation"])
	assert.Equal(t, "accept_invite", fields["procedure"])

	l.Trace(ctx, begin, func() (string, int64) { return "SET LOCAL ROLE authenticated", 0 }, errors.New("role does not exist"))
	entries = logs.TakeAll()
	require.Len(t, entries, 1)
	assert.Equal(t, "RLS", entries[0].ContextMap()["operation"])
}
