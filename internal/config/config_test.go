package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATASTORE_BACKEND", "")
	t.Setenv("APP_ORIGIN", "")
	t.Setenv("EMAIL_PROVIDER", "")

	cfg := Load()

	assert.Equal(t, BackendREST, cfg.Datastore.Backend)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "/accept-invite", cfg.App.AcceptPath)
	assert.Equal(t, EmailProviderResend, cfg.Email.Provider)
	assert.Equal(t, 10*time.Second, cfg.Email.Timeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATASTORE_BACKEND", "PG")
	t.Setenv("SUPABASE_URL", "https://project.supabase.co/")
	t.Setenv("APP_ORIGIN", "https://app.example.com/")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com/ ,")
	t.Setenv("EMAIL_TIMEOUT", "3s")
	t.Setenv("RATE_LIMIT_ACCEPT_PER_MIN", "nope")

	cfg := Load()

	assert.Equal(t, BackendPostgres, cfg.Datastore.Backend)
	assert.Equal(t, "https://project.supabase.co", cfg.Datastore.URL)
	assert.Equal(t, "https://app.example.com", cfg.App.Origin)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 3*time.Second, cfg.Email.Timeout)
	assert.Equal(t, 20, cfg.RateLimit.AcceptPerMinute)
}

func TestAccessPolicyDefaultsWhenFileMissing(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	holder, err := NewAccessPolicyHolder(Config{AccessPolicyPath: dir}, zaptest.NewLogger(t))
	require.NoError(t, err)

	policy := holder.Get()
	assert.Contains(t, policy.Roles["ADMIN"], "invite:create")
	assert.Empty(t, policy.Roles["CUSTOMER"])
}

func TestAccessPolicyFromFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`access:
  roles:
    admin: ["invite:create", "Member:Delete"]
    team: ["member:view", "Member:Update"]
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "access.yml"), content, 0o600))

	holder, err := NewAccessPolicyHolder(Config{AccessPolicyPath: dir}, zaptest.NewLogger(t))
	require.NoError(t, err)

	policy := holder.Get()
	assert.Equal(t, []string{"invite:create", "member:delete"}, policy.Roles["ADMIN"])
	assert.Equal(t, []string{"member:view", "member:update"}, policy.Roles["TEAM"])
}

func TestAccessPolicyRejectsInviteGrantOutsideAdmin(t *testing.T) {
	for _, perm := range []string{"invite:create", "invite:*", "*:*"} {
		dir := t.TempDir()
		content := []byte("access:\n  roles:\n    admin: [\"invite:create\"]\n    team: [\"" + perm + "\"]\n")
		require.NoError(t, os.WriteFile(filepath.Join(dir, "access.yml"), content, 0o600))

		_, err := NewAccessPolicyHolder(Config{AccessPolicyPath: dir}, zaptest.NewLogger(t))
		assert.ErrorContains(t, err, "reserved for ADMIN", perm)
	}
}

func TestAccessPolicyRejectsMalformedPermission(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`access:
  roles:
    admin: ["invite"]
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "access.yml"), content, 0o600))

	_, err := NewAccessPolicyHolder(Config{AccessPolicyPath: dir}, zaptest.NewLogger(t))
	assert.Error(t, err)
}
