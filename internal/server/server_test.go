package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/orgaccess/internal/authorization"
	"github.com/smallbiznis/orgaccess/internal/config"
	"github.com/smallbiznis/orgaccess/internal/datastore"
	"github.com/smallbiznis/orgaccess/internal/datastore/memstore"
	inviteservice "github.com/smallbiznis/orgaccess/internal/invite/service"
	membershipservice "github.com/smallbiznis/orgaccess/internal/membership/service"
	"github.com/smallbiznis/orgaccess/internal/observability"
	"github.com/smallbiznis/orgaccess/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const appOrigin = "https://app.example.com"

type testEnv struct {
	engine *gin.Engine
	mem    *memstore.Memory
}

func newTestEngine(t *testing.T, connector datastore.Connector, limiter *ratelimit.Limiter) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zaptest.NewLogger(t)

	cfg := config.Config{App: config.AppConfig{
		Origin:         appOrigin,
		AcceptPath:     "/accept-invite",
		PostAcceptPath: "/dashboard",
	}}
	authz, err := authorization.NewService(authorization.Params{
		Log:    log,
		Policy: config.NewStaticAccessPolicyHolder(config.DefaultAccessPolicy()),
	})
	require.NoError(t, err)

	engine := NewEngine(observability.Config{Environment: "test"}, nil, log)
	NewServer(ServerParams{
		Gin:       engine,
		Cfg:       cfg,
		Connector: connector,
		InviteSvc: inviteservice.NewService(inviteservice.Params{
			Log:    log,
			Config: cfg,
			Authz:  authz,
		}),
		MembershipSvc: membershipservice.NewService(membershipservice.Params{Log: log}),
		Limiter:       limiter,
	})
	return engine
}

func seededEnv(t *testing.T) testEnv {
	t.Helper()
	mem := memstore.New()
	mem.AddUser("alice-token", "alice", "alice@example.com")
	mem.AddUser("bob-token", "bob", "bob@example.com")
	mem.AddUser("carol-token", "carol", "carol@example.com")
	mem.AddMembership("org1", "alice", datastore.RoleAdmin)
	mem.AddMembership("org1", "carol", datastore.RoleCustomer)
	return testEnv{engine: newTestEngine(t, mem, nil), mem: mem}
}

func (e testEnv) do(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", appOrigin)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestInviteScenario(t *testing.T) {
	env := seededEnv(t)

	rec := env.do(t, http.MethodPost, "/.netlify/functions/createInvite", "alice-token", map[string]any{
		"p_org":     "org1",
		"email":     "Bob@Example.com",
		"p_role":    "customer",
		"sendEmail": false,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, appOrigin, rec.Header().Get("Access-Control-Allow-Origin"))

	created := decode(t, rec)
	invite := created["invite"].(map[string]any)
	assert.Equal(t, "CUSTOMER", invite["role"])
	assert.Equal(t, "bob@example.com", invite["email"])
	assert.Equal(t, false, created["email"].(map[string]any)["attempted"])

	acceptURL, err := url.Parse(created["acceptUrl"].(string))
	require.NoError(t, err)
	token := acceptURL.Query().Get("token")
	require.NotEmpty(t, token)

	target := "/.netlify/functions/acceptInvite?noRedirect=1&token=" + url.QueryEscape(token)
	rec = env.do(t, http.MethodGet, target, "bob-token", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	accepted := decode(t, rec)
	assert.Equal(t, true, accepted["success"])
	assert.Equal(t, "org1", accepted["org_id"])
	assert.Equal(t, "CUSTOMER", accepted["role"])

	rec = env.do(t, http.MethodGet, target, "bob-token", nil)
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Equal(t, "invite_gone", decode(t, rec)["code"])
}

func TestAcceptRedirectsByDefault(t *testing.T) {
	env := seededEnv(t)
	rec := env.do(t, http.MethodPost, "/.netlify/functions/createInvite", "alice-token", map[string]any{
		"org_id": "org1", "email": "bob@example.com", "role": "TEAM", "sendEmail": "false",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	acceptURL, err := url.Parse(decode(t, rec)["acceptUrl"].(string))
	require.NoError(t, err)

	rec = env.do(t, http.MethodGet, "/.netlify/functions/acceptInvite?"+acceptURL.RawQuery, "bob-token", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, appOrigin+"/dashboard", rec.Header().Get("Location"))
}

func TestAcceptFailuresAreJSON(t *testing.T) {
	env := seededEnv(t)

	rec := env.do(t, http.MethodGet, "/.netlify/functions/acceptInvite", "bob-token", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_token", decode(t, rec)["code"])

	rec = env.do(t, http.MethodGet, "/.netlify/functions/acceptInvite?token=abc&noRedirect=maybe", "bob-token", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_output_mode", decode(t, rec)["code"])

	rec = env.do(t, http.MethodGet, "/.netlify/functions/acceptInvite?token=unknown", "bob-token", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
}

func TestBearerRequiredBeforeAnyWork(t *testing.T) {
	env := seededEnv(t)

	rec := env.do(t, http.MethodPost, "/.netlify/functions/createInvite", "", `{not json`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "unauthenticated", body["code"])
	assert.NotEmpty(t, body["error"])

	rec = env.do(t, http.MethodGet, "/.netlify/functions/listMemberships?org_id=org1", "unknown-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, env.mem.Calls())
}

func TestBearerToken(t *testing.T) {
	for _, header := range []string{"Bearer abc", "bearer abc", "BEARER   abc  ", "  Bearer abc"} {
		token, ok := bearerToken(header)
		assert.True(t, ok, header)
		assert.Equal(t, "abc", token)
	}
	for _, header := range []string{"", "Bearer", "Bearer   ", "Basic abc", "abc"} {
		_, ok := bearerToken(header)
		assert.False(t, ok, header)
	}
}

func TestMalformedJSON(t *testing.T) {
	env := seededEnv(t)
	for _, path := range []string{"createInvite", "invites-resend", "invites-revoke", "updateMemberRole", "deleteMember"} {
		rec := env.do(t, http.MethodPost, "/.netlify/functions/"+path, "alice-token", `{"p_org":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		assert.Equal(t, "Invalid JSON body", decode(t, rec)["error"], path)
	}
	assert.Empty(t, env.mem.Calls())
}

func TestCreateInviteValidationAndAuthorization(t *testing.T) {
	env := seededEnv(t)

	rec := env.do(t, http.MethodPost, "/.netlify/functions/createInvite", "alice-token", map[string]any{
		"org_id": "org1", "email": "dave@example.com", "role": "OWNER",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_role", decode(t, rec)["code"])

	rec = env.do(t, http.MethodPost, "/.netlify/functions/createInvite", "carol-token", map[string]any{
		"org_id": "org1", "email": "dave@example.com", "role": "TEAM",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	assert.Empty(t, env.mem.Calls())
	assert.Zero(t, env.mem.PendingInvites("org1"))
}

func TestCustomerCannotChangeMembers(t *testing.T) {
	env := seededEnv(t)

	rec := env.do(t, http.MethodPost, "/.netlify/functions/updateMemberRole", "carol-token", map[string]any{
		"p_org": "org1", "p_target": "alice", "p_role": "CUSTOMER",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "PT403", decode(t, rec)["code"])

	rec = env.do(t, http.MethodPost, "/.netlify/functions/deleteMember", "carol-token", map[string]any{
		"p_org": "org1", "p_target": "alice",
	})
	assert.NotEqual(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/.netlify/functions/listMemberships?org_id=org1", "alice-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode(t, rec)["items"].([]any)
	require.Len(t, items, 2)
	roles := map[string]any{}
	for _, item := range items {
		row := item.(map[string]any)
		roles[row["user_id"].(string)] = row["role"]
	}
	assert.Equal(t, map[string]any{"alice": "ADMIN", "carol": "CUSTOMER"}, roles)
}

func TestAdminMembershipMutations(t *testing.T) {
	env := seededEnv(t)

	rec := env.do(t, http.MethodPost, "/.netlify/functions/updateMemberRole", "alice-token", map[string]any{
		"p_org": "org1", "p_target": "carol", "p_role": "team",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decode(t, rec)["ok"])

	rec = env.do(t, http.MethodPost, "/.netlify/functions/deleteMember", "alice-token", map[string]any{
		"p_org": "org1", "p_target": "alice",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	for i := 0; i < 2; i++ {
		rec = env.do(t, http.MethodPost, "/.netlify/functions/deleteMember", "alice-token", map[string]any{
			"org_id": "org1", "user_id": "carol",
		})
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestResendRevokeAndQueries(t *testing.T) {
	env := seededEnv(t)

	rec := env.do(t, http.MethodPost, "/.netlify/functions/createInvite", "alice-token", map[string]any{
		"org_id": "org1", "email": "bob@example.com", "role": "TEAM", "sendEmail": false,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/.netlify/functions/invites-resend", "alice-token", map[string]any{
		"p_org_id": "org1", "p_email": "BOB@example.com", "sendEmail": false,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resent := decode(t, rec)
	token := resent["token"].(string)
	assert.NotEmpty(t, token)
	assert.Contains(t, resent["acceptUrl"], url.QueryEscape(token))

	rec = env.do(t, http.MethodPost, "/.netlify/functions/invites-resend", "alice-token", map[string]any{
		"org_id": "org1", "email": "nobody@example.com",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/.netlify/functions/invites-resend", "carol-token", map[string]any{
		"org_id": "org1", "email": "bob@example.com",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/.netlify/functions/invites-revoke", "alice-token", map[string]any{"p_token": token})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["success"])

	rec = env.do(t, http.MethodGet, "/.netlify/functions/listMyOrganizations", "carol-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode(t, rec)["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, map[string]any{"org_id": "org1", "role": "CUSTOMER"}, items[0])

	rec = env.do(t, http.MethodGet, "/.netlify/functions/checkPermission?perm=invite:create&org_id=org1", "alice-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["allowed"])

	rec = env.do(t, http.MethodGet, "/.netlify/functions/checkPermission?perm=invite:create&org_id=org1", "carol-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["allowed"])
}

func TestPreflight(t *testing.T) {
	env := seededEnv(t)
	req := httptest.NewRequest(http.MethodOptions, "/.netlify/functions/createInvite", nil)
	req.Header.Set("Origin", "https://other.example.com")
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "https://other.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Values("Vary"), "Origin")
}

func TestCORSAllowList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", CORS([]string{appOrigin}), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", appOrigin)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, appOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnconfiguredBackend(t *testing.T) {
	engine := newTestEngine(t, datastore.Unconfigured("SUPABASE_URL"), nil)
	env := testEnv{engine: engine}

	rec := env.do(t, http.MethodGet, "/.netlify/functions/listMemberships?org_id=org1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/.netlify/functions/listMemberships?org_id=org1", "token", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "configuration_error", decode(t, rec)["code"])
}

func TestAcceptRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := config.Config{RateLimit: config.RateLimitConfig{AcceptPerMinute: 1}}
	limiter := ratelimit.NewLimiter(cfg, client, zaptest.NewLogger(t))
	mem := memstore.New(memstore.WithAutoRegister())
	env := testEnv{engine: newTestEngine(t, mem, limiter), mem: mem}

	rec := env.do(t, http.MethodGet, "/.netlify/functions/acceptInvite?token=guess-1&noRedirect=1", "mallory", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/.netlify/functions/acceptInvite?token=guess-2&noRedirect=1", "mallory", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", decode(t, rec)["code"])
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	rec = env.do(t, http.MethodGet, "/.netlify/functions/acceptInvite?token=guess-3&noRedirect=1", "trent", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPanicRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := NewEngine(observability.Config{}, nil, zaptest.NewLogger(t))
	engine.GET("/boom", func(c *gin.Context) { panic("boom") })

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}
