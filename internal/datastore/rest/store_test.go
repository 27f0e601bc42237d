package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smallbiznis/orgaccess/internal/config"
	"github.com/smallbiznis/orgaccess/internal/datastore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestStore(t *testing.T, handler http.HandlerFunc) datastore.Store {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	conn := NewConnector(config.DatastoreConfig{URL: srv.URL + "/", AnonKey: "anon", Timeout: time.Second}, srv.Client(), zaptest.NewLogger(t))
	store, err := conn.ForToken("caller-token")
	require.NoError(t, err)
	return store
}

func TestNewConnectorUnconfigured(t *testing.T) {
	conn := NewConnector(config.DatastoreConfig{}, nil, nil)
	_, err := conn.ForToken("tok")
	require.ErrorIs(t, err, datastore.ErrNotConfigured)
	assert.Contains(t, err.Error(), "SUPABASE_URL")
	assert.Contains(t, err.Error(), "SUPABASE_ANON_KEY")
}

func TestCreateInviteForwardsCallerIdentity(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/rpc/create_invite", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "anon", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer caller-token", r.Header.Get("Authorization"))

		var params map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		assert.Equal(t, map[string]string{"p_org": "org1", "p_email": "bob@example.com", "p_role": "CUSTOMER"}, params)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":42,"org_id":"org1","email":"bob@example.com","role":"customer","token":"tok-1"}]`))
	})

	invite, err := store.CreateInvite(context.Background(), "org1", "bob@example.com", datastore.RoleCustomer)
	require.NoError(t, err)
	assert.Equal(t, "42", invite.ID)
	assert.Equal(t, "tok-1", invite.Token)
	assert.Equal(t, datastore.RoleCustomer, invite.Role)
}

func TestAcceptInviteDecodesPostgrestError(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"P0001","message":"invite already used","details":null,"hint":null}`))
	})

	_, err := store.AcceptInvite(context.Background(), "tok-1")
	require.Error(t, err)
	dsErr, ok := datastore.AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, dsErr.Status)
	assert.Equal(t, "P0001", dsErr.Code)
	assert.Equal(t, datastore.KindGone, dsErr.Kind())
}

func TestAcceptInviteObjectResponse(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		var params map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		assert.Equal(t, "a b+c", params["p_token"])
		_, _ = w.Write([]byte(`{"org_id":"org1","membership_id":"m-1","email":"bob@example.com","role":"CUSTOMER"}`))
	})

	accepted, err := store.AcceptInvite(context.Background(), "a b+c")
	require.NoError(t, err)
	assert.Equal(t, "org1", accepted.OrgID)
	assert.Equal(t, "m-1", accepted.MembershipID)
}

func TestResendInviteAcceptsScalarOrObject(t *testing.T) {
	bodies := []string{`"tok-2"`, `{"token":"tok-2"}`, `[{"token":"tok-2"}]`}
	for _, body := range bodies {
		store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
			var params map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
			assert.Equal(t, "org1", params["p_org_id"])
			_, _ = w.Write([]byte(body))
		})
		token, err := store.ResendInvite(context.Background(), "org1", "bob@example.com")
		require.NoError(t, err, body)
		assert.Equal(t, "tok-2", token, body)
	}
}

func TestListMembersQuery(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/memberships", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "eq.org1", q.Get("org_id"))
		assert.Equal(t, "created_at.desc", q.Get("order"))
		assert.Contains(t, q.Get("select"), "profiles(email)")
		_, _ = w.Write([]byte(`[
			{"org_id":"org1","user_id":"u2","role":"CUSTOMER","created_at":"2024-02-01T00:00:00Z","profiles":{"email":"bob@example.com"}},
			{"org_id":"org1","user_id":"u1","role":"ADMIN","created_at":"2024-01-01T00:00:00Z","profiles":null}
		]`))
	})

	members, err := store.ListMembers(context.Background(), "org1")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "bob@example.com", members[0].Email)
	assert.Equal(t, datastore.RoleAdmin, members[1].Role)
	assert.Empty(t, members[1].Email)
}

func TestCurrentUserAndMembership(t *testing.T) {
	calls := 0
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		switch r.URL.Path {
		case "/auth/v1/user":
			_, _ = w.Write([]byte(`{"id":"u1","email":"Alice@Example.com"}`))
		case "/rest/v1/memberships":
			assert.Equal(t, "eq.u1", r.URL.Query().Get("user_id"))
			_, _ = w.Write([]byte(`[]`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	ctx := context.Background()
	user, err := store.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)

	_, err = store.CurrentUser(ctx)
	require.NoError(t, err)

	membership, err := store.GetMembership(ctx, "org1", user.ID)
	require.NoError(t, err)
	assert.Nil(t, membership)
	assert.Equal(t, 2, calls)
}

func TestAuthErrorShape(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":401,"error_code":"bad_jwt","msg":"invalid JWT"}`))
	})
	_, err := store.CurrentUser(context.Background())
	assert.Equal(t, datastore.KindUnauthenticated, datastore.KindOf(err))
}

func TestTimeoutIsTransportError(t *testing.T) {
	block := make(chan struct{})
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		<-block
	})
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := store.RevokeInvite(ctx, "tok")
	dsErr, ok := datastore.AsError(err)
	require.True(t, ok)
	assert.Equal(t, datastore.CodeTimeout, dsErr.Code)
	assert.Equal(t, datastore.KindTransport, dsErr.Kind())
}
