package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/smallbiznis/orgaccess/internal/datastore"
	"github.com/smallbiznis/orgaccess/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const testSecret = "test-secret-with-enough-entropy"

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.NewTest(t.Name())
	require.NoError(t, err)

	require.NoError(t, conn.Exec(`CREATE TABLE profiles (id TEXT PRIMARY KEY, email TEXT)`).Error)
	require.NoError(t, conn.Exec(`CREATE TABLE memberships (
		org_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		role TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (org_id, user_id)
	)`).Error)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seed := []struct {
		org, user, role string
		offset          time.Duration
	}{
		{"org1", "alice", "ADMIN", 0},
		{"org1", "bob", "CUSTOMER", time.Hour},
		{"org2", "alice", "TEAM", 2 * time.Hour},
	}
	for _, s := range seed {
		require.NoError(t, conn.Exec(`INSERT INTO memberships (org_id, user_id, role, created_at) VALUES (?, ?, ?, ?)`,
			s.org, s.user, s.role, base.Add(s.offset)).Error)
	}
	require.NoError(t, conn.Exec(`INSERT INTO profiles (id, email) VALUES ('alice', 'alice@example.com')`).Error)
	return conn
}

func sign(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims(sub, email string) Claims {
	return Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestForTokenVerifiesSignature(t *testing.T) {
	conn := NewConnector(setupDB(t), testSecret, zaptest.NewLogger(t))

	_, err := conn.ForToken(sign(t, "other-secret", validClaims("alice", "alice@example.com")))
	assert.Equal(t, datastore.KindUnauthenticated, datastore.KindOf(err))

	expired := validClaims("alice", "alice@example.com")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	_, err = conn.ForToken(sign(t, testSecret, expired))
	assert.Equal(t, datastore.KindUnauthenticated, datastore.KindOf(err))

	_, err = conn.ForToken(sign(t, testSecret, validClaims("", "x@example.com")))
	assert.Equal(t, datastore.KindUnauthenticated, datastore.KindOf(err))

	store, err := conn.ForToken(sign(t, testSecret, validClaims("alice", "Alice@Example.com")))
	require.NoError(t, err)
	user, err := store.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", user.ID)
	assert.Equal(t, "alice@example.com", user.Email)
}

func TestNewConnectorRequiresSecret(t *testing.T) {
	_, err := NewConnector(nil, "", nil).ForToken("tok")
	assert.ErrorIs(t, err, datastore.ErrNotConfigured)
}

func TestMembershipReads(t *testing.T) {
	conn := NewConnector(setupDB(t), testSecret, zaptest.NewLogger(t))
	store, err := conn.ForToken(sign(t, testSecret, validClaims("alice", "alice@example.com")))
	require.NoError(t, err)
	ctx := context.Background()

	m, err := store.GetMembership(ctx, "org1", "alice")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, datastore.RoleAdmin, m.Role)

	missing, err := store.GetMembership(ctx, "org3", "alice")
	require.NoError(t, err)
	assert.Nil(t, missing)

	members, err := store.ListMembers(ctx, "org1")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "bob", members[0].UserID)
	assert.Empty(t, members[0].Email)
	assert.Equal(t, "alice@example.com", members[1].Email)

	mine, err := store.ListMyMemberships(ctx)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "org1", mine[0].OrgID)
	assert.Equal(t, datastore.RoleTeam, mine[1].Role)
}

func TestToStoreErrorKeepsSQLState(t *testing.T) {
	err := toStoreError(&pgconn.PgError{Code: "PT410", Message: "invite already used"})
	dsErr, ok := datastore.AsError(err)
	require.True(t, ok)
	assert.Equal(t, "PT410", dsErr.Code)
	assert.Equal(t, datastore.KindGone, dsErr.Kind())

	assert.Equal(t, datastore.KindForbidden, datastore.KindOf(toStoreError(&pgconn.PgError{Code: "42501"})))
	assert.Equal(t, datastore.KindNotFound, datastore.KindOf(toStoreError(gorm.ErrRecordNotFound)))
	assert.Equal(t, datastore.KindTransport, datastore.KindOf(toStoreError(errors.New("connection refused"))))
	assert.NoError(t, toStoreError(nil))
}
