package db

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTestEnforcesUniqueConstraint(t *testing.T) {
	conn, err := NewTest(t.Name())
	require.NoError(t, err)

	require.NoError(t, conn.Exec(`CREATE TABLE items (id TEXT PRIMARY KEY)`).Error)
	require.NoError(t, conn.Exec(`INSERT INTO items (id) VALUES ('a')`).Error)

	err = conn.Exec(`INSERT INTO items (id) VALUES ('a')`).Error
	require.Error(t, err)
	assert.True(t, IsDuplicateKeyErr(err))
	assert.False(t, IsDuplicateKeyErr(errors.New("boom")))
	assert.False(t, IsDuplicateKeyErr(nil))
}

func TestDialectRejectsUnknownType(t *testing.T) {
	_, err := Dialect(Config{Type: "oracle"})
	assert.Error(t, err)
}
