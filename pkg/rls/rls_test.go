package rls

import (
	"testing"

	"github.com/smallbiznis/orgaccess/pkg/db"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestWithCallerSkipsNonPostgres(t *testing.T) {
	conn, err := db.NewTest(t.Name())
	require.NoError(t, err)

	err = conn.Transaction(func(tx *gorm.DB) error {
		return WithCaller(tx, `{"sub":"u1"}`)
	})
	require.NoError(t, err)
}
