package rls

import (
	"gorm.io/gorm"
)

const authenticatedRole = "authenticated"

// WithCaller binds the verified JWT claims to the current transaction so that
// auth.uid() based policies and procedures evaluate as the caller. It is a no-op
// on dialects without row-level security.
func WithCaller(tx *gorm.DB, claimsJSON string) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	if err := tx.Exec("SELECT set_config('request.jwt.claims', ?, true)", claimsJSON).Error; err != nil {
		return err
	}
	return tx.Exec("SET LOCAL ROLE " + authenticatedRole).Error
}
