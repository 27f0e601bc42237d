package datastore

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKindPrefersStructuredCodes(t *testing.T) {
	cases := []struct {
		name string
		err  *Error
		want Kind
	}{
		{"custom gone status", &Error{Status: http.StatusBadRequest, Code: "PT410", Message: "invalid token"}, KindGone},
		{"custom forbidden status", &Error{Code: "PT403", Message: "expired"}, KindForbidden},
		{"insufficient privilege", &Error{Status: http.StatusBadRequest, Code: "42501", Message: "used"}, KindForbidden},
		{"jwt rejected", &Error{Code: "PGRST301"}, KindUnauthenticated},
		{"no data found", &Error{Code: "P0002"}, KindNotFound},
		{"unique violation", &Error{Code: "23505"}, KindConflict},
		{"invalid parameter", &Error{Code: "22023"}, KindInvalid},
		{"transport", &Error{Code: CodeTimeout}, KindTransport},
		{"http status", &Error{Status: http.StatusUnauthorized, Code: "P0001"}, KindUnauthenticated},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.err.Kind())
		})
	}
}

func TestErrorKindFallsBackToMessage(t *testing.T) {
	cases := map[string]Kind{
		"not_authenticated":       KindUnauthenticated,
		"Invite already used":     KindGone,
		"invite expired":          KindGone,
		"invite revoked":          KindGone,
		"invalid invite token":    KindInvalid,
		"not authorized":          KindForbidden,
		"something else happened": KindUpstream,
		"unused_column":           KindUpstream,
	}
	for msg, want := range cases {
		err := &Error{Status: http.StatusBadRequest, Code: "P0001", Message: msg}
		assert.Equal(t, want, err.Kind(), msg)
	}
}

func TestKindOfUnwraps(t *testing.T) {
	wrapped := fmt.Errorf("accept: %w", &Error{Code: "PT410"})
	assert.Equal(t, KindGone, KindOf(wrapped))
	assert.Equal(t, KindUpstream, KindOf(errors.New("boom")))

	dsErr, ok := AsError(wrapped)
	require.True(t, ok)
	assert.Equal(t, "PT410", dsErr.Code)
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole(" admin ")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, role)

	_, err = ParseRole("OWNER")
	assert.ErrorIs(t, err, ErrInvalidRole)

	assert.True(t, RoleAdmin.AtLeast(RoleTeam))
	assert.True(t, RoleTeam.AtLeast(RoleTeam))
	assert.False(t, RoleCustomer.AtLeast(RoleTeam))
	assert.False(t, Role("OWNER").AtLeast(RoleCustomer))
}

func TestUnconfiguredConnector(t *testing.T) {
	_, err := Unconfigured("SUPABASE_URL").ForToken("tok")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Contains(t, err.Error(), "SUPABASE_URL")
}
