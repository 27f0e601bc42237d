package clientsession

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/orgaccess/internal/client"
)

// HTTPAPI adapts the HTTP client to API.
type HTTPAPI struct {
	Client *client.Client
}

func (a HTTPAPI) ListMyOrganizations(ctx context.Context, token string) ([]Organization, error) {
	views, err := a.Client.WithToken(token).ListMyOrganizations(ctx)
	if err != nil {
		return nil, err
	}
	orgs := make([]Organization, 0, len(views))
	for _, v := range views {
		orgs = append(orgs, Organization{OrgID: v.OrgID, Role: v.Role})
	}
	return orgs, nil
}

func (a HTTPAPI) CheckPermission(ctx context.Context, token, permission, orgID string) (bool, error) {
	return a.Client.WithToken(token).CheckPermission(ctx, permission, orgID)
}

var ErrTokenWithoutSubject = errors.New("token_without_subject")

// IdentityFromToken reads the subject and email claims of an access token
// without verifying it. The server verifies every request.
func IdentityFromToken(token string) (Identity, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(token), claims); err != nil {
		return Identity{}, err
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return Identity{}, ErrTokenWithoutSubject
	}
	email, _ := claims["email"].(string)
	return Identity{UserID: sub, Email: strings.ToLower(strings.TrimSpace(email))}, nil
}
