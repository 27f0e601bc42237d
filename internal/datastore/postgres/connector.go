// Package postgres runs the data-store contract directly against the backend's
// Postgres database. The caller's access token is verified locally and bound to
// each transaction so row-level security and the procedures see the caller.
package postgres

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/orgaccess/internal/datastore"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errInvalidToken = errors.New("invalid_token")

// Claims is the subset of the access token the procedures rely on.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type Connector struct {
	db     *gorm.DB
	secret []byte
	log    *zap.Logger
}

// NewConnector returns a connector verifying HS256 tokens with secret.
func NewConnector(db *gorm.DB, secret string, log *zap.Logger) datastore.Connector {
	if strings.TrimSpace(secret) == "" {
		return datastore.Unconfigured("SUPABASE_JWT_SECRET")
	}
	if db == nil {
		return datastore.Unconfigured("DATABASE_HOST")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Connector{db: db, secret: []byte(secret), log: log.Named("datastore.postgres")}
}

func (c *Connector) ForToken(token string) (datastore.Store, error) {
	claims, err := c.verify(token)
	if err != nil {
		c.log.Debug("rejected access token", zap.Error(err))
		return nil, &datastore.Error{Status: http.StatusUnauthorized, Code: "PGRST301", Message: "not_authenticated"}
	}
	if claims.Role == "" {
		claims.Role = "authenticated"
	}
	raw, err := json.Marshal(claims)
	if err != nil {
		return nil, err
	}
	return &Store{db: c.db, claims: claims, claimsJSON: string(raw)}, nil
}

func (c *Connector) verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok {
			return c.secret, nil
		}
		return nil, errInvalidToken
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, errInvalidToken
	}
	return claims, nil
}
