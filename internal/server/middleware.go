package server

import (
	"math"
	"net/http"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/orgaccess/internal/datastore"
	"github.com/smallbiznis/orgaccess/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	contextStoreKey = "datastore_store"
	contextTokenKey = "bearer_token"

	allowedHeaders = "authorization, content-type, x-request-id"
)

var bearerPattern = regexp.MustCompile(`(?i)^bearer\s+(\S.*)$`)

// bearerToken extracts the credential from an Authorization header value.
func bearerToken(header string) (string, bool) {
	match := bearerPattern.FindStringSubmatch(strings.TrimSpace(header))
	if match == nil {
		return "", false
	}
	token := strings.TrimSpace(match[1])
	return token, token != ""
}

// BearerRequired binds a data store client to the caller's credential.
// The client carries the credential on every call and grants nothing itself.
func (s *Server) BearerRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		store, err := s.connector.ForToken(token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextStoreKey, store)
		c.Set(contextTokenKey, token)
		c.Next()
	}
}

// RateLimit throttles endpoint per caller credential when a limiter is configured.
func (s *Server) RateLimit(endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		result, allowed := s.limiter.Allow(ctx, endpoint, c.GetString(contextTokenKey))
		if allowed {
			c.Next()
			return
		}

		retryAfter := 1
		if result != nil && result.RetryAfter > 0 {
			retryAfter = int(math.Ceil(result.RetryAfter.Seconds()))
		}
		s.metrics.RecordRateLimitDenied(ctx, endpoint)
		logger.FromContext(ctx).Info("rate limit exceeded", zap.String("endpoint", endpoint))
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		AbortWithError(c, ErrRateLimited)
	}
}

// CORS echoes the request origin. A configured allow-list restricts which
// origins are echoed.
func CORS(allowed []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Add("Vary", "Origin")
		origin := strings.TrimSpace(c.GetHeader("Origin"))
		switch {
		case origin == "":
			c.Header("Access-Control-Allow-Origin", "*")
		case len(allowed) == 0 || slices.Contains(allowed, strings.TrimRight(origin, "/")):
			c.Header("Access-Control-Allow-Origin", origin)
		}
		c.Header("Access-Control-Allow-Headers", allowedHeaders)
		c.Next()
	}
}

// preflight answers OPTIONS with the methods a function accepts.
func preflight(methods ...string) gin.HandlerFunc {
	allow := strings.Join(append(slices.Clone(methods), http.MethodOptions), ", ")
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Methods", allow)
		c.Header("Access-Control-Max-Age", "86400")
		c.Header("Allow", allow)
		c.AbortWithStatus(http.StatusNoContent)
	}
}

func storeFrom(c *gin.Context) datastore.Store {
	store, _ := c.MustGet(contextStoreKey).(datastore.Store)
	return store
}
