package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/orgaccess/internal/authorization"
	"github.com/smallbiznis/orgaccess/internal/datastore"
	invitedomain "github.com/smallbiznis/orgaccess/internal/invite/domain"
	membershipdomain "github.com/smallbiznis/orgaccess/internal/membership/domain"
)

// errorResponse is the envelope every failure is written as.
type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

var (
	ErrUnauthorized = errors.New("unauthenticated")
	ErrInvalidJSON  = errors.New("invalid_json")
	ErrRateLimited  = errors.New("rate_limited")
	ErrInternal     = errors.New("internal_error")
)

const (
	msgUnauthorized  = "Niet ingelogd"
	msgForbidden     = "Geen toegang tot deze organisatie"
	msgInvalidJSON   = "Invalid JSON body"
	msgInviteGone    = "Uitnodiging is verlopen, ingetrokken of al gebruikt"
	msgInviteFailed  = "Uitnodiging aanmaken mislukt"
	msgUpstream      = "Verzoek geweigerd door de database"
	msgIntegrity     = "Onverwacht antwoord van de database"
	msgConfiguration = "Server is niet correct geconfigureerd"
	msgRateLimited   = "Te veel verzoeken, probeer het later opnieuw"
	msgInternal      = "Er is iets misgegaan"
)

var validationErrors = []struct {
	err     error
	message string
}{
	{invitedomain.ErrMissingOrganization, "Organisatie ontbreekt"},
	{membershipdomain.ErrMissingOrganization, "Organisatie ontbreekt"},
	{authorization.ErrInvalidOrganization, "Organisatie ontbreekt"},
	{invitedomain.ErrMissingEmail, "E-mailadres ontbreekt"},
	{invitedomain.ErrInvalidRole, "Ongeldige rol"},
	{membershipdomain.ErrInvalidRole, "Ongeldige rol"},
	{datastore.ErrInvalidRole, "Ongeldige rol"},
	{invitedomain.ErrMissingToken, "Token ontbreekt"},
	{invitedomain.ErrInvalidOutputMode, "Ongeldige waarde voor noRedirect"},
	{membershipdomain.ErrMissingTarget, "Gebruiker ontbreekt"},
	{membershipdomain.ErrMissingPermission, "Permissie ontbreekt"},
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, payload)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorResponse) {
	if err == nil {
		return http.StatusInternalServerError, errorResponse{Error: msgInternal, Code: ErrInternal.Error()}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorResponse{Error: msgUnauthorized, Code: ErrUnauthorized.Error()}
	case errors.Is(err, datastore.ErrNotConfigured):
		return http.StatusInternalServerError, errorResponse{Error: msgConfiguration, Code: "configuration_error"}
	case errors.Is(err, ErrInvalidJSON):
		return http.StatusBadRequest, errorResponse{Error: msgInvalidJSON, Code: ErrInvalidJSON.Error()}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorResponse{Error: msgRateLimited, Code: ErrRateLimited.Error()}
	}

	for _, v := range validationErrors {
		if errors.Is(err, v.err) {
			return http.StatusBadRequest, errorResponse{Error: v.message, Code: v.err.Error()}
		}
	}

	dsErr, upstream := datastore.AsError(err)
	if upstream && dsErr.Kind() == datastore.KindUnauthenticated {
		return http.StatusUnauthorized, errorResponse{Error: msgUnauthorized, Code: ErrUnauthorized.Error(), Details: dsErr.Message}
	}

	switch {
	case errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorResponse{Error: msgForbidden, Code: authorization.ErrForbidden.Error(), Details: upstreamMessage(dsErr)}
	case errors.Is(err, invitedomain.ErrIntegrity):
		return http.StatusInternalServerError, errorResponse{Error: msgIntegrity, Code: invitedomain.ErrIntegrity.Error()}
	case errors.Is(err, invitedomain.ErrInviteGone):
		return http.StatusGone, errorResponse{Error: msgInviteGone, Code: invitedomain.ErrInviteGone.Error(), Details: upstreamMessage(dsErr)}
	case errors.Is(err, invitedomain.ErrInviteCreationFailed):
		return http.StatusBadRequest, errorResponse{
			Error:   firstNonEmpty(upstreamMessage(dsErr), msgInviteFailed),
			Code:    invitedomain.ErrInviteCreationFailed.Error(),
			Details: upstreamDetails(dsErr),
		}
	case errors.Is(err, membershipdomain.ErrUpstream) && upstream:
		return upstreamStatus(dsErr), upstreamResponse(dsErr)
	case upstream:
		return http.StatusBadRequest, upstreamResponse(dsErr)
	}

	return http.StatusInternalServerError, errorResponse{Error: msgInternal, Code: ErrInternal.Error()}
}

func upstreamResponse(dsErr *datastore.Error) errorResponse {
	return errorResponse{
		Error:   firstNonEmpty(dsErr.Message, msgUpstream),
		Code:    firstNonEmpty(dsErr.Code, "upstream_error"),
		Details: upstreamDetails(dsErr),
	}
}

// upstreamStatus keeps the data store's own status, defaulting to 400.
func upstreamStatus(dsErr *datastore.Error) int {
	if dsErr.Status >= http.StatusBadRequest && dsErr.Status < 600 {
		return dsErr.Status
	}
	switch dsErr.Kind() {
	case datastore.KindForbidden:
		return http.StatusForbidden
	case datastore.KindNotFound:
		return http.StatusNotFound
	case datastore.KindConflict:
		return http.StatusConflict
	case datastore.KindGone:
		return http.StatusGone
	default:
		return http.StatusBadRequest
	}
}

func upstreamMessage(dsErr *datastore.Error) string {
	if dsErr == nil {
		return ""
	}
	return dsErr.Message
}

func upstreamDetails(dsErr *datastore.Error) string {
	if dsErr == nil {
		return ""
	}
	return firstNonEmpty(dsErr.Details, dsErr.Hint)
}

// classifyErrorForLog returns the error_type and error_code log fields.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status == http.StatusUnauthorized:
		return "unauthorized", payload.Code
	case status == http.StatusForbidden:
		return "forbidden", payload.Code
	case status == http.StatusTooManyRequests:
		return "rate_limited", payload.Code
	case status >= http.StatusInternalServerError:
		return "internal_error", payload.Code
	case errors.Is(err, membershipdomain.ErrUpstream),
		errors.Is(err, invitedomain.ErrUpstream),
		errors.Is(err, invitedomain.ErrInviteCreationFailed),
		errors.Is(err, invitedomain.ErrInviteGone):
		return "upstream_error", payload.Code
	default:
		return "validation_error", payload.Code
	}
}
