package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	invitedomain "github.com/smallbiznis/orgaccess/internal/invite/domain"
	membershipdomain "github.com/smallbiznis/orgaccess/internal/membership/domain"
	obscontext "github.com/smallbiznis/orgaccess/internal/observability/context"
)

// Request bodies accept the aliases browsers have historically sent. Each
// body has one resolve step; the first non-empty alias wins.

type createInviteBody struct {
	POrg      string       `json:"p_org"`
	OrgID     string       `json:"org_id"`
	PEmail    string       `json:"p_email"`
	Email     string       `json:"email"`
	PRole     string       `json:"p_role"`
	Role      string       `json:"role"`
	SendEmail optionalBool `json:"sendEmail"`
}

func (b createInviteBody) resolve() invitedomain.CreateRequest {
	return invitedomain.CreateRequest{
		OrgID:     firstNonEmpty(b.POrg, b.OrgID),
		Email:     firstNonEmpty(b.PEmail, b.Email),
		Role:      firstNonEmpty(b.PRole, b.Role),
		SendEmail: b.SendEmail.or(true),
	}
}

type resendInviteBody struct {
	OrgID     string       `json:"org_id"`
	POrgID    string       `json:"p_org_id"`
	POrg      string       `json:"p_org"`
	Email     string       `json:"email"`
	PEmail    string       `json:"p_email"`
	SendEmail optionalBool `json:"sendEmail"`
}

func (b resendInviteBody) resolve() invitedomain.ResendRequest {
	return invitedomain.ResendRequest{
		OrgID:     firstNonEmpty(b.OrgID, b.POrgID, b.POrg),
		Email:     firstNonEmpty(b.Email, b.PEmail),
		SendEmail: b.SendEmail.or(true),
	}
}

type revokeInviteBody struct {
	Token  string `json:"token"`
	PToken string `json:"p_token"`
}

func (b revokeInviteBody) resolve() invitedomain.RevokeRequest {
	return invitedomain.RevokeRequest{Token: firstNonEmpty(b.Token, b.PToken)}
}

type memberBody struct {
	POrg    string `json:"p_org"`
	OrgID   string `json:"org_id"`
	PTarget string `json:"p_target"`
	UserID  string `json:"user_id"`
	PRole   string `json:"p_role"`
	Role    string `json:"role"`
}

func (b memberBody) resolveUpdate() membershipdomain.UpdateRoleRequest {
	return membershipdomain.UpdateRoleRequest{
		OrgID:    firstNonEmpty(b.POrg, b.OrgID),
		TargetID: firstNonEmpty(b.PTarget, b.UserID),
		Role:     firstNonEmpty(b.PRole, b.Role),
	}
}

func (b memberBody) resolveDelete() membershipdomain.DeleteRequest {
	return membershipdomain.DeleteRequest{
		OrgID:    firstNonEmpty(b.POrg, b.OrgID),
		TargetID: firstNonEmpty(b.PTarget, b.UserID),
	}
}

// optionalBool accepts JSON booleans and their common string spellings.
type optionalBool struct {
	set   bool
	value bool
}

func (o *optionalBool) UnmarshalJSON(data []byte) error {
	raw := strings.ToLower(strings.Trim(strings.TrimSpace(string(data)), `"`))
	switch raw {
	case "null", "":
		*o = optionalBool{}
	case "true", "1", "yes":
		*o = optionalBool{set: true, value: true}
	case "false", "0", "no":
		*o = optionalBool{set: true, value: false}
	default:
		return errors.New("invalid boolean")
	}
	return nil
}

func (o optionalBool) or(def bool) bool {
	if !o.set {
		return def
	}
	return o.value
}

// bindJSON decodes the request body into out. An empty body decodes as {}.
func bindJSON(c *gin.Context, out any) error {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return ErrInvalidJSON
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return ErrInvalidJSON
	}
	return nil
}

func queryAlias(c *gin.Context, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(c.Query(key)); v != "" {
			return v
		}
	}
	return ""
}

func withOrg(c *gin.Context, orgID string) {
	if orgID = strings.TrimSpace(orgID); orgID != "" {
		c.Request = c.Request.WithContext(obscontext.WithOrgID(c.Request.Context(), orgID))
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
