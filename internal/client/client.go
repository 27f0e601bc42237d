// Package client calls the orgaccess HTTP functions on behalf of a signed-in user.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	invitedomain "github.com/smallbiznis/orgaccess/internal/invite/domain"
	membershipdomain "github.com/smallbiznis/orgaccess/internal/membership/domain"
)

const functionsPath = "/.netlify/functions/"

// APIError is a non-2xx response decoded from the error envelope.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"), http: httpClient}
}

// WithToken returns a copy that authenticates as token.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.token = strings.TrimSpace(token)
	return &clone
}

type CreateInviteInput struct {
	OrgID     string `json:"org_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	SendEmail *bool  `json:"sendEmail,omitempty"`
}

func (c *Client) CreateInvite(ctx context.Context, in CreateInviteInput) (*invitedomain.CreateResult, error) {
	var out invitedomain.CreateResult
	if err := c.do(ctx, http.MethodPost, "createInvite", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AcceptInvite redeems token and asks for the JSON confirmation.
func (c *Client) AcceptInvite(ctx context.Context, token string) (*invitedomain.AcceptResult, error) {
	query := url.Values{"token": {token}, "noRedirect": {"1"}}
	var out invitedomain.AcceptResult
	if err := c.do(ctx, http.MethodGet, "acceptInvite", query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ResendInvite(ctx context.Context, orgID, email string, sendEmail bool) (*invitedomain.ResendResult, error) {
	body := map[string]any{"org_id": orgID, "email": email, "sendEmail": sendEmail}
	var out invitedomain.ResendResult
	if err := c.do(ctx, http.MethodPost, "invites-resend", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RevokeInvite(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "invites-revoke", nil, map[string]string{"token": token}, nil)
}

func (c *Client) ListMembers(ctx context.Context, orgID string) ([]membershipdomain.MemberView, error) {
	var out struct {
		Items []membershipdomain.MemberView `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "listMemberships", url.Values{"org_id": {orgID}}, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) UpdateMemberRole(ctx context.Context, orgID, userID, role string) error {
	body := map[string]string{"p_org": orgID, "p_target": userID, "p_role": role}
	return c.do(ctx, http.MethodPost, "updateMemberRole", nil, body, nil)
}

func (c *Client) DeleteMember(ctx context.Context, orgID, userID string) error {
	body := map[string]string{"p_org": orgID, "p_target": userID}
	return c.do(ctx, http.MethodPost, "deleteMember", nil, body, nil)
}

func (c *Client) ListMyOrganizations(ctx context.Context) ([]membershipdomain.OrganizationView, error) {
	var out struct {
		Items []membershipdomain.OrganizationView `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "listMyOrganizations", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) CheckPermission(ctx context.Context, permission, orgID string) (bool, error) {
	var out struct {
		Allowed bool `json:"allowed"`
	}
	query := url.Values{"perm": {permission}, "org_id": {orgID}}
	if err := c.do(ctx, http.MethodGet, "checkPermission", query, nil, &out); err != nil {
		return false, err
	}
	return out.Allowed, nil
}

func (c *Client) do(ctx context.Context, method, fn string, query url.Values, body, out any) error {
	endpoint := c.baseURL + functionsPath + fn
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(raw, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}
