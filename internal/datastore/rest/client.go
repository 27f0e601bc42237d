// Package rest talks to the hosted backend over its REST surface: the auth user
// endpoint, PostgREST table reads and PostgREST RPC calls.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/orgaccess/internal/config"
	"github.com/smallbiznis/orgaccess/internal/datastore"
	"go.uber.org/zap"
)

const (
	authUserPath = "/auth/v1/user"
	restPath     = "/rest/v1/"
	rpcPath      = "/rest/v1/rpc/"

	maxErrorBody = 64 << 10
)

// Connector builds per-caller stores that share one HTTP client.
type Connector struct {
	baseURL string
	anonKey string
	http    *http.Client
	log     *zap.Logger
}

// NewConnector returns a datastore.Connector for the hosted backend. Missing
// endpoint or anon key yields a connector that reports ErrNotConfigured.
func NewConnector(cfg config.DatastoreConfig, httpClient *http.Client, log *zap.Logger) datastore.Connector {
	var missing []string
	if strings.TrimSpace(cfg.URL) == "" {
		missing = append(missing, "SUPABASE_URL")
	}
	if strings.TrimSpace(cfg.AnonKey) == "" {
		missing = append(missing, "SUPABASE_ANON_KEY")
	}
	if len(missing) > 0 {
		return datastore.Unconfigured(missing...)
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Connector{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		anonKey: cfg.AnonKey,
		http:    httpClient,
		log:     log.Named("datastore.rest"),
	}
}

func (c *Connector) ForToken(token string) (datastore.Store, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, &datastore.Error{Status: http.StatusUnauthorized, Code: "PT401", Message: "not_authenticated"}
	}
	return &Store{conn: c, token: token}, nil
}

// Store issues every request with the caller's bearer token.
type Store struct {
	conn  *Connector
	token string
	user  *datastore.User
}

type postgrestError struct {
	Code    any    `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details"`
	Hint    any    `json:"hint"`

	// auth endpoint shape
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	ErrorDescription string `json:"error_description"`
}

func (s *Store) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	endpoint := s.conn.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", s.conn.anonKey)
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.conn.http.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return decodeError(resp.StatusCode, raw)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &datastore.Error{Status: resp.StatusCode, Code: "invalid_response", Message: "unexpected response from data store", Details: err.Error()}
	}
	return nil
}

func (s *Store) rpc(ctx context.Context, fn string, params map[string]any, out any) error {
	return s.do(ctx, http.MethodPost, rpcPath+fn, nil, params, out)
}

func transportError(err error) error {
	code := datastore.CodeTransport
	if errors.Is(err, context.DeadlineExceeded) {
		code = datastore.CodeTimeout
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		code = datastore.CodeTimeout
	}
	return &datastore.Error{Code: code, Message: "data store unreachable", Details: err.Error()}
}

func decodeError(status int, raw []byte) error {
	dsErr := &datastore.Error{Status: status, Message: http.StatusText(status)}
	var body postgrestError
	if err := json.Unmarshal(raw, &body); err != nil {
		if text := strings.TrimSpace(string(raw)); text != "" {
			dsErr.Message = text
		}
		return dsErr
	}
	dsErr.Code = firstNonEmpty(body.ErrorCode, stringify(body.Code))
	if msg := firstNonEmpty(body.Message, body.Msg, body.ErrorDescription); msg != "" {
		dsErr.Message = msg
	}
	dsErr.Details = stringify(body.Details)
	dsErr.Hint = stringify(body.Hint)
	return dsErr
}

func stringify(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	default:
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprint(value)
		}
		return string(raw)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
