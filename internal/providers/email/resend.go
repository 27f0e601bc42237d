package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const DefaultAPIURL = "https://api.resend.com/emails"

type APIConfig struct {
	URL    string
	APIKey string
	From   string
}

// APIProvider delivers through a JSON HTTP email API (Resend compatible).
type APIProvider struct {
	cfg    APIConfig
	client *http.Client
}

// APIError is a non-2xx answer from the email API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("email api returned %d: %s", e.Status, e.Body)
}

func NewAPIProvider(cfg APIConfig, client *http.Client) *APIProvider {
	if strings.TrimSpace(cfg.URL) == "" {
		cfg.URL = DefaultAPIURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &APIProvider{cfg: cfg, client: client}
}

type apiRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
}

func (p *APIProvider) Send(ctx context.Context, msg Message) error {
	if p.cfg.APIKey == "" || p.cfg.From == "" {
		return ErrNotConfigured
	}
	payload, err := json.Marshal(apiRequest{
		From:    p.cfg.From,
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
