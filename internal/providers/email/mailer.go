package email

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"time"

	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

var inviteTemplate = template.Must(template.ParseFS(templateFS, "templates/invite_member.html"))

// Delivery outcome reasons.
const (
	ReasonMissingEnv = "missing_env"
	ReasonAPIError   = "api_error"
	ReasonDisabled   = "disabled"
)

// MailResult reports a best-effort delivery. It never carries an error.
type MailResult struct {
	Attempted bool   `json:"attempted"`
	Sent      bool   `json:"sent"`
	Reason    string `json:"reason,omitempty"`
}

func Disabled() MailResult {
	return MailResult{Reason: ReasonDisabled}
}

type Invitation struct {
	To        string
	OrgName   string
	Role      string
	AcceptURL string
}

// InviteMailer renders and delivers invitation emails.
type InviteMailer struct {
	provider Provider
	timeout  time.Duration
	log      *zap.Logger
}

// NewInviteMailer returns a mailer. A nil provider means delivery is not configured.
func NewInviteMailer(provider Provider, timeout time.Duration, log *zap.Logger) *InviteMailer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &InviteMailer{provider: provider, timeout: timeout, log: log.Named("email.invite")}
}

func (m *InviteMailer) Configured() bool {
	return m != nil && m.provider != nil
}

// SendInvite delivers on a context detached from the caller so an aborted
// request does not cancel a send already in flight.
func (m *InviteMailer) SendInvite(ctx context.Context, inv Invitation) MailResult {
	if !m.Configured() {
		return MailResult{Reason: ReasonMissingEnv}
	}

	var body bytes.Buffer
	if err := inviteTemplate.Execute(&body, inv); err != nil {
		m.log.Error("failed to render invite email", zap.Error(err))
		return MailResult{Attempted: true, Reason: ReasonAPIError}
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()

	err := m.provider.Send(sendCtx, Message{
		To:      []string{inv.To},
		Subject: fmt.Sprintf("Uitnodiging voor %s", inv.OrgName),
		HTML:    body.String(),
		Text:    fmt.Sprintf("Je bent uitgenodigd voor %s als %s. Accepteer via: %s", inv.OrgName, inv.Role, inv.AcceptURL),
	})
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			return MailResult{Reason: ReasonMissingEnv}
		}
		m.log.Warn("invite email delivery failed", zap.String("to", inv.To), zap.Error(err))
		return MailResult{Attempted: true, Reason: ReasonAPIError}
	}
	return MailResult{Attempted: true, Sent: true}
}
