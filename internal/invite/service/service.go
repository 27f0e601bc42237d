package service

import (
	"context"
	"fmt"
	"strings"

	auditdomain "github.com/smallbiznis/orgaccess/internal/audit/domain"
	"github.com/smallbiznis/orgaccess/internal/authorization"
	"github.com/smallbiznis/orgaccess/internal/config"
	"github.com/smallbiznis/orgaccess/internal/datastore"
	"github.com/smallbiznis/orgaccess/internal/invite/domain"
	"github.com/smallbiznis/orgaccess/internal/observability/metrics"
	"github.com/smallbiznis/orgaccess/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	outcomeAccepted = "accepted"
	outcomeGone     = "gone"
	outcomeInvalid  = "invalid"
	outcomeDenied   = "denied"
	outcomeFailed   = "failed"
	reasonSent      = "sent"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Config  config.Config
	Authz   *authorization.Service
	Mailer  *email.InviteMailer
	Metrics *metrics.Metrics    `optional:"true"`
	Audit   auditdomain.Service `optional:"true"`
}

type service struct {
	log     *zap.Logger
	app     config.AppConfig
	authz   *authorization.Service
	mailer  *email.InviteMailer
	metrics *metrics.Metrics
	audit   auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &service{
		log:     p.Log.Named("invite.service"),
		app:     p.Config.App,
		authz:   p.Authz,
		mailer:  p.Mailer,
		metrics: p.Metrics,
		audit:   p.Audit,
	}
}

func (s *service) Create(ctx context.Context, store datastore.Store, req domain.CreateRequest) (*domain.CreateResult, error) {
	orgID := strings.TrimSpace(req.OrgID)
	if orgID == "" {
		return nil, domain.ErrMissingOrganization
	}
	address := strings.TrimSpace(req.Email)
	if address == "" {
		return nil, domain.ErrMissingEmail
	}
	role, err := datastore.ParseRole(req.Role)
	if err != nil {
		return nil, domain.ErrInvalidRole
	}

	actor, err := s.authz.RequireRole(ctx, store, orgID, authorization.ObjectInvite, authorization.ActionCreate)
	if err != nil {
		return nil, err
	}

	created, err := store.CreateInvite(ctx, orgID, datastore.NormalizeEmail(address), role)
	if err != nil {
		if datastore.KindOf(err) == datastore.KindUnauthenticated {
			return nil, err
		}
		s.log.Warn("create_invite failed", zap.String("org_id", orgID), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", domain.ErrInviteCreationFailed, err)
	}
	if created == nil || strings.TrimSpace(created.Token) == "" {
		s.log.Error("create_invite returned no token", zap.String("org_id", orgID))
		return nil, domain.ErrIntegrity
	}

	view := domain.InviteView{
		ID:    created.ID,
		Email: firstNonEmpty(created.Email, datastore.NormalizeEmail(address)),
		Role:  firstNonEmpty(string(created.Role), string(role)),
	}
	acceptURL := domain.AcceptURL(req.Origin, s.app.AcceptPath, created.Token)
	s.metrics.RecordInviteCreated(ctx, view.Role)
	s.record(ctx, auditdomain.Event{
		Action:     auditdomain.ActionInviteCreate,
		OrgID:      orgID,
		ActorID:    actor.UserID,
		TargetType: auditdomain.TargetInvite,
		TargetID:   view.ID,
		Metadata:   map[string]any{"email": view.Email, "role": view.Role},
	})

	mail := email.Disabled()
	if req.SendEmail {
		mail = s.deliver(ctx, email.Invitation{
			To:        view.Email,
			OrgName:   orgID,
			Role:      view.Role,
			AcceptURL: acceptURL,
		})
	} else {
		s.metrics.RecordInviteEmail(ctx, email.ReasonDisabled)
	}

	return &domain.CreateResult{AcceptURL: acceptURL, Invite: view, Email: mail}, nil
}

func (s *service) Accept(ctx context.Context, store datastore.Store, req domain.AcceptRequest) (*domain.AcceptResult, error) {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return nil, domain.ErrMissingToken
	}

	accepted, err := store.AcceptInvite(ctx, token)
	if err != nil {
		return nil, s.classifyAcceptError(ctx, err)
	}
	if accepted == nil || strings.TrimSpace(accepted.OrgID) == "" || strings.TrimSpace(accepted.MembershipID) == "" {
		s.metrics.RecordInviteRedemption(ctx, outcomeFailed)
		s.log.Error("accept_invite returned no organization or membership")
		return nil, domain.ErrIntegrity
	}

	s.metrics.RecordInviteRedemption(ctx, outcomeAccepted)
	s.record(ctx, auditdomain.Event{
		Action:     auditdomain.ActionInviteAccept,
		OrgID:      accepted.OrgID,
		TargetType: auditdomain.TargetMembership,
		TargetID:   accepted.MembershipID,
		Metadata:   map[string]any{"email": accepted.Email, "role": string(accepted.Role), "token": token},
	})
	return &domain.AcceptResult{
		Success:      true,
		OrgID:        accepted.OrgID,
		Email:        accepted.Email,
		Role:         string(accepted.Role),
		MembershipID: accepted.MembershipID,
		RedirectURL:  domain.PostAcceptURL(req.Origin, s.app.PostAcceptPath),
	}, nil
}

func (s *service) classifyAcceptError(ctx context.Context, err error) error {
	switch datastore.KindOf(err) {
	case datastore.KindUnauthenticated:
		return err
	case datastore.KindGone:
		s.metrics.RecordInviteRedemption(ctx, outcomeGone)
		return fmt.Errorf("%w: %w", domain.ErrInviteGone, err)
	case datastore.KindForbidden:
		s.metrics.RecordInviteRedemption(ctx, outcomeDenied)
		return fmt.Errorf("%w: %w", authorization.ErrForbidden, err)
	case datastore.KindInvalid, datastore.KindNotFound:
		s.metrics.RecordInviteRedemption(ctx, outcomeInvalid)
		return fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	default:
		s.metrics.RecordInviteRedemption(ctx, outcomeFailed)
		s.log.Warn("accept_invite failed", zap.Error(err))
		return fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	}
}

// Resend is gated on the same admin check as Create before resend_invite runs.
func (s *service) Resend(ctx context.Context, store datastore.Store, req domain.ResendRequest) (*domain.ResendResult, error) {
	orgID := strings.TrimSpace(req.OrgID)
	if orgID == "" {
		return nil, domain.ErrMissingOrganization
	}
	address := datastore.NormalizeEmail(req.Email)
	if address == "" {
		return nil, domain.ErrMissingEmail
	}

	actor, err := s.authz.RequireRole(ctx, store, orgID, authorization.ObjectInvite, authorization.ActionResend)
	if err != nil {
		return nil, err
	}

	token, err := store.ResendInvite(ctx, orgID, address)
	if err != nil {
		return nil, upstream(err)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		s.log.Error("resend_invite returned no token", zap.String("org_id", orgID))
		return nil, domain.ErrIntegrity
	}

	acceptURL := domain.AcceptURL(req.Origin, s.app.AcceptPath, token)
	s.record(ctx, auditdomain.Event{
		Action:     auditdomain.ActionInviteResend,
		OrgID:      orgID,
		ActorID:    actor.UserID,
		TargetType: auditdomain.TargetInvite,
		Metadata:   map[string]any{"email": address, "token": token},
	})
	mail := email.Disabled()
	if req.SendEmail {
		mail = s.deliver(ctx, email.Invitation{To: address, OrgName: orgID, AcceptURL: acceptURL})
	}
	return &domain.ResendResult{Token: token, AcceptURL: acceptURL, Email: mail}, nil
}

// Revoke carries only the token, so authorization is left to revoke_invite.
func (s *service) Revoke(ctx context.Context, store datastore.Store, req domain.RevokeRequest) error {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return domain.ErrMissingToken
	}
	if err := store.RevokeInvite(ctx, token); err != nil {
		return upstream(err)
	}
	s.record(ctx, auditdomain.Event{
		Action:     auditdomain.ActionInviteRevoke,
		TargetType: auditdomain.TargetInvite,
		Metadata:   map[string]any{"token": token},
	})
	return nil
}

func (s *service) record(ctx context.Context, event auditdomain.Event) {
	if s.audit == nil {
		return
	}
	if err := s.audit.AuditLog(ctx, event); err != nil {
		s.log.Warn("audit log failed", zap.String("action", event.Action), zap.Error(err))
	}
}

func (s *service) deliver(ctx context.Context, inv email.Invitation) email.MailResult {
	result := s.mailer.SendInvite(ctx, inv)
	reason := result.Reason
	if result.Sent {
		reason = reasonSent
	}
	s.metrics.RecordInviteEmail(ctx, reason)
	return result
}

func upstream(err error) error {
	if datastore.KindOf(err) == datastore.KindUnauthenticated {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrUpstream, err)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

