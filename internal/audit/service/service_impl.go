package service

import (
	"context"
	"sort"
	"strings"

	auditdomain "github.com/smallbiznis/orgaccess/internal/audit/domain"
	"github.com/smallbiznis/orgaccess/internal/audit/masking"
	obscontext "github.com/smallbiznis/orgaccess/internal/observability/context"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log *zap.Logger
}

// Service writes audit events to a dedicated structured log stream.
// Tokens and email addresses in metadata are masked before they are written.
type Service struct {
	log *zap.Logger
}

func NewService(p Params) auditdomain.Service {
	return &Service{log: p.Log.Named("audit")}
}

func (s *Service) AuditLog(ctx context.Context, event auditdomain.Event) error {
	action := strings.TrimSpace(event.Action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}

	targetType := strings.TrimSpace(event.TargetType)
	if targetType == "" {
		targetType = "unknown"
	}
	orgID := strings.TrimSpace(event.OrgID)
	if orgID == "" {
		orgID = obscontext.OrgIDFromContext(ctx)
	}

	fields := []zap.Field{
		zap.String("action", action),
		zap.String("target_type", targetType),
	}
	if orgID != "" {
		fields = append(fields, zap.String("org_id", orgID))
	}
	if actor := strings.TrimSpace(event.ActorID); actor != "" {
		fields = append(fields, zap.String("actor_id", actor))
	}
	if target := strings.TrimSpace(event.TargetID); target != "" {
		fields = append(fields, zap.String("target_id", masking.MaskField(targetType, target)))
	}
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}

	metadata := masking.MaskFields(event.Metadata)
	keys := make([]string, 0, len(metadata))
	for key := range metadata {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fields = append(fields, zap.Any("meta."+key, metadata[key]))
	}

	s.log.Info("audit", fields...)
	return nil
}
