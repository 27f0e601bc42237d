package email

import (
	"net/http"

	"github.com/smallbiznis/orgaccess/internal/config"
	"github.com/smallbiznis/orgaccess/internal/observability/tracing"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) *InviteMailer {
	return NewInviteMailer(providerFromConfig(cfg.Email, log), cfg.Email.Timeout, log)
}

func providerFromConfig(cfg config.EmailConfig, log *zap.Logger) Provider {
	switch cfg.Provider {
	case config.EmailProviderSMTP:
		if cfg.SMTPHost == "" || cfg.From == "" {
			log.Warn("smtp email provider selected without SMTP_HOST or EMAIL_FROM; invite emails disabled")
			return nil
		}
		return NewSMTP(Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.From,
		})
	default:
		if cfg.APIKey == "" || cfg.From == "" {
			log.Warn("RESEND_API_KEY or EMAIL_FROM missing; invite emails disabled")
			return nil
		}
		return NewAPIProvider(APIConfig{
			URL:    cfg.APIURL,
			APIKey: cfg.APIKey,
			From:   cfg.From,
		}, tracing.WrapHTTPClient(&http.Client{Timeout: cfg.Timeout}, "email"))
	}
}
