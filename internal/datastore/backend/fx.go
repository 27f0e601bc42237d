// Package backend selects the data-store implementation from configuration.
package backend

import (
	"context"
	"net/http"

	"github.com/smallbiznis/orgaccess/internal/authorization"
	"github.com/smallbiznis/orgaccess/internal/clock"
	"github.com/smallbiznis/orgaccess/internal/config"
	"github.com/smallbiznis/orgaccess/internal/datastore"
	"github.com/smallbiznis/orgaccess/internal/datastore/memstore"
	"github.com/smallbiznis/orgaccess/internal/datastore/postgres"
	"github.com/smallbiznis/orgaccess/internal/datastore/rest"
	"github.com/smallbiznis/orgaccess/internal/observability/logger"
	"github.com/smallbiznis/orgaccess/internal/observability/tracing"
	"github.com/smallbiznis/orgaccess/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("datastore",
	fx.Provide(NewConnector),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Log       *zap.Logger
	Clock     clock.Clock
	Policy    *authorization.Service
}

// NewConnector builds the configured backend. Configuration gaps do not stop
// startup; they surface as ErrNotConfigured on every request.
func NewConnector(p Params) datastore.Connector {
	log := p.Log.Named("datastore")
	cfg := p.Config.Datastore

	switch cfg.Backend {
	case config.BackendMemory:
		// any bearer becomes a user here
		if p.Config.IsProduction() {
			log.Error("in-memory data store is refused in production")
			return datastore.Unconfigured("DATASTORE_BACKEND")
		}
		log.Warn("using in-memory data store; state is lost on restart")
		return memstore.New(
			memstore.WithClock(p.Clock),
			memstore.WithAutoRegister(),
			memstore.WithPermissionFunc(p.Policy.Permits),
		)
	case config.BackendPostgres:
		if cfg.JWTSecret == "" {
			log.Error("postgres data store requires SUPABASE_JWT_SECRET")
			return datastore.Unconfigured("SUPABASE_JWT_SECRET")
		}
		dbCfg := db.ConfigFrom(cfg)
		dbCfg.Logger = logger.NewGormLogger(logger.DefaultGormLoggerConfig())
		conn, err := db.Open(dbCfg)
		if err != nil {
			log.Error("failed to open database", zap.Error(err))
			return datastore.Unconfigured("DATABASE_HOST")
		}
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(context.Context) error {
				sqlDB, err := conn.DB()
				if err != nil {
					return err
				}
				return sqlDB.Close()
			},
		})
		return postgres.NewConnector(conn, cfg.JWTSecret, log)
	default:
		client := tracing.WrapHTTPClient(&http.Client{Timeout: cfg.Timeout}, "datastore")
		connector := rest.NewConnector(cfg, client, log)
		if _, err := connector.ForToken("startup-check"); err != nil {
			log.Error("data store is not configured", zap.Error(err))
		}
		return connector
	}
}
