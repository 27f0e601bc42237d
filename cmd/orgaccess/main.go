package main

import (
	"github.com/smallbiznis/orgaccess/internal/audit"
	"github.com/smallbiznis/orgaccess/internal/authorization"
	"github.com/smallbiznis/orgaccess/internal/clock"
	"github.com/smallbiznis/orgaccess/internal/config"
	"github.com/smallbiznis/orgaccess/internal/datastore/backend"
	"github.com/smallbiznis/orgaccess/internal/invite"
	"github.com/smallbiznis/orgaccess/internal/membership"
	"github.com/smallbiznis/orgaccess/internal/observability"
	"github.com/smallbiznis/orgaccess/internal/providers"
	"github.com/smallbiznis/orgaccess/internal/ratelimit"
	"github.com/smallbiznis/orgaccess/internal/server"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		clock.Module,
		authorization.Module,
		backend.Module,
		providers.Module,
		ratelimit.Module,

		// Functional Domains
		audit.Module,
		invite.Module,
		membership.Module,

		server.Module,
	)

	app.Run()
}
