package invite

import (
	"github.com/smallbiznis/orgaccess/internal/invite/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invite.service",
	fx.Provide(service.NewService),
)
