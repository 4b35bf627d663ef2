package webhook

import (
	"github.com/smallbiznis/worksuite/internal/webhook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook.gateway",
	fx.Provide(service.NewGateway),
)
