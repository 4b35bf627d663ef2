package reconciliation

import (
	"github.com/smallbiznis/worksuite/internal/reconciliation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reconciliation.engine",
	fx.Provide(service.NewEngine),
)
