package batchinvoice

import (
	"github.com/smallbiznis/worksuite/internal/batchinvoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("batchinvoice.service",
	fx.Provide(service.NewInvoicer),
)
