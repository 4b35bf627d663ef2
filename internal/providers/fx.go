package providers

import (
	"github.com/smallbiznis/worksuite/internal/providers/billing"
	"github.com/smallbiznis/worksuite/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	billing.Module,
	pdf.Module,
)
