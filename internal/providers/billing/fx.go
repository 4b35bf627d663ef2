package billing

import (
	"github.com/smallbiznis/worksuite/internal/config"
	billingdomain "github.com/smallbiznis/worksuite/internal/providers/billing/domain"
	"github.com/smallbiznis/worksuite/internal/providers/billing/httpapi"
	"github.com/smallbiznis/worksuite/internal/providers/billing/stripe"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.billing",
	fx.Provide(NewProvider),
)

type Params struct {
	fx.In

	Cfg config.Config
	Log *zap.Logger
}

// NewProvider picks the remote invoicing provider from BILLING_PROVIDER.
// A misconfigured provider falls back to Noop so local invoicing keeps working.
func NewProvider(p Params) billingdomain.Provider {
	log := p.Log.Named("providers.billing")

	var (
		provider billingdomain.Provider
		err      error
	)
	switch p.Cfg.Provider.Kind {
	case config.ProviderKindStripe:
		provider, err = stripe.New(p.Cfg.Provider, p.Log)
	case config.ProviderKindHTTP:
		provider, err = httpapi.New(p.Cfg.Provider, p.Log)
	default:
		log.Info("remote invoicing disabled")
		return billingdomain.Noop{}
	}
	if err != nil {
		log.Warn("remote invoicing provider unavailable, falling back to none",
			zap.String("kind", p.Cfg.Provider.Kind),
			zap.Error(err),
		)
		return billingdomain.Noop{}
	}

	log.Info("remote invoicing provider configured", zap.String("kind", provider.Name()))
	return provider
}
