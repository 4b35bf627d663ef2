package billingaccount

import (
	billingaccountdomain "github.com/smallbiznis/worksuite/internal/billingaccount/domain"
	"github.com/smallbiznis/worksuite/internal/billingaccount/repository"
	"github.com/smallbiznis/worksuite/internal/billingaccount/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billingaccount.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(
		service.NewAllocator,
		func(a *service.Allocator) billingaccountdomain.Allocator { return a },
	),
)
