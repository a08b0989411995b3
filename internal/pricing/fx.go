package pricing

import (
	"github.com/smallbiznis/creditledger/internal/cache"
	pricingdomain "github.com/smallbiznis/creditledger/internal/pricing/domain"
	"github.com/smallbiznis/creditledger/internal/pricing/repository"
	"github.com/smallbiznis/creditledger/internal/pricing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pricing.service",
	fx.Provide(repository.Provide),
	fx.Provide(cache.NewPricingRuleCache),
	fx.Provide(service.New),
	fx.Provide(func(svc pricingdomain.Service) pricingdomain.Resolver { return svc }),
)
