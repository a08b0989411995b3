package seed

import (
	"context"

	"github.com/smallbiznis/creditledger/internal/config"
	pricingdomain "github.com/smallbiznis/creditledger/internal/pricing/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("seed",
	fx.Invoke(func(lc fx.Lifecycle, cfg config.Config, svc pricingdomain.Service, log *zap.Logger) {
		if cfg.PricingSeedFile == "" {
			return
		}
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				file, err := LoadPricingFile(cfg.PricingSeedFile)
				if err != nil {
					return err
				}
				result, err := ApplyPricing(ctx, svc, file)
				if err != nil {
					return err
				}
				log.Info("pricing seed applied",
					zap.String("file", cfg.PricingSeedFile),
					zap.Int("created", result.Created),
					zap.Int("unchanged", result.Unchanged),
				)
				return nil
			},
		})
	}),
)
