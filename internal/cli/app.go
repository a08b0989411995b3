package cli

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creditledger/internal/clock"
	"github.com/smallbiznis/creditledger/internal/config"
	"github.com/smallbiznis/creditledger/internal/ledger"
	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
	"github.com/smallbiznis/creditledger/internal/pricing"
	pricingdomain "github.com/smallbiznis/creditledger/internal/pricing/domain"
	"github.com/smallbiznis/creditledger/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// app holds the services a command runs against.
type app struct {
	cfg     config.Config
	db      *gorm.DB
	ledger  ledgerdomain.Service
	pricing pricingdomain.Service

	stop func(context.Context) error
}

type appOpener func(ctx context.Context) (*app, error)

func (a *app) close(ctx context.Context) error {
	if a == nil || a.stop == nil {
		return nil
	}
	return a.stop(ctx)
}

// openApp wires the storage and domain modules without the HTTP server.
func openApp(ctx context.Context) (*app, error) {
	a := &app{}
	fxApp := fx.New(
		fx.NopLogger,
		config.Module,
		fx.Provide(newLogger),
		fx.Provide(func(cfg config.Config) (*snowflake.Node, error) {
			return snowflake.NewNode(cfg.NodeID)
		}),
		db.Module,
		clock.Module,
		pricing.Module,
		ledger.Module,
		fx.Populate(&a.cfg, &a.db, &a.ledger, &a.pricing),
	)
	if err := fxApp.Err(); err != nil {
		return nil, err
	}
	if err := fxApp.Start(ctx); err != nil {
		return nil, err
	}
	a.stop = fxApp.Stop
	return a, nil
}

func newLogger(lc fx.Lifecycle) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	log, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(func() {
		_ = log.Sync()
	}))
	return log, nil
}
