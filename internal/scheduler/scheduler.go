package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/creditledger/internal/clock"
	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/creditledger/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

const jobReconcileAccounts = "reconcile_accounts"

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	LedgerSvc  ledgerdomain.Service
	Clock      clock.Clock
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
	Config     Config              `optional:"true"`
}

// Scheduler periodically checks every account balance against the sum of
// its transactions. It only reports drift; it never rewrites balances.
type Scheduler struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        Config
	clock      clock.Clock
	ledgerSvc  ledgerdomain.Service
	obsMetrics *obsmetrics.Metrics
}

// RunReport summarizes one sweep.
type RunReport struct {
	Checked  int
	Drifted  []string
	Failed   int
	Duration time.Duration
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.LedgerSvc == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:         p.DB,
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		clock:      p.Clock,
		ledgerSvc:  p.LedgerSvc,
		obsMetrics: p.ObsMetrics,
	}, nil
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce sweeps all accounts in user_id order, one batch at a time.
func (s *Scheduler) RunOnce(parent context.Context) (RunReport, error) {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	start := s.clock.Now()
	log := s.log.With(zap.String("job", jobReconcileAccounts))
	log.Info("job started", zap.Int("batch_size", s.cfg.BatchSize))

	var (
		report RunReport
		jobErr error
		cursor string
	)
	for {
		if err := ctx.Err(); err != nil {
			jobErr = errors.Join(jobErr, err)
			break
		}

		userIDs, err := s.nextBatch(ctx, cursor)
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			break
		}
		if len(userIDs) == 0 {
			break
		}
		cursor = userIDs[len(userIDs)-1]

		for _, userID := range userIDs {
			result, err := s.ledgerSvc.Reconcile(ctx, userID)
			if err != nil {
				report.Failed++
				log.Warn("reconcile failed", zap.String("user_id", userID), zap.Error(err))
				continue
			}
			report.Checked++
			s.obsMetrics.RecordReconciliation(ctx, result.Consistent)
			if !result.Consistent {
				report.Drifted = append(report.Drifted, userID)
				log.Error("balance drift detected",
					zap.String("user_id", userID),
					zap.String("balance", result.Balance.String()),
					zap.String("transaction_sum", result.TransactionSum.String()),
					zap.String("drift", result.Drift.String()),
				)
			}
		}

		if len(userIDs) < s.cfg.BatchSize {
			break
		}
	}

	report.Duration = s.clock.Now().Sub(start)
	fields := []zap.Field{
		zap.Int("checked", report.Checked),
		zap.Int("drifted", len(report.Drifted)),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration),
	}
	if jobErr != nil {
		log.Warn("job finished with errors", append(fields, zap.Error(jobErr))...)
	} else {
		log.Info("job finished", fields...)
	}
	return report, jobErr
}

func (s *Scheduler) nextBatch(ctx context.Context, after string) ([]string, error) {
	var userIDs []string
	err := s.db.WithContext(ctx).
		Model(&ledgerdomain.Account{}).
		Where("user_id > ?", after).
		Order("user_id ASC").
		Limit(s.cfg.BatchSize).
		Pluck("user_id", &userIDs).Error
	return userIDs, err
}
