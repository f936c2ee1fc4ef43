package job

import (
	"context"
	"time"

	"walletcore/internal/config"
	"walletcore/internal/repository"
	"walletcore/internal/service"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ReconcileSweep periodically re-derives balances for recently active
// accounts and reports any divergence from the incremental balance.
// It never repairs: mismatches go to the audit topic for manual review.
type ReconcileSweep struct {
	db          *gorm.DB
	accountRepo *repository.AccountRepository
	reconciler  *service.Reconciler
	cfg         *config.Config
	logger      *zap.SugaredLogger
	stopCh      chan struct{}
	interval    time.Duration
	batchSize   int
}

func NewReconcileSweep(db *gorm.DB, reconciler *service.Reconciler, cfg *config.Config, logger *zap.SugaredLogger) *ReconcileSweep {
	interval := cfg.Business.ReconcileInterval()
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	batchSize := cfg.Business.ReconcileBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	return &ReconcileSweep{
		db:          db,
		accountRepo: repository.NewAccountRepository(db),
		reconciler:  reconciler,
		cfg:         cfg,
		logger:      logger,
		stopCh:      make(chan struct{}),
		interval:    interval,
		batchSize:   batchSize,
	}
}

func (j *ReconcileSweep) Start(ctx context.Context) {
	j.logger.Info("reconcile sweep started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("reconcile sweep stopping")
			return
		case <-j.stopCh:
			j.logger.Info("reconcile sweep stopped")
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *ReconcileSweep) Stop() {
	close(j.stopCh)
}

func (j *ReconcileSweep) sweep(ctx context.Context) {
	since := time.Now().Add(-2 * j.interval)
	accounts, err := j.accountRepo.ListActiveSince(ctx, since, j.batchSize)
	if err != nil {
		j.logger.Errorw("failed to list active accounts", "err", err)
		return
	}

	mismatches := 0
	for _, account := range accounts {
		report, err := j.reconciler.Reconcile(ctx, account.UserID)
		if err != nil {
			j.logger.Errorw("reconcile failed", "user_id", account.UserID, "err", err)
			continue
		}
		if !report.Matches {
			mismatches++
		}
	}

	if len(accounts) > 0 {
		j.logger.Infow("sweep finished", "accounts", len(accounts), "mismatches", mismatches)
	}
}
