package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"walletcore/internal/config"
	"walletcore/internal/model"
	"walletcore/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ReconcileReport compares the two balance derivations for one account.
type ReconcileReport struct {
	UserID      int64           `json:"user_id"`
	Incremental decimal.Decimal `json:"incremental_balance"`
	Recomputed  decimal.Decimal `json:"recomputed_balance"`
	Matches     bool            `json:"matches"`
}

// Reconciler recomputes balances from the full event history and checks them
// against the incrementally maintained balance. It is audit-only: a mismatch
// is reported, never repaired — the incremental balance stays the source of
// truth until someone reviews the divergence.
type Reconciler struct {
	db          *gorm.DB
	cfg         *config.Config
	logger      *zap.SugaredLogger
	accountRepo *repository.AccountRepository
	eventRepo   *repository.EventRepository
	outboxRepo  *repository.OutboxRepository
}

func NewReconciler(db *gorm.DB, cfg *config.Config, logger *zap.SugaredLogger) *Reconciler {
	return &Reconciler{
		db:          db,
		cfg:         cfg,
		logger:      logger,
		accountRepo: repository.NewAccountRepository(db),
		eventRepo:   repository.NewEventRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
	}
}

// Recalculate derives the balance from scratch: the sum of all SUCCESSFUL
// credits minus all SUCCESSFUL debits. Swaps are neutral. The applied flag
// is deliberately ignored — this is the independent derivation.
func (r *Reconciler) Recalculate(ctx context.Context, userID int64) (decimal.Decimal, error) {
	events, err := r.eventRepo.ListSuccessfulByUserID(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, event := range events {
		switch {
		case model.IsCredit(event.Kind):
			total = total.Add(event.Amount)
		case model.IsDebit(event.Kind):
			total = total.Sub(event.Amount)
		}
	}
	return total, nil
}

// Reconcile compares both derivations and reports the result. On mismatch it
// writes an audit message to the outbox and keeps serving the incremental
// balance.
func (r *Reconciler) Reconcile(ctx context.Context, userID int64) (*ReconcileReport, error) {
	incremental := decimal.Zero
	account, err := r.accountRepo.GetByUserID(ctx, nil, userID)
	if err != nil && !errors.Is(err, repository.ErrAccountNotFound) {
		return nil, err
	}
	if account != nil {
		incremental = account.Balance
	}

	recomputed, err := r.Recalculate(ctx, userID)
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{
		UserID:      userID,
		Incremental: incremental,
		Recomputed:  recomputed,
		Matches:     incremental.Equal(recomputed),
	}

	if !report.Matches {
		r.logger.Warnw("reconciliation mismatch",
			"user_id", userID,
			"incremental", incremental.String(),
			"recomputed", recomputed.String(),
		)
		if err := r.reportMismatch(ctx, report); err != nil {
			return nil, err
		}
	}

	return report, nil
}

func (r *Reconciler) reportMismatch(ctx context.Context, report *ReconcileReport) error {
	payload := map[string]interface{}{
		"user_id":             report.UserID,
		"incremental_balance": report.Incremental.String(),
		"recomputed_balance":  report.Recomputed.String(),
		"detected_at":         time.Now().Format(time.RFC3339),
	}
	payloadBytes, _ := json.Marshal(payload)

	msg := &model.OutboxMessage{
		MessageKey: strconv.FormatInt(report.UserID, 10),
		Topic:      r.cfg.Kafka.Topic.ReconcileMismatch,
		Payload:    string(payloadBytes),
		Status:     model.OutboxStatusPending,
	}
	return r.outboxRepo.Create(ctx, nil, msg)
}
