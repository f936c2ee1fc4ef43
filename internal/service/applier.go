package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"walletcore/internal/config"
	"walletcore/internal/infrastructure/lock"
	"walletcore/internal/model"
	"walletcore/internal/repository"
	"walletcore/pkg/idgen"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrApplyContention is returned when the optimistic retry budget runs out.
// The event stays SUCCESSFUL with applied=false; a later Apply picks it up.
var ErrApplyContention = errors.New("apply contention, retry later")

type ApplyOutcome string

const (
	OutcomeApplied           ApplyOutcome = "APPLIED"
	OutcomeAlreadyApplied    ApplyOutcome = "ALREADY_APPLIED"
	OutcomeInsufficientFunds ApplyOutcome = "INSUFFICIENT_FUNDS"
)

type ApplyResult struct {
	EventNo string          `json:"event_no"`
	Outcome ApplyOutcome    `json:"outcome"`
	Status  string          `json:"status"`
	Balance decimal.Decimal `json:"balance"`
}

// Applier is the single authority that turns a SUCCESSFUL event into a
// balance mutation, exactly once.
//
// Per event, exactly one of the following commits: the balance mutation
// together with the applied flip, the entry row and the outbox row; or the
// SUCCESSFUL->FAILED transition for an underfunded debit. Never both, never
// twice. The per-account lock serializes invocations, and the version CAS on
// the account row backstops the lock across the fleet.
type Applier struct {
	db          *gorm.DB
	cfg         *config.Config
	logger      *zap.SugaredLogger
	locker      lock.Locker
	accountRepo *repository.AccountRepository
	eventRepo   *repository.EventRepository
	entryRepo   *repository.EntryRepository
	outboxRepo  *repository.OutboxRepository
}

func NewApplier(db *gorm.DB, locker lock.Locker, cfg *config.Config, logger *zap.SugaredLogger) *Applier {
	return &Applier{
		db:          db,
		cfg:         cfg,
		logger:      logger,
		locker:      locker,
		accountRepo: repository.NewAccountRepository(db),
		eventRepo:   repository.NewEventRepository(db),
		entryRepo:   repository.NewEntryRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
	}
}

// Approve transitions a PENDING event to SUCCESSFUL and applies it.
// Calling Approve again on the same event is safe: the status flip is
// conditional and Apply is idempotent.
func (a *Applier) Approve(ctx context.Context, eventNo string) (*ApplyResult, error) {
	event, err := a.eventRepo.GetByEventNo(ctx, nil, eventNo)
	if err != nil {
		return nil, err
	}

	switch event.Status {
	case model.EventStatusPending:
		err := a.eventRepo.UpdateStatus(ctx, nil, eventNo, model.EventStatusPending, model.EventStatusSuccessful)
		if err != nil && !errors.Is(err, repository.ErrEventStatusInvalid) {
			return nil, err
		}
		if err != nil {
			// Lost the race; only proceed if the winner approved it.
			event, err = a.eventRepo.GetByEventNo(ctx, nil, eventNo)
			if err != nil {
				return nil, err
			}
			if event.Status != model.EventStatusSuccessful {
				return nil, repository.ErrEventStatusInvalid
			}
		}
	case model.EventStatusSuccessful:
		// Approved before; fall through to Apply, which no-ops if applied.
	case model.EventStatusFailed:
		return nil, repository.ErrEventStatusInvalid
	}

	return a.Apply(ctx, eventNo)
}

// Reject transitions a PENDING event to FAILED. No balance effect.
func (a *Applier) Reject(ctx context.Context, eventNo string) error {
	if err := a.eventRepo.UpdateStatus(ctx, nil, eventNo, model.EventStatusPending, model.EventStatusFailed); err != nil {
		return err
	}
	a.logger.Infow("event rejected", "event_no", eventNo)
	return nil
}

// Apply performs the balance mutation for a SUCCESSFUL event.
//
// The per-account lock is held only across the read-check-mutate-write; the
// caller must not be holding it across any user-facing I/O. Optimistic
// conflicts are retried a bounded number of times before surfacing
// ErrApplyContention.
func (a *Applier) Apply(ctx context.Context, eventNo string) (*ApplyResult, error) {
	event, err := a.eventRepo.GetByEventNo(ctx, nil, eventNo)
	if err != nil {
		return nil, err
	}

	if event.Applied {
		return a.alreadyApplied(ctx, nil, event)
	}
	if event.Status != model.EventStatusSuccessful {
		return nil, repository.ErrEventStatusInvalid
	}

	release, err := a.locker.Acquire(ctx, lock.AccountKey(event.UserID))
	if err != nil {
		return nil, fmt.Errorf("account lock: %w", err)
	}
	defer release(ctx)

	maxRetries := a.cfg.Business.ApplyMaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		result, err := a.applyOnce(ctx, eventNo)
		if errors.Is(err, repository.ErrOptimisticLock) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}

	a.logger.Warnw("apply retries exhausted", "event_no", eventNo)
	return nil, ErrApplyContention
}

// applyOnce runs one attempt inside a single DB transaction. The applied
// flip is performed first and gates the mutation: if another invocation got
// there between our read and our write, MarkApplied affects zero rows and
// the whole attempt degrades to AlreadyApplied with no balance change.
func (a *Applier) applyOnce(ctx context.Context, eventNo string) (*ApplyResult, error) {
	var result *ApplyResult

	err := a.db.Transaction(func(tx *gorm.DB) error {
		event, err := a.eventRepo.GetByEventNo(ctx, tx, eventNo)
		if err != nil {
			return err
		}
		if event.Applied {
			r, err := a.alreadyApplied(ctx, tx, event)
			result = r
			return err
		}
		if event.Status != model.EventStatusSuccessful {
			return repository.ErrEventStatusInvalid
		}

		switch {
		case model.IsCredit(event.Kind):
			return a.applyCredit(ctx, tx, event, &result)
		case model.IsDebit(event.Kind):
			return a.applyDebit(ctx, tx, event, &result)
		default: // SWAP: balance-neutral status record
			return a.applyNeutral(ctx, tx, event, &result)
		}
	})
	if err != nil {
		return nil, err
	}

	if result.Outcome == OutcomeApplied {
		a.logger.Infow("event applied",
			"event_no", result.EventNo,
			"balance", result.Balance.String(),
		)
	}
	return result, nil
}

// applyCredit increments the balance unconditionally. The account is created
// lazily if this is the user's first credit.
func (a *Applier) applyCredit(ctx context.Context, tx *gorm.DB, event *model.Event, result **ApplyResult) error {
	account, err := a.accountRepo.GetOrCreate(ctx, tx, event.UserID)
	if err != nil {
		return err
	}

	if err := a.eventRepo.MarkApplied(ctx, tx, event.EventNo); err != nil {
		if errors.Is(err, repository.ErrAlreadyApplied) {
			r, aerr := a.alreadyApplied(ctx, tx, event)
			*result = r
			return aerr
		}
		return err
	}

	newBalance := account.Balance.Add(event.Amount)
	if err := a.accountRepo.CompareAndSetBalance(ctx, tx, event.UserID, newBalance, account.Version); err != nil {
		return err
	}

	if err := a.writeEntry(ctx, tx, event, event.Amount, account.Balance, newBalance); err != nil {
		return err
	}
	if err := a.writeAppliedOutbox(ctx, tx, event, newBalance); err != nil {
		return err
	}

	*result = &ApplyResult{
		EventNo: event.EventNo,
		Outcome: OutcomeApplied,
		Status:  model.EventStatusSuccessful,
		Balance: newBalance,
	}
	return nil
}

// applyDebit re-reads the balance inside the transaction and rejects the
// event into FAILED when the account cannot cover it. A missing account is
// a zero balance, which is always insufficient.
func (a *Applier) applyDebit(ctx context.Context, tx *gorm.DB, event *model.Event, result **ApplyResult) error {
	account, err := a.accountRepo.GetByUserID(ctx, tx, event.UserID)
	if err != nil && !errors.Is(err, repository.ErrAccountNotFound) {
		return err
	}

	balance := decimal.Zero
	if account != nil {
		balance = account.Balance
	}

	if balance.LessThan(event.Amount) {
		if err := a.eventRepo.UpdateStatus(ctx, tx, event.EventNo, model.EventStatusSuccessful, model.EventStatusFailed); err != nil {
			return err
		}
		a.logger.Infow("debit rejected, insufficient funds",
			"event_no", event.EventNo,
			"user_id", event.UserID,
			"amount", event.Amount.String(),
			"balance", balance.String(),
		)
		*result = &ApplyResult{
			EventNo: event.EventNo,
			Outcome: OutcomeInsufficientFunds,
			Status:  model.EventStatusFailed,
			Balance: balance,
		}
		return nil
	}

	if err := a.eventRepo.MarkApplied(ctx, tx, event.EventNo); err != nil {
		if errors.Is(err, repository.ErrAlreadyApplied) {
			r, aerr := a.alreadyApplied(ctx, tx, event)
			*result = r
			return aerr
		}
		return err
	}

	newBalance := balance.Sub(event.Amount)
	if err := a.accountRepo.CompareAndSetBalance(ctx, tx, event.UserID, newBalance, account.Version); err != nil {
		return err
	}

	if err := a.writeEntry(ctx, tx, event, event.Amount.Neg(), balance, newBalance); err != nil {
		return err
	}
	if err := a.writeAppliedOutbox(ctx, tx, event, newBalance); err != nil {
		return err
	}

	*result = &ApplyResult{
		EventNo: event.EventNo,
		Outcome: OutcomeApplied,
		Status:  model.EventStatusSuccessful,
		Balance: newBalance,
	}
	return nil
}

// applyNeutral marks a swap applied without touching the balance.
func (a *Applier) applyNeutral(ctx context.Context, tx *gorm.DB, event *model.Event, result **ApplyResult) error {
	if err := a.eventRepo.MarkApplied(ctx, tx, event.EventNo); err != nil {
		if errors.Is(err, repository.ErrAlreadyApplied) {
			r, aerr := a.alreadyApplied(ctx, tx, event)
			*result = r
			return aerr
		}
		return err
	}

	account, err := a.accountRepo.GetOrCreate(ctx, tx, event.UserID)
	if err != nil {
		return err
	}
	if err := a.writeAppliedOutbox(ctx, tx, event, account.Balance); err != nil {
		return err
	}

	*result = &ApplyResult{
		EventNo: event.EventNo,
		Outcome: OutcomeApplied,
		Status:  model.EventStatusSuccessful,
		Balance: account.Balance,
	}
	return nil
}

func (a *Applier) alreadyApplied(ctx context.Context, tx *gorm.DB, event *model.Event) (*ApplyResult, error) {
	balance := decimal.Zero
	account, err := a.accountRepo.GetByUserID(ctx, tx, event.UserID)
	if err != nil && !errors.Is(err, repository.ErrAccountNotFound) {
		return nil, err
	}
	if account != nil {
		balance = account.Balance
	}
	return &ApplyResult{
		EventNo: event.EventNo,
		Outcome: OutcomeAlreadyApplied,
		Status:  model.EventStatusSuccessful,
		Balance: balance,
	}, nil
}

func (a *Applier) writeEntry(ctx context.Context, tx *gorm.DB, event *model.Event, signedAmount, before, after decimal.Decimal) error {
	entry := &model.LedgerEntry{
		EntryNo:       idgen.GenerateEntryNo(),
		UserID:        event.UserID,
		EventNo:       event.EventNo,
		Kind:          event.Kind,
		Amount:        signedAmount,
		BalanceBefore: before,
		BalanceAfter:  after,
	}
	return a.entryRepo.Create(ctx, tx, entry)
}

func (a *Applier) writeAppliedOutbox(ctx context.Context, tx *gorm.DB, event *model.Event, balanceAfter decimal.Decimal) error {
	payload := map[string]interface{}{
		"event_no":      event.EventNo,
		"user_id":       event.UserID,
		"kind":          event.Kind,
		"amount":        event.Amount.String(),
		"balance_after": balanceAfter.String(),
		"applied_at":    time.Now().Format(time.RFC3339),
	}
	payloadBytes, _ := json.Marshal(payload)

	msg := &model.OutboxMessage{
		MessageKey: event.EventNo,
		Topic:      a.cfg.Kafka.Topic.LedgerApplied,
		Payload:    string(payloadBytes),
		Status:     model.OutboxStatusPending,
	}
	return a.outboxRepo.Create(ctx, tx, msg)
}
