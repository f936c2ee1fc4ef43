package service

import (
	"context"
	"errors"
	"fmt"

	"walletcore/internal/model"
	"walletcore/internal/repository"
	"walletcore/pkg/idgen"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidAmount = errors.New("amount must be greater than zero")
	ErrUnknownKind   = errors.New("unknown event kind")
)

// LedgerService owns event submission and account reads. Every event starts
// PENDING here; balance mutation happens only in the Applier.
type LedgerService struct {
	db          *gorm.DB
	logger      *zap.SugaredLogger
	accountRepo *repository.AccountRepository
	eventRepo   *repository.EventRepository
	entryRepo   *repository.EntryRepository
}

func NewLedgerService(db *gorm.DB, logger *zap.SugaredLogger) *LedgerService {
	return &LedgerService{
		db:          db,
		logger:      logger,
		accountRepo: repository.NewAccountRepository(db),
		eventRepo:   repository.NewEventRepository(db),
		entryRepo:   repository.NewEntryRepository(db),
	}
}

type CreateEventRequest struct {
	UserID    int64
	Kind      string
	Amount    decimal.Decimal
	Reference string // optional idempotency token; generated when absent

	// Kind-specific metadata.
	ItemName      string
	AccountNumber string
	BankName      string
	FromAsset     string
	ToAsset       string
	Rate          decimal.Decimal
}

// CreateEvent validates and persists a new PENDING event.
//
// A caller-supplied reference is checked before insert; the unique index on
// the reference column closes the remaining race window, so a duplicate
// submission is rejected either way, never silently overwritten.
func (s *LedgerService) CreateEvent(ctx context.Context, req *CreateEventRequest) (*model.Event, error) {
	if !model.IsValidKind(req.Kind) {
		return nil, ErrUnknownKind
	}
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	reference := req.Reference
	if reference == "" {
		reference = uuid.NewString()
	} else {
		existing, err := s.eventRepo.GetByReference(ctx, reference)
		if err != nil {
			return nil, fmt.Errorf("reference lookup failed: %w", err)
		}
		if existing != nil {
			return nil, repository.ErrDuplicateReference
		}
	}

	rate := req.Rate
	if req.Kind == model.EventKindSwap && rate.IsZero() {
		rate = decimal.NewFromInt(1)
	}

	event := &model.Event{
		EventNo:       idgen.GenerateEventNo(),
		UserID:        req.UserID,
		Kind:          req.Kind,
		Amount:        req.Amount,
		Status:        model.EventStatusPending,
		Reference:     reference,
		ItemName:      req.ItemName,
		AccountNumber: req.AccountNumber,
		BankName:      req.BankName,
		FromAsset:     req.FromAsset,
		ToAsset:       req.ToAsset,
		Rate:          rate,
	}

	if err := s.eventRepo.Create(ctx, nil, event); err != nil {
		return nil, err
	}

	s.logger.Infow("event created",
		"event_no", event.EventNo,
		"user_id", event.UserID,
		"kind", event.Kind,
		"amount", event.Amount.String(),
	)
	return event, nil
}

// GetBalance reads the incrementally maintained balance, creating the
// account lazily on first reference.
func (s *LedgerService) GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	account, err := s.accountRepo.GetOrCreate(ctx, nil, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

func (s *LedgerService) GetAccount(ctx context.Context, userID int64) (*model.Account, error) {
	return s.accountRepo.GetOrCreate(ctx, nil, userID)
}

func (s *LedgerService) GetEvent(ctx context.Context, eventNo string) (*model.Event, error) {
	return s.eventRepo.GetByEventNo(ctx, nil, eventNo)
}

func (s *LedgerService) ListEvents(ctx context.Context, userID int64, page, pageSize int) ([]*model.Event, int64, error) {
	return s.eventRepo.ListByUserID(ctx, userID, page, pageSize)
}

func (s *LedgerService) ListEntries(ctx context.Context, userID int64, page, pageSize int) ([]*model.LedgerEntry, int64, error) {
	return s.entryRepo.ListByUserID(ctx, userID, page, pageSize)
}

// SetKYCStatus syncs the account's verification flag from a KYC review
// outcome. Document handling lives outside this service.
func (s *LedgerService) SetKYCStatus(ctx context.Context, userID int64, status, country, idType, idNumber string) error {
	switch status {
	case model.KYCStatusUnverified, model.KYCStatusPending, model.KYCStatusVerified:
	default:
		return fmt.Errorf("unknown kyc status: %s", status)
	}

	if _, err := s.accountRepo.GetOrCreate(ctx, nil, userID); err != nil {
		return err
	}

	verified := status == model.KYCStatusVerified
	return s.accountRepo.UpdateKYC(ctx, userID, verified, country, idType, idNumber)
}
