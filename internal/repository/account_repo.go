package repository

import (
	"context"
	"errors"
	"time"

	"walletcore/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrOptimisticLock  = errors.New("optimistic lock conflict, retry")
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetByUserID(ctx context.Context, tx *gorm.DB, userID int64) (*model.Account, error) {
	if tx == nil {
		tx = r.db
	}
	var account model.Account
	err := tx.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// GetOrCreate returns the account for userID, creating it with a zero balance
// if none exists. The insert is an upsert that ignores conflicts, so two
// racing callers both end up reading the same single row.
func (r *AccountRepository) GetOrCreate(ctx context.Context, tx *gorm.DB, userID int64) (*model.Account, error) {
	if tx == nil {
		tx = r.db
	}

	account, err := r.GetByUserID(ctx, tx, userID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	newAccount := &model.Account{
		UserID:  userID,
		Balance: decimal.Zero,
	}

	err = tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(newAccount).Error
	if err != nil {
		return nil, err
	}

	return r.GetByUserID(ctx, tx, userID)
}

// CompareAndSetBalance writes newBalance only if the row still carries the
// version the caller read. Zero rows affected means a concurrent writer won;
// the caller re-reads and retries.
func (r *AccountRepository) CompareAndSetBalance(ctx context.Context, tx *gorm.DB, userID int64, newBalance decimal.Decimal, version int) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("user_id = ? AND version = ?", userID, version).
		Updates(map[string]interface{}{
			"balance": newBalance,
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}
	return nil
}

// UpdateKYC sets the verification flag and profile attributes.
func (r *AccountRepository) UpdateKYC(ctx context.Context, userID int64, verified bool, country, idType, idNumber string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"kyc_verified": verified,
			"country":      country,
			"id_type":      idType,
			"id_number":    idNumber,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// ListActiveSince returns accounts touched after the given time, for the
// reconcile sweep.
func (r *AccountRepository) ListActiveSince(ctx context.Context, since time.Time, limit int) ([]*model.Account, error) {
	var accounts []*model.Account
	err := r.db.WithContext(ctx).
		Where("updated_at >= ?", since).
		Order("updated_at DESC").
		Limit(limit).
		Find(&accounts).Error
	return accounts, err
}
