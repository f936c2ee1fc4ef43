package repository

import (
	"context"
	"testing"

	"walletcore/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupRepoDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.Account{},
		&model.Event{},
		&model.LedgerEntry{},
		&model.OutboxMessage{},
	))
	return db
}

func TestGetByUserIDNotFound(t *testing.T) {
	repo := NewAccountRepository(setupRepoDB(t))

	_, err := repo.GetByUserID(context.Background(), nil, 1)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	repo := NewAccountRepository(setupRepoDB(t))
	ctx := context.Background()

	first, err := repo.GetOrCreate(ctx, nil, 1)
	require.NoError(t, err)
	assert.True(t, first.Balance.IsZero())
	assert.Equal(t, 0, first.Version)

	second, err := repo.GetOrCreate(ctx, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestCompareAndSetBalance(t *testing.T) {
	repo := NewAccountRepository(setupRepoDB(t))
	ctx := context.Background()

	account, err := repo.GetOrCreate(ctx, nil, 1)
	require.NoError(t, err)

	newBalance := decimal.NewFromInt(100)
	require.NoError(t, repo.CompareAndSetBalance(ctx, nil, 1, newBalance, account.Version))

	updated, err := repo.GetByUserID(ctx, nil, 1)
	require.NoError(t, err)
	assert.True(t, updated.Balance.Equal(newBalance))
	assert.Equal(t, account.Version+1, updated.Version)

	// The stale version must be rejected.
	err = repo.CompareAndSetBalance(ctx, nil, 1, decimal.NewFromInt(999), account.Version)
	assert.ErrorIs(t, err, ErrOptimisticLock)

	final, err := repo.GetByUserID(ctx, nil, 1)
	require.NoError(t, err)
	assert.True(t, final.Balance.Equal(newBalance))
}

func TestUpdateKYCUnknownAccount(t *testing.T) {
	repo := NewAccountRepository(setupRepoDB(t))

	err := repo.UpdateKYC(context.Background(), 404, true, "NG", "passport", "A1")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestEventCreateDuplicateReference(t *testing.T) {
	repo := NewEventRepository(setupRepoDB(t))
	ctx := context.Background()

	err := repo.Create(ctx, nil, &model.Event{
		EventNo:   "EVT1",
		UserID:    1,
		Kind:      model.EventKindDeposit,
		Amount:    decimal.NewFromInt(10),
		Status:    model.EventStatusPending,
		Reference: "ref-1",
	})
	require.NoError(t, err)

	err = repo.Create(ctx, nil, &model.Event{
		EventNo:   "EVT2",
		UserID:    1,
		Kind:      model.EventKindDeposit,
		Amount:    decimal.NewFromInt(10),
		Status:    model.EventStatusPending,
		Reference: "ref-1",
	})
	assert.ErrorIs(t, err, ErrDuplicateReference)
}

func TestUpdateStatusConditional(t *testing.T) {
	repo := NewEventRepository(setupRepoDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, nil, &model.Event{
		EventNo:   "EVT1",
		UserID:    1,
		Kind:      model.EventKindDeposit,
		Amount:    decimal.NewFromInt(10),
		Status:    model.EventStatusPending,
		Reference: "ref-1",
	}))

	require.NoError(t, repo.UpdateStatus(ctx, nil, "EVT1", model.EventStatusPending, model.EventStatusSuccessful))

	// Repeating the same transition finds no PENDING row.
	err := repo.UpdateStatus(ctx, nil, "EVT1", model.EventStatusPending, model.EventStatusSuccessful)
	assert.ErrorIs(t, err, ErrEventStatusInvalid)

	// An undeclared transition is rejected before touching the database.
	err = repo.UpdateStatus(ctx, nil, "EVT1", model.EventStatusFailed, model.EventStatusSuccessful)
	assert.ErrorIs(t, err, ErrEventStatusInvalid)
}

func TestMarkAppliedOnlyOnce(t *testing.T) {
	repo := NewEventRepository(setupRepoDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, nil, &model.Event{
		EventNo:   "EVT1",
		UserID:    1,
		Kind:      model.EventKindDeposit,
		Amount:    decimal.NewFromInt(10),
		Status:    model.EventStatusSuccessful,
		Reference: "ref-1",
	}))

	require.NoError(t, repo.MarkApplied(ctx, nil, "EVT1"))

	err := repo.MarkApplied(ctx, nil, "EVT1")
	assert.ErrorIs(t, err, ErrAlreadyApplied)
}
