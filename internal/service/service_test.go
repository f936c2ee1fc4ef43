package service

import (
	"context"
	"testing"

	"walletcore/internal/config"
	"walletcore/internal/infrastructure/lock"
	"walletcore/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	// A single connection keeps every session on the same in-memory
	// database and serializes sqlite access under concurrent tests.
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

func testConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{
				LedgerApplied:     "ledger.event.applied",
				ReconcileMismatch: "ledger.reconcile.mismatch",
			},
		},
		Business: config.BusinessConfig{
			ApplyMaxRetries: 3,
			MaxRetryCount:   3,
		},
	}
}

type testEnv struct {
	db         *gorm.DB
	ledger     *LedgerService
	applier    *Applier
	reconciler *Reconciler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := setupTestDB(t)
	log := zap.NewNop().Sugar()
	cfg := testConfig()

	return &testEnv{
		db:         db,
		ledger:     NewLedgerService(db, log),
		applier:    NewApplier(db, lock.NewKeyedMutex(), cfg, log),
		reconciler: NewReconciler(db, cfg, log),
	}
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

// fundAccount deposits and approves in one step.
func (e *testEnv) fundAccount(t *testing.T, userID int64, amount string) {
	t.Helper()

	event, err := e.ledger.CreateEvent(context.Background(), &CreateEventRequest{
		UserID: userID,
		Kind:   model.EventKindDeposit,
		Amount: dec(t, amount),
	})
	require.NoError(t, err)

	result, err := e.applier.Approve(context.Background(), event.EventNo)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, result.Outcome)
}
