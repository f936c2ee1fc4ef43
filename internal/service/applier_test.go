package service

import (
	"context"
	"sync"
	"testing"

	"walletcore/internal/model"
	"walletcore/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApproveDepositAppliesExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	event, err := env.ledger.CreateEvent(ctx, &CreateEventRequest{
		UserID: 1,
		Kind:   model.EventKindDeposit,
		Amount: dec(t, "100"),
	})
	require.NoError(t, err)
	assert.Equal(t, model.EventStatusPending, event.Status)
	assert.False(t, event.Applied)

	result, err := env.applier.Approve(ctx, event.EventNo)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)
	assert.True(t, result.Balance.Equal(dec(t, "100")))

	stored, err := env.ledger.GetEvent(ctx, event.EventNo)
	require.NoError(t, err)
	assert.Equal(t, model.EventStatusSuccessful, stored.Status)
	assert.True(t, stored.Applied)

	// Second approval is a no-op, not an error.
	result, err = env.applier.Approve(ctx, event.EventNo)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyApplied, result.Outcome)
	assert.True(t, result.Balance.Equal(dec(t, "100")))

	balance, err := env.ledger.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec(t, "100")))
}

func TestApplyIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	event, err := env.ledger.CreateEvent(ctx, &CreateEventRequest{
		UserID: 1,
		Kind:   model.EventKindDeposit,
		Amount: dec(t, "25.50"),
	})
	require.NoError(t, err)

	_, err = env.applier.Approve(ctx, event.EventNo)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		result, err := env.applier.Apply(ctx, event.EventNo)
		require.NoError(t, err)
		assert.Equal(t, OutcomeAlreadyApplied, result.Outcome)
	}

	balance, err := env.ledger.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec(t, "25.50")))
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.fundAccount(t, 2, "50")

	event, err := env.ledger.CreateEvent(ctx, &CreateEventRequest{
		UserID:        2,
		Kind:          model.EventKindWithdraw,
		Amount:        dec(t, "80"),
		AccountNumber: "0123456789",
		BankName:      "First Bank",
	})
	require.NoError(t, err)

	result, err := env.applier.Approve(ctx, event.EventNo)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInsufficientFunds, result.Outcome)
	assert.True(t, result.Balance.Equal(dec(t, "50")))

	stored, err := env.ledger.GetEvent(ctx, event.EventNo)
	require.NoError(t, err)
	assert.Equal(t, model.EventStatusFailed, stored.Status)
	assert.False(t, stored.Applied)

	balance, err := env.ledger.GetBalance(ctx, 2)
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec(t, "50")))
}

func TestDebitAgainstMissingAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// No account exists for user 99: a debit sees a zero balance.
	event, err := env.ledger.CreateEvent(ctx, &CreateEventRequest{
		UserID:   99,
		Kind:     model.EventKindBuy,
		Amount:   dec(t, "10"),
		ItemName: "starter pack",
	})
	require.NoError(t, err)

	result, err := env.applier.Approve(ctx, event.EventNo)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInsufficientFunds, result.Outcome)
	assert.True(t, result.Balance.IsZero())
}

func TestBuyDebitsBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.fundAccount(t, 3, "100")

	event, err := env.ledger.CreateEvent(ctx, &CreateEventRequest{
		UserID:   3,
		Kind:     model.EventKindBuy,
		Amount:   dec(t, "39.99"),
		ItemName: "hardware wallet",
	})
	require.NoError(t, err)

	result, err := env.applier.Approve(ctx, event.EventNo)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)
	assert.True(t, result.Balance.Equal(dec(t, "60.01")))
}

func TestSwapIsBalanceNeutral(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.fundAccount(t, 4, "200")

	event, err := env.ledger.CreateEvent(ctx, &CreateEventRequest{
		UserID:    4,
		Kind:      model.EventKindSwap,
		Amount:    dec(t, "150"),
		FromAsset: "BTC",
		ToAsset:   "ETH",
		Rate:      dec(t, "15.5"),
	})
	require.NoError(t, err)

	result, err := env.applier.Approve(ctx, event.EventNo)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)
	assert.True(t, result.Balance.Equal(dec(t, "200")))

	stored, err := env.ledger.GetEvent(ctx, event.EventNo)
	require.NoError(t, err)
	assert.True(t, stored.Applied)
}

func TestRejectHasNoBalanceEffect(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.fundAccount(t, 5, "100")

	event, err := env.ledger.CreateEvent(ctx, &CreateEventRequest{
		UserID:        5,
		Kind:          model.EventKindWithdraw,
		Amount:        dec(t, "30"),
		AccountNumber: "0123456789",
		BankName:      "First Bank",
	})
	require.NoError(t, err)

	require.NoError(t, env.applier.Reject(ctx, event.EventNo))

	stored, err := env.ledger.GetEvent(ctx, event.EventNo)
	require.NoError(t, err)
	assert.Equal(t, model.EventStatusFailed, stored.Status)
	assert.False(t, stored.Applied)

	balance, err := env.ledger.GetBalance(ctx, 5)
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec(t, "100")))

	// A failed event cannot be approved afterwards.
	_, err = env.applier.Approve(ctx, event.EventNo)
	assert.ErrorIs(t, err, repository.ErrEventStatusInvalid)
}

func TestConcurrentApprovalsCreditOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	event, err := env.ledger.CreateEvent(ctx, &CreateEventRequest{
		UserID: 6,
		Kind:   model.EventKindDeposit,
		Amount: dec(t, "100"),
	})
	require.NoError(t, err)

	const callers = 8
	var wg sync.WaitGroup
	outcomes := make(chan ApplyOutcome, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := env.applier.Approve(ctx, event.EventNo)
			if err == nil {
				outcomes <- result.Outcome
			}
		}()
	}
	wg.Wait()
	close(outcomes)

	applied := 0
	for outcome := range outcomes {
		if outcome == OutcomeApplied {
			applied++
		}
	}
	assert.Equal(t, 1, applied)

	balance, err := env.ledger.GetBalance(ctx, 6)
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec(t, "100")))

	entries, total, err := env.ledger.ListEntries(ctx, 6, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].BalanceAfter.Equal(dec(t, "100")))
}

func TestConcurrentWithdrawalsOnlyOneSucceeds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.fundAccount(t, 7, "100")

	eventNos := make([]string, 2)
	for i := range eventNos {
		event, err := env.ledger.CreateEvent(ctx, &CreateEventRequest{
			UserID:        7,
			Kind:          model.EventKindWithdraw,
			Amount:        dec(t, "60"),
			AccountNumber: "0123456789",
			BankName:      "First Bank",
		})
		require.NoError(t, err)
		eventNos[i] = event.EventNo
	}

	var wg sync.WaitGroup
	outcomes := make(chan ApplyOutcome, len(eventNos))

	for _, eventNo := range eventNos {
		wg.Add(1)
		go func(no string) {
			defer wg.Done()
			result, err := env.applier.Approve(ctx, no)
			if err == nil {
				outcomes <- result.Outcome
			}
		}(eventNo)
	}
	wg.Wait()
	close(outcomes)

	counts := map[ApplyOutcome]int{}
	for outcome := range outcomes {
		counts[outcome]++
	}
	assert.Equal(t, 1, counts[OutcomeApplied], "exactly one withdrawal may be funded")
	assert.Equal(t, 1, counts[OutcomeInsufficientFunds])

	balance, err := env.ledger.GetBalance(ctx, 7)
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec(t, "40")))
}

func TestApplyRequiresSuccessfulStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	event, err := env.ledger.CreateEvent(ctx, &CreateEventRequest{
		UserID: 8,
		Kind:   model.EventKindDeposit,
		Amount: dec(t, "10"),
	})
	require.NoError(t, err)

	// Still PENDING: the applier must refuse.
	_, err = env.applier.Apply(ctx, event.EventNo)
	assert.ErrorIs(t, err, repository.ErrEventStatusInvalid)

	balance, err := env.ledger.GetBalance(ctx, 8)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}
