package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionTo(t *testing.T) {
	assert.True(t, CanTransitionTo(EventStatusPending, EventStatusSuccessful))
	assert.True(t, CanTransitionTo(EventStatusPending, EventStatusFailed))
	assert.True(t, CanTransitionTo(EventStatusSuccessful, EventStatusFailed))

	assert.False(t, CanTransitionTo(EventStatusSuccessful, EventStatusPending))
	assert.False(t, CanTransitionTo(EventStatusFailed, EventStatusPending))
	assert.False(t, CanTransitionTo(EventStatusFailed, EventStatusSuccessful))
	assert.False(t, CanTransitionTo(EventStatusPending, EventStatusPending))
	assert.False(t, CanTransitionTo("UNKNOWN", EventStatusFailed))
}

func TestKindClassification(t *testing.T) {
	assert.True(t, IsCredit(EventKindDeposit))
	assert.False(t, IsCredit(EventKindWithdraw))

	assert.True(t, IsDebit(EventKindWithdraw))
	assert.True(t, IsDebit(EventKindBuy))
	assert.False(t, IsDebit(EventKindDeposit))

	// Swap moves no balance either way.
	assert.False(t, IsCredit(EventKindSwap))
	assert.False(t, IsDebit(EventKindSwap))
}

func TestIsValidKind(t *testing.T) {
	for _, kind := range []string{EventKindDeposit, EventKindWithdraw, EventKindBuy, EventKindSwap} {
		assert.True(t, IsValidKind(kind), kind)
	}
	assert.False(t, IsValidKind("TRANSFER"))
	assert.False(t, IsValidKind(""))
}
