package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestComputeBalanceFold(t *testing.T) {
	merchant := uuid.New()

	txs := []*Transaction{
		{MerchantID: merchant, Amount: NewMoney(100_00, USD), Status: TxAwaitingExchange},
		{MerchantID: merchant, Amount: NewMoney(250_00, USD), Status: TxProcessed},
		{MerchantID: merchant, Amount: NewMoney(50_00, USD), Status: TxProcessed, RefundedAmount: 10_00},
		// Ignored: wrong status, wrong currency, wrong merchant.
		{MerchantID: merchant, Amount: NewMoney(999_00, USD), Status: TxSubmitted},
		{MerchantID: merchant, Amount: NewMoney(999_00, EUR), Status: TxProcessed},
		{MerchantID: uuid.New(), Amount: NewMoney(999_00, USD), Status: TxProcessed},
	}
	wds := []*Withdrawal{
		{MerchantID: merchant, Amount: NewMoney(40_00, USD), Status: WdInitiated},
		{MerchantID: merchant, Amount: NewMoney(25_00, USD), Status: WdPaid},
		// Released reservations do not count.
		{MerchantID: merchant, Amount: NewMoney(500_00, USD), Status: WdFailed},
		{MerchantID: merchant, Amount: NewMoney(500_00, USD), Status: WdReversed},
	}

	bal := ComputeBalance(merchant, USD, txs, wds)
	assert.Equal(t, int64(100_00), bal.Pending.Amount)
	// 250 + (50-10) - 40 - 25 = 225
	assert.Equal(t, int64(225_00), bal.Available.Amount)
}

func TestComputeBalanceNeverNegative(t *testing.T) {
	merchant := uuid.New()
	wds := []*Withdrawal{
		{MerchantID: merchant, Amount: NewMoney(100_00, USD), Status: WdInitiated},
	}
	bal := ComputeBalance(merchant, USD, nil, wds)
	assert.Equal(t, int64(0), bal.Available.Amount)
}

func TestWithdrawalReserves(t *testing.T) {
	assert.True(t, WdInitiated.Reserves())
	assert.True(t, WdOnChain.Reserves())
	assert.True(t, WdPaid.Reserves())
	assert.False(t, WdFailed.Reserves())
	assert.False(t, WdReversed.Reserves())
}

func TestWithdrawalTransitions(t *testing.T) {
	assert.True(t, CanTransitionWithdrawal(WdInitiated, WdOnChain))
	assert.True(t, CanTransitionWithdrawal(WdInitiated, WdPaid))
	assert.True(t, CanTransitionWithdrawal(WdOnChain, WdFailed))
	assert.False(t, CanTransitionWithdrawal(WdPaid, WdReversed))
	assert.False(t, CanTransitionWithdrawal(WdFailed, WdInitiated))
	assert.False(t, CanTransitionWithdrawal(WdOnChain, WdInitiated))
}
