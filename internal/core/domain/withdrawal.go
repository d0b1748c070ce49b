package domain

import (
	"time"

	"github.com/google/uuid"
)

type WithdrawalMethod string

const (
	WithdrawBankTransfer WithdrawalMethod = "BANK_TRANSFER"
	WithdrawCrypto       WithdrawalMethod = "CRYPTO"
)

type WithdrawalStatus string

const (
	WdInitiated WithdrawalStatus = "INITIATED"
	WdOnChain   WithdrawalStatus = "ON_CHAIN"
	WdPaid      WithdrawalStatus = "PAID"
	WdFailed    WithdrawalStatus = "FAILED"
	WdReversed  WithdrawalStatus = "REVERSED"
)

func (s WithdrawalStatus) IsTerminal() bool {
	switch s {
	case WdPaid, WdFailed, WdReversed:
		return true
	}
	return false
}

// Reserves reports whether a withdrawal in this state still holds its gross
// amount against the merchant's available balance. Only FAILED and REVERSED
// release the reservation.
func (s WithdrawalStatus) Reserves() bool {
	return s != WdFailed && s != WdReversed
}

var wdTransitions = map[WithdrawalStatus][]WithdrawalStatus{
	WdInitiated: {WdOnChain, WdPaid, WdFailed, WdReversed},
	WdOnChain:   {WdPaid, WdFailed, WdReversed},
	WdPaid:      {},
	WdFailed:    {},
	WdReversed:  {},
}

func CanTransitionWithdrawal(from, to WithdrawalStatus) bool {
	for _, next := range wdTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Withdrawal moves settled merchant funds out of the platform. The gross
// Amount is reserved against available balance atomically at creation and
// released back only on FAILED/REVERSED. NetAmount = Amount - Fee, always.
type Withdrawal struct {
	ID         uuid.UUID        `json:"id"`
	MerchantID uuid.UUID        `json:"merchant_id"`
	Method     WithdrawalMethod `json:"method"`
	Amount     Money            `json:"amount"`
	Fee        Money            `json:"fee"`
	NetAmount  Money            `json:"net_amount"`
	Status     WithdrawalStatus `json:"status"`

	// Destination details. Bank wires carry an external reference once
	// paid; crypto carries advisory chain metadata which never moves
	// funds by itself.
	Destination   string `json:"destination"`
	BankReference string `json:"bank_reference,omitempty"`
	TxHash        string `json:"tx_hash,omitempty"`
	Confirmations int    `json:"confirmations,omitempty"`
	ExplorerURL   string `json:"explorer_url,omitempty"`

	FailureReason string     `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`

	Version uint64 `json:"version"`
}

// Settlement is an additive batch record grouping transactions moved from
// pending to available balance. Never mutated after creation.
type Settlement struct {
	ID             uuid.UUID   `json:"id"`
	MerchantID     uuid.UUID   `json:"merchant_id"`
	Amount         Money       `json:"amount"`
	TransactionIDs []uuid.UUID `json:"transaction_ids"`
	CreatedAt      time.Time   `json:"created_at"`
}
