package domain

import (
	"time"

	"github.com/google/uuid"
)

type PaymentMethod string

const (
	MethodCard     PaymentMethod = "CARD"
	MethodBankWire PaymentMethod = "BANK_WIRE"
)

// TransactionStatus is the payment lifecycle state. The graph below is the
// only authority on which moves are legal; nothing compares raw strings.
type TransactionStatus string

const (
	TxPendingSubmission  TransactionStatus = "PENDING_SUBMISSION"
	TxSubmitted          TransactionStatus = "SUBMITTED"
	TxAwaiting3DSMS      TransactionStatus = "AWAITING_3D_SMS"
	TxAwaiting3DPush     TransactionStatus = "AWAITING_3D_PUSH"
	TxVerificationDone   TransactionStatus = "VERIFICATION_COMPLETED"
	TxAwaitingExchange   TransactionStatus = "PROCESSED_AWAITING_EXCHANGE"
	TxProcessed          TransactionStatus = "PROCESSED"
	TxRejected           TransactionStatus = "REJECTED"
	TxInsufficientFunds  TransactionStatus = "INSUFFICIENT_FUNDS"
	TxFailed             TransactionStatus = "FAILED"
)

type MerchantConfirmation string

const (
	ConfirmationPending     MerchantConfirmation = "PENDING"
	ConfirmationSuccess     MerchantConfirmation = "SUCCESS"
	ConfirmationFailed      MerchantConfirmation = "FAILED"
	ConfirmationNotReceived MerchantConfirmation = "NOT_RECEIVED"
)

// ReviewStatus tracks the manual-review branch. A transaction held for
// review cannot progress until an operator decides.
type ReviewStatus string

const (
	ReviewNone     ReviewStatus = ""
	ReviewPending  ReviewStatus = "PENDING"
	ReviewApproved ReviewStatus = "APPROVED"
)

// txTransitions is the closed transition table for the payment lifecycle.
// The three terminal failure states are reachable from every non-terminal
// state and are appended per-source below.
var txTransitions = map[TransactionStatus][]TransactionStatus{
	TxPendingSubmission: {TxSubmitted},
	TxSubmitted:         {TxAwaiting3DSMS, TxAwaiting3DPush, TxAwaitingExchange},
	TxAwaiting3DSMS:     {TxVerificationDone},
	TxAwaiting3DPush:    {TxVerificationDone},
	TxVerificationDone:  {TxAwaitingExchange},
	TxAwaitingExchange:  {TxProcessed},
	TxProcessed:         {},
	TxRejected:          {},
	TxInsufficientFunds: {},
	TxFailed:            {},
}

// IsTerminal reports whether s is permanent. Terminal states never change.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TxProcessed, TxRejected, TxInsufficientFunds, TxFailed:
		return true
	}
	return false
}

// Awaiting3D reports whether s is one of the step-up challenge states.
func (s TransactionStatus) Awaiting3D() bool {
	return s == TxAwaiting3DSMS || s == TxAwaiting3DPush
}

// CanTransition reports whether from -> to is a legal move on the graph.
func CanTransition(from, to TransactionStatus) bool {
	if from == to {
		return false
	}
	if !from.IsTerminal() {
		// Compensating terminals are explicit new states, reachable
		// from any non-terminal state. Nothing is ever rolled back.
		switch to {
		case TxRejected, TxInsufficientFunds, TxFailed:
			return true
		}
	}
	for _, next := range txTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TimelineEntry is one append-only audit record on a transaction.
type TimelineEntry struct {
	Event     string    `json:"event"`
	Actor     string    `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Notes     string    `json:"notes,omitempty"`
}

// Transaction represents one customer payment attempt. It is created on
// submission and never deleted; terminal states are permanent.
type Transaction struct {
	ID               uuid.UUID            `json:"id"`
	PaymentRequestID *uuid.UUID           `json:"payment_request_id,omitempty"`
	MerchantID       uuid.UUID            `json:"merchant_id"`
	Amount           Money                `json:"amount"`
	Method           PaymentMethod        `json:"method"`
	Status           TransactionStatus    `json:"status"`
	RiskScore        int                  `json:"risk_score"`
	RiskFlags        []string             `json:"risk_flags,omitempty"`
	Review           ReviewStatus         `json:"review_status,omitempty"`
	Confirmation     MerchantConfirmation `json:"merchant_confirmation"`
	RefundedAmount   int64                `json:"refunded_amount,omitempty"`
	RefundedAt       *time.Time           `json:"refunded_at,omitempty"`
	Timeline         []TimelineEntry      `json:"timeline"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
	SettledAt        *time.Time           `json:"settled_at,omitempty"`

	// Version backs optimistic-concurrency writes in the ledger store.
	Version uint64 `json:"version"`
}

// AppendTimeline records one audit entry. The timeline is append-only.
func (t *Transaction) AppendTimeline(event, actor, notes string) {
	t.Timeline = append(t.Timeline, TimelineEntry{
		Event:     event,
		Actor:     actor,
		Timestamp: time.Now().UTC(),
		Notes:     notes,
	})
}

// NetAmount is the amount counted into the merchant balance fold:
// the charged amount minus anything refunded since.
func (t *Transaction) NetAmount() int64 {
	net := t.Amount.Amount - t.RefundedAmount
	if net < 0 {
		return 0
	}
	return net
}
