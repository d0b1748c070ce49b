// Package balance computes merchant balances from the ledger and executes
// withdrawals against available funds. The fold in domain.ComputeBalance is
// the single source of truth; no independent counter is trusted without
// reconciling against it.
package balance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/teamkurence-png/psp-platform-sub000/internal/core/domain"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/ledger"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/notifications"
)

type Config struct {
	// CryptoFlatFee is charged per crypto withdrawal, in minor units.
	CryptoFlatFee int64
	// BankFeeBasisPts is the bank-transfer fee in basis points of the
	// gross amount.
	BankFeeBasisPts int64
	// SettleAfter is how long a transaction sits pending before the
	// periodic sweep settles it without an explicit confirmation.
	SettleAfter time.Duration
}

type Engine struct {
	store  ledger.Store
	events notifications.Queue
	cfg    Config
}

func NewEngine(store ledger.Store, events notifications.Queue, cfg Config) *Engine {
	if events == nil {
		events = notifications.Discard{}
	}
	return &Engine{store: store, events: events, cfg: cfg}
}

// GetBalance recomputes the merchant's balance from the ledger. Read-only
// callers may see an eventually-consistent snapshot; the withdrawal
// reservation never relies on this read.
func (e *Engine) GetBalance(ctx context.Context, merchantID uuid.UUID, currency domain.Currency) (domain.Balance, error) {
	txs, err := e.store.ListTransactions(ctx, merchantID, currency)
	if err != nil {
		return domain.Balance{}, err
	}
	wds, err := e.store.ListWithdrawals(ctx, merchantID, currency)
	if err != nil {
		return domain.Balance{}, err
	}
	return domain.ComputeBalance(merchantID, currency, txs, wds), nil
}

// Fee computes the method-dependent withdrawal fee: a flat fee for crypto,
// a basis-point percentage for bank transfers. Percentage math runs through
// decimal and lands back in integer minor units.
func (e *Engine) Fee(amount domain.Money, method domain.WithdrawalMethod) domain.Money {
	switch method {
	case domain.WithdrawCrypto:
		return domain.NewMoney(e.cfg.CryptoFlatFee, amount.Currency)
	default:
		fee := decimal.NewFromInt(amount.Amount).
			Mul(decimal.NewFromInt(e.cfg.BankFeeBasisPts)).
			DivRound(decimal.NewFromInt(10_000), 0)
		return domain.NewMoney(fee.IntPart(), amount.Currency)
	}
}

// CreateWithdrawal reserves the gross amount against available balance in a
// single atomic ledger operation and records the withdrawal INITIATED.
// netAmount = amount - fee always holds.
func (e *Engine) CreateWithdrawal(ctx context.Context, merchantID uuid.UUID, amount domain.Money, method domain.WithdrawalMethod, destination string) (*domain.Withdrawal, error) {
	if amount.Amount <= 0 {
		return nil, fmt.Errorf("withdrawal amount must be positive, got %d", amount.Amount)
	}
	if destination == "" {
		return nil, fmt.Errorf("withdrawal destination is required")
	}

	fee := e.Fee(amount, method)
	net, err := amount.Subtract(fee)
	if err != nil {
		return nil, fmt.Errorf("fee %s leaves no payable amount: %w", fee, err)
	}
	if net.IsZero() {
		return nil, fmt.Errorf("fee %s leaves no payable amount", fee)
	}

	wd := &domain.Withdrawal{
		ID:          uuid.New(),
		MerchantID:  merchantID,
		Method:      method,
		Amount:      amount,
		Fee:         fee,
		NetAmount:   net,
		Status:      domain.WdInitiated,
		Destination: destination,
		CreatedAt:   time.Now().UTC(),
	}

	// Check-and-reserve is one store call, never two: two concurrent
	// requests against the same balance race inside the store and at
	// most one wins.
	if err := e.store.ReserveWithdrawal(ctx, wd); err != nil {
		return nil, err
	}

	e.emit(ctx, "withdrawal.initiated", wd)
	slog.Info("Withdrawal initiated", "withdrawal_id", wd.ID, "merchant_id", merchantID,
		"amount", amount.Amount, "fee", fee.Amount, "method", method)
	return wd, nil
}

// StatusUpdate carries the operator- or chain-driven fields accompanying a
// withdrawal status change. Chain metadata is advisory only; funds move on
// the explicit status transition, never on confirmations.
type StatusUpdate struct {
	FailureReason string
	TxHash        string
	Confirmations int
	ExplorerURL   string
	BankReference string
}

// UpdateWithdrawalStatus applies one move on the withdrawal graph.
// FAILED/REVERSED release the reserved amount back to available (by ceasing
// to reserve in the fold); PAID is terminal and permanent. Replaying the
// current status is a no-op.
func (e *Engine) UpdateWithdrawalStatus(ctx context.Context, withdrawalID uuid.UUID, status domain.WithdrawalStatus, upd StatusUpdate) (*domain.Withdrawal, error) {
	wd, err := e.store.GetWithdrawal(ctx, withdrawalID)
	if err != nil {
		return nil, err
	}
	if wd.Status == status {
		return wd, nil
	}
	if !domain.CanTransitionWithdrawal(wd.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidState, wd.Status, status)
	}

	wd.Status = status
	if upd.TxHash != "" {
		wd.TxHash = upd.TxHash
	}
	if upd.Confirmations > 0 {
		wd.Confirmations = upd.Confirmations
	}
	if upd.ExplorerURL != "" {
		wd.ExplorerURL = upd.ExplorerURL
	}
	if upd.BankReference != "" {
		wd.BankReference = upd.BankReference
	}
	switch status {
	case domain.WdFailed, domain.WdReversed:
		wd.FailureReason = upd.FailureReason
	case domain.WdPaid:
		now := time.Now().UTC()
		wd.CompletedAt = &now
	}

	if err := e.store.UpdateWithdrawal(ctx, wd, wd.Version); err != nil {
		return nil, err
	}

	e.emit(ctx, "withdrawal."+statusEvent(status), wd)
	return wd, nil
}

func statusEvent(s domain.WithdrawalStatus) string {
	switch s {
	case domain.WdOnChain:
		return "on_chain"
	case domain.WdPaid:
		return "paid"
	case domain.WdFailed:
		return "failed"
	case domain.WdReversed:
		return "reversed"
	}
	return "updated"
}

// ConfirmReceipt is the funds-received confirmation. For a bank wire still
// SUBMITTED it moves the transaction into the pending balance; for a
// transaction already pending it settles it into available, writing the
// settlement batch record. proofRef optionally points at an uploaded proof
// document.
func (e *Engine) ConfirmReceipt(ctx context.Context, transactionID uuid.UUID, proofRef, actor string) (*domain.Transaction, error) {
	tx, err := e.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if tx.Review == domain.ReviewPending {
		return nil, domain.ErrInvalidState
	}

	switch {
	case tx.Status == domain.TxSubmitted && tx.Method == domain.MethodBankWire:
		if !domain.CanTransition(tx.Status, domain.TxAwaitingExchange) {
			return nil, domain.ErrInvalidState
		}
		tx.Status = domain.TxAwaitingExchange
		tx.Confirmation = domain.ConfirmationSuccess
		tx.AppendTimeline("receipt.confirmed", actor, proofRef)
		if err := e.store.UpdateTransaction(ctx, tx, tx.Version); err != nil {
			return nil, err
		}
		e.emitTx(ctx, "transaction.pending_settlement", tx)
		return tx, nil

	case tx.Status == domain.TxAwaitingExchange:
		if err := e.settle(ctx, tx, actor, proofRef); err != nil {
			return nil, err
		}
		return tx, nil

	default:
		return nil, fmt.Errorf("%w: cannot confirm receipt in %s", domain.ErrInvalidState, tx.Status)
	}
}

// settle moves one pending transaction into available balance and records
// the additive settlement batch.
func (e *Engine) settle(ctx context.Context, tx *domain.Transaction, actor, notes string) error {
	if !domain.CanTransition(tx.Status, domain.TxProcessed) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidState, tx.Status, domain.TxProcessed)
	}
	now := time.Now().UTC()
	tx.Status = domain.TxProcessed
	tx.SettledAt = &now
	if tx.Confirmation == domain.ConfirmationPending {
		tx.Confirmation = domain.ConfirmationSuccess
	}
	tx.AppendTimeline("transaction.settled", actor, notes)
	if err := e.store.UpdateTransaction(ctx, tx, tx.Version); err != nil {
		return err
	}

	settlement := &domain.Settlement{
		ID:             uuid.New(),
		MerchantID:     tx.MerchantID,
		Amount:         domain.NewMoney(tx.NetAmount(), tx.Amount.Currency),
		TransactionIDs: []uuid.UUID{tx.ID},
		CreatedAt:      now,
	}
	if err := e.store.CreateSettlement(ctx, settlement); err != nil {
		return err
	}

	e.emitTx(ctx, "transaction.settled", tx)
	return nil
}

// RunSettlement is the periodic sweep: pending transactions older than the
// configured window settle automatically. Conflicts with a concurrent
// confirmation are skipped; the sweep picks the record up again next round.
func (e *Engine) RunSettlement(ctx context.Context) (int, error) {
	pending, err := e.store.ListTransactionsInStatus(ctx, domain.TxAwaitingExchange)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().Add(-e.cfg.SettleAfter)
	settled := 0
	for _, tx := range pending {
		if tx.UpdatedAt.After(cutoff) {
			continue
		}
		if err := e.settle(ctx, tx, "system", "settlement sweep"); err != nil {
			slog.Warn("Settlement sweep skipped transaction", "transaction_id", tx.ID, "error", err)
			continue
		}
		settled++
	}
	return settled, nil
}

func (e *Engine) emit(ctx context.Context, event string, wd *domain.Withdrawal) {
	payload := map[string]interface{}{
		"withdrawal_id": wd.ID.String(),
		"merchant_id":   wd.MerchantID.String(),
		"status":        string(wd.Status),
		"amount":        wd.Amount.Amount,
		"fee":           wd.Fee.Amount,
		"net_amount":    wd.NetAmount.Amount,
		"currency":      string(wd.Amount.Currency),
		"timestamp":     time.Now().UTC(),
	}
	if err := e.events.Enqueue(ctx, event, payload); err != nil {
		slog.Error("Failed to enqueue withdrawal event", "event", event, "error", err)
	}
}

func (e *Engine) emitTx(ctx context.Context, event string, tx *domain.Transaction) {
	payload := map[string]interface{}{
		"transaction_id": tx.ID.String(),
		"merchant_id":    tx.MerchantID.String(),
		"status":         string(tx.Status),
		"amount":         tx.Amount.Amount,
		"currency":       string(tx.Amount.Currency),
		"timestamp":      time.Now().UTC(),
	}
	if err := e.events.Enqueue(ctx, event, payload); err != nil {
		slog.Error("Failed to enqueue settlement event", "event", event, "error", err)
	}
}
