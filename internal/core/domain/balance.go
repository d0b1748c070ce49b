package domain

import "github.com/google/uuid"

// Balance is derived, never independently authoritative: it is always the
// fold below over the merchant's transactions and withdrawals. Any cached
// copy must reconcile against this computation.
type Balance struct {
	MerchantID uuid.UUID `json:"merchant_id"`
	Available  Money     `json:"available"`
	Pending    Money     `json:"pending"`
}

// ComputeBalance folds a merchant's ledger into a Balance:
//
//	pending   = sum of net amounts, PROCESSED_AWAITING_EXCHANGE transactions
//	available = sum of net amounts, PROCESSED transactions
//	          - sum of gross amounts, withdrawals still reserving
//
// Records in other currencies are ignored; each balance is single-currency.
func ComputeBalance(merchantID uuid.UUID, currency Currency, txs []*Transaction, wds []*Withdrawal) Balance {
	var available, pending int64
	for _, t := range txs {
		if t.MerchantID != merchantID || t.Amount.Currency != currency {
			continue
		}
		switch t.Status {
		case TxAwaitingExchange:
			pending += t.NetAmount()
		case TxProcessed:
			available += t.NetAmount()
		}
	}
	for _, w := range wds {
		if w.MerchantID != merchantID || w.Amount.Currency != currency {
			continue
		}
		if w.Status.Reserves() {
			available -= w.Amount.Amount
		}
	}
	if available < 0 {
		// The reservation path makes this unreachable; clamp anyway so a
		// corrupt ledger can never surface a negative balance.
		return Balance{
			MerchantID: merchantID,
			Available:  Zero(currency),
			Pending:    NewMoney(pending, currency),
		}
	}
	return Balance{
		MerchantID: merchantID,
		Available:  NewMoney(available, currency),
		Pending:    NewMoney(pending, currency),
	}
}
