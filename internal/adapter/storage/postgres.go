package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teamkurence-png/psp-platform-sub000/internal/core/domain"
)

// Postgres is the production ledger store. Every mutating write is a
// compare-and-swap on the row's version column; a stale write touches zero
// rows and surfaces domain.ErrConflict.
type Postgres struct {
	Db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{Db: db}
}

const txColumns = `
	id, payment_request_id, merchant_id, amount, currency, method, status,
	risk_score, risk_flags, review_status, merchant_confirmation,
	refunded_amount, refunded_at, timeline, created_at, updated_at,
	settled_at, version`

func (r *Postgres) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	flags, err := json.Marshal(tx.RiskFlags)
	if err != nil {
		return err
	}
	timeline, err := json.Marshal(tx.Timeline)
	if err != nil {
		return err
	}

	tx.Version = 1
	_, err = r.Db.Exec(ctx, `
		INSERT INTO transactions (
			id, payment_request_id, merchant_id, amount, currency, method,
			status, risk_score, risk_flags, review_status,
			merchant_confirmation, refunded_amount, refunded_at, timeline,
			created_at, updated_at, settled_at, version
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		tx.ID, tx.PaymentRequestID, tx.MerchantID, tx.Amount.Amount, tx.Amount.Currency,
		tx.Method, tx.Status, tx.RiskScore, flags, tx.Review, tx.Confirmation,
		tx.RefundedAmount, tx.RefundedAt, timeline, tx.CreatedAt, tx.UpdatedAt,
		tx.SettledAt, tx.Version)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	var flags, timeline []byte
	err := row.Scan(
		&t.ID, &t.PaymentRequestID, &t.MerchantID, &t.Amount.Amount, &t.Amount.Currency,
		&t.Method, &t.Status, &t.RiskScore, &flags, &t.Review, &t.Confirmation,
		&t.RefundedAmount, &t.RefundedAt, &timeline, &t.CreatedAt, &t.UpdatedAt,
		&t.SettledAt, &t.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(flags, &t.RiskFlags); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(timeline, &t.Timeline); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Postgres) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	row := r.Db.QueryRow(ctx, `SELECT `+txColumns+` FROM transactions WHERE id = $1`, id)
	return scanTransaction(row)
}

func (r *Postgres) UpdateTransaction(ctx context.Context, tx *domain.Transaction, expectedVersion uint64) error {
	flags, err := json.Marshal(tx.RiskFlags)
	if err != nil {
		return err
	}
	timeline, err := json.Marshal(tx.Timeline)
	if err != nil {
		return err
	}

	tag, err := r.Db.Exec(ctx, `
		UPDATE transactions SET
			status = $1, risk_score = $2, risk_flags = $3, review_status = $4,
			merchant_confirmation = $5, refunded_amount = $6, refunded_at = $7,
			timeline = $8, updated_at = NOW(), settled_at = $9,
			version = version + 1
		WHERE id = $10 AND version = $11`,
		tx.Status, tx.RiskScore, flags, tx.Review, tx.Confirmation,
		tx.RefundedAmount, tx.RefundedAt, timeline, tx.SettledAt,
		tx.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.conflictOrMissing(ctx, "transactions", tx.ID)
	}
	tx.Version = expectedVersion + 1
	return nil
}

// conflictOrMissing disambiguates a zero-row CAS update: the record either
// moved on (conflict) or never existed.
func (r *Postgres) conflictOrMissing(ctx context.Context, table string, id uuid.UUID) error {
	var exists bool
	err := r.Db.QueryRow(ctx,
		fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, table), id).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrConflict
}

func (r *Postgres) ListTransactions(ctx context.Context, merchantID uuid.UUID, currency domain.Currency) ([]*domain.Transaction, error) {
	rows, err := r.Db.Query(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE merchant_id = $1 AND currency = $2
		ORDER BY created_at ASC`, merchantID, currency)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (r *Postgres) ListTransactionsInStatus(ctx context.Context, statuses ...domain.TransactionStatus) ([]*domain.Transaction, error) {
	ss := make([]string, len(statuses))
	for i, s := range statuses {
		ss[i] = string(s)
	}
	rows, err := r.Db.Query(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE status = ANY($1)
		ORDER BY created_at ASC`, ss)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func collectTransactions(rows pgx.Rows) ([]*domain.Transaction, error) {
	var out []*domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const subColumns = `
	id, transaction_id, cardholder_name, card_brand, sealed_card, status,
	verification_type, verification_code, code_consumed,
	verification_approved, mismatch_count, sms_resend_count,
	sms_resend_requested_at, ip_address, user_agent, created_at, updated_at,
	version`

func (r *Postgres) CreateSubmission(ctx context.Context, sub *domain.CardSubmission) error {
	sub.Version = 1
	_, err := r.Db.Exec(ctx, `
		INSERT INTO card_submissions (
			id, transaction_id, cardholder_name, card_brand, sealed_card,
			status, verification_type, verification_code, code_consumed,
			verification_approved, mismatch_count, sms_resend_count,
			sms_resend_requested_at, ip_address, user_agent, created_at,
			updated_at, version
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		sub.ID, sub.TransactionID, sub.CardholderName, sub.CardBrand, sub.SealedCard,
		sub.Status, sub.VerificationType, sub.VerificationCode, sub.CodeConsumed,
		sub.VerificationApproved, sub.MismatchCount, sub.SMSResendCount,
		sub.SMSResendRequestedAt, sub.IPAddress, sub.UserAgent, sub.CreatedAt,
		sub.UpdatedAt, sub.Version)
	if err != nil {
		return fmt.Errorf("failed to create card submission: %w", err)
	}
	return nil
}

func scanSubmission(row pgx.Row) (*domain.CardSubmission, error) {
	var s domain.CardSubmission
	err := row.Scan(
		&s.ID, &s.TransactionID, &s.CardholderName, &s.CardBrand, &s.SealedCard,
		&s.Status, &s.VerificationType, &s.VerificationCode, &s.CodeConsumed,
		&s.VerificationApproved, &s.MismatchCount, &s.SMSResendCount,
		&s.SMSResendRequestedAt, &s.IPAddress, &s.UserAgent, &s.CreatedAt,
		&s.UpdatedAt, &s.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Postgres) GetSubmission(ctx context.Context, id uuid.UUID) (*domain.CardSubmission, error) {
	row := r.Db.QueryRow(ctx, `SELECT `+subColumns+` FROM card_submissions WHERE id = $1`, id)
	return scanSubmission(row)
}

func (r *Postgres) GetSubmissionByTransaction(ctx context.Context, transactionID uuid.UUID) (*domain.CardSubmission, error) {
	row := r.Db.QueryRow(ctx, `SELECT `+subColumns+` FROM card_submissions WHERE transaction_id = $1`, transactionID)
	return scanSubmission(row)
}

func (r *Postgres) UpdateSubmission(ctx context.Context, sub *domain.CardSubmission, expectedVersion uint64) error {
	tag, err := r.Db.Exec(ctx, `
		UPDATE card_submissions SET
			status = $1, verification_type = $2, verification_code = $3,
			code_consumed = $4, verification_approved = $5,
			mismatch_count = $6, sms_resend_count = $7,
			sms_resend_requested_at = $8, updated_at = NOW(),
			version = version + 1
		WHERE id = $9 AND version = $10`,
		sub.Status, sub.VerificationType, sub.VerificationCode,
		sub.CodeConsumed, sub.VerificationApproved,
		sub.MismatchCount, sub.SMSResendCount, sub.SMSResendRequestedAt,
		sub.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update card submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.conflictOrMissing(ctx, "card_submissions", sub.ID)
	}
	sub.Version = expectedVersion + 1
	return nil
}

const wdColumns = `
	id, merchant_id, method, amount, currency, fee, net_amount, status,
	destination, bank_reference, tx_hash, confirmations, explorer_url,
	failure_reason, created_at, completed_at, version`

func scanWithdrawal(row pgx.Row) (*domain.Withdrawal, error) {
	var w domain.Withdrawal
	var currency domain.Currency
	err := row.Scan(
		&w.ID, &w.MerchantID, &w.Method, &w.Amount.Amount, &currency,
		&w.Fee.Amount, &w.NetAmount.Amount, &w.Status, &w.Destination,
		&w.BankReference, &w.TxHash, &w.Confirmations, &w.ExplorerURL,
		&w.FailureReason, &w.CreatedAt, &w.CompletedAt, &w.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	w.Amount.Currency = currency
	w.Fee.Currency = currency
	w.NetAmount.Currency = currency
	return &w, nil
}

func (r *Postgres) GetWithdrawal(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error) {
	row := r.Db.QueryRow(ctx, `SELECT `+wdColumns+` FROM withdrawals WHERE id = $1`, id)
	return scanWithdrawal(row)
}

func (r *Postgres) UpdateWithdrawal(ctx context.Context, wd *domain.Withdrawal, expectedVersion uint64) error {
	tag, err := r.Db.Exec(ctx, `
		UPDATE withdrawals SET
			status = $1, bank_reference = $2, tx_hash = $3,
			confirmations = $4, explorer_url = $5, failure_reason = $6,
			completed_at = $7, version = version + 1
		WHERE id = $8 AND version = $9`,
		wd.Status, wd.BankReference, wd.TxHash, wd.Confirmations,
		wd.ExplorerURL, wd.FailureReason, wd.CompletedAt,
		wd.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update withdrawal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.conflictOrMissing(ctx, "withdrawals", wd.ID)
	}
	wd.Version = expectedVersion + 1
	return nil
}

func (r *Postgres) ListWithdrawals(ctx context.Context, merchantID uuid.UUID, currency domain.Currency) ([]*domain.Withdrawal, error) {
	rows, err := r.Db.Query(ctx, `
		SELECT `+wdColumns+` FROM withdrawals
		WHERE merchant_id = $1 AND currency = $2
		ORDER BY created_at ASC`, merchantID, currency)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ReserveWithdrawal recomputes available balance and inserts the withdrawal
// inside one database transaction, serialized per merchant+currency with an
// advisory lock. Two concurrent reservations can never both pass the check
// against stale balance.
func (r *Postgres) ReserveWithdrawal(ctx context.Context, wd *domain.Withdrawal) error {
	tx, err := r.Db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	lockKey := fmt.Sprintf("%s:%s", wd.MerchantID, wd.Amount.Currency)
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
		return err
	}

	var settled, pendingWd int64
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount - refunded_amount), 0)
		FROM transactions
		WHERE merchant_id = $1 AND currency = $2 AND status = 'PROCESSED'`,
		wd.MerchantID, wd.Amount.Currency).Scan(&settled)
	if err != nil {
		return err
	}
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM withdrawals
		WHERE merchant_id = $1 AND currency = $2
		  AND status NOT IN ('FAILED', 'REVERSED')`,
		wd.MerchantID, wd.Amount.Currency).Scan(&pendingWd)
	if err != nil {
		return err
	}

	if wd.Amount.Amount > settled-pendingWd {
		return domain.ErrInsufficientBalance
	}

	wd.Version = 1
	_, err = tx.Exec(ctx, `
		INSERT INTO withdrawals (
			id, merchant_id, method, amount, currency, fee, net_amount,
			status, destination, bank_reference, tx_hash, confirmations,
			explorer_url, failure_reason, created_at, completed_at, version
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		wd.ID, wd.MerchantID, wd.Method, wd.Amount.Amount, wd.Amount.Currency,
		wd.Fee.Amount, wd.NetAmount.Amount, wd.Status, wd.Destination,
		wd.BankReference, wd.TxHash, wd.Confirmations, wd.ExplorerURL,
		wd.FailureReason, wd.CreatedAt, wd.CompletedAt, wd.Version)
	if err != nil {
		return fmt.Errorf("failed to insert withdrawal: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *Postgres) CreateSettlement(ctx context.Context, s *domain.Settlement) error {
	ids, err := json.Marshal(s.TransactionIDs)
	if err != nil {
		return err
	}
	_, err = r.Db.Exec(ctx, `
		INSERT INTO settlements (id, merchant_id, amount, currency, transaction_ids, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.MerchantID, s.Amount.Amount, s.Amount.Currency, ids, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create settlement: %w", err)
	}
	return nil
}

func (r *Postgres) ListSettlements(ctx context.Context, merchantID uuid.UUID) ([]*domain.Settlement, error) {
	rows, err := r.Db.Query(ctx, `
		SELECT id, merchant_id, amount, currency, transaction_ids, created_at
		FROM settlements WHERE merchant_id = $1 ORDER BY created_at ASC`, merchantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Settlement
	for rows.Next() {
		var s domain.Settlement
		var ids []byte
		if err := rows.Scan(&s.ID, &s.MerchantID, &s.Amount.Amount, &s.Amount.Currency, &ids, &s.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(ids, &s.TransactionIDs); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}
