package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teamkurence-png/psp-platform-sub000/internal/core/domain"
)

type MerchantRepository struct {
	db *pgxpool.Pool
}

func NewMerchantRepository(db *pgxpool.Pool) *MerchantRepository {
	return &MerchantRepository{db: db}
}

// Merchant model
type Merchant struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Currency  domain.Currency `json:"currency"`
	CreatedAt time.Time       `json:"created_at"`
}

func (r *MerchantRepository) CreateMerchant(ctx context.Context, name string, currency domain.Currency) (*Merchant, error) {
	query := `
		INSERT INTO merchants (name, currency)
		VALUES ($1, $2)
		RETURNING id, name, currency, created_at
	`
	var m Merchant
	err := r.db.QueryRow(ctx, query, name, currency).Scan(
		&m.ID, &m.Name, &m.Currency, &m.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create merchant: %w", err)
	}
	return &m, nil
}

func (r *MerchantRepository) GetMerchantByID(ctx context.Context, id uuid.UUID) (*Merchant, error) {
	query := `SELECT id, name, currency, created_at FROM merchants WHERE id = $1`
	var m Merchant
	err := r.db.QueryRow(ctx, query, id).Scan(
		&m.ID, &m.Name, &m.Currency, &m.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// SaveAPIKey stores the hashed key for the merchant. The plaintext key is
// never persisted.
func (r *MerchantRepository) SaveAPIKey(ctx context.Context, merchantID uuid.UUID, keyHash string, keyPrefix string) error {
	query := `INSERT INTO api_keys (merchant_id, key_hash, key_prefix) VALUES ($1, $2, $3)`

	_, err := r.db.Exec(ctx, query, merchantID, keyHash, keyPrefix)
	if err != nil {
		return fmt.Errorf("failed to save api key: %w", err)
	}
	return nil
}
