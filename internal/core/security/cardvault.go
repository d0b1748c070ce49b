package security

import (
	"crypto/rand"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// CardVault is the encryption boundary for raw card data. Card details are
// sealed into one opaque blob before they reach the ledger store and are
// never decrypted for display; the state machines only ever carry the blob.
type CardVault struct {
	key []byte
}

// CardDetails is the plaintext shape sealed into the vault blob. It exists
// only in request scope and must never be logged.
type CardDetails struct {
	Number string `json:"number"`
	Expiry string `json:"expiry"` // MM/YY
	CVC    string `json:"cvc"`
}

// NewCardVault builds a vault from a 32-byte key.
func NewCardVault(key []byte) (*CardVault, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("card vault key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &CardVault{key: append([]byte(nil), key...)}, nil
}

// Seal encrypts the card details into a write-once blob. The nonce is
// prepended to the ciphertext.
func (v *CardVault) Seal(details CardDetails) ([]byte, error) {
	plaintext, err := json.Marshal(details)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a sealed blob. The core never calls this; it exists for the
// downstream acquiring processor, which runs outside this module.
func (v *CardVault) Open(blob []byte) (CardDetails, error) {
	var details CardDetails
	if len(blob) < chacha20poly1305.NonceSizeX {
		return details, fmt.Errorf("sealed blob too short")
	}

	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return details, err
	}

	nonce, ciphertext := blob[:chacha20poly1305.NonceSizeX], blob[chacha20poly1305.NonceSizeX:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return details, fmt.Errorf("failed to open sealed card blob: %w", err)
	}
	if err := json.Unmarshal(plaintext, &details); err != nil {
		return details, err
	}
	return details, nil
}
