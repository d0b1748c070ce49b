package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// GenerateAPIKey creates a new key and its hash.
// Returns: (realKey, hash) — the real key is shown to the merchant exactly
// once, only the SHA256 hash is stored.
func GenerateAPIKey() (string, string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	realKey := fmt.Sprintf("sk_live_%s", hex.EncodeToString(bytes))

	hash := sha256.Sum256([]byte(realKey))
	hashedKey := hex.EncodeToString(hash[:])

	return realKey, hashedKey, nil
}

// HashAPIKey recomputes the stored form of a presented key.
func HashAPIKey(providedKey string) string {
	hash := sha256.Sum256([]byte(providedKey))
	return hex.EncodeToString(hash[:])
}

// ValidateKey checks a provided key against the stored hash in constant
// time.
func ValidateKey(providedKey, storedHash string) bool {
	computed := HashAPIKey(providedKey)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}
