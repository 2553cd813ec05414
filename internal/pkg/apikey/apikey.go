// Package apikey generates, hashes and verifies opaque API keys.
//
// Key format: ak_<64 hex chars> (32 random bytes). Only bcrypt hashes of keys
// are ever persisted; the plaintext is returned to the caller once.
package apikey

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// Prefix marks every key issued by this service.
	Prefix = "ak_"

	// SecretBytes is the amount of randomness in a key.
	SecretBytes = 32

	// DefaultCost is the bcrypt work factor used when none is configured.
	DefaultCost = 10
)

// Length is the full length of a well-formed key.
const Length = len(Prefix) + 2*SecretBytes

// Generate returns a new random key.
func Generate() (string, error) {
	b := make([]byte, SecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate key secret: %w", err)
	}
	return Prefix + hex.EncodeToString(b), nil
}

// Hash returns the bcrypt hash of key at the given cost.
func Hash(key string, cost int) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return nil, fmt.Errorf("generateFromPassword: %w", err)
	}
	return hash, nil
}

// Compare reports whether key matches hash.
func Compare(hash []byte, key string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(key)) == nil
}

// WellFormed reports whether key has the shape of an issued key.
func WellFormed(key string) bool {
	if len(key) != Length || !strings.HasPrefix(key, Prefix) {
		return false
	}
	_, err := hex.DecodeString(key[len(Prefix):])
	return err == nil
}
