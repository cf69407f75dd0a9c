// Package auth verifies admin API keys for privileged ops endpoints.
//
// The server never stores or configures a plaintext admin key. Operators
// provision ADMIN_API_KEY_HASH with a bcrypt hash (see GenerateKeyHash) and
// clients present the plaintext key as a Bearer token; verification is a
// single bcrypt comparison.
package auth

import (
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"pushgate/internal/types"
)

// bcryptCost is the bcrypt cost factor used when hashing new admin keys.
const bcryptCost = 12

// KeyHasher abstracts bcrypt operations for testability.
type KeyHasher interface {
	CompareHashAndKey(hash, key string) error
}

// bcryptHasher is the production implementation of KeyHasher.
type bcryptHasher struct{}

func (bcryptHasher) CompareHashAndKey(hash, key string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key))
}

// GenerateKeyHash produces a bcrypt hash of a plaintext admin key, suitable
// as the value of ADMIN_API_KEY_HASH.
func GenerateKeyHash(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verifier checks presented admin keys against the configured hash.
type Verifier struct {
	hash   string
	hasher KeyHasher
	logger *slog.Logger
}

// VerifierConfig holds the dependencies for creating a Verifier.
type VerifierConfig struct {
	KeyHash types.SecretString
	Hasher  KeyHasher // nil selects the production bcrypt implementation
	Logger  *slog.Logger
}

// NewVerifier creates a Verifier. If Hasher is nil, the production
// bcryptHasher is used. If Logger is nil, slog.Default() is used.
func NewVerifier(cfg VerifierConfig) *Verifier {
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = bcryptHasher{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{
		hash:   cfg.KeyHash.Unmask(),
		hasher: hasher,
		logger: logger,
	}
}

// VerifyKey checks a plaintext admin key against the configured hash and
// returns nil when it matches. Failures carry distinct codes:
//   - auth_admin_key_missing: the presented key is empty.
//   - auth_admin_key_invalid: the comparison failed, or no hash is configured.
//
// A missing hash rejects rather than failing open; the invalid-key code is
// reused so clients cannot distinguish a misconfigured server from a wrong key.
func (v *Verifier) VerifyKey(key string) error {
	if key == "" {
		return types.NewAppError(types.ErrCodeAuthKeyMissing, "admin API key is required", nil)
	}
	if v.hash == "" {
		v.logger.Error("admin key verification attempted without a configured hash")
		return types.NewAppError(types.ErrCodeAuthKeyInvalid, "invalid admin API key", nil)
	}
	if err := v.hasher.CompareHashAndKey(v.hash, key); err != nil {
		return types.NewAppError(types.ErrCodeAuthKeyInvalid, "invalid admin API key", nil)
	}
	return nil
}
