// Package vault implements master key derivation and authenticated
// encryption of tenant configuration material.
package vault

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/bobmcallan/signalmesh/internal/common"
)

// MasterKeySize is the AES-256 key length in bytes.
const MasterKeySize = 32

// DeriveMasterKey turns the operator-provided secret into a 32-byte key.
// A 64-hex-character input decodes directly; anything else is treated as a
// passphrase and hashed with SHA-256. An empty input is a configuration
// error: callers must fail closed rather than operate with a zero key.
func DeriveMasterKey(raw string) ([]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, common.NewForbiddenError("master key is missing or empty; a 32-byte hex string or a strong passphrase is required")
	}

	if isHexKey(trimmed) {
		key, err := hex.DecodeString(trimmed)
		if err != nil {
			// Unreachable given isHexKey, but fail closed regardless.
			return nil, common.NewForbiddenError("master key hex decode failed")
		}
		return key, nil
	}

	sum := sha256.Sum256([]byte(trimmed))
	return sum[:], nil
}

// MasterKeyInfo describes the configured key format without exposing bytes.
type MasterKeyInfo struct {
	Format string `json:"format"` // "hex" or "passphrase"
	Length int    `json:"length"` // length of the raw input, not the key
}

// DescribeMasterKey returns diagnostic info about the configured secret.
// It never returns key material.
func DescribeMasterKey(raw string) MasterKeyInfo {
	trimmed := strings.TrimSpace(raw)
	format := "passphrase"
	if isHexKey(trimmed) {
		format = "hex"
	}
	return MasterKeyInfo{Format: format, Length: len(trimmed)}
}

func isHexKey(s string) bool {
	if len(s) != MasterKeySize*2 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
