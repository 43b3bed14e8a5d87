package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/bobmcallan/signalmesh/internal/common"
)

const nonceSize = 12

// legacy PBKDF2 schedule used by pre-1.0 deployments. Kept only for the
// opt-in compatibility path; see Vault.Decrypt.
const (
	legacySalt       = "signalmesh.vault.v0"
	legacyIterations = 4096
)

// DecryptionError indicates corrupt ciphertext or a key mismatch. It never
// carries key material.
type DecryptionError struct {
	Reason string
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("decryption failed: %s", e.Reason)
}

// Vault provides authenticated encryption of tenant secrets with the
// derived master key. Ciphertext format: hex(nonce):hex(tag):hex(data).
type Vault struct {
	key       []byte
	legacyKey []byte // nil unless legacy fallback is enabled
	logger    *common.Logger
}

// Option configures the vault.
type Option func(*Vault)

// WithLogger sets the logger
func WithLogger(logger *common.Logger) Option {
	return func(v *Vault) {
		v.logger = logger
	}
}

// WithLegacyFallback enables the deprecated PBKDF2 key schedule as a second
// decryption attempt. rawSecret is the same operator secret the primary key
// was derived from. Every use of the fallback is logged.
func WithLegacyFallback(rawSecret string) Option {
	return func(v *Vault) {
		v.legacyKey = pbkdf2.Key([]byte(strings.TrimSpace(rawSecret)), []byte(legacySalt), legacyIterations, MasterKeySize, sha256.New)
	}
}

// New creates a Vault from an operator secret, deriving the master key.
// An empty secret is a configuration error and the vault is not created:
// callers must not fall back to an insecure mode.
func New(rawSecret string, opts ...Option) (*Vault, error) {
	key, err := DeriveMasterKey(rawSecret)
	if err != nil {
		return nil, err
	}

	v := &Vault{
		key:    key,
		logger: common.NewSilentLogger(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Encrypt seals plaintext with AES-256-GCM under a fresh random nonce.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	aead, err := v.newAEAD(v.key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)

	// Seal appends the tag; split it back out to keep the nonce:tag:data
	// wire format stable across deployments.
	tagStart := len(sealed) - aead.Overhead()
	data, tag := sealed[:tagStart], sealed[tagStart:]

	return fmt.Sprintf("%s:%s:%s",
		hex.EncodeToString(nonce),
		hex.EncodeToString(tag),
		hex.EncodeToString(data)), nil
}

// Decrypt opens a nonce:tag:data ciphertext. On tag mismatch with the
// primary key it retries once with the legacy key schedule if enabled,
// logging a warning when the fallback path is taken.
func (v *Vault) Decrypt(ciphertext string) (string, error) {
	nonce, tag, data, err := splitCiphertext(ciphertext)
	if err != nil {
		return "", err
	}

	plaintext, primaryErr := v.open(v.key, nonce, tag, data)
	if primaryErr == nil {
		return plaintext, nil
	}

	if v.legacyKey != nil {
		if plaintext, err := v.open(v.legacyKey, nonce, tag, data); err == nil {
			v.logger.Warn().Msg("Vault decrypted with deprecated legacy key schedule; re-encrypt this tenant's configuration")
			return plaintext, nil
		}
	}

	return "", primaryErr
}

func (v *Vault) open(key, nonce, tag, data []byte) (string, error) {
	aead, err := v.newAEAD(key)
	if err != nil {
		return "", err
	}
	plaintext, err := aead.Open(nil, nonce, append(data, tag...), nil)
	if err != nil {
		return "", &DecryptionError{Reason: "authentication failed"}
	}
	return string(plaintext), nil
}

func (v *Vault) newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

func splitCiphertext(ciphertext string) (nonce, tag, data []byte, err error) {
	parts := strings.Split(ciphertext, ":")
	if len(parts) != 3 {
		return nil, nil, nil, &DecryptionError{Reason: "invalid ciphertext format"}
	}
	nonce, err = hex.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceSize {
		return nil, nil, nil, &DecryptionError{Reason: "invalid nonce"}
	}
	tag, err = hex.DecodeString(parts[1])
	if err != nil {
		return nil, nil, nil, &DecryptionError{Reason: "invalid auth tag"}
	}
	data, err = hex.DecodeString(parts[2])
	if err != nil {
		return nil, nil, nil, &DecryptionError{Reason: "invalid ciphertext"}
	}
	return nonce, tag, data, nil
}

// --- Token helpers ---

// HashToken computes the SHA-256 hex digest of a token. Secrets are stored
// and looked up by this hash, never in the clear. SHA-256 rather than a
// salted hash because the store must support lookup-by-hash.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// GenerateRandomString returns nBytes of cryptographic randomness hex-encoded.
func GenerateRandomString(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ComputeCodeChallenge derives the S256 code challenge for a PKCE
// verifier: base64url(SHA-256(verifier)) without padding.
func ComputeCodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// ConstantTimeCompare reports whether a and b are equal without leaking
// timing information about the position of the first difference.
func ConstantTimeCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
