// Package tokenvault encapsulates secret-at-rest handling for external
// provider OAuth tokens.
package tokenvault

import (
	"fmt"
	"strings"

	"github.com/r3e-network/vinylwatch/infrastructure/crypto"
)

const (
	envelopePrefix = "enc"
	envelopeVersion = "v1"
	envelopeInfo    = "vinylwatch.tokenvault"
)

// Vault encrypts and decrypts secret material at rest using a single active
// key identified by KeyID. The key id travels inside the envelope so a
// future rotation can still decrypt values written under an older key.
type Vault struct {
	keyID     string
	masterKey []byte
}

// New builds a Vault backed by masterKey (32 bytes) identified by keyID.
func New(keyID string, masterKey []byte) *Vault {
	return &Vault{keyID: keyID, masterKey: masterKey}
}

// Encrypt returns an envelope string of the form enc:v1:<key_id>:<ciphertext>.
// If plaintext is already an envelope it is returned unchanged.
func (v *Vault) Encrypt(subject, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	if IsEnvelope(plaintext) {
		return plaintext, nil
	}

	sealed, err := crypto.EncryptEnvelope(v.masterKey, []byte(subject), envelopeInfo, []byte(plaintext))
	if err != nil {
		return "", fmt.Errorf("tokenvault: encrypt: %w", err)
	}
	// crypto.EncryptEnvelope already prefixes its own "v1:" marker; strip it
	// so the vault's own enc:v1:<key_id>: prefix is the only version tag.
	ciphertext := strings.TrimPrefix(string(sealed), "v1:")
	return fmt.Sprintf("%s:%s:%s:%s", envelopePrefix, envelopeVersion, v.keyID, ciphertext), nil
}

// DecryptResult is the outcome of decrypting a stored value.
type DecryptResult struct {
	Plaintext         string
	RequiresMigration bool
}

// Decrypt reverses Encrypt. If stored is empty it returns a zero result. If
// stored lacks the enc:v1: prefix it is treated as legacy plaintext and
// returned with RequiresMigration=true so the caller re-encrypts it.
// A malformed or unauthenticated envelope is a fatal error, never a retry.
func (v *Vault) Decrypt(subject, stored string) (DecryptResult, error) {
	if stored == "" {
		return DecryptResult{}, nil
	}
	if !IsEnvelope(stored) {
		return DecryptResult{Plaintext: stored, RequiresMigration: true}, nil
	}

	parts := strings.SplitN(stored, ":", 4)
	if len(parts) != 4 {
		return DecryptResult{}, fmt.Errorf("tokenvault: malformed envelope")
	}
	ciphertext := parts[3]

	plaintext, err := crypto.DecryptEnvelope(v.masterKey, []byte(subject), envelopeInfo, []byte(ciphertext))
	if err != nil {
		return DecryptResult{}, fmt.Errorf("tokenvault: decrypt: %w", err)
	}
	return DecryptResult{Plaintext: string(plaintext)}, nil
}

// IsEnvelope reports whether value is already an enc:v1: envelope.
func IsEnvelope(value string) bool {
	return strings.HasPrefix(value, envelopePrefix+":"+envelopeVersion+":")
}
