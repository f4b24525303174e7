// Package crypto implements the at-rest encryption codec for message
// content. Values are stored as a prefixed, colon-delimited hex envelope:
//
//	enc:<iv_hex>:<tag_hex>:<ciphertext_hex>
//
// Decrypt never fails: values without the prefix pass through unchanged
// (pre-encryption rows), and a malformed or tampered envelope degrades to
// returning the stored value as-is with the Degraded flag set.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// EnvelopePrefix marks a stored value as ciphertext.
const EnvelopePrefix = "enc:"

// DecryptResult distinguishes a clean decrypt from a degraded one. When
// Degraded is true, Value is the raw stored string (still ciphertext).
type DecryptResult struct {
	Value    string
	Degraded bool
}

// Codec performs AES-256-GCM encryption with a key derived from a single
// long-lived shared secret. Key rotation requires re-encrypting all rows.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec derives a 256-bit key from secret via SHA-256 and builds the
// AEAD. An empty secret is refused.
func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, fmt.Errorf("encryption secret cannot be empty")
	}

	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to build cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to build GCM: %w", err)
	}

	return &Codec{aead: aead}, nil
}

// Encrypt seals plaintext into the envelope format with a fresh random IV.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}

	sealed := c.aead.Seal(nil, iv, []byte(plaintext), nil)

	// Seal appends the tag after the ciphertext; split it back out so the
	// envelope carries iv, tag and ciphertext as separate fields.
	tagStart := len(sealed) - c.aead.Overhead()
	ciphertext, tag := sealed[:tagStart], sealed[tagStart:]

	return EnvelopePrefix + hex.EncodeToString(iv) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ciphertext), nil
}

// Decrypt opens an envelope produced by Encrypt. Input without the envelope
// prefix is returned unchanged; anything that fails to parse or authenticate
// is returned as-is with Degraded set, never an error.
func (c *Codec) Decrypt(value string) DecryptResult {
	if !strings.HasPrefix(value, EnvelopePrefix) {
		return DecryptResult{Value: value}
	}

	parts := strings.Split(strings.TrimPrefix(value, EnvelopePrefix), ":")
	if len(parts) != 3 {
		return DecryptResult{Value: value, Degraded: true}
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != c.aead.NonceSize() {
		return DecryptResult{Value: value, Degraded: true}
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != c.aead.Overhead() {
		return DecryptResult{Value: value, Degraded: true}
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return DecryptResult{Value: value, Degraded: true}
	}

	plaintext, err := c.aead.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return DecryptResult{Value: value, Degraded: true}
	}

	return DecryptResult{Value: string(plaintext)}
}
