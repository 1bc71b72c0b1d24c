// Package vault encrypts panel API credentials at rest. Records are
// AES-256-GCM with a fresh random nonce per call; the key is derived once
// from the process-wide passphrase via scrypt with a fixed salt.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"

	"github.com/pterolink/pterolink/domain"
	serrors "github.com/pterolink/pterolink/errors"
)

const (
	scryptN   = 32768
	scryptR   = 8
	scryptP   = 1
	keyLen    = 32
	nonceLen  = 12 // AES-256-GCM standard nonce size
	fixedSalt = "pterolink.credential.v1"
)

// Vault holds the derived key material for the lifetime of the process.
// Construct one at startup and pass it to the credential service; there is
// no package-level instance.
type Vault struct {
	aead cipher.AEAD
}

// New derives the encryption key from the passphrase and returns a ready
// vault. The passphrase must be non-empty; refusing an empty secret here is
// what lets startup fail fast instead of silently encrypting under a
// guessable key.
func New(passphrase string) (*Vault, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("vault: passphrase must not be empty")
	}

	key, err := scrypt.Key([]byte(passphrase), []byte(fixedSalt), scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return nil, fmt.Errorf("vault: deriving key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: creating GCM: %w", err)
	}

	return &Vault{aead: aead}, nil
}

// Encrypt seals the plaintext under a fresh random nonce. Two encryptions of
// the same plaintext yield distinct records.
func (v *Vault) Encrypt(plaintext string) (domain.EncryptedSecret, error) {
	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return domain.EncryptedSecret{}, fmt.Errorf("vault: generating nonce: %w", err)
	}

	return domain.EncryptedSecret{
		Nonce:      nonce,
		Ciphertext: v.aead.Seal(nil, nonce, []byte(plaintext), nil),
	}, nil
}

// Decrypt opens a record. Malformed records (wrong nonce length, truncated
// payload, authentication failure) return ErrCorruptCredential.
func (v *Vault) Decrypt(rec domain.EncryptedSecret) (string, error) {
	if len(rec.Nonce) != nonceLen {
		return "", fmt.Errorf("%w: nonce length %d", serrors.ErrCorruptCredential, len(rec.Nonce))
	}
	if len(rec.Ciphertext) < v.aead.Overhead() {
		return "", fmt.Errorf("%w: truncated ciphertext", serrors.ErrCorruptCredential)
	}

	plaintext, err := v.aead.Open(nil, rec.Nonce, rec.Ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", serrors.ErrCorruptCredential, err)
	}
	return string(plaintext), nil
}
