// Package credentials encrypts POS connection credentials at rest.
// Network-mode integrations carry a host, port, and login for their POS
// back office; the vault seals them into the opaque string the
// integration record stores, using AES-256-GCM under a key derived from
// the process secret with scrypt.
package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

var (
	// ErrNoSecret is returned when the vault is built without key
	// material.
	ErrNoSecret = errors.New("credentials: no encryption secret")

	// ErrMalformedCiphertext is returned when a stored blob cannot be
	// opened, usually because the secret changed.
	ErrMalformedCiphertext = errors.New("credentials: malformed ciphertext")
)

// scrypt cost parameters, interactive-login strength. Derivation runs
// once at startup, not per operation.
const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	keyBytes     = 32
	keySalt = "cstorehq-pos-credentials-v1"
)

// ConnectionCredentials is the plaintext shape sealed into an
// integration record.
type ConnectionCredentials struct {
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
}

// Empty reports whether nothing is set.
func (c ConnectionCredentials) Empty() bool {
	return c == ConnectionCredentials{}
}

// Vault seals and opens credential blobs. Key material is derived once
// at construction and never mutated afterwards.
type Vault struct {
	aead cipher.AEAD
}

// New derives the vault key from the process secret. The salt is fixed:
// the secret is already high-entropy configuration, not a user password,
// and a per-record salt would break blind re-encryption on rotation.
func New(secret string) (*Vault, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	key, err := scrypt.Key([]byte(secret), []byte(keySalt), scryptN, scryptR, scryptP, keyBytes)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("build cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("build gcm: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// Seal encrypts the credentials into the string an integration record
// stores. Empty credentials seal to the empty string.
func (v *Vault) Seal(creds ConnectionCredentials) (string, error) {
	if creds.Empty() {
		return "", nil
	}
	plaintext, err := json.Marshal(creds)
	if err != nil {
		return "", fmt.Errorf("encode credentials: %w", err)
	}
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := v.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a stored blob. The empty string opens to empty
// credentials.
func (v *Vault) Open(blob string) (ConnectionCredentials, error) {
	var creds ConnectionCredentials
	if blob == "" {
		return creds, nil
	}
	data, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return creds, fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}
	if len(data) < v.aead.NonceSize() {
		return creds, ErrMalformedCiphertext
	}
	nonce, sealed := data[:v.aead.NonceSize()], data[v.aead.NonceSize():]
	plaintext, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return creds, fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return creds, fmt.Errorf("decode credentials: %w", err)
	}
	return creds, nil
}
