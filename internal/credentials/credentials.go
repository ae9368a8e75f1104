// Package credentials stores provider API keys encrypted at rest on disk,
// generalizing the teacher's vault.Vault to this module's single purpose:
// no lock/unlock lifecycle, no auto-lock goroutine, just "decrypt once at
// startup, hold plaintext in memory, never write plaintext to disk."
package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters (OWASP recommended minimums), matching the teacher's
// internal/vault derivation so an operator familiar with one recognizes the other.
const (
	argon2Time    = 3
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4
	argon2KeyLen  = 32
	saltLen       = 16
)

// ErrNoPassphrase is returned by Load when the store file exists but no
// passphrase was supplied to decrypt it.
var ErrNoPassphrase = errors.New("credentials: passphrase required to decrypt store")

// file is the on-disk envelope: a salt for Argon2id plus the AES-GCM
// ciphertext of a JSON-encoded map[string]string.
type file struct {
	Salt       []byte `json:"salt"`
	Ciphertext []byte `json:"ciphertext"`
}

// Store holds decrypted provider API keys in memory. It is read-only after
// Load; callers needing to persist new keys use Save with a fresh map.
type Store struct {
	keys map[string]string
}

// Get returns the API key for provider name, and whether one was found.
func (s *Store) Get(name string) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s.keys[name]
	return v, ok
}

// Empty returns a Store with no keys, for deployments with no credentials
// file configured (keys supplied directly via AIFACADE_PROVIDER_*_API_KEY).
func Empty() *Store {
	return &Store{keys: map[string]string{}}
}

// Load decrypts path using passphrase and returns the resulting Store. A
// missing file yields an empty Store, not an error: a deployment may carry
// every provider key via plain environment variables instead.
func Load(path, passphrase string) (*Store, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Empty(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("credentials: read %s: %w", path, err)
	}
	if passphrase == "" {
		return nil, ErrNoPassphrase
	}

	var f file
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("credentials: malformed store at %s: %w", path, err)
	}

	key := argon2.IDKey([]byte(passphrase), f.Salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	plaintext, err := decrypt(key, f.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("credentials: decrypt %s: %w", path, err)
	}

	var keys map[string]string
	if err := json.Unmarshal(plaintext, &keys); err != nil {
		return nil, fmt.Errorf("credentials: decoding decrypted store: %w", err)
	}
	return &Store{keys: keys}, nil
}

// Save encrypts keys under passphrase and writes the result to path.
func Save(path, passphrase string, keys map[string]string) error {
	plaintext, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("credentials: encoding store: %w", err)
	}

	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("credentials: generating salt: %w", err)
	}
	key := argon2.IDKey([]byte(passphrase), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	ciphertext, err := encrypt(key, plaintext)
	if err != nil {
		return fmt.Errorf("credentials: encrypt: %w", err)
	}

	out, err := json.MarshalIndent(file{Salt: salt, Ciphertext: ciphertext}, "", "  ")
	if err != nil {
		return fmt.Errorf("credentials: encoding envelope: %w", err)
	}
	return os.WriteFile(path, out, 0600)
}

func encrypt(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decrypt(key, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce := ciphertext[:gcm.NonceSize()]
	data := ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, data, nil)
}
