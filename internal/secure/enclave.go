package secure

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/awnumar/memguard"
)

// PassphraseBytes is the amount of entropy drawn for every new passphrase.
const PassphraseBytes = 32

// ErrDestroyed is returned when a destroyed buffer is opened.
var ErrDestroyed = errors.New("secure buffer already destroyed")

// SecureBuffer provides memory-safe storage for sensitive data.
// It wraps memguard.Enclave to encrypt secrets at rest in memory
// and protect them from swapping via mlock.
type SecureBuffer struct {
	enclave   *memguard.Enclave
	mu        sync.RWMutex
	destroyed bool
}

// NewSecureBuffer creates a protected buffer from secret bytes.
// memguard wipes the source slice once it has been sealed.
func NewSecureBuffer(data []byte) (*SecureBuffer, error) {
	if len(data) == 0 {
		return nil, errors.New("secure buffer requires non-empty data")
	}
	return &SecureBuffer{enclave: memguard.NewEnclave(data)}, nil
}

// NewPassphrase draws PassphraseBytes from crypto/rand and seals their
// base64 encoding. The raw random bytes never leave this function.
func NewPassphrase() (*SecureBuffer, error) {
	raw := make([]byte, PassphraseBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("failed to read random passphrase: %w", err)
	}
	defer memguard.WipeBytes(raw)

	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(encoded, raw)
	return NewSecureBuffer(encoded)
}

// Open decrypts and returns the protected data in a locked buffer.
// The caller MUST call Destroy() on the returned LockedBuffer when done.
func (s *SecureBuffer) Open() (*memguard.LockedBuffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.destroyed {
		return nil, ErrDestroyed
	}
	return s.enclave.Open()
}

// With decrypts the buffer, passes the plaintext to fn and wipes it again
// before returning.
func (s *SecureBuffer) With(fn func(plaintext []byte) error) error {
	locked, err := s.Open()
	if err != nil {
		return err
	}
	defer locked.Destroy()
	return fn(locked.Bytes())
}

// Destroy marks this SecureBuffer as destroyed and prevents further use.
// Idempotent.
func (s *SecureBuffer) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enclave = nil
	s.destroyed = true
}
