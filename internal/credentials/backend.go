// Package credentials provides durable, namespaced secret storage over
// pluggable backends. On backends without native confidentiality the store
// encrypts values with the crypto keyring before they are written.
package credentials

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrStorageWrite is returned when persisting a secret fails.
	ErrStorageWrite = errors.New("storage write failed")
	// ErrStorageRead is returned when reading a secret fails at the backend.
	// Decryption failures are not reads errors; they surface as absent.
	ErrStorageRead = errors.New("storage read failed")
	// ErrEnumerationUnsupported is returned by backends that cannot list the
	// keys they hold, such as platform keychains.
	ErrEnumerationUnsupported = errors.New("backend does not support key enumeration")
)

// Backend is the capability interface a storage implementation must satisfy.
// Implementations must make Set atomic per key: a concurrent Get never
// observes a torn value.
type Backend interface {
	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error
	// Get retrieves the value for key. The bool reports presence.
	Get(ctx context.Context, key string) (string, bool, error)
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys lists every stored key, or returns ErrEnumerationUnsupported.
	Keys(ctx context.Context) ([]string, error)
	// Secure reports whether the backend itself guarantees confidentiality.
	// When true the store writes values without its own encryption layer.
	Secure() bool
}

// MemoryBackend is an in-memory Backend. It backs tests and is the seam where
// a platform keychain integration plugs in: NewSecureMemoryBackend mirrors the
// keychain contract (confidential, non-enumerable).
type MemoryBackend struct {
	mu         sync.RWMutex
	values     map[string]string
	secure     bool
	enumerable bool
}

// NewMemoryBackend creates a plain in-memory backend. It reports Secure() ==
// false, so the store encrypts everything written through it.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		values:     make(map[string]string),
		enumerable: true,
	}
}

// NewSecureMemoryBackend creates an in-memory backend with the capability
// profile of a platform keychain: confidential and non-enumerable.
func NewSecureMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		values: make(map[string]string),
		secure: true,
	}
}

// Set stores value under key.
func (b *MemoryBackend) Set(ctx context.Context, key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[key] = value
	return nil
}

// Get retrieves the value for key.
func (b *MemoryBackend) Get(ctx context.Context, key string) (string, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[key]
	return v, ok, nil
}

// Delete removes key.
func (b *MemoryBackend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.values, key)
	return nil
}

// Keys lists stored keys, or reports the backend as non-enumerable.
func (b *MemoryBackend) Keys(ctx context.Context) ([]string, error) {
	if !b.enumerable {
		return nil, ErrEnumerationUnsupported
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]string, 0, len(b.values))
	for k := range b.values {
		keys = append(keys, k)
	}
	return keys, nil
}

// Secure reports whether the backend guarantees confidentiality itself.
func (b *MemoryBackend) Secure() bool {
	return b.secure
}
