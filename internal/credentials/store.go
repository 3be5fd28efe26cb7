package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/yurberz/AccessibleHealthcare/internal/crypto"
)

// keyPrefix namespaces every stored key so the store never collides with, or
// clears, unrelated data in a shared backend.
const keyPrefix = "accessible_healthcare_"

// Store is the credential store. Values pass through the keyring on backends
// that do not guarantee confidentiality themselves; secure backends are
// written to directly, since a second encryption layer there adds nothing and
// would complicate migration between backends.
type Store struct {
	backend Backend
	keyring *crypto.Keyring
	logger  *slog.Logger
}

// NewStore creates a credential store over the given backend.
func NewStore(backend Backend, keyring *crypto.Keyring, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	if !backend.Secure() && keyring.Status() == crypto.KeySourceStatic {
		logger.Warn("credential store is running with the static fallback key; stored secrets are not confidential",
			"key_source", keyring.Status(),
		)
	}

	return &Store{
		backend: backend,
		keyring: keyring,
		logger:  logger,
	}
}

// Set stores value under key, encrypting it first unless the backend is
// secure. Failures carry the offending key and never leave a partial write.
func (s *Store) Set(ctx context.Context, key, value string) error {
	stored := value
	if !s.backend.Secure() {
		encrypted, err := s.keyring.Encrypt(value)
		if err != nil {
			return fmt.Errorf("%w: key %q: %v", ErrStorageWrite, key, err)
		}
		stored = encrypted
	}

	if err := s.backend.Set(ctx, keyPrefix+key, stored); err != nil {
		return fmt.Errorf("%w: key %q: %v", ErrStorageWrite, key, err)
	}
	return nil
}

// Get retrieves the value for key. The bool reports presence. A value that no
// longer decrypts (the derived key changed since it was written) is
// indistinguishable from one that was never stored, so it reports absent
// rather than an error.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	stored, ok, err := s.backend.Get(ctx, keyPrefix+key)
	if err != nil {
		return "", false, fmt.Errorf("%w: key %q: %v", ErrStorageRead, key, err)
	}
	if !ok {
		return "", false, nil
	}
	if s.backend.Secure() {
		return stored, true, nil
	}

	value, err := s.keyring.Decrypt(stored)
	if err != nil {
		s.logger.Debug("stored credential no longer decrypts, treating as absent",
			"key", key,
			"error", err,
		)
		return "", false, nil
	}
	return value, true, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.backend.Delete(ctx, keyPrefix+key); err != nil {
		return fmt.Errorf("%w: key %q: %v", ErrStorageWrite, key, err)
	}
	return nil
}

// Has reports whether key holds a readable value.
func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

// SetObject JSON-serializes v and stores it under key.
func (s *Store) SetObject(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: key %q: %v", ErrStorageWrite, key, err)
	}
	return s.Set(ctx, key, string(data))
}

// GetObject retrieves and JSON-deserializes the value under key into v. The
// bool reports presence; a stored payload that is not valid JSON for v
// reports absent rather than a parse error.
func (s *Store) GetObject(ctx context.Context, key string, v any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		s.logger.Debug("stored credential object is malformed, treating as absent",
			"key", key,
			"error", err,
		)
		return false, nil
	}
	return true, nil
}

// Keys lists the store's own (un-namespaced) keys on backends that can
// enumerate. Non-enumerable backends return ErrEnumerationUnsupported.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	all, err := s.backend.Keys(ctx)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, k := range all {
		if strings.HasPrefix(k, keyPrefix) {
			keys = append(keys, strings.TrimPrefix(k, keyPrefix))
		}
	}
	return keys, nil
}

// ClearAll removes every credential in this store's namespace, and only
// those. On backends that cannot enumerate their keys this is a no-op with a
// surfaced warning; the store never attempts to wipe data it cannot prove is
// its own. Individual delete failures do not stop the sweep.
func (s *Store) ClearAll(ctx context.Context) error {
	keys, err := s.Keys(ctx)
	if err != nil {
		if errors.Is(err, ErrEnumerationUnsupported) {
			s.logger.Warn("backend cannot enumerate keys; clear-all is a no-op on this storage backend")
			return nil
		}
		return err
	}

	var firstErr error
	for _, key := range keys {
		if err := s.Delete(ctx, key); err != nil {
			s.logger.Warn("failed to delete credential during clear-all", "key", key, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
