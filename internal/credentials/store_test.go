package credentials

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/yurberz/AccessibleHealthcare/internal/crypto"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testKeyring(key string) *crypto.Keyring {
	return crypto.NewKeyring(&crypto.Config{ExternalKey: key}, testLogger())
}

const testKey = "store-test-external-key-0123456789abcdef"

func TestStoreSetGetDeleteScenario(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryBackend(), testKeyring(testKey), testLogger())

	if err := store.Set(ctx, "auth_token", "abc123"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok, err := store.Get(ctx, "auth_token")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || got != "abc123" {
		t.Fatalf("Get = (%q, %v), want (\"abc123\", true)", got, ok)
	}

	if err := store.Delete(ctx, "auth_token"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, ok, _ := store.Get(ctx, "auth_token"); ok {
		t.Error("Get after Delete reported present")
	}
	if has, _ := store.Has(ctx, "auth_token"); has {
		t.Error("Has after Delete = true, want false")
	}

	// Deleting an absent key is idempotent.
	if err := store.Delete(ctx, "auth_token"); err != nil {
		t.Errorf("Delete of absent key: %v", err)
	}
}

func TestStoreEncryptsOnInsecureBackend(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	store := NewStore(backend, testKeyring(testKey), testLogger())

	if err := store.Set(ctx, "auth_token", "abc123"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	raw, ok, err := backend.Get(ctx, "accessible_healthcare_auth_token")
	if err != nil || !ok {
		t.Fatalf("backend.Get = (%q, %v, %v)", raw, ok, err)
	}
	if raw == "abc123" {
		t.Error("value stored in plaintext on an insecure backend")
	}
}

func TestStoreSkipsEncryptionOnSecureBackend(t *testing.T) {
	ctx := context.Background()
	backend := NewSecureMemoryBackend()
	store := NewStore(backend, testKeyring(testKey), testLogger())

	if err := store.Set(ctx, "auth_token", "abc123"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	raw, ok, err := backend.Get(ctx, "accessible_healthcare_auth_token")
	if err != nil || !ok {
		t.Fatalf("backend.Get = (%q, %v, %v)", raw, ok, err)
	}
	if raw != "abc123" {
		t.Errorf("secure backend stored %q, want the raw value", raw)
	}

	got, ok, err := store.Get(ctx, "auth_token")
	if err != nil || !ok || got != "abc123" {
		t.Errorf("Get = (%q, %v, %v), want (\"abc123\", true, nil)", got, ok, err)
	}
}

func TestStoreAbsentAfterKeyRotation(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()

	before := NewStore(backend, testKeyring("first-external-key-aaaaaaaaaaaaaaaaaa"), testLogger())
	if err := before.Set(ctx, "auth_token", "abc123"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// Same backend, different derived key: the stale value must read as
	// absent, never as an error.
	after := NewStore(backend, testKeyring("second-external-key-bbbbbbbbbbbbbbbbb"), testLogger())
	got, ok, err := after.Get(ctx, "auth_token")
	if err != nil {
		t.Fatalf("Get after key rotation returned error: %v", err)
	}
	if ok {
		t.Errorf("Get after key rotation = (%q, true), want absent", got)
	}
	if has, err := after.Has(ctx, "auth_token"); err != nil || has {
		t.Errorf("Has after key rotation = (%v, %v), want (false, nil)", has, err)
	}
}

func TestStoreObjects(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	store := NewStore(backend, testKeyring(testKey), testLogger())

	type session struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}

	want := session{AccessToken: "at-1", RefreshToken: "rt-1"}
	if err := store.SetObject(ctx, "auth_session", want); err != nil {
		t.Fatalf("SetObject: %v", err)
	}

	var got session
	ok, err := store.GetObject(ctx, "auth_session", &got)
	if err != nil || !ok {
		t.Fatalf("GetObject = (%v, %v)", ok, err)
	}
	if got != want {
		t.Errorf("GetObject = %+v, want %+v", got, want)
	}

	// A stored payload that is not valid JSON reads as absent.
	if err := store.Set(ctx, "auth_session", "{not json"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	ok, err = store.GetObject(ctx, "auth_session", &got)
	if err != nil {
		t.Fatalf("GetObject on malformed payload returned error: %v", err)
	}
	if ok {
		t.Error("GetObject on malformed payload reported present")
	}
}

func TestStoreClearAll(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	store := NewStore(backend, testKeyring(testKey), testLogger())

	// A foreign key in the same backend must survive a clear.
	if err := backend.Set(ctx, "other_app_token", "keep-me"); err != nil {
		t.Fatalf("backend.Set: %v", err)
	}

	for _, key := range []string{"auth_token", "refresh_token", "user_id"} {
		if err := store.Set(ctx, key, "v"); err != nil {
			t.Fatalf("Set(%q): %v", key, err)
		}
	}

	if err := store.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}

	keys, err := store.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("Keys after ClearAll = %v, want none", keys)
	}

	if _, ok, _ := backend.Get(ctx, "other_app_token"); !ok {
		t.Error("ClearAll removed a key outside the store's namespace")
	}
}

func TestStoreClearAllWithoutEnumeration(t *testing.T) {
	ctx := context.Background()
	backend := NewSecureMemoryBackend()
	store := NewStore(backend, testKeyring(testKey), testLogger())

	if err := store.Set(ctx, "auth_token", "abc123"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// Non-enumerable backends make ClearAll a warned no-op, never an error.
	if err := store.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll on non-enumerable backend: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "auth_token"); !ok {
		t.Error("ClearAll removed keys it could not enumerate")
	}

	if _, err := store.Keys(ctx); !errors.Is(err, ErrEnumerationUnsupported) {
		t.Errorf("Keys error = %v, want ErrEnumerationUnsupported", err)
	}
}

func TestSQLiteBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.db")

	backend, err := NewSQLiteBackend(path, testLogger())
	if err != nil {
		t.Fatalf("NewSQLiteBackend: %v", err)
	}
	defer backend.Close()

	store := NewStore(backend, testKeyring(testKey), testLogger())

	if err := store.Set(ctx, "auth_token", "abc123"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	// Overwrite is atomic per key and replaces the previous value.
	if err := store.Set(ctx, "auth_token", "def456"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}

	got, ok, err := store.Get(ctx, "auth_token")
	if err != nil || !ok || got != "def456" {
		t.Fatalf("Get = (%q, %v, %v), want (\"def456\", true, nil)", got, ok, err)
	}

	keys, err := store.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 1 || keys[0] != "auth_token" {
		t.Errorf("Keys = %v, want [auth_token]", keys)
	}

	if err := store.Delete(ctx, "auth_token"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if has, _ := store.Has(ctx, "auth_token"); has {
		t.Error("Has after Delete = true, want false")
	}
}
