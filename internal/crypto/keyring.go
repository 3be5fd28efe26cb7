// Package crypto provides the symmetric encryption primitives used for
// credentials at rest: AES-256-CBC with PKCS#7 padding, SHA-256 fingerprinting,
// and per-process key derivation.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// KeySource identifies how the active encryption key was obtained.
type KeySource string

const (
	// KeySourceExternal means an operator-supplied key is in use.
	KeySourceExternal KeySource = "external"
	// KeySourceDerived means the key was derived from the device identifier
	// and a per-process random seed.
	KeySourceDerived KeySource = "derived"
	// KeySourceStatic means the random source failed and the fixed fallback
	// key is in use. This is a degraded-security mode: data encrypted under
	// it is protected by obfuscation only.
	KeySourceStatic KeySource = "static"
)

// staticFallbackKey is the documented last-resort key used when the
// cryptographic random source is unavailable. It is public knowledge and
// provides no confidentiality.
const staticFallbackKey = "ah-static-fallback-key-0000000001"

// keySalt is mixed into derived keys so that two applications on the same
// device never derive the same key.
const keySalt = "accessible-healthcare-keyring-v1"

// deviceFallbackID is used when no device identifier can be determined.
const deviceFallbackID = "unknown-device"

var (
	seedOnce   sync.Once
	seedHex    string
	seedFailed bool
)

// processSeed returns a hex-encoded random seed generated once per process.
// The bool reports whether generation succeeded.
func processSeed() (string, bool) {
	seedOnce.Do(func() {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			seedFailed = true
			return
		}
		seedHex = hex.EncodeToString(b)
	})
	return seedHex, !seedFailed
}

// Config holds keyring configuration.
type Config struct {
	// ExternalKey is an operator-supplied encryption key. It is used verbatim
	// (first 32 bytes) when it is at least 32 characters long; shorter values
	// are ignored and derivation is used instead.
	ExternalKey string
}

// Keyring owns the symmetric key material for a process and performs all
// encrypt, decrypt, hash and random-token operations with it.
type Keyring struct {
	key    []byte
	source KeySource
	logger *slog.Logger
}

// NewKeyring creates a keyring, resolving the encryption key according to the
// configured policy: external key first, device-derived key second, static
// fallback last. The resolved key is fixed for the keyring's lifetime.
func NewKeyring(cfg *Config, logger *slog.Logger) *Keyring {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = &Config{}
	}

	k := &Keyring{logger: logger}

	if len(cfg.ExternalKey) >= 32 {
		k.key = []byte(cfg.ExternalKey[:32])
		k.source = KeySourceExternal
		return k
	}
	if cfg.ExternalKey != "" {
		logger.Warn("external encryption key shorter than 32 characters, falling back to derived key")
	}

	seed, ok := processSeed()
	if !ok {
		sum := sha256.Sum256([]byte(staticFallbackKey))
		k.key = sum[:]
		k.source = KeySourceStatic
		logger.Warn("random source unavailable, using static fallback encryption key",
			"key_source", KeySourceStatic,
		)
		return k
	}

	material := deviceIdentifier() + "-" + seed + "-" + keySalt
	sum := sha256.Sum256([]byte(material))
	k.key = sum[:]
	k.source = KeySourceDerived
	return k
}

// Status reports how the active key was obtained. Callers should surface
// KeySourceStatic to operators: it means encrypted values are not confidential.
func (k *Keyring) Status() KeySource {
	return k.source
}

// Hash returns the hex-encoded SHA-256 digest of the input. It is intended for
// fingerprinting and token hashing. It is not suitable for password storage;
// callers needing salted hashing must pre-concatenate the salt themselves.
func (k *Keyring) Hash(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// RandomToken returns a hex-encoded cryptographically random token of n bytes.
// n values below one select the default of 32 bytes. It never substitutes a
// deterministic value on failure.
func (k *Keyring) RandomToken(n int) (string, error) {
	if n < 1 {
		n = 32
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", errRandom(err)
	}
	return hex.EncodeToString(b), nil
}

// deviceIdentifier returns a best-effort stable identifier for this machine.
// It probes the systemd and dbus machine-id files, then the hostname, and
// finally a fixed constant.
func deviceIdentifier() string {
	for _, path := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
		if data, err := os.ReadFile(path); err == nil {
			if id := strings.TrimSpace(string(data)); id != "" {
				return id
			}
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return deviceFallbackID
}
