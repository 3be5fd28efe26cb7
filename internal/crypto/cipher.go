package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	// ErrEncrypt is returned when encryption fails.
	ErrEncrypt = errors.New("encryption failed")
	// ErrDecrypt is returned when decryption fails.
	ErrDecrypt = errors.New("decryption failed")
	// ErrInvalidFormat is returned when an encoded blob is not in the
	// expected "hex(iv):base64(ciphertext)" form.
	ErrInvalidFormat = errors.New("invalid encrypted blob format")
)

func errRandom(err error) error {
	return fmt.Errorf("%w: random source: %v", ErrEncrypt, err)
}

// Encrypt encrypts plaintext with AES-256-CBC under the keyring's key and
// returns "hex(iv):base64(ciphertext)". A fresh random 16-byte IV is generated
// on every call, so encrypting equal plaintexts never yields equal output.
func (k *Keyring) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(k.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncrypt, err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", errRandom(err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return hex.EncodeToString(iv) + ":" + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt. It returns ErrInvalidFormat when the separator or
// either half is missing, and ErrDecrypt when the IV, ciphertext, padding or
// resulting text is malformed. Cipher internals are never surfaced directly.
func (k *Keyring) Decrypt(encoded string) (string, error) {
	ivHex, ctEncoded, found := strings.Cut(encoded, ":")
	if !found || ivHex == "" || ctEncoded == "" {
		return "", ErrInvalidFormat
	}

	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aes.BlockSize {
		return "", fmt.Errorf("%w: bad iv", ErrDecrypt)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(ctEncoded)
	if err != nil {
		return "", fmt.Errorf("%w: bad ciphertext encoding", ErrDecrypt)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: ciphertext not block-aligned", ErrDecrypt)
	}

	block, err := aes.NewCipher(k.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	plaintext, err := pkcs7Unpad(padded, aes.BlockSize)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(plaintext) {
		return "", fmt.Errorf("%w: plaintext is not valid UTF-8", ErrDecrypt)
	}

	return string(plaintext), nil
}

// pkcs7Pad appends PKCS#7 padding. A full block of padding is added when the
// input is already block-aligned.
func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padLen)}, padLen)...)
}

// pkcs7Unpad validates and strips PKCS#7 padding. Every padding byte is
// checked so that tampered ciphertexts fail instead of yielding garbage.
func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("%w: bad padded length", ErrDecrypt)
	}
	padLen := int(data[len(data)-1])
	if padLen < 1 || padLen > blockSize {
		return nil, fmt.Errorf("%w: bad padding", ErrDecrypt)
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("%w: bad padding", ErrDecrypt)
		}
	}
	return data[:len(data)-padLen], nil
}
