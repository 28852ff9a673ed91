// Package secret encrypts and decrypts repository access tokens stored on tracked items.
package secret

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
	hkdfInfo  = "commit-ingest/tracked-item-token"
)

// ErrMalformed is returned when an encrypted token cannot be decoded or opened.
var ErrMalformed = errors.New("malformed encrypted token")

// Box seals and opens tokens with a key derived from the process-wide secret.
type Box struct {
	key [keySize]byte
	// Rand is injected for deterministic tests.
	Rand io.Reader
}

// NewBox derives the sealing key from the process-wide secret.
func NewBox(processSecret string) (*Box, error) {
	if strings.TrimSpace(processSecret) == "" {
		return nil, fmt.Errorf("encryption key is required")
	}

	box := &Box{Rand: rand.Reader}
	reader := hkdf.New(sha256.New, []byte(processSecret), nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(reader, box.key[:]); err != nil {
		return nil, fmt.Errorf("derive token key: %w", err)
	}
	return box, nil
}

// Encrypt seals a plaintext token and returns its base64 form.
func (b *Box) Encrypt(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(b.Rand, nonce[:]); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &b.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a token produced by Encrypt. An empty input decrypts to an empty token.
func (b *Box) Decrypt(encoded string) (string, error) {
	trimmed := strings.TrimSpace(encoded)
	if trimmed == "" {
		return "", nil
	}

	raw, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(raw) < nonceSize+secretbox.Overhead {
		return "", fmt.Errorf("%w: too short", ErrMalformed)
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	opened, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &b.key)
	if !ok {
		return "", fmt.Errorf("%w: authentication failed", ErrMalformed)
	}
	return string(opened), nil
}
