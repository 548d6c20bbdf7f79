package session

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Derivation labels of the keys taken from the session secret.
const (
	PurposeCookie      = "kai-portal session cookie v1"
	PurposeAccessToken = "kai-portal upstream token v1"
)

// DeriveKey expands secret into a 32-byte key bound to purpose, so the one
// configured secret never signs two kinds of token.
func DeriveKey(secret []byte, purpose string) ([]byte, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("derive %q: empty secret", purpose)
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(purpose)), key); err != nil {
		return nil, fmt.Errorf("derive %q: %w", purpose, err)
	}
	return key, nil
}
