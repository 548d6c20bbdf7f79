package session

import (
	"bytes"
	"testing"
)

func TestDeriveKey(t *testing.T) {
	a, err := DeriveKey(testSecret, PurposeCookie)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := DeriveKey(testSecret, PurposeCookie)
	c, _ := DeriveKey(testSecret, "kai-portal other v1")

	if len(a) != 32 {
		t.Errorf("expected 32-byte key, got %d", len(a))
	}
	if !bytes.Equal(a, b) {
		t.Error("derivation must be deterministic")
	}
	if bytes.Equal(a, c) {
		t.Error("purposes must yield different keys")
	}
	if _, err := DeriveKey(nil, PurposeCookie); err == nil {
		t.Error("expected error for empty secret")
	}
}
