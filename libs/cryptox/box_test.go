package cryptox

import (
	"bytes"
	"testing"
)

func TestBox_RoundTrip(t *testing.T) {
	box, err := New("local-dev-secret")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	sealed, err := box.SealString("refresh-token-abc")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Contains(sealed, []byte("refresh-token-abc")) {
		t.Fatalf("sealed output contains plaintext")
	}

	plain, err := box.OpenString(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if plain != "refresh-token-abc" {
		t.Fatalf("round trip = %q", plain)
	}
}

func TestBox_OpenRejectsTampering(t *testing.T) {
	box, err := New("local-dev-secret")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sealed, err := box.SealString("access-token")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	sealed[len(sealed)-1] ^= 0xff
	if _, err := box.Open(sealed); err == nil {
		t.Fatalf("expected authentication failure")
	}
}

func TestBox_DifferentSecretsCannotOpen(t *testing.T) {
	a, _ := New("secret-a")
	b, _ := New("secret-b")
	sealed, err := a.SealString("token")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := b.Open(sealed); err == nil {
		t.Fatalf("expected open with wrong key to fail")
	}
}

func TestNew_RequiresSecret(t *testing.T) {
	if _, err := New(""); err != ErrNoKey {
		t.Fatalf("err = %v, want ErrNoKey", err)
	}
}
