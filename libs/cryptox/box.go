package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Box encrypts small secrets (calendar tokens) with AES-256-GCM. The key is
// derived from the configured secret via HKDF-SHA256 so deployments can use a
// passphrase of any length. Output layout: nonce || ciphertext.
type Box struct {
	key []byte
}

var ErrNoKey = errors.New("encryption secret not configured")

func New(secret string) (*Box, error) {
	if secret == "" {
		return nil, ErrNoKey
	}
	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("slotsmith/calendar-tokens"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, err
	}
	return &Box{key: key}, nil
}

func (b *Box) Seal(plain []byte) ([]byte, error) {
	if len(plain) == 0 {
		return nil, nil
	}
	gcm, err := b.aead()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plain, nil), nil
}

func (b *Box) Open(sealed []byte) ([]byte, error) {
	if len(sealed) == 0 {
		return nil, nil
	}
	gcm, err := b.aead()
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce := sealed[:gcm.NonceSize()]
	return gcm.Open(nil, nonce, sealed[gcm.NonceSize():], nil)
}

func (b *Box) SealString(value string) ([]byte, error) {
	return b.Seal([]byte(value))
}

func (b *Box) OpenString(sealed []byte) (string, error) {
	plain, err := b.Open(sealed)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func (b *Box) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(b.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
