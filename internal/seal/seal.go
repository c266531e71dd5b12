// Package seal encrypts short strings (customer phone and email) before they
// are written to the order journal.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"strings"
)

const prefix = "v1:"

var ErrCorrupt = errors.New("seal: ciphertext corrupt")

type Sealer struct{ aead cipher.AEAD }

// New takes a 32-byte AES-256 key.
func New(key []byte) (*Sealer, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	a, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: a}, nil
}

// Seal encrypts plaintext. A nil Sealer stores values as they are.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if s == nil || plaintext == "" {
		return plaintext, nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	buf := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return prefix + base64.RawStdEncoding.EncodeToString(buf), nil
}

// Open reverses Seal. Values written without a key pass through unchanged.
func (s *Sealer) Open(v string) (string, error) {
	if !strings.HasPrefix(v, prefix) {
		return v, nil
	}
	if s == nil {
		return "", errors.New("seal: value is sealed but no key is configured")
	}
	buf, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(v, prefix))
	if err != nil {
		return "", ErrCorrupt
	}
	ns := s.aead.NonceSize()
	if len(buf) < ns {
		return "", ErrCorrupt
	}
	pt, err := s.aead.Open(nil, buf[:ns], buf[ns:], nil)
	if err != nil {
		return "", ErrCorrupt
	}
	return string(pt), nil
}
