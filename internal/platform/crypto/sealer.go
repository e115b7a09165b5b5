package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

var ErrInvalidSealed = errors.New("sealed value is invalid")

// Sealer encrypts and authenticates short values such as the bearer token
// kept in the session cookie.
type Sealer struct {
	key       []byte
	ephemeral bool
}

// New builds a Sealer from a 32-byte key given as hex, base64 or raw text.
// An empty key yields a random per-process key; sealed values then do not
// survive a restart.
func New(key string) (*Sealer, error) {
	if key == "" {
		random := make([]byte, chacha20poly1305.KeySize)
		if _, err := io.ReadFull(rand.Reader, random); err != nil {
			return nil, err
		}
		return &Sealer{key: random, ephemeral: true}, nil
	}
	decoded, err := decodeKey(key)
	if err != nil {
		return nil, err
	}
	if len(decoded) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("SESSION_KEY must be 32 bytes after decoding")
	}
	return &Sealer{key: decoded}, nil
}

func (s *Sealer) Ephemeral() bool {
	return s.ephemeral
}

// Seal returns a URL-safe string; purpose is bound as associated data so a
// value sealed for one cookie cannot be replayed as another.
func (s *Sealer) Seal(plain []byte, purpose string) (string, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, plain, []byte(purpose))
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (s *Sealer) Open(value, purpose string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, ErrInvalidSealed
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrInvalidSealed
	}
	nonce, data := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, data, []byte(purpose))
	if err != nil {
		return nil, ErrInvalidSealed
	}
	return plain, nil
}

func (s *Sealer) SealString(value, purpose string) (string, error) {
	return s.Seal([]byte(value), purpose)
}

func (s *Sealer) OpenString(value, purpose string) (string, error) {
	plain, err := s.Open(value, purpose)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func decodeKey(raw string) ([]byte, error) {
	if len(raw) == 64 {
		decoded, err := hex.DecodeString(raw)
		if err == nil {
			return decoded, nil
		}
	}
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.RawStdEncoding.DecodeString(raw); err == nil {
		return decoded, nil
	}
	return []byte(raw), nil
}
