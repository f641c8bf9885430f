package checkin

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
)

// MinKeyLen is the shortest signing secret accepted.
const MinKeyLen = 32

// Signer authenticates token payloads with HMAC-SHA-256 under a process-wide
// secret. The key is copied at construction and never exposed.
type Signer struct {
	key []byte
}

func NewSigner(key []byte) (*Signer, error) {
	if len(key) < MinKeyLen {
		return nil, errors.New("signing key must be at least 32 bytes")
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Signer{key: k}, nil
}

func (s *Signer) Sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(payload)
	return mac.Sum(nil)
}

// Verify compares in constant time. Truncated or empty MACs are a mismatch.
func (s *Signer) Verify(payload, mac []byte) bool {
	if len(mac) != sha256.Size {
		return false
	}
	return hmac.Equal(s.Sign(payload), mac)
}

// String keeps the key out of any accidental %v formatting.
func (s *Signer) String() string {
	return "checkin.Signer{key:redacted}"
}
