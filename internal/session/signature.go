package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const signaturePrefix = "hmac-sha256:"

// Signer creates and verifies HMAC-SHA256 signatures over finalized
// session documents, so an audit reader can detect tampering.
type Signer struct {
	key []byte
}

// NewSigner creates an HMAC-SHA256 signer. Key must be at least 32 raw
// bytes or 64+ hex characters decoding to at least 32 bytes.
func NewSigner(key string) (*Signer, error) {
	keyBytes, err := resolveSigningKey(key)
	if err != nil {
		return nil, err
	}
	return &Signer{key: keyBytes}, nil
}

func resolveSigningKey(key string) ([]byte, error) {
	if len(key) >= 64 {
		if decoded, err := hex.DecodeString(key); err == nil {
			if len(decoded) < 32 {
				return nil, fmt.Errorf("signing key hex must decode to at least 32 bytes (got %d)", len(decoded))
			}
			return decoded, nil
		}
	}
	if len(key) < 32 {
		return nil, fmt.Errorf("signing key must be at least 32 bytes (got %d)", len(key))
	}
	return []byte(key), nil
}

func (s *Signer) mac(data []byte) []byte {
	h := hmac.New(sha256.New, s.key)
	h.Write(data)
	return h.Sum(nil)
}

// Sign returns the prefixed hex HMAC-SHA256 signature of data.
func (s *Signer) Sign(data []byte) string {
	return signaturePrefix + hex.EncodeToString(s.mac(data))
}

// Verify reports whether signature is valid for data. The comparison is
// constant time over the raw MACs.
func (s *Signer) Verify(data []byte, signature string) bool {
	encoded, ok := strings.CutPrefix(signature, signaturePrefix)
	if !ok {
		return false
	}
	claimed, err := hex.DecodeString(encoded)
	if err != nil {
		return false
	}
	return hmac.Equal(claimed, s.mac(data))
}
