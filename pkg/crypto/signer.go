// Package crypto holds the Ed25519 signing and verification primitives
// and the trust store that maps key ids to public keys.
package crypto

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
)

// Signer signs canonical bytes under a stable key id.
type Signer struct {
	provider KeyProvider
	KeyID    string
}

func NewSigner(p KeyProvider, keyID string) *Signer {
	return &Signer{provider: p, KeyID: keyID}
}

// Sign returns the hex-encoded Ed25519 signature over data.
func (s *Signer) Sign(data []byte) (string, error) {
	sig, err := s.provider.Sign(data)
	if err != nil {
		return "", fmt.Errorf("sign with %s: %w", s.KeyID, err)
	}
	return hex.EncodeToString(sig), nil
}

// PublicKeyHex returns the signer's public key, hex encoded.
func (s *Signer) PublicKeyHex() string {
	return hex.EncodeToString(s.provider.Public())
}

// Verify checks a hex signature over data against a hex public key.
func Verify(pubKeyHex, sigHex string, data []byte) (bool, error) {
	pub, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return false, fmt.Errorf("invalid public key hex: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("invalid public key size %d", len(pub))
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, fmt.Errorf("invalid signature hex: %w", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return false, fmt.Errorf("invalid signature size %d", len(sig))
	}
	return ed25519.Verify(ed25519.PublicKey(pub), data, sig), nil
}
