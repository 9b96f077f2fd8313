package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeyProvider abstracts signing key material so the in-memory backend can
// be swapped for an HSM or KMS without touching callers.
type KeyProvider interface {
	Sign(msg []byte) ([]byte, error)
	Public() ed25519.PublicKey
}

// MemoryKeyProvider holds a randomly generated Ed25519 keypair.
type MemoryKeyProvider struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

func NewMemoryKeyProvider() (*MemoryKeyProvider, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("ed25519 keygen: %w", err)
	}
	return &MemoryKeyProvider{pub: pub, priv: priv}, nil
}

func (m *MemoryKeyProvider) Sign(msg []byte) ([]byte, error) {
	return ed25519.Sign(m.priv, msg), nil
}

func (m *MemoryKeyProvider) Public() ed25519.PublicKey {
	return m.pub
}

// DeriveKeyProvider derives a role-scoped Ed25519 subkey from a root seed
// via HKDF-SHA256. The same seed and label always yield the same keypair,
// which keeps dev and test trust stores reproducible.
func DeriveKeyProvider(seed []byte, label string) (*MemoryKeyProvider, error) {
	if len(seed) == 0 {
		return nil, fmt.Errorf("derive key: empty seed")
	}
	r := hkdf.New(sha256.New, seed, nil, []byte(label))
	sub := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(r, sub); err != nil {
		return nil, fmt.Errorf("derive key %q: %w", label, err)
	}
	priv := ed25519.NewKeyFromSeed(sub)
	return &MemoryKeyProvider{
		pub:  priv.Public().(ed25519.PublicKey),
		priv: priv,
	}, nil
}
