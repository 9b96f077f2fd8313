package crypto

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/parapet-labs/parapet/pkg/contracts"
)

// TrustStore resolves key ids to hex-encoded Ed25519 public keys. It is
// loaded once and passed explicitly so verification stays deterministic
// for a given snapshot.
type TrustStore struct {
	keys map[string]string
}

func NewTrustStore(keys map[string]string) *TrustStore {
	cp := make(map[string]string, len(keys))
	for k, v := range keys {
		cp[k] = v
	}
	return &TrustStore{keys: cp}
}

// LoadTrustStore reads a kid -> public-key-hex map from a JSON file.
func LoadTrustStore(path string) (*TrustStore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trust store: %w", err)
	}
	var keys map[string]string
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, fmt.Errorf("parse trust store %s: %w", path, err)
	}
	return NewTrustStore(keys), nil
}

// Resolve returns the public key for kid, or ErrUnknownKey.
func (t *TrustStore) Resolve(kid string) (string, error) {
	pub, ok := t.keys[kid]
	if !ok {
		return "", fmt.Errorf("kid %q: %w", kid, contracts.ErrUnknownKey)
	}
	return pub, nil
}

// KeyIDs returns the known key ids, sorted.
func (t *TrustStore) KeyIDs() []string {
	ids := make([]string, 0, len(t.keys))
	for k := range t.keys {
		ids = append(ids, k)
	}
	sort.Strings(ids)
	return ids
}
