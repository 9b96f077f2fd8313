// Package lease mints and validates two-key signed capability tokens. A
// lease is executable only once an issuing-authority signature and two
// cosignatures of distinct roles (one human, one trusted agent) are all
// present and verifiable.
package lease

import (
	"path"

	"github.com/parapet-labs/parapet/pkg/canonicalize"
	"github.com/parapet-labs/parapet/pkg/contracts"
)

// Path returns the store-relative record for a lease id.
func Path(leaseID string) string {
	return path.Join("leases", leaseID+".json")
}

// RevocationPath returns the store-relative revocation marker for a
// lease id. Presence of the marker voids the lease.
func RevocationPath(leaseID string) string {
	return path.Join("leases", leaseID+".revoked.json")
}

// signableBody is the portion of the lease covered by the issuing
// authority's signature: everything except the signature itself and the
// cosigner list, which accretes after issuance by design.
func signableBody(l contracts.Lease) contracts.Lease {
	l = l.Body()
	l.Cosigners = nil
	return l
}

// BodyBytes returns the canonical bytes the authority signature covers.
func BodyBytes(l contracts.Lease) ([]byte, error) {
	return canonicalize.Canonical(signableBody(l))
}

// CosignPayload returns the canonical bytes one cosigner signs: their
// identity bound to the hash of the lease body, so a cosignature cannot
// be replayed onto a different lease or scope.
func CosignPayload(l contracts.Lease, role contracts.CosignerRole, id string) ([]byte, error) {
	body, err := BodyBytes(l)
	if err != nil {
		return nil, err
	}
	return canonicalize.Canonical(map[string]string{
		"lease_id": l.LeaseID,
		"role":     string(role),
		"id":       id,
		"body_sha": canonicalize.HashBytes(body),
	})
}
