package lease

import (
	"fmt"
	"time"

	"github.com/parapet-labs/parapet/pkg/contracts"
	"github.com/parapet-labs/parapet/pkg/crypto"
	"github.com/parapet-labs/parapet/pkg/store"
)

// Verifier validates leases against a trust-store snapshot. Failures are
// deterministic: the same lease, trust store, and clock reading always
// produce the same result.
type Verifier struct {
	trust            *crypto.TrustStore
	store            *store.Store
	clock            func() time.Time
	trustedVerifiers map[string]bool
}

func NewVerifier(trust *crypto.TrustStore, s *store.Store, trustedVerifiers []string, clock func() time.Time) *Verifier {
	if clock == nil {
		clock = time.Now
	}
	tv := make(map[string]bool, len(trustedVerifiers))
	for _, id := range trustedVerifiers {
		tv[id] = true
	}
	return &Verifier{trust: trust, store: s, clock: clock, trustedVerifiers: tv}
}

// Verify runs every check a lease must pass before consumption. Scope
// containment of a concrete action is evaluated by the executor, not
// here.
func (v *Verifier) Verify(l contracts.Lease) error {
	// 1. The authority key must be known.
	pub, err := v.trust.Resolve(l.Sig.KID)
	if err != nil {
		return err
	}

	// 2. The authority signature must cover the canonical body.
	body, err := BodyBytes(l)
	if err != nil {
		return err
	}
	ok, err := crypto.Verify(pub, l.Sig.Value, body)
	if err != nil || !ok {
		return fmt.Errorf("authority signature on %s: %w", l.LeaseID, contracts.ErrInvalidSignature)
	}

	// 3. Exactly two cosigners, one human and one trusted agent.
	if err := checkCosignerSet(l, v.trustedVerifiers); err != nil {
		return err
	}

	// 4. Every cosignature must be non-empty and verifiable.
	for _, c := range l.Cosigners {
		if c.Sig == "" {
			return fmt.Errorf("%s cosigner %s has empty signature: %w", c.Role, c.ID, contracts.ErrInvalidSignature)
		}
		cosignerPub, err := v.trust.Resolve(c.ID)
		if err != nil {
			return err
		}
		payload, err := CosignPayload(l, c.Role, c.ID)
		if err != nil {
			return err
		}
		ok, err := crypto.Verify(cosignerPub, c.Sig, payload)
		if err != nil || !ok {
			return fmt.Errorf("%s cosignature by %s: %w", c.Role, c.ID, contracts.ErrInvalidSignature)
		}
	}

	// 5. Time-window checks against the persisted timestamps.
	now := v.clock()
	if now.Before(l.IssuedAt) {
		return fmt.Errorf("lease %s issued at %s: %w", l.LeaseID, l.IssuedAt, contracts.ErrIssuedInFuture)
	}
	if now.After(l.ExpiresAt) {
		return fmt.Errorf("lease %s expired at %s: %w", l.LeaseID, l.ExpiresAt, contracts.ErrExpired)
	}

	// 6. Explicit revocation voids the lease.
	if v.store != nil && v.store.Exists(RevocationPath(l.LeaseID)) {
		return fmt.Errorf("lease %s: %w", l.LeaseID, contracts.ErrRevoked)
	}
	return nil
}

// checkCosignerSet enforces the two-key completeness rule: exactly two
// cosigners whose roles are {human, agent}, with the agent drawn from the
// trusted-verifier allowlist.
func checkCosignerSet(l contracts.Lease, trustedVerifiers map[string]bool) error {
	if len(l.Cosigners) != 2 {
		return fmt.Errorf("lease %s has %d cosigners: %w", l.LeaseID, len(l.Cosigners), contracts.ErrMissingCosigner)
	}
	_, hasHuman := l.CosignerByRole(contracts.RoleHuman)
	agent, hasAgent := l.CosignerByRole(contracts.RoleAgent)
	if !hasHuman || !hasAgent {
		return fmt.Errorf("lease %s cosigner roles must be {human, agent}: %w", l.LeaseID, contracts.ErrMissingCosigner)
	}
	if !trustedVerifiers[agent.ID] {
		return fmt.Errorf("agent cosigner %s is not a trusted verifier: %w", agent.ID, contracts.ErrMissingCosigner)
	}
	return nil
}
