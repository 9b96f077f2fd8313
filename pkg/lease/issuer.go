package lease

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/parapet-labs/parapet/pkg/audit"
	"github.com/parapet-labs/parapet/pkg/canonicalize"
	"github.com/parapet-labs/parapet/pkg/contracts"
	"github.com/parapet-labs/parapet/pkg/crypto"
	"github.com/parapet-labs/parapet/pkg/store"
)

// cosignRetries bounds the read-modify-write retry loop when concurrent
// cosigners race on the same lease.
const cosignRetries = 3

// Scope is the caller-supplied shape of a new lease.
type Scope struct {
	PathsAllowlist    []string
	CommandsAllowlist []string
	EnvAllowlist      []string
	Limits            contracts.LeaseLimits
	Duration          time.Duration
}

// Issuer mints leases and folds in cosignatures. TrustedVerifiers is the
// small allowlist of agent ids that may satisfy the agent half of the
// two-key requirement.
type Issuer struct {
	store            *store.Store
	signer           *crypto.Signer
	trust            *crypto.TrustStore
	trail            *audit.Trail
	clock            func() time.Time
	logger           *slog.Logger
	trustedVerifiers map[string]bool
}

// Option configures an Issuer.
type Option func(*Issuer)

func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.clock = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(i *Issuer) { i.logger = l }
}

func NewIssuer(s *store.Store, signer *crypto.Signer, trust *crypto.TrustStore, trail *audit.Trail, trustedVerifiers []string, opts ...Option) *Issuer {
	iss := &Issuer{
		store:            s,
		signer:           signer,
		trust:            trust,
		trail:            trail,
		clock:            time.Now,
		logger:           slog.Default(),
		trustedVerifiers: map[string]bool{},
	}
	for _, id := range trustedVerifiers {
		iss.trustedVerifiers[id] = true
	}
	for _, o := range opts {
		o(iss)
	}
	return iss
}

// Issue mints a lease scoped to an approved intent, signs the canonical
// body with the issuing authority's key, and persists it. The new lease
// has zero cosigners and is not executable until both roles have signed.
func (i *Issuer) Issue(in contracts.Intent, scope Scope) (contracts.Lease, error) {
	if in.Status != contracts.IntentApproved {
		i.record("issuer", "lease_issue_denied", in.IntentID, map[string]any{"intent_status": in.Status})
		return contracts.Lease{}, fmt.Errorf("intent %s is %s, lease requires approved: %w",
			in.IntentID, in.Status, contracts.ErrInvalidState)
	}
	if scope.Duration <= 0 {
		return contracts.Lease{}, fmt.Errorf("lease duration must be positive")
	}
	if len(scope.CommandsAllowlist) == 0 {
		return contracts.Lease{}, fmt.Errorf("lease requires a non-empty commands allowlist")
	}

	now := i.clock().UTC()
	l := contracts.Lease{
		LeaseID:           "LEASE-" + uuid.New().String(),
		IntentID:          in.IntentID,
		IssuedAt:          now,
		ExpiresAt:         now.Add(scope.Duration),
		PathsAllowlist:    orEmpty(scope.PathsAllowlist),
		CommandsAllowlist: scope.CommandsAllowlist,
		EnvAllowlist:      orEmpty(scope.EnvAllowlist),
		Limits:            scope.Limits,
		Cosigners:         []contracts.Cosigner{},
	}

	body, err := BodyBytes(l)
	if err != nil {
		return contracts.Lease{}, err
	}
	sig, err := i.signer.Sign(body)
	if err != nil {
		return contracts.Lease{}, err
	}
	l.Sig = contracts.LeaseSig{KID: i.signer.KeyID, Value: sig}

	if err := i.store.WriteJSON(Path(l.LeaseID), l); err != nil {
		return contracts.Lease{}, err
	}
	i.record("issuer", "lease_issued", l.LeaseID, map[string]any{
		"intent_id":  l.IntentID,
		"expires_at": l.ExpiresAt,
	})
	return l, nil
}

// Cosign appends one cosignature to a pending lease. The signer signs the
// cosign payload with their own key; the agent role's id must be in the
// trusted-verifier set. Racing cosigners are serialized per lease by a
// compare-and-replace on the record's content hash, retried on conflict
// so a lost update cannot silently drop a cosignature.
func (i *Issuer) Cosign(leaseID string, role contracts.CosignerRole, id string, signer *crypto.Signer) (contracts.Lease, error) {
	if role != contracts.RoleHuman && role != contracts.RoleAgent {
		return contracts.Lease{}, fmt.Errorf("unknown cosigner role %q", role)
	}
	if role == contracts.RoleAgent && !i.trustedVerifiers[id] {
		i.record(id, "cosign_denied", leaseID, map[string]any{"reason": "agent not in trusted-verifier set"})
		return contracts.Lease{}, fmt.Errorf("agent %s is not a trusted verifier: %w", id, contracts.ErrUnknownActor)
	}

	var last error
	for attempt := 0; attempt < cosignRetries; attempt++ {
		l, raw, err := i.load(leaseID)
		if err != nil {
			return contracts.Lease{}, err
		}
		if _, dup := l.CosignerByRole(role); dup {
			return contracts.Lease{}, fmt.Errorf("lease %s already has a %s cosigner: %w", leaseID, role, contracts.ErrInvalidState)
		}
		if len(l.Cosigners) >= 2 {
			return contracts.Lease{}, fmt.Errorf("lease %s already fully cosigned: %w", leaseID, contracts.ErrInvalidState)
		}

		payload, err := CosignPayload(l, role, id)
		if err != nil {
			return contracts.Lease{}, err
		}
		sig, err := signer.Sign(payload)
		if err != nil {
			return contracts.Lease{}, err
		}
		l.Cosigners = append(l.Cosigners, contracts.Cosigner{
			Role:      role,
			ID:        id,
			Sig:       sig,
			Timestamp: i.clock().UTC(),
		})

		if err := i.replace(leaseID, l, canonicalize.HashBytes(raw)); err != nil {
			if errors.Is(err, contracts.ErrConflict) {
				last = err
				i.logger.Debug("cosign conflict, retrying", "lease_id", leaseID, "attempt", attempt+1)
				continue
			}
			return contracts.Lease{}, err
		}
		i.record(id, "lease_cosigned", leaseID, map[string]any{"role": role})
		return l, nil
	}
	return contracts.Lease{}, fmt.Errorf("cosign of %s lost %d races: %w", leaseID, cosignRetries, last)
}

// Revoke voids a lease by writing its revocation marker.
func (i *Issuer) Revoke(leaseID, actor, reason string) error {
	if !i.store.Exists(Path(leaseID)) {
		return fmt.Errorf("lease %s not found", leaseID)
	}
	marker := map[string]any{
		"lease_id":   leaseID,
		"revoked_at": i.clock().UTC(),
		"actor":      actor,
		"reason":     reason,
	}
	if err := i.store.WriteJSON(RevocationPath(leaseID), marker); err != nil {
		return err
	}
	i.record(actor, "lease_revoked", leaseID, map[string]any{"reason": reason})
	return nil
}

// Load reads and schema-validates a lease record.
func (i *Issuer) Load(leaseID string) (contracts.Lease, error) {
	l, _, err := i.load(leaseID)
	return l, err
}

func (i *Issuer) load(leaseID string) (contracts.Lease, []byte, error) {
	raw, err := i.store.ReadFile(Path(leaseID))
	if err != nil {
		return contracts.Lease{}, nil, err
	}
	if err := contracts.ValidateLeaseRecord(raw); err != nil {
		return contracts.Lease{}, nil, err
	}
	var l contracts.Lease
	if err := i.store.ReadJSON(Path(leaseID), &l); err != nil {
		return contracts.Lease{}, nil, err
	}
	return l, raw, nil
}

func (i *Issuer) replace(leaseID string, l contracts.Lease, expectHash string) error {
	// Same encoding as store.WriteJSON so record formatting stays stable
	// across issue and cosign.
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("encode lease %s: %w", leaseID, err)
	}
	return i.store.ReplaceIfUnchanged(Path(leaseID), append(data, '\n'), expectHash)
}

func (i *Issuer) record(actor, kind, subject string, payload map[string]any) {
	if i.trail == nil {
		return
	}
	if err := i.trail.Record(actor, kind, subject, payload); err != nil {
		i.logger.Warn("audit append failed", "event_kind", kind, "subject", subject, "error", err)
	}
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
