package contracts

import "errors"

// Error kinds. One sentinel per failure class so callers can branch with
// errors.Is and the CLI can map each kind to a stable exit code.
var (
	// Proposal construction and attachment.
	ErrArtifactMissing = errors.New("proposal artifact missing")
	ErrDiffTooLarge    = errors.New("proposal exceeds size ceiling")

	// Execution scope.
	ErrScopeViolation = errors.New("lease does not cover requested scope")

	// Lease verification. All fatal to the lease instance; issuing a
	// fresh lease is the only recovery.
	ErrMissingCosigner  = errors.New("lease lacks required cosigners")
	ErrInvalidSignature = errors.New("signature verification failed")
	ErrUnknownKey       = errors.New("signing key not in trust store")
	ErrIssuedInFuture   = errors.New("lease issued_at is in the future")
	ErrExpired          = errors.New("lease has expired")
	ErrRevoked          = errors.New("lease has been revoked")

	// Store path safety. Never downgraded: it indicates a potential
	// escape from the governed directory tree.
	ErrInvalidTarget = errors.New("target path outside governed root")

	// State machine.
	ErrInvalidState = errors.New("transition not permitted from current state")
	ErrUnknownActor = errors.New("actor not authorized for this operation")

	// Concurrency.
	ErrConflict = errors.New("concurrent modification detected")
)

// Exit codes, one per error kind. Stable across releases; new kinds get
// new codes, existing codes never change meaning.
const (
	ExitOK              = 0
	ExitGeneral         = 1
	ExitArtifactMissing = 10
	ExitDiffTooLarge    = 11
	ExitScopeViolation  = 12
	ExitMissingCosigner = 13
	ExitInvalidSig      = 14
	ExitUnknownKey      = 15
	ExitIssuedInFuture  = 16
	ExitExpired         = 17
	ExitInvalidTarget   = 18
	ExitRevoked         = 19
	ExitInvalidState    = 20
	ExitUnknownActor    = 21
	ExitConflict        = 22
)

// ExitCode maps an error to its CLI exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrArtifactMissing):
		return ExitArtifactMissing
	case errors.Is(err, ErrDiffTooLarge):
		return ExitDiffTooLarge
	case errors.Is(err, ErrScopeViolation):
		return ExitScopeViolation
	case errors.Is(err, ErrMissingCosigner):
		return ExitMissingCosigner
	case errors.Is(err, ErrInvalidSignature):
		return ExitInvalidSig
	case errors.Is(err, ErrUnknownKey):
		return ExitUnknownKey
	case errors.Is(err, ErrIssuedInFuture):
		return ExitIssuedInFuture
	case errors.Is(err, ErrExpired):
		return ExitExpired
	case errors.Is(err, ErrInvalidTarget):
		return ExitInvalidTarget
	case errors.Is(err, ErrRevoked):
		return ExitRevoked
	case errors.Is(err, ErrInvalidState):
		return ExitInvalidState
	case errors.Is(err, ErrUnknownActor):
		return ExitUnknownActor
	case errors.Is(err, ErrConflict):
		return ExitConflict
	default:
		return ExitGeneral
	}
}
