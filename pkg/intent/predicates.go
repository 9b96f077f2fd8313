package intent

import "github.com/parapet-labs/parapet/pkg/contracts"

// The approval rule is split into pure predicates so the two-key
// veto/ratification logic is testable without any I/O.

// AnyVeto reports whether any recorded review is a rejection. One veto is
// sufficient to reject regardless of every other verdict.
func AnyVeto(reviews map[string]contracts.Review) bool {
	for _, r := range reviews {
		if !r.Approved {
			return true
		}
	}
	return false
}

// AllApproved reports whether every required reviewer has recorded an
// approval. An empty required set is never approvable by this rule alone
// when reviewers are required; with no required reviewers it holds
// vacuously.
func AllApproved(required []string, reviews map[string]contracts.Review) bool {
	for _, id := range required {
		r, ok := reviews[id]
		if !ok || !r.Approved {
			return false
		}
	}
	return true
}

// ScannerPassed reports whether the designated scanner has recorded a
// passing verdict.
func ScannerPassed(reviews map[string]contracts.Review) bool {
	r, ok := reviews[ScannerActorID]
	return ok && r.Approved
}
