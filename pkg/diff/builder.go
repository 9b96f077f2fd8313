package diff

import (
	"fmt"
	"path"

	"github.com/parapet-labs/parapet/pkg/canonicalize"
	"github.com/parapet-labs/parapet/pkg/contracts"
	"github.com/parapet-labs/parapet/pkg/store"
)

// FileChange is one before/after pair for a target path.
type FileChange struct {
	Path string
	Old  string
	New  string
}

// Limits are the hard ceilings on a proposal artifact. Violations reject
// the proposal before any review occurs.
type Limits struct {
	MaxLines int
	MaxBytes int
}

// Artifact is the built, not-yet-persisted proposal: one concatenated
// forward patch, its exact reverse, and the computed metadata.
type Artifact struct {
	Forward string
	Reverse string
	Meta    contracts.ProposalMetadata
}

// Build computes forward and reverse patches for every changed pair and
// enforces the size ceilings. It fails closed: on ErrDiffTooLarge nothing
// has been persisted and no partial artifact exists.
//
// Every changed pair is round-trip checked before the artifact is
// returned: forward applied to old must yield new, and reverse applied to
// new must yield old, byte for byte.
func Build(intentID string, changes []FileChange, limits Limits) (*Artifact, error) {
	var forward, reverse string
	var added, removed, filesChanged int

	for _, c := range changes {
		fwd, a, r := FileDiff(c.Path, c.Old, c.New)
		if fwd == "" {
			continue
		}
		rev, _, _ := FileDiff(c.Path, c.New, c.Old)

		got, err := Apply(c.Old, fwd)
		if err != nil || got != c.New {
			return nil, fmt.Errorf("forward patch for %s does not reproduce new content: %v", c.Path, err)
		}
		back, err := Apply(c.New, rev)
		if err != nil || back != c.Old {
			return nil, fmt.Errorf("reverse patch for %s does not reproduce old content: %v", c.Path, err)
		}

		forward += fwd
		reverse += rev
		added += a
		removed += r
		filesChanged++
	}

	totalLines := added + removed
	if limits.MaxLines > 0 && totalLines > limits.MaxLines {
		return nil, fmt.Errorf("%d changed lines exceed ceiling %d: %w",
			totalLines, limits.MaxLines, contracts.ErrDiffTooLarge)
	}
	if limits.MaxBytes > 0 && len(forward) > limits.MaxBytes {
		return nil, fmt.Errorf("%d patch bytes exceed ceiling %d: %w",
			len(forward), limits.MaxBytes, contracts.ErrDiffTooLarge)
	}

	return &Artifact{
		Forward: forward,
		Reverse: reverse,
		Meta: contracts.ProposalMetadata{
			IntentID:     intentID,
			FilesChanged: filesChanged,
			LinesAdded:   added,
			LinesRemoved: removed,
			TotalLines:   totalLines,
			TotalBytes:   len(forward),
			SHAPatch:     canonicalize.HashBytes([]byte(forward)),
			SHAReverse:   canonicalize.HashBytes([]byte(reverse)),
		},
	}, nil
}

// ProposalDir returns the store-relative directory for an intent's
// proposal artifacts.
func ProposalDir(intentID string) string {
	return path.Join("proposals", intentID)
}

// Persist writes the patches and metadata through the atomic store and
// returns the completed metadata. The metadata file is written last so a
// metadata record always refers to fully persisted patches.
func (a *Artifact) Persist(s *store.Store) (contracts.ProposalMetadata, error) {
	dir := ProposalDir(a.Meta.IntentID)
	patchPath := path.Join(dir, "forward.patch")
	reversePath := path.Join(dir, "reverse.patch")
	metaPath := path.Join(dir, "metadata.json")

	if err := s.WriteAtomic(patchPath, []byte(a.Forward)); err != nil {
		return contracts.ProposalMetadata{}, err
	}
	if err := s.WriteAtomic(reversePath, []byte(a.Reverse)); err != nil {
		return contracts.ProposalMetadata{}, err
	}
	a.Meta.PatchPath = patchPath
	a.Meta.ReversePatchPath = reversePath
	if err := s.WriteJSON(metaPath, a.Meta); err != nil {
		return contracts.ProposalMetadata{}, err
	}
	return a.Meta, nil
}

// MetadataPath returns the store-relative metadata file for an intent.
func MetadataPath(intentID string) string {
	return path.Join(ProposalDir(intentID), "metadata.json")
}
