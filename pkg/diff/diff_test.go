package diff

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/parapet-labs/parapet/pkg/contracts"
	"github.com/parapet-labs/parapet/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileDiff_BasicChange(t *testing.T) {
	old := "a\nb\nc\n"
	new := "a\nB\nc\n"

	patch, added, removed := FileDiff("f.txt", old, new)
	assert.Equal(t, 1, added)
	assert.Equal(t, 1, removed)
	assert.Contains(t, patch, "--- a/f.txt\n")
	assert.Contains(t, patch, "+++ b/f.txt\n")
	assert.Contains(t, patch, "-b\n")
	assert.Contains(t, patch, "+B\n")

	got, err := Apply(old, patch)
	require.NoError(t, err)
	assert.Equal(t, new, got)
}

func TestFileDiff_IdenticalContentIsEmpty(t *testing.T) {
	patch, added, removed := FileDiff("f.txt", "same\n", "same\n")
	assert.Empty(t, patch)
	assert.Zero(t, added)
	assert.Zero(t, removed)
}

func TestRoundTrip_Cases(t *testing.T) {
	cases := []struct {
		name string
		old  string
		new  string
	}{
		{"append line", "a\nb\n", "a\nb\nc\n"},
		{"delete line", "a\nb\nc\n", "a\nc\n"},
		{"change middle of long file", manyLines(1, 40), manyLinesEdited(1, 40, 20)},
		{"from empty", "", "hello\nworld\n"},
		{"to empty", "hello\nworld\n", ""},
		{"no trailing newline old", "a\nb", "a\nb\nc\n"},
		{"no trailing newline new", "a\nb\n", "a\nb\nc"},
		{"no trailing newline both", "x", "y"},
		{"two distant edits", manyLinesEdited(1, 40, 5), manyLinesEdited(1, 40, 35)},
		{"blank lines", "a\n\n\nb\n", "a\n\nb\n"},
		// Content starting "-- "/"++ " must not read as file headers
		// once prefixed with the op marker.
		{"delete sql comment", "-- comment\nSELECT 1;\n", "SELECT 1;\n"},
		{"add plus-plus line", "x\n", "x\n++ y\n"},
		{"dashes and pluses everywhere", "-- a\n--- b\nkeep\n", "++ a\n+++ b\nkeep\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fwd, _, _ := FileDiff("f", tc.old, tc.new)
			rev, _, _ := FileDiff("f", tc.new, tc.old)

			got, err := Apply(tc.old, fwd)
			require.NoError(t, err)
			require.Equal(t, tc.new, got, "forward")

			back, err := Apply(tc.new, rev)
			require.NoError(t, err)
			require.Equal(t, tc.old, back, "reverse")
		})
	}
}

func TestFileDiff_DistantEditsProduceSeparateHunks(t *testing.T) {
	old := manyLines(1, 40)
	new := strings.Replace(strings.Replace(old, "line 5\n", "LINE 5\n", 1), "line 35\n", "LINE 35\n", 1)

	patch, _, _ := FileDiff("f", old, new)
	assert.Equal(t, 2, strings.Count(patch, "@@ -"))
	// Lines far from both edits stay out of the patch.
	assert.NotContains(t, patch, "line 20\n")
}

func TestBuild_CountsAndHashes(t *testing.T) {
	art, err := Build("INT-1", []FileChange{
		{Path: "a.go", Old: "x\n", New: "y\n"},
		{Path: "b.go", Old: "same\n", New: "same\n"},
		{Path: "c.go", Old: "", New: "new file\n"},
	}, Limits{MaxLines: 100, MaxBytes: 10_000})
	require.NoError(t, err)

	assert.Equal(t, 2, art.Meta.FilesChanged)
	assert.Equal(t, 2, art.Meta.LinesAdded)
	assert.Equal(t, 1, art.Meta.LinesRemoved)
	assert.Equal(t, 3, art.Meta.TotalLines)
	assert.Equal(t, len(art.Forward), art.Meta.TotalBytes)
	assert.NotEmpty(t, art.Meta.SHAPatch)
	assert.NotEmpty(t, art.Meta.SHAReverse)
	assert.NotEqual(t, art.Meta.SHAPatch, art.Meta.SHAReverse)
}

func TestBuild_TooLargeFailsClosed(t *testing.T) {
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)

	_, err = Build("INT-1", []FileChange{
		{Path: "a.go", Old: "", New: manyLines(1, 50)},
	}, Limits{MaxLines: 10, MaxBytes: 10_000})
	assert.ErrorIs(t, err, contracts.ErrDiffTooLarge)

	_, err = Build("INT-1", []FileChange{
		{Path: "a.go", Old: "", New: manyLines(1, 50)},
	}, Limits{MaxLines: 1000, MaxBytes: 16})
	assert.ErrorIs(t, err, contracts.ErrDiffTooLarge)

	// Store untouched: fail closed means no partial proposal.
	entries, err := os.ReadDir(s.Root())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPersist_WritesArtifactTriple(t *testing.T) {
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)

	art, err := Build("INT-1", []FileChange{
		{Path: "a.go", Old: "x\n", New: "y\n"},
	}, Limits{MaxLines: 100, MaxBytes: 10_000})
	require.NoError(t, err)

	meta, err := art.Persist(s)
	require.NoError(t, err)
	assert.True(t, s.Exists(meta.PatchPath))
	assert.True(t, s.Exists(meta.ReversePatchPath))
	assert.True(t, s.Exists(MetadataPath("INT-1")))

	var loaded contracts.ProposalMetadata
	require.NoError(t, s.ReadJSON(MetadataPath("INT-1"), &loaded))
	assert.Equal(t, meta, loaded)
}

func manyLines(from, to int) string {
	var b strings.Builder
	for i := from; i <= to; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	return b.String()
}

func manyLinesEdited(from, to, edited int) string {
	s := manyLines(from, to)
	return strings.Replace(s, fmt.Sprintf("line %d\n", edited), fmt.Sprintf("edited %d\n", edited), 1)
}
