// Package diff turns before/after file contents into size-bounded,
// hash-verified proposal artifacts: a unified forward patch, its exact
// reverse, and metadata. Applying forward then reverse reproduces the
// original content byte for byte.
package diff

import (
	"fmt"
	"strconv"
	"strings"
)

const contextLines = 3

// noNewlineMarker flags the preceding patch line as having no trailing
// newline in its file.
const noNewlineMarker = `\ No newline at end of file`

// FileDiff returns the unified diff for a single file, or "" when old and
// new are identical. added/removed count content lines only.
func FileDiff(path, old, new string) (patch string, added, removed int) {
	if old == new {
		return "", 0, 0
	}
	oldLines := splitLines(old)
	newLines := splitLines(new)
	hunks := buildHunks(oldLines, newLines)
	if len(hunks) == 0 {
		return "", 0, 0
	}

	var b strings.Builder
	fmt.Fprintf(&b, "--- a/%s\n", path)
	fmt.Fprintf(&b, "+++ b/%s\n", path)
	for _, h := range hunks {
		b.WriteString(h.header())
		for _, op := range h.ops {
			writeOpLine(&b, op)
			switch op.kind {
			case opDelete:
				removed++
			case opInsert:
				added++
			}
		}
	}
	return b.String(), added, removed
}

// Apply applies a single-file unified diff to old and returns the new
// content. The diff must have been produced by FileDiff (or follow the
// same conventions); a hunk that does not match old fails.
func Apply(old, patch string) (string, error) {
	oldLines := splitLines(old)
	var out strings.Builder
	oldPos := 0 // lines of old consumed so far

	lines := strings.Split(patch, "\n")
	i := 0
	for i < len(lines) {
		line := lines[i]
		switch {
		case strings.HasPrefix(line, "--- ") || strings.HasPrefix(line, "+++ ") || line == "":
			i++
		case strings.HasPrefix(line, "@@ "):
			start, oldCount, newCount, err := parseHunkHeader(line)
			if err != nil {
				return "", err
			}
			// Copy unchanged lines preceding the hunk.
			hunkStart := start - 1
			if oldCount == 0 {
				hunkStart = start // zero-count convention: insert after line `start`
			}
			if hunkStart < oldPos || hunkStart > len(oldLines) {
				return "", fmt.Errorf("hunk start %d out of range (at old line %d)", start, oldPos)
			}
			for oldPos < hunkStart {
				out.WriteString(oldLines[oldPos])
				oldPos++
			}
			i++
			var err2 error
			i, oldPos, err2 = applyHunkBody(lines, i, oldCount, newCount, oldLines, oldPos, &out)
			if err2 != nil {
				return "", err2
			}
		default:
			return "", fmt.Errorf("unexpected patch line %q", line)
		}
	}
	for oldPos < len(oldLines) {
		out.WriteString(oldLines[oldPos])
		oldPos++
	}
	return out.String(), nil
}

// applyHunkBody consumes one hunk's op lines starting at lines[i]. The
// header's old/new line counts say exactly how many op lines belong to
// the hunk, so content beginning with "-- " or "++ " never collides with
// the "--- "/"+++ " file headers that delimit sections between hunks.
func applyHunkBody(lines []string, i, oldCount, newCount int, oldLines []string, oldPos int, out *strings.Builder) (int, int, error) {
	oldLeft, newLeft := oldCount, newCount
	// lastEmitted tracks whether a no-newline marker applies to out
	// (insert/context) vs old (delete).
	var lastEmitted bool
	for oldLeft > 0 || newLeft > 0 {
		if i >= len(lines) {
			return i, oldPos, fmt.Errorf("truncated hunk: %d old / %d new lines unaccounted for", oldLeft, newLeft)
		}
		line := lines[i]
		switch {
		case strings.HasPrefix(line, " "):
			if oldLeft == 0 || newLeft == 0 {
				return i, oldPos, fmt.Errorf("hunk body disagrees with header counts at %q", line)
			}
			if oldPos >= len(oldLines) || trimNL(oldLines[oldPos]) != line[1:] {
				return i, oldPos, fmt.Errorf("context mismatch at old line %d", oldPos+1)
			}
			out.WriteString(withNL(line[1:]))
			oldPos++
			oldLeft--
			newLeft--
			lastEmitted = true
			i++
		case strings.HasPrefix(line, "-"):
			if oldLeft == 0 {
				return i, oldPos, fmt.Errorf("hunk body disagrees with header counts at %q", line)
			}
			if oldPos >= len(oldLines) || trimNL(oldLines[oldPos]) != line[1:] {
				return i, oldPos, fmt.Errorf("delete mismatch at old line %d", oldPos+1)
			}
			oldPos++
			oldLeft--
			lastEmitted = false
			i++
		case strings.HasPrefix(line, "+"):
			if newLeft == 0 {
				return i, oldPos, fmt.Errorf("hunk body disagrees with header counts at %q", line)
			}
			out.WriteString(withNL(line[1:]))
			newLeft--
			lastEmitted = true
			i++
		case strings.HasPrefix(line, `\`):
			if lastEmitted {
				trimTrailingNL(out)
			}
			i++
		default:
			return i, oldPos, fmt.Errorf("unexpected line %q inside hunk", line)
		}
	}
	// A marker for the hunk's final op line sits just past the counted
	// body.
	if i < len(lines) && strings.HasPrefix(lines[i], `\`) {
		if lastEmitted {
			trimTrailingNL(out)
		}
		i++
	}
	return i, oldPos, nil
}

type opKind int

const (
	opEqual opKind = iota
	opDelete
	opInsert
)

type op struct {
	kind opKind
	text string // includes trailing newline unless the file ends without one
}

type hunk struct {
	oldStart, oldCount int
	newStart, newCount int
	ops                []op
}

func (h hunk) header() string {
	format := func(start, count int) string {
		if count == 0 {
			return strconv.Itoa(start) + ",0"
		}
		if count == 1 {
			return strconv.Itoa(start)
		}
		return fmt.Sprintf("%d,%d", start, count)
	}
	return fmt.Sprintf("@@ -%s +%s @@\n", format(h.oldStart, h.oldCount), format(h.newStart, h.newCount))
}

func writeOpLine(b *strings.Builder, o op) {
	prefix := " "
	switch o.kind {
	case opDelete:
		prefix = "-"
	case opInsert:
		prefix = "+"
	}
	b.WriteString(prefix)
	b.WriteString(trimNL(o.text))
	b.WriteString("\n")
	if !strings.HasSuffix(o.text, "\n") {
		b.WriteString(noNewlineMarker)
		b.WriteString("\n")
	}
}

// buildHunks computes edit ops via LCS then groups changed runs with
// surrounding context into hunks.
func buildHunks(oldLines, newLines []string) []hunk {
	ops := diffOps(oldLines, newLines)

	changed := false
	for _, o := range ops {
		if o.kind != opEqual {
			changed = true
			break
		}
	}
	if !changed {
		return nil
	}

	var hunks []hunk
	var cur *hunk
	oldLine, newLine := 1, 1 // 1-based positions of the next op
	pendingEq := []op{}

	flush := func() {
		if cur != nil {
			hunks = append(hunks, *cur)
			cur = nil
		}
	}

	for _, o := range ops {
		if o.kind == opEqual {
			pendingEq = append(pendingEq, o)
			oldLine++
			newLine++
			if cur != nil && len(pendingEq) > 2*contextLines {
				// Close the hunk with trailing context.
				for _, e := range pendingEq[:contextLines] {
					cur.ops = append(cur.ops, e)
					cur.oldCount++
					cur.newCount++
				}
				pendingEq = pendingEq[len(pendingEq)-contextLines:]
				flush()
			}
			continue
		}

		if cur == nil {
			lead := pendingEq
			if len(lead) > contextLines {
				lead = lead[len(lead)-contextLines:]
			}
			cur = &hunk{
				oldStart: oldLine - len(lead),
				newStart: newLine - len(lead),
			}
			for _, e := range lead {
				cur.ops = append(cur.ops, e)
				cur.oldCount++
				cur.newCount++
			}
		} else if len(pendingEq) > 0 {
			for _, e := range pendingEq {
				cur.ops = append(cur.ops, e)
				cur.oldCount++
				cur.newCount++
			}
		}
		pendingEq = pendingEq[:0]

		cur.ops = append(cur.ops, o)
		if o.kind == opDelete {
			cur.oldCount++
			oldLine++
		} else {
			cur.newCount++
			newLine++
		}
	}
	if cur != nil {
		tail := pendingEq
		if len(tail) > contextLines {
			tail = tail[:contextLines]
		}
		for _, e := range tail {
			cur.ops = append(cur.ops, e)
			cur.oldCount++
			cur.newCount++
		}
		flush()
	}

	// Zero-count start convention for pure insert/delete hunks.
	for i := range hunks {
		if hunks[i].oldCount == 0 {
			hunks[i].oldStart--
		}
		if hunks[i].newCount == 0 {
			hunks[i].newStart--
		}
	}
	return hunks
}

// diffOps returns the minimal edit script between the two line slices
// using a longest-common-subsequence table. Proposal ceilings keep inputs
// small enough that the quadratic table is fine.
func diffOps(oldLines, newLines []string) []op {
	n, m := len(oldLines), len(newLines)
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if oldLines[i] == newLines[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	var ops []op
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case oldLines[i] == newLines[j]:
			ops = append(ops, op{opEqual, oldLines[i]})
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			ops = append(ops, op{opDelete, oldLines[i]})
			i++
		default:
			ops = append(ops, op{opInsert, newLines[j]})
			j++
		}
	}
	for ; i < n; i++ {
		ops = append(ops, op{opDelete, oldLines[i]})
	}
	for ; j < m; j++ {
		ops = append(ops, op{opInsert, newLines[j]})
	}
	return ops
}

// splitLines splits content into lines that keep their trailing newline;
// a final line without one is kept as-is. Empty content has no lines.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	var lines []string
	for len(s) > 0 {
		idx := strings.IndexByte(s, '\n')
		if idx < 0 {
			lines = append(lines, s)
			break
		}
		lines = append(lines, s[:idx+1])
		s = s[idx+1:]
	}
	return lines
}

func trimNL(s string) string {
	return strings.TrimSuffix(s, "\n")
}

func withNL(s string) string {
	return s + "\n"
}

func parseHunkHeader(line string) (oldStart, oldCount, newCount int, err error) {
	// "@@ -a[,b] +c[,d] @@"
	fields := strings.Fields(line)
	if len(fields) < 4 || !strings.HasPrefix(fields[1], "-") || !strings.HasPrefix(fields[2], "+") {
		return 0, 0, 0, fmt.Errorf("malformed hunk header %q", line)
	}
	oldStart, oldCount, err = parseRange(strings.TrimPrefix(fields[1], "-"))
	if err != nil {
		return 0, 0, 0, fmt.Errorf("malformed hunk header %q: %w", line, err)
	}
	_, newCount, err = parseRange(strings.TrimPrefix(fields[2], "+"))
	if err != nil {
		return 0, 0, 0, fmt.Errorf("malformed hunk header %q: %w", line, err)
	}
	return oldStart, oldCount, newCount, nil
}

// parseRange parses "a" (count 1) or "a,b" from a hunk header.
func parseRange(s string) (start, count int, err error) {
	count = 1
	if comma := strings.IndexByte(s, ','); comma >= 0 {
		count, err = strconv.Atoi(s[comma+1:])
		if err != nil {
			return 0, 0, err
		}
		s = s[:comma]
	}
	start, err = strconv.Atoi(s)
	if err != nil {
		return 0, 0, err
	}
	return start, count, nil
}

// trimTrailingNL removes one trailing newline from the builder, used when
// a no-newline marker follows an emitted line.
func trimTrailingNL(b *strings.Builder) {
	s := b.String()
	if strings.HasSuffix(s, "\n") {
		b.Reset()
		b.WriteString(s[:len(s)-1])
	}
}
