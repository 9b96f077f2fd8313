// Package store is the durable persistence layer: stage-then-rename
// atomic writes, append-only JSONL logs with a crash-tolerant reader, and
// path validation that confines all I/O to a governed root.
package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/parapet-labs/parapet/pkg/canonicalize"
	"github.com/parapet-labs/parapet/pkg/contracts"
)

// allowedExtensions are the only file extensions the store will touch.
var allowedExtensions = map[string]bool{
	".json":  true,
	".jsonl": true,
	".patch": true,
}

// Store performs all durable I/O under a single root directory. Paths
// given to its methods are relative to that root and validated before
// any I/O occurs.
type Store struct {
	root string
}

// Open returns a Store rooted at dir, creating it if needed.
func Open(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve store root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute root directory.
func (s *Store) Root() string {
	return s.root
}

// resolve validates rel and returns the absolute target path. Traversal
// segments and unexpected extensions are rejected before any I/O.
func (s *Store) resolve(rel string) (string, error) {
	if rel == "" || filepath.IsAbs(rel) {
		return "", fmt.Errorf("path %q: %w", rel, contracts.ErrInvalidTarget)
	}
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if seg == ".." {
			return "", fmt.Errorf("path %q contains traversal: %w", rel, contracts.ErrInvalidTarget)
		}
	}
	if !allowedExtensions[filepath.Ext(rel)] {
		return "", fmt.Errorf("path %q has unexpected extension: %w", rel, contracts.ErrInvalidTarget)
	}
	abs := filepath.Join(s.root, filepath.Clean(rel))
	if abs != s.root && !strings.HasPrefix(abs, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes root: %w", rel, contracts.ErrInvalidTarget)
	}
	return abs, nil
}

// WriteAtomic leaves the target either in its prior state or fully
// replaced with payload, never partially written. The payload is staged
// to <target>.pending, synced, then renamed onto the target.
func (s *Store) WriteAtomic(rel string, payload []byte) error {
	abs, err := s.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o700); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	return replaceStaged(abs, payload)
}

// WriteJSON marshals v and writes it atomically.
func (s *Store) WriteJSON(rel string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", rel, err)
	}
	return s.WriteAtomic(rel, append(data, '\n'))
}

// ReadFile returns the contents of a validated target.
func (s *Store) ReadFile(rel string) ([]byte, error) {
	abs, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rel, err)
	}
	return data, nil
}

// ReadJSON reads a validated target into v.
func (s *Store) ReadJSON(rel string, v any) error {
	data, err := s.ReadFile(rel)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", rel, err)
	}
	return nil
}

// Exists reports whether the target is present.
func (s *Store) Exists(rel string) bool {
	abs, err := s.resolve(rel)
	if err != nil {
		return false
	}
	_, err = os.Stat(abs)
	return err == nil
}

// Remove deletes a validated target if present.
func (s *Store) Remove(rel string) error {
	abs, err := s.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", rel, err)
	}
	return nil
}

// ReplaceIfUnchanged atomically replaces the target with payload only if
// the current content's SHA-256 still equals expectHash. Callers doing a
// read-modify-write pass the hash taken at read time; a mismatch means a
// concurrent writer won the race and the caller should re-read and retry
// rather than overwrite blindly.
func (s *Store) ReplaceIfUnchanged(rel string, payload []byte, expectHash string) error {
	abs, err := s.resolve(rel)
	if err != nil {
		return err
	}
	current, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("read %s: %w", rel, err)
	}
	if canonicalize.HashBytes(current) != expectHash {
		return fmt.Errorf("replace %s: %w", rel, contracts.ErrConflict)
	}
	return replaceStaged(abs, payload)
}

// AppendLine appends one newline-delimited JSON record to a log target.
func (s *Store) AppendLine(rel string, v any) error {
	abs, err := s.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o700); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode log record: %w", err)
	}
	f, err := os.OpenFile(abs, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open log %s: %w", rel, err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append to %s: %w", rel, err)
	}
	return f.Sync()
}

// ReadLines decodes each line of a log target into a fresh value from
// newRecord and hands it to fn. Lines that fail to decode are skipped: a
// crash mid-append may leave a trailing partial line, and one bad line
// must not poison the whole log.
func (s *Store) ReadLines(rel string, newRecord func() any, fn func(v any)) error {
	abs, err := s.resolve(rel)
	if err != nil {
		return err
	}
	f, err := os.Open(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open log %s: %w", rel, err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		v := newRecord()
		if err := json.Unmarshal(line, v); err != nil {
			continue
		}
		fn(v)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("scan log %s: %w", rel, err)
	}
	return nil
}

// replaceStaged writes payload to a .pending sibling, syncs it, then
// renames onto target. Rename on the same filesystem is atomic, so a
// crash leaves either the old or the new content.
func replaceStaged(abs string, payload []byte) error {
	pending := abs + ".pending"
	f, err := os.OpenFile(pending, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("stage %s: %w", pending, err)
	}
	if _, err := f.Write(payload); err != nil {
		_ = f.Close()
		_ = os.Remove(pending)
		return fmt.Errorf("write staging file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(pending)
		return fmt.Errorf("sync staging file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(pending)
		return fmt.Errorf("close staging file: %w", err)
	}
	if err := os.Rename(pending, abs); err != nil {
		_ = os.Remove(pending)
		return fmt.Errorf("replace target: %w", err)
	}
	return nil
}
