// Package audit records every pipeline state transition, including
// attempted-but-denied actions, to an append-only JSONL trail.
package audit

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parapet-labs/parapet/pkg/canonicalize"
	"github.com/parapet-labs/parapet/pkg/contracts"
	"github.com/parapet-labs/parapet/pkg/store"
)

// DefaultLogPath is the trail shard used when no other is configured.
const DefaultLogPath = "audit/trail.jsonl"

// Trail is the append-only audit log. Events carry a canonical hash of
// their own content so tampering with a persisted line is detectable.
type Trail struct {
	mu    sync.Mutex
	store *store.Store
	path  string
}

func NewTrail(s *store.Store, logPath string) *Trail {
	if logPath == "" {
		logPath = DefaultLogPath
	}
	return &Trail{store: s, path: logPath}
}

// Record appends one event. The hash covers every field except the hash
// itself.
func (t *Trail) Record(actor, eventKind, subjectID string, payload any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	ev := contracts.AuditEvent{
		EventID:   uuid.New().String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Actor:     actor,
		EventKind: eventKind,
		SubjectID: subjectID,
		Payload:   payload,
	}
	h, err := canonicalize.Hash(ev)
	if err != nil {
		return err
	}
	ev.Hash = h
	return t.store.AppendLine(t.path, ev)
}

// Events returns every decodable event in write order. Undecodable lines
// (e.g. a partial trailing write) are skipped by the store's reader.
func (t *Trail) Events() ([]contracts.AuditEvent, error) {
	var events []contracts.AuditEvent
	err := t.store.ReadLines(t.path,
		func() any { return &contracts.AuditEvent{} },
		func(v any) { events = append(events, *v.(*contracts.AuditEvent)) })
	if err != nil {
		return nil, err
	}
	return events, nil
}

// VerifyEvent recomputes an event's content hash and reports whether it
// matches the stored one.
func VerifyEvent(ev contracts.AuditEvent) (bool, error) {
	want := ev.Hash
	ev.Hash = ""
	got, err := canonicalize.Hash(ev)
	if err != nil {
		return false, err
	}
	return got == want, nil
}
