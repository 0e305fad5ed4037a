package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AuditRecord is one append-only entry of the audit log. Everything except
// Payload is immutable after creation; Payload holds the encrypted envelope
// and is rewritten only by the rotation orchestrator.
type AuditRecord struct {
	ID            uuid.UUID
	CreatedAt     time.Time
	EventType     string
	Actor         string
	CorrelationID string
	Payload       []byte
	PrevHash      []byte
	Hash          []byte
}

// Checkpoint marks the last processed record of a resumable scan, in
// (CreatedAt, ID) order.
type Checkpoint struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// BatchResult reports one checkpointed re-encryption batch.
type BatchResult struct {
	Processed  int64
	Checkpoint *Checkpoint
	Done       bool
}

// EventStore is the ordered append log with indexed lookup. Implementations
// must serialize Append callers (the hash chain needs a strict append order)
// and must give ReencryptBatch skip-locked semantics so concurrent rotation
// workers never double-process a row.
type EventStore interface {
	// Append builds and inserts one record while holding the append lock.
	// build receives the current latest record (nil for an empty log) and
	// returns the fully populated record to insert.
	Append(ctx context.Context, build func(latest *AuditRecord) (*AuditRecord, error)) (*AuditRecord, error)

	ReadLatest(ctx context.Context) (*AuditRecord, error)
	Recent(ctx context.Context, limit int) ([]*AuditRecord, error)
	// All returns every record in (created_at, id) ascending order.
	All(ctx context.Context) ([]*AuditRecord, error)

	// ReencryptBatch selects up to limit records whose envelope kid equals
	// fromKid, strictly after the checkpoint, row-locked with skip-locked
	// semantics, and rewrites each record's payload with the bytes returned
	// by reencrypt. Selection, rewrite and checkpoint advance commit in one
	// transaction.
	ReencryptBatch(ctx context.Context, fromKid string, limit int, after *Checkpoint, reencrypt func(rec *AuditRecord) ([]byte, error)) (*BatchResult, error)

	// CountsByKid groups stored records by envelope key id.
	CountsByKid(ctx context.Context) (map[string]int64, error)
}
