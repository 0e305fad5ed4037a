// Package audit computes and verifies the tamper-evident hash chain over
// audit records.
//
// hash = SHA-256(prevHash || createdAt || eventType || actor || correlationId || payload)
//
// The hash covers the plaintext payload, never the stored envelope, so
// re-encrypting a record under a new key leaves the chain intact.
package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/spounge-ai/auditvault/internal/domain"
)

// Compute returns the chain digest for one record. prevHash is nil for the
// first record of the log. Missing string fields hash as empty strings, so
// there is no null-vs-empty ambiguity at the hash-input level.
func Compute(prevHash []byte, createdAt time.Time, eventType, actor, correlationID, payload string) []byte {
	h := sha256.New()
	if prevHash != nil {
		h.Write(prevHash)
	}
	h.Write([]byte(CanonicalTime(createdAt)))
	h.Write([]byte(eventType))
	h.Write([]byte(actor))
	h.Write([]byte(correlationID))
	h.Write([]byte(payload))
	return h.Sum(nil)
}

// CanonicalTime is the single timestamp rendering fed into the hash chain
// and into envelope associated data. Timestamps are truncated to microsecond
// precision at record creation, so the rendering survives a database
// round-trip unchanged.
func CanonicalTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Hex renders a digest as lowercase hex, the boundary representation.
func Hex(b []byte) string {
	return hex.EncodeToString(b)
}

// VerifyChain walks records in (createdAt, id) ascending order and checks
// both links of every record: prevHash must equal the previous record's
// stored hash, and recomputing the digest from the record's own fields must
// reproduce the stored hash. plaintext returns the decrypted payload for a
// record; verification fails if it fails.
func VerifyChain(records []*domain.AuditRecord, plaintext func(*domain.AuditRecord) (string, error)) error {
	var prev []byte
	for i, rec := range records {
		if !bytes.Equal(rec.PrevHash, prev) {
			return fmt.Errorf("record %s (index %d): prev_hash mismatch", rec.ID, i)
		}
		pt, err := plaintext(rec)
		if err != nil {
			return fmt.Errorf("record %s (index %d): %w", rec.ID, i, err)
		}
		want := Compute(rec.PrevHash, rec.CreatedAt, rec.EventType, rec.Actor, rec.CorrelationID, pt)
		if !bytes.Equal(rec.Hash, want) {
			return fmt.Errorf("record %s (index %d): hash mismatch", rec.ID, i)
		}
		prev = rec.Hash
	}
	return nil
}
