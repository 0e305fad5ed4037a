// Package service implements the audit append/read path and the rotation
// orchestrator over the persistence interfaces.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/spounge-ai/auditvault/internal/audit"
	"github.com/spounge-ai/auditvault/internal/crypto"
	"github.com/spounge-ai/auditvault/internal/domain"
)

const (
	minRecentLimit = 1
	maxRecentLimit = 200
)

// AuditService stores sensitive events encrypted at rest and chained for
// tamper evidence. Raw payloads never reach the log stream.
type AuditService struct {
	store  domain.EventStore
	engine *crypto.Engine
	logger *slog.Logger
}

// NewAuditService creates the audit service.
func NewAuditService(store domain.EventStore, engine *crypto.Engine, logger *slog.Logger) *AuditService {
	return &AuditService{store: store, engine: engine, logger: logger}
}

// DecryptedEvent is one audit record with its payload opened for display.
type DecryptedEvent struct {
	Record    *domain.AuditRecord
	Plaintext string
	Kid       string
}

// Store appends one audit event. The chain hash is computed over the
// plaintext payload while the append lock is held, then the payload is
// sealed under the active key. Returns the new record's id.
func (s *AuditService) Store(ctx context.Context, eventType, actor, correlationID string, payload any) (uuid.UUID, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to serialize audit payload: %w", err)
	}
	plaintext := string(raw)
	id := uuid.New()

	rec, err := s.store.Append(ctx, func(latest *domain.AuditRecord) (*domain.AuditRecord, error) {
		// Microsecond precision survives a database round-trip; never
		// earlier than the previous record so the logical clock holds.
		createdAt := time.Now().UTC().Truncate(time.Microsecond)
		var prevHash []byte
		if latest != nil {
			prevHash = latest.Hash
			if createdAt.Before(latest.CreatedAt) {
				createdAt = latest.CreatedAt
			}
		}

		hash := audit.Compute(prevHash, createdAt, eventType, actor, correlationID, plaintext)

		envelope, err := s.engine.Encrypt(ctx, plaintext, id, createdAt, eventType)
		if err != nil {
			return nil, err
		}

		return &domain.AuditRecord{
			ID:            id,
			CreatedAt:     createdAt,
			EventType:     eventType,
			Actor:         actor,
			CorrelationID: correlationID,
			Payload:       envelope,
			PrevHash:      prevHash,
			Hash:          hash,
		}, nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to store audit event: %w", err)
	}

	s.logger.InfoContext(ctx, "audit event stored",
		"id", rec.ID.String(),
		"event_type", rec.EventType,
		"actor", rec.Actor,
		"correlation_id", rec.CorrelationID,
		"hash", audit.Hex(rec.Hash))
	return rec.ID, nil
}

// Recent returns up to limit events, newest first, with payloads decrypted.
// A record whose key is missing from the ring surfaces an integrity error,
// never garbage output.
func (s *AuditService) Recent(ctx context.Context, limit int) ([]*DecryptedEvent, error) {
	if limit < minRecentLimit {
		limit = minRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	records, err := s.store.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read recent audit events: %w", err)
	}

	out := make([]*DecryptedEvent, 0, len(records))
	for _, rec := range records {
		plaintext, err := s.engine.Decrypt(rec.Payload, rec.ID, rec.CreatedAt, rec.EventType)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", rec.ID, err)
		}
		kid, err := crypto.EnvelopeKid(rec.Payload)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", rec.ID, err)
		}
		out = append(out, &DecryptedEvent{Record: rec, Plaintext: plaintext, Kid: kid})
	}
	return out, nil
}

// VerifyChain recomputes the full hash chain from stored records. Any
// mutation of a historical record fails verification at and after it.
func (s *AuditService) VerifyChain(ctx context.Context) error {
	records, err := s.store.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}
	return audit.VerifyChain(records, func(rec *domain.AuditRecord) (string, error) {
		return s.engine.Decrypt(rec.Payload, rec.ID, rec.CreatedAt, rec.EventType)
	})
}
