package persistence

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spounge-ai/auditvault/internal/domain"
)

// ScanRecord maps one audit_events row into the domain type.
func ScanRecord(row pgx.Row) (*domain.AuditRecord, error) {
	var rec domain.AuditRecord
	var id string

	err := row.Scan(&id, &rec.CreatedAt, &rec.EventType, &rec.Actor, &rec.CorrelationID, &rec.Payload, &rec.PrevHash, &rec.Hash)
	if err != nil {
		return nil, err
	}

	rec.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid record id %q: %w", id, err)
	}
	return &rec, nil
}

// ScanJob maps one crypto_reencrypt_jobs row into the domain type.
func ScanJob(row pgx.Row) (*domain.ReencryptJob, error) {
	var job domain.ReencryptJob
	var id string
	var lastID *string
	var lastError *string

	err := row.Scan(&id, &job.FromKid, &job.ToKid, &job.Status, &job.BatchSize, &job.ThrottleMs,
		&job.LastCreatedAt, &lastID, &job.Processed, &job.RequestedBy, &lastError,
		&job.CreatedAt, &job.UpdatedAt, &job.StartedAt, &job.FinishedAt)
	if err != nil {
		return nil, err
	}

	job.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid job id %q: %w", id, err)
	}
	if lastID != nil {
		parsed, err := uuid.Parse(*lastID)
		if err != nil {
			return nil, fmt.Errorf("invalid job checkpoint id %q: %w", *lastID, err)
		}
		job.LastID = &parsed
	}
	if lastError != nil {
		job.LastError = *lastError
	}
	return &job, nil
}
