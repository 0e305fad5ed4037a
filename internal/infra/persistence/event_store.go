package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	consts "github.com/spounge-ai/auditvault/internal/constants"
	"github.com/spounge-ai/auditvault/internal/domain"
)

const (
	callTimeout  = 3 * time.Second
	batchTimeout = 30 * time.Second
)

// EventStore is the PostgreSQL-backed append log. Appends serialize on a
// transaction-scoped advisory lock; rotation scans use FOR UPDATE SKIP
// LOCKED so concurrent workers neither block nor double-process rows.
type EventStore struct {
	*PostgresBase
	txManager *TransactionManager[*domain.AuditRecord]
	batchTx   *TransactionManager[*domain.BatchResult]
}

// NewEventStore creates the event store adapter.
func NewEventStore(db *pgxpool.Pool, logger *slog.Logger) *EventStore {
	return &EventStore{
		PostgresBase: NewPostgresBase(db, logger),
		txManager:    NewTransactionManager[*domain.AuditRecord](logger),
		batchTx:      NewTransactionManager[*domain.BatchResult](logger),
	}
}

// Append runs "read latest, build, insert" under the append advisory lock.
// Two records can never claim the same prev_hash.
func (s *EventStore) Append(ctx context.Context, build func(latest *domain.AuditRecord) (*domain.AuditRecord, error)) (*domain.AuditRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	return s.txManager.ExecuteInTransaction(ctx, s.DB, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) (*domain.AuditRecord, error) {
		if err := s.AcquireTxLock(ctx, tx, consts.AppendLockID); err != nil {
			return nil, err
		}

		latest, err := scanOptionalRecord(tx.QueryRow(ctx, consts.Queries[consts.StmtReadLatestEvent]))
		if err != nil {
			return nil, fmt.Errorf("failed to read latest record: %w", err)
		}

		rec, err := build(latest)
		if err != nil {
			return nil, err
		}

		_, err = tx.Exec(ctx, consts.Queries[consts.StmtInsertEvent],
			rec.ID.String(), rec.CreatedAt, rec.EventType, rec.Actor, rec.CorrelationID,
			rec.Payload, rec.PrevHash, rec.Hash)
		if err != nil {
			return nil, fmt.Errorf("failed to insert audit record %s: %w", rec.ID, err)
		}
		return rec, nil
	})
}

// ReadLatest returns the newest record, or nil for an empty log.
func (s *EventStore) ReadLatest(ctx context.Context) (*domain.AuditRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	rec, err := scanOptionalRecord(s.DB.QueryRow(ctx, consts.Queries[consts.StmtReadLatestEvent]))
	if err != nil {
		return nil, fmt.Errorf("failed to read latest record: %w", err)
	}
	return rec, nil
}

// Recent returns up to limit records, newest first.
func (s *EventStore) Recent(ctx context.Context, limit int) ([]*domain.AuditRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	rows, err := s.DB.Query(ctx, consts.Queries[consts.StmtRecentEvents], limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent records: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// All returns every record in (created_at, id) ascending order.
func (s *EventStore) All(ctx context.Context) ([]*domain.AuditRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, batchTimeout)
	defer cancel()

	rows, err := s.DB.Query(ctx, consts.Queries[consts.StmtAllEvents])
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// ReencryptBatch selects up to limit rows under fromKid strictly after the
// checkpoint, row-locked with skip-locked semantics, rewrites each payload
// and commits everything in one transaction.
func (s *EventStore) ReencryptBatch(ctx context.Context, fromKid string, limit int, after *domain.Checkpoint, reencrypt func(rec *domain.AuditRecord) ([]byte, error)) (*domain.BatchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, batchTimeout)
	defer cancel()

	return s.batchTx.ExecuteInTransaction(ctx, s.DB, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) (*domain.BatchResult, error) {
		var rows pgx.Rows
		var err error
		if after == nil {
			rows, err = tx.Query(ctx, consts.Queries[consts.StmtScanByKidFirst], fromKid, limit)
		} else {
			rows, err = tx.Query(ctx, consts.Queries[consts.StmtScanByKidAfter], fromKid, after.CreatedAt, after.ID.String(), limit)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to scan records for kid %s: %w", fromKid, err)
		}

		selected, err := collectRecords(rows)
		if err != nil {
			return nil, err
		}

		result := &domain.BatchResult{Checkpoint: after}
		for _, rec := range selected {
			newPayload, err := reencrypt(rec)
			if err != nil {
				return nil, err
			}
			if _, err := tx.Exec(ctx, consts.Queries[consts.StmtUpdatePayload], newPayload, rec.ID.String()); err != nil {
				return nil, fmt.Errorf("failed to update payload for record %s: %w", rec.ID, err)
			}
			result.Processed++
			result.Checkpoint = &domain.Checkpoint{CreatedAt: rec.CreatedAt, ID: rec.ID}
		}

		result.Done = len(selected) < limit
		return result, nil
	})
}

// CountsByKid groups stored records by envelope key id.
func (s *EventStore) CountsByKid(ctx context.Context) (map[string]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	rows, err := s.DB.Query(ctx, consts.Queries[consts.StmtCountsByKid])
	if err != nil {
		return nil, fmt.Errorf("failed to count records by kid: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var kid *string
		var cnt int64
		if err := rows.Scan(&kid, &cnt); err != nil {
			return nil, fmt.Errorf("failed to scan kid count: %w", err)
		}
		if kid == nil {
			counts[""] = cnt
			continue
		}
		counts[*kid] = cnt
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over kid counts: %w", err)
	}
	return counts, nil
}

func scanOptionalRecord(row pgx.Row) (*domain.AuditRecord, error) {
	rec, err := ScanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

func collectRecords(rows pgx.Rows) ([]*domain.AuditRecord, error) {
	defer rows.Close()

	var records []*domain.AuditRecord
	for rows.Next() {
		rec, err := ScanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over audit records: %w", err)
	}
	return records, nil
}
