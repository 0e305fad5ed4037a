package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	consts "github.com/spounge-ai/auditvault/internal/constants"
	"github.com/spounge-ai/auditvault/internal/domain"
)

// KeyPolicyRepository persists per-kid lifecycle policy. Deprecating never
// removes key material from the ring; decryption of old data keeps working
// through the grace window and beyond.
type KeyPolicyRepository struct {
	*PostgresBase
}

// NewKeyPolicyRepository creates the key policy adapter.
func NewKeyPolicyRepository(db *pgxpool.Pool, logger *slog.Logger) *KeyPolicyRepository {
	return &KeyPolicyRepository{PostgresBase: NewPostgresBase(db, logger)}
}

// List returns all policy rows keyed by kid.
func (r *KeyPolicyRepository) List(ctx context.Context) (map[string]*domain.KeyPolicy, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	rows, err := r.DB.Query(ctx, consts.Queries[consts.StmtPolicyList])
	if err != nil {
		return nil, fmt.Errorf("failed to list key policies: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*domain.KeyPolicy)
	for rows.Next() {
		var p domain.KeyPolicy
		var deprecatedBy *string
		var updatedAt *time.Time
		if err := rows.Scan(&p.Kid, &p.Status, &p.DeprecatedAt, &p.DeprecatedUntil, &deprecatedBy, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan key policy: %w", err)
		}
		if deprecatedBy != nil {
			p.DeprecatedBy = *deprecatedBy
		}
		if updatedAt != nil {
			p.UpdatedAt = *updatedAt
		}
		out[p.Kid] = &p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over key policies: %w", err)
	}
	return out, nil
}

// EnsurePresent inserts an ACTIVE row for kid if none exists.
func (r *KeyPolicyRepository) EnsurePresent(ctx context.Context, kid string) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	if _, err := r.DB.Exec(ctx, consts.Queries[consts.StmtPolicyEnsurePresent], kid); err != nil {
		return fmt.Errorf("failed to ensure policy row for kid %s: %w", kid, err)
	}
	return nil
}

// MarkActive upserts kid as ACTIVE and clears any deprecation metadata.
func (r *KeyPolicyRepository) MarkActive(ctx context.Context, kid string) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	if _, err := r.DB.Exec(ctx, consts.Queries[consts.StmtPolicyMarkActive], kid); err != nil {
		return fmt.Errorf("failed to mark kid %s active: %w", kid, err)
	}
	return nil
}

// Deprecate upserts kid as DEPRECATED with a grace deadline.
func (r *KeyPolicyRepository) Deprecate(ctx context.Context, kid string, until time.Time, actor string) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	if _, err := r.DB.Exec(ctx, consts.Queries[consts.StmtPolicyDeprecate], kid, until, actor); err != nil {
		return fmt.Errorf("failed to deprecate kid %s: %w", kid, err)
	}
	return nil
}
