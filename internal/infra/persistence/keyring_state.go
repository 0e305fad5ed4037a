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

// KeyringStateRepository persists the durable active-kid pointer as a
// singleton row. Promotion is a single-row update that bumps the version,
// so concurrent promotions serialize with last writer wins.
type KeyringStateRepository struct {
	*PostgresBase
	txManager *TransactionManager[*domain.KeyringState]
}

// NewKeyringStateRepository creates the keyring state adapter.
func NewKeyringStateRepository(db *pgxpool.Pool, logger *slog.Logger) *KeyringStateRepository {
	return &KeyringStateRepository{
		PostgresBase: NewPostgresBase(db, logger),
		txManager:    NewTransactionManager[*domain.KeyringState](logger),
	}
}

// Get returns the pointer row, or nil when it has never been initialized.
func (r *KeyringStateRepository) Get(ctx context.Context) (*domain.KeyringState, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	return r.get(ctx, r.DB)
}

// EnsureInitialized creates the singleton row if missing. While the row is
// untouched by operators (version 0, no promoter) configuration may realign
// the initial active kid; an operator promotion always wins afterwards.
func (r *KeyringStateRepository) EnsureInitialized(ctx context.Context, configuredActiveKid string) (*domain.KeyringState, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	return r.txManager.ExecuteInTransaction(ctx, r.DB, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) (*domain.KeyringState, error) {
		if _, err := tx.Exec(ctx, consts.Queries[consts.StmtKeyringStateInsert], configuredActiveKid); err != nil {
			return nil, fmt.Errorf("failed to insert keyring state: %w", err)
		}

		state, err := r.get(ctx, tx)
		if err != nil {
			return nil, err
		}
		if state == nil {
			return nil, errors.New("keyring state missing after initialization")
		}

		if state.Version == 0 && state.PromotedBy == "" && state.ActiveKid != configuredActiveKid {
			if _, err := tx.Exec(ctx, consts.Queries[consts.StmtKeyringStateAlign], configuredActiveKid); err != nil {
				return nil, fmt.Errorf("failed to align keyring state: %w", err)
			}
			state, err = r.get(ctx, tx)
			if err != nil {
				return nil, err
			}
		}
		return state, nil
	})
}

// Promote points new encryptions at kid and bumps the pointer version.
func (r *KeyringStateRepository) Promote(ctx context.Context, kid, promotedBy string) (*domain.KeyringState, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	return r.txManager.ExecuteInTransaction(ctx, r.DB, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) (*domain.KeyringState, error) {
		if _, err := tx.Exec(ctx, consts.Queries[consts.StmtKeyringStatePromote], kid, promotedBy); err != nil {
			return nil, fmt.Errorf("failed to promote kid %s: %w", kid, err)
		}
		state, err := r.get(ctx, tx)
		if err != nil {
			return nil, err
		}
		if state == nil {
			return nil, errors.New("keyring state missing after promotion")
		}
		return state, nil
	})
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *KeyringStateRepository) get(ctx context.Context, q querier) (*domain.KeyringState, error) {
	var state domain.KeyringState
	var promotedAt *time.Time
	var promotedBy *string

	err := q.QueryRow(ctx, consts.Queries[consts.StmtKeyringStateGet]).
		Scan(&state.ActiveKid, &promotedAt, &promotedBy, &state.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read keyring state: %w", err)
	}

	if promotedAt != nil {
		state.PromotedAt = *promotedAt
	}
	if promotedBy != nil {
		state.PromotedBy = *promotedBy
	}
	return &state, nil
}
