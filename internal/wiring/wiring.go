// Package wiring constructs the application dependency graph from loaded
// configuration. Both entrypoints (server and operator CLI) assemble the
// same graph so behavior never diverges between them.
package wiring

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spounge-ai/auditvault/internal/constants"
	"github.com/spounge-ai/auditvault/internal/crypto"
	"github.com/spounge-ai/auditvault/internal/domain"
	"github.com/spounge-ai/auditvault/internal/infra/config"
	"github.com/spounge-ai/auditvault/internal/infra/persistence"
	"github.com/spounge-ai/auditvault/internal/infra/persistence/memory"
	"github.com/spounge-ai/auditvault/internal/pipelines"
	"github.com/spounge-ai/auditvault/internal/redact"
	"github.com/spounge-ai/auditvault/internal/service"
	"github.com/spounge-ai/auditvault/pkg/postgres"
)

// Dependencies is the assembled application graph.
type Dependencies struct {
	Pool     *pgxpool.Pool
	Ring     *crypto.Keyring
	Engine   *crypto.Engine
	Audit    *service.AuditService
	Rotation *service.RotationService
	Jobs     *service.JobService
	Worker   *pipelines.ReencryptWorker
	Logger   *slog.Logger
}

// Close releases pooled resources.
func (d *Dependencies) Close() {
	if d.Pool != nil {
		d.Pool.Close()
	}
}

// NewLogger builds the process logger: JSON to stderr, every message and
// string attribute passed through the redactor before emission.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	base := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(redact.NewLogHandler(base))
}

// Provide assembles the graph over PostgreSQL.
func Provide(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	pool, err := persistence.NewConnectionPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	client := postgres.NewClient(pool)
	if err := client.PrepareStatements(ctx, constants.Queries); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	stateRepo := persistence.NewKeyringStateRepository(pool, logger)
	policyRepo := persistence.NewKeyPolicyRepository(pool, logger)
	jobRepo := persistence.NewJobRepository(pool, logger)
	store := persistence.NewEventStore(pool, logger)

	deps, err := assemble(ctx, cfg, logger, store, stateRepo, policyRepo, jobRepo)
	if err != nil {
		pool.Close()
		return nil, err
	}
	deps.Pool = pool
	return deps, nil
}

// ProvideMemory assembles the graph over the in-process stores. Local
// development and tooling only; nothing survives the process.
func ProvideMemory(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	return assemble(ctx, cfg, logger,
		memory.NewEventStore(),
		memory.NewKeyringStateRepository(),
		memory.NewKeyPolicyRepository(),
		memory.NewJobRepository())
}

func assemble(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	store domain.EventStore,
	stateRepo domain.KeyringStateRepository,
	policyRepo domain.KeyPolicyRepository,
	jobRepo domain.JobRepository,
) (*Dependencies, error) {
	ring, err := crypto.NewKeyring(cfg.Crypto.Keys, cfg.Crypto.ActiveKid, stateRepo, cfg.Crypto.ActiveKidCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to build keyring: %w", err)
	}
	if err := ring.Init(ctx); err != nil {
		return nil, err
	}
	for _, kid := range ring.Kids() {
		if err := policyRepo.EnsurePresent(ctx, kid); err != nil {
			return nil, fmt.Errorf("failed to register key policy for %s: %w", kid, err)
		}
	}

	engine := crypto.NewEngine(ring)
	rotation := service.NewRotationService(store, engine, stateRepo, policyRepo, logger)

	return &Dependencies{
		Ring:     ring,
		Engine:   engine,
		Audit:    service.NewAuditService(store, engine, logger),
		Rotation: rotation,
		Jobs:     service.NewJobService(jobRepo, ring, logger),
		Worker:   pipelines.NewReencryptWorker(jobRepo, rotation, cfg.Rotation.PollDelay, logger),
		Logger:   logger,
	}, nil
}
