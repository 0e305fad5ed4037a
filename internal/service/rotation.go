package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spounge-ai/auditvault/internal/crypto"
	"github.com/spounge-ai/auditvault/internal/domain"
	apperrors "github.com/spounge-ai/auditvault/internal/errors"
)

const (
	minBatchLimit = 1
	maxBatchLimit = 5000
)

// RotationService re-encrypts historical records between keys and manages
// the durable active-kid pointer and per-kid lifecycle policy.
type RotationService struct {
	store  domain.EventStore
	engine *crypto.Engine
	state  domain.KeyringStateRepository
	policy domain.KeyPolicyRepository
	logger *slog.Logger
}

// NewRotationService creates the rotation orchestrator.
func NewRotationService(store domain.EventStore, engine *crypto.Engine, state domain.KeyringStateRepository, policy domain.KeyPolicyRepository, logger *slog.Logger) *RotationService {
	return &RotationService{store: store, engine: engine, state: state, policy: policy, logger: logger}
}

// ReencryptBatch processes one batch starting from the beginning of the log.
func (s *RotationService) ReencryptBatch(ctx context.Context, fromKid, toKid string, limit int) (*domain.BatchResult, error) {
	return s.ReencryptBatchWithCheckpoint(ctx, fromKid, toKid, limit, nil)
}

// ReencryptBatchWithCheckpoint processes up to limit records still encrypted
// under fromKid, strictly after the checkpoint, rewriting each under toKid.
// The chain hash covers plaintext and is never touched here.
func (s *RotationService) ReencryptBatchWithCheckpoint(ctx context.Context, fromKid, toKid string, limit int, after *domain.Checkpoint) (*domain.BatchResult, error) {
	if !s.engine.Ring().Has(fromKid) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownKid, fromKid)
	}
	if !s.engine.Ring().Has(toKid) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownKid, toKid)
	}
	if limit < minBatchLimit {
		limit = minBatchLimit
	}
	if limit > maxBatchLimit {
		limit = maxBatchLimit
	}

	result, err := s.store.ReencryptBatch(ctx, fromKid, limit, after, func(rec *domain.AuditRecord) ([]byte, error) {
		plaintext, err := s.engine.Decrypt(rec.Payload, rec.ID, rec.CreatedAt, rec.EventType)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", rec.ID, err)
		}
		return s.engine.EncryptWithKid(toKid, plaintext, rec.ID, rec.CreatedAt, rec.EventType)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "re-encryption batch complete",
		"from_kid", fromKid,
		"to_kid", toKid,
		"processed", result.Processed,
		"done", result.Done)
	return result, nil
}

// RingHealth is an operator snapshot of key usage and lifecycle state.
type RingHealth struct {
	ActiveKid           string
	CountsByKid         map[string]int64
	UnknownKids         []string
	DeprecatedPastGrace []string
}

// RingHealth reports envelope counts grouped by kid, kids present in the
// store but absent from the ring, and deprecated kids whose grace window has
// expired while records still reference them.
func (s *RotationService) RingHealth(ctx context.Context) (*RingHealth, error) {
	counts, err := s.store.CountsByKid(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count envelopes by kid: %w", err)
	}

	activeKid, err := s.engine.Ring().ActiveKid(ctx)
	if err != nil {
		return nil, err
	}

	policies, err := s.policy.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list key policies: %w", err)
	}

	health := &RingHealth{ActiveKid: activeKid, CountsByKid: counts}
	now := time.Now().UTC()
	for kid, n := range counts {
		if n == 0 {
			continue
		}
		if !s.engine.Ring().Has(kid) {
			health.UnknownKids = append(health.UnknownKids, kid)
			continue
		}
		p, ok := policies[kid]
		if ok && p.Status == domain.KeyPolicyDeprecated && p.DeprecatedUntil != nil && now.After(*p.DeprecatedUntil) {
			health.DeprecatedPastGrace = append(health.DeprecatedPastGrace, kid)
		}
	}
	return health, nil
}

// Promote switches the durable active-kid pointer to kid. The previous
// active kid, if different, is deprecated with the given grace window so
// records under it keep decrypting while rotation drains them.
func (s *RotationService) Promote(ctx context.Context, kid, actor string, grace time.Duration) (*domain.KeyringState, error) {
	if !s.engine.Ring().Has(kid) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownKid, kid)
	}

	previous, err := s.state.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read keyring state: %w", err)
	}

	state, err := s.state.Promote(ctx, kid, actor)
	if err != nil {
		return nil, fmt.Errorf("failed to promote kid %s: %w", kid, err)
	}

	if err := s.policy.MarkActive(ctx, kid); err != nil {
		return nil, fmt.Errorf("failed to mark kid %s active: %w", kid, err)
	}
	if previous != nil && previous.ActiveKid != "" && previous.ActiveKid != kid {
		until := time.Now().UTC().Add(grace)
		if err := s.policy.Deprecate(ctx, previous.ActiveKid, until, actor); err != nil {
			return nil, fmt.Errorf("failed to deprecate kid %s: %w", previous.ActiveKid, err)
		}
	}

	s.engine.Ring().InvalidateActiveKid()

	s.logger.InfoContext(ctx, "active kid promoted",
		"kid", kid,
		"version", state.Version,
		"promoted_by", actor)
	return state, nil
}

// Deprecate marks a kid deprecated until the given deadline without touching
// the active pointer. The kid need not be in the ring; the policy row is
// lifecycle metadata, not key material.
func (s *RotationService) Deprecate(ctx context.Context, kid string, until time.Time, actor string) error {
	if err := s.policy.Deprecate(ctx, kid, until, actor); err != nil {
		return fmt.Errorf("failed to deprecate kid %s: %w", kid, err)
	}
	s.logger.InfoContext(ctx, "kid deprecated", "kid", kid, "until", until, "by", actor)
	return nil
}

// SafePromoteResult carries what an operator needs after a safe promotion:
// the generated material to persist in configuration before the process
// restarts, and the resulting pointer state.
type SafePromoteResult struct {
	Kid       string
	KeyBase64 string
	State     *domain.KeyringState
}

// SafePromote generates a fresh AES-256 key, installs it into the ring's
// temporary overlay and promotes it. The overlay is process-local, so the
// printed material must land in configuration before any restart.
func (s *RotationService) SafePromote(ctx context.Context, kid, actor string, grace time.Duration) (*SafePromoteResult, error) {
	if s.engine.Ring().Has(kid) {
		return nil, fmt.Errorf("kid %q already present in ring", kid)
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate key material: %w", err)
	}
	if err := s.engine.Ring().AddTemporaryKey(kid, key); err != nil {
		return nil, err
	}

	state, err := s.Promote(ctx, kid, actor, grace)
	if err != nil {
		return nil, err
	}

	return &SafePromoteResult{
		Kid:       kid,
		KeyBase64: base64.StdEncoding.EncodeToString(key),
		State:     state,
	}, nil
}
