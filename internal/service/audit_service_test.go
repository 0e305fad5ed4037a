package service_test

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spounge-ai/auditvault/internal/crypto"
	"github.com/spounge-ai/auditvault/internal/domain"
	apperrors "github.com/spounge-ai/auditvault/internal/errors"
	"github.com/spounge-ai/auditvault/internal/infra/persistence/memory"
	"github.com/spounge-ai/auditvault/internal/service"
)

type fixture struct {
	store    *memory.EventStore
	state    *memory.KeyringStateRepository
	policy   *memory.KeyPolicyRepository
	jobs     *memory.JobRepository
	ring     *crypto.Keyring
	engine   *crypto.Engine
	audit    *service.AuditService
	rotation *service.RotationService
	jobSvc   *service.JobService
}

func testKey(b byte, n int) string {
	raw := make([]byte, n)
	for i := range raw {
		raw[i] = b
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func newFixture(t *testing.T, activeKid string, keys ...crypto.KeyConfig) *fixture {
	t.Helper()

	if len(keys) == 0 {
		keys = []crypto.KeyConfig{
			{Kid: "k-old", Key: testKey(0x01, 32)},
			{Kid: "k-new", Key: testKey(0x02, 32)},
		}
	}
	if activeKid == "" {
		activeKid = keys[0].Kid
	}

	f := &fixture{
		store:  memory.NewEventStore(),
		state:  memory.NewKeyringStateRepository(),
		policy: memory.NewKeyPolicyRepository(),
		jobs:   memory.NewJobRepository(),
	}

	// A tiny TTL keeps promotion visible without explicit invalidation in
	// tests that bypass the rotation service.
	ring, err := crypto.NewKeyring(keys, activeKid, f.state, time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, ring.Init(context.Background()))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.ring = ring
	f.engine = crypto.NewEngine(ring)
	f.audit = service.NewAuditService(f.store, f.engine, logger)
	f.rotation = service.NewRotationService(f.store, f.engine, f.state, f.policy, logger)
	f.jobSvc = service.NewJobService(f.jobs, ring, logger)
	return f
}

func (f *fixture) append(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := f.audit.Store(context.Background(), "user.login", "alice", "corr", map[string]any{"n": i})
		require.NoError(t, err)
	}
}

func TestStoreAndRecent(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	id, err := f.audit.Store(ctx, "user.login", "alice", "corr-1", map[string]any{"ip": "10.0.0.1"})
	require.NoError(t, err)
	require.NotEqual(t, "00000000-0000-0000-0000-000000000000", id.String())

	events, err := f.audit.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, id, ev.Record.ID)
	assert.Equal(t, "user.login", ev.Record.EventType)
	assert.Equal(t, "k-old", ev.Kid)
	assert.JSONEq(t, `{"ip":"10.0.0.1"}`, ev.Plaintext)

	// Stored payload is an envelope, not the plaintext.
	assert.NotContains(t, string(ev.Record.Payload), "10.0.0.1")
}

func TestRecentClampsLimit(t *testing.T) {
	f := newFixture(t, "")
	f.append(t, 3)

	events, err := f.audit.Recent(context.Background(), -5)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestRecentNewestFirst(t *testing.T) {
	f := newFixture(t, "")
	f.append(t, 5)

	events, err := f.audit.Recent(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i := 1; i < len(events); i++ {
		assert.False(t, events[i].Record.CreatedAt.After(events[i-1].Record.CreatedAt))
	}
}

func TestChainLinksAcrossAppends(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	f.append(t, 4)

	records, err := f.store.All(ctx)
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.Nil(t, records[0].PrevHash)
	for i := 1; i < len(records); i++ {
		assert.Equal(t, records[i-1].Hash, records[i].PrevHash)
	}

	assert.NoError(t, f.audit.VerifyChain(ctx))
}

func TestVerifyChainDetectsTamper(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	f.append(t, 3)

	require.NoError(t, f.audit.VerifyChain(ctx))

	f.store.Tamper(func(rec *domain.AuditRecord) {
		rec.EventType = "user.logout"
	})
	assert.Error(t, f.audit.VerifyChain(ctx))
}

func TestRecentSurfacesCryptoFailure(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	f.append(t, 1)

	f.store.Tamper(func(rec *domain.AuditRecord) {
		rec.Payload = []byte(`{"v":1,"alg":"A256GCM","kid":"ghost","nonce":"AAAA","ciphertext":"AAAA"}`)
	})

	_, err := f.audit.Recent(ctx, 10)
	require.Error(t, err)
	assert.True(t, apperrors.IsCryptoFailure(err))
}
