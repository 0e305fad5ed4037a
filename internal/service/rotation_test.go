package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spounge-ai/auditvault/internal/domain"
	apperrors "github.com/spounge-ai/auditvault/internal/errors"
)

func TestReencryptBatchRewritesUnderTargetKid(t *testing.T) {
	f := newFixture(t, "k-old")
	ctx := context.Background()
	f.append(t, 4)

	before, err := f.store.All(ctx)
	require.NoError(t, err)

	result, err := f.rotation.ReencryptBatch(ctx, "k-old", "k-new", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(4), result.Processed)
	assert.True(t, result.Done)

	after, err := f.store.All(ctx)
	require.NoError(t, err)
	require.Len(t, after, 4)

	for i, rec := range after {
		// Envelope changed, chain untouched.
		assert.NotEqual(t, before[i].Payload, rec.Payload)
		assert.Equal(t, before[i].Hash, rec.Hash)
		assert.Equal(t, before[i].PrevHash, rec.PrevHash)
	}

	counts, err := f.store.CountsByKid(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), counts["k-new"])
	assert.Zero(t, counts["k-old"])

	// Every payload still decrypts to the same plaintext.
	assert.NoError(t, f.audit.VerifyChain(ctx))
}

func TestReencryptBatchRejectsUnknownKids(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	_, err := f.rotation.ReencryptBatch(ctx, "ghost", "k-new", 10)
	assert.ErrorIs(t, err, apperrors.ErrUnknownKid)

	_, err = f.rotation.ReencryptBatch(ctx, "k-old", "ghost", 10)
	assert.ErrorIs(t, err, apperrors.ErrUnknownKid)
}

func TestReencryptBatchClampsLimit(t *testing.T) {
	f := newFixture(t, "k-old")
	ctx := context.Background()
	f.append(t, 2)

	// A non-positive limit clamps to one record per batch.
	result, err := f.rotation.ReencryptBatch(ctx, "k-old", "k-new", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Processed)
	assert.False(t, result.Done)
}

func TestCheckpointedResumeProcessesEachRecordOnce(t *testing.T) {
	f := newFixture(t, "k-old")
	ctx := context.Background()
	f.append(t, 10)

	var (
		cp        *domain.Checkpoint
		total     int64
		batches   int
		lastBatch *domain.BatchResult
	)
	for {
		result, err := f.rotation.ReencryptBatchWithCheckpoint(ctx, "k-old", "k-new", 3, cp)
		require.NoError(t, err)

		total += result.Processed
		batches++
		lastBatch = result
		if result.Done {
			break
		}

		// The checkpoint strictly advances batch over batch.
		require.NotNil(t, result.Checkpoint)
		if cp != nil {
			moved := result.Checkpoint.CreatedAt.After(cp.CreatedAt) ||
				(result.Checkpoint.CreatedAt.Equal(cp.CreatedAt) && result.Checkpoint.ID.String() > cp.ID.String())
			assert.True(t, moved)
		}
		cp = result.Checkpoint
	}

	assert.Equal(t, int64(10), total)
	assert.Equal(t, 4, batches)
	assert.Equal(t, int64(1), lastBatch.Processed)

	counts, err := f.store.CountsByKid(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), counts["k-new"])
	assert.NoError(t, f.audit.VerifyChain(ctx))
}

func TestReencryptBatchEmptySource(t *testing.T) {
	f := newFixture(t, "k-old")
	result, err := f.rotation.ReencryptBatch(context.Background(), "k-new", "k-old", 10)
	require.NoError(t, err)
	assert.Zero(t, result.Processed)
	assert.True(t, result.Done)
}

func TestPromoteBumpsVersionAndDeprecatesPrevious(t *testing.T) {
	f := newFixture(t, "k-old")
	ctx := context.Background()

	state, err := f.rotation.Promote(ctx, "k-new", "op", 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "k-new", state.ActiveKid)
	assert.Equal(t, 1, state.Version)
	assert.Equal(t, "op", state.PromotedBy)

	policies, err := f.policy.List(ctx)
	require.NoError(t, err)
	require.Contains(t, policies, "k-old")
	require.Contains(t, policies, "k-new")
	assert.Equal(t, domain.KeyPolicyDeprecated, policies["k-old"].Status)
	assert.Equal(t, domain.KeyPolicyActive, policies["k-new"].Status)
	require.NotNil(t, policies["k-old"].DeprecatedUntil)

	// New encryptions pick up the promoted kid immediately.
	kid, err := f.ring.ActiveKid(ctx)
	require.NoError(t, err)
	assert.Equal(t, "k-new", kid)

	state, err = f.rotation.Promote(ctx, "k-old", "op", 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, state.Version)
}

func TestPromoteSameKidIsNotSelfDeprecating(t *testing.T) {
	f := newFixture(t, "k-old")
	ctx := context.Background()

	_, err := f.rotation.Promote(ctx, "k-old", "op", time.Hour)
	require.NoError(t, err)

	policies, err := f.policy.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.KeyPolicyActive, policies["k-old"].Status)
}

func TestPromoteUnknownKid(t *testing.T) {
	f := newFixture(t, "")
	_, err := f.rotation.Promote(context.Background(), "ghost", "op", time.Hour)
	assert.ErrorIs(t, err, apperrors.ErrUnknownKid)
}

func TestDeprecateDirect(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	until := time.Now().UTC().Add(time.Hour)

	require.NoError(t, f.rotation.Deprecate(ctx, "k-new", until, "op"))

	policies, err := f.policy.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.KeyPolicyDeprecated, policies["k-new"].Status)
}

func TestRingHealth(t *testing.T) {
	f := newFixture(t, "k-old")
	ctx := context.Background()
	f.append(t, 3)

	// One record under a kid nobody knows anymore.
	tampered := false
	f.store.Tamper(func(rec *domain.AuditRecord) {
		if !tampered {
			rec.Payload = []byte(`{"v":1,"alg":"A256GCM","kid":"retired","nonce":"AAAA","ciphertext":"AAAA"}`)
			tampered = true
		}
	})

	health, err := f.rotation.RingHealth(ctx)
	require.NoError(t, err)
	assert.Equal(t, "k-old", health.ActiveKid)
	assert.Equal(t, int64(2), health.CountsByKid["k-old"])
	assert.Equal(t, int64(1), health.CountsByKid["retired"])
	assert.Contains(t, health.UnknownKids, "retired")
}

func TestSafePromoteInstallsAndPromotes(t *testing.T) {
	f := newFixture(t, "k-old")
	ctx := context.Background()
	f.append(t, 2)

	result, err := f.rotation.SafePromote(ctx, "k-2026", "op", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "k-2026", result.Kid)
	assert.NotEmpty(t, result.KeyBase64)
	assert.Equal(t, "k-2026", result.State.ActiveKid)
	assert.True(t, f.ring.Has("k-2026"))

	// The overlay key is immediately usable for new writes.
	_, err = f.audit.Store(ctx, "user.login", "alice", "", map[string]any{"ok": true})
	require.NoError(t, err)

	counts, err := f.store.CountsByKid(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts["k-2026"])

	// Rejects kids already present.
	_, err = f.rotation.SafePromote(ctx, "k-old", "op", time.Hour)
	assert.Error(t, err)
}
