package crypto_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spounge-ai/auditvault/internal/crypto"
	"github.com/spounge-ai/auditvault/internal/domain"
	apperrors "github.com/spounge-ai/auditvault/internal/errors"
	"github.com/spounge-ai/auditvault/internal/infra/persistence/memory"
)

func TestNewKeyringRejectsBadKeys(t *testing.T) {
	repo := memory.NewKeyringStateRepository()

	_, err := crypto.NewKeyring(nil, "", repo, 0)
	assert.ErrorIs(t, err, apperrors.ErrNoKeysConfigured)

	_, err = crypto.NewKeyring([]crypto.KeyConfig{{Kid: "k", Key: "!!!not base64"}}, "k", repo, 0)
	assert.Error(t, err)

	_, err = crypto.NewKeyring([]crypto.KeyConfig{{Kid: "k", Key: keyB64(0x01, 15)}}, "k", repo, 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidKeyLength)

	_, err = crypto.NewKeyring([]crypto.KeyConfig{
		{Kid: "k", Key: keyB64(0x01, 32)},
		{Kid: "k", Key: keyB64(0x02, 32)},
	}, "k", repo, 0)
	assert.Error(t, err)
}

func TestKeyringFallsBackToFirstKid(t *testing.T) {
	ring, err := crypto.NewKeyring([]crypto.KeyConfig{
		{Kid: "first", Key: keyB64(0x01, 32)},
		{Kid: "second", Key: keyB64(0x02, 32)},
	}, "missing", memory.NewKeyringStateRepository(), 0)
	require.NoError(t, err)
	assert.Equal(t, "first", ring.DefaultActiveKid())
}

func TestActiveKidFollowsDurablePointer(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewKeyringStateRepository()
	ring, err := crypto.NewKeyring([]crypto.KeyConfig{
		{Kid: "a", Key: keyB64(0x01, 32)},
		{Kid: "b", Key: keyB64(0x02, 32)},
	}, "a", repo, time.Minute)
	require.NoError(t, err)
	require.NoError(t, ring.Init(ctx))

	kid, err := ring.ActiveKid(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", kid)

	_, err = repo.Promote(ctx, "b", "tester")
	require.NoError(t, err)

	// Still cached.
	kid, err = ring.ActiveKid(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", kid)

	ring.InvalidateActiveKid()
	kid, err = ring.ActiveKid(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", kid)
}

func TestActiveKidCacheExpires(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewKeyringStateRepository()
	ring, err := crypto.NewKeyring([]crypto.KeyConfig{
		{Kid: "a", Key: keyB64(0x01, 32)},
		{Kid: "b", Key: keyB64(0x02, 32)},
	}, "a", repo, 10*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, ring.Init(ctx))

	_, err = ring.ActiveKid(ctx)
	require.NoError(t, err)

	_, err = repo.Promote(ctx, "b", "tester")
	require.NoError(t, err)

	time.Sleep(25 * time.Millisecond)
	kid, err := ring.ActiveKid(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", kid)
}

func TestActiveKidIgnoresPointerOutsideRing(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewKeyringStateRepository()
	ring, err := crypto.NewKeyring([]crypto.KeyConfig{
		{Kid: "a", Key: keyB64(0x01, 32)},
	}, "a", repo, time.Minute)
	require.NoError(t, err)
	require.NoError(t, ring.Init(ctx))

	_, err = repo.Promote(ctx, "ghost", "tester")
	require.NoError(t, err)
	ring.InvalidateActiveKid()

	kid, err := ring.ActiveKid(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", kid)
}

func TestTemporaryOverlay(t *testing.T) {
	ring, err := crypto.NewKeyring([]crypto.KeyConfig{
		{Kid: "a", Key: keyB64(0x01, 32)},
	}, "a", memory.NewKeyringStateRepository(), 0)
	require.NoError(t, err)

	assert.False(t, ring.Has("temp"))

	key := make([]byte, 32)
	require.NoError(t, ring.AddTemporaryKey("temp", key))
	assert.True(t, ring.Has("temp"))
	assert.Contains(t, ring.Kids(), "temp")

	err = ring.AddTemporaryKey("short", []byte{0x01})
	assert.ErrorIs(t, err, apperrors.ErrInvalidKeyLength)
}

func TestEnsureInitializedAlignsUntilPromoted(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewKeyringStateRepository()

	state, err := repo.EnsureInitialized(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", state.ActiveKid)
	assert.Equal(t, 0, state.Version)

	// Config change before any operator promotion realigns the pointer.
	state, err = repo.EnsureInitialized(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "b", state.ActiveKid)

	_, err = repo.Promote(ctx, "c", "op")
	require.NoError(t, err)

	// After promotion configuration loses.
	state, err = repo.EnsureInitialized(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "c", state.ActiveKid)
	assert.Equal(t, 1, state.Version)
}

var _ domain.KeyringStateRepository = (*memory.KeyringStateRepository)(nil)
