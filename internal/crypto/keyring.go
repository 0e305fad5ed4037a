// Package crypto implements envelope encryption for audit payloads: an
// in-memory keyring with key-id based rotation, and an AES-GCM engine that
// binds every ciphertext to its record.
package crypto

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/spounge-ai/auditvault/internal/domain"
	apperrors "github.com/spounge-ai/auditvault/internal/errors"
	"github.com/spounge-ai/auditvault/pkg/cache"
)

// DefaultActiveKidTTL bounds how long a promoted kid can go unobserved by
// writers. Tiny on purpose: promotion should be visible quickly without a
// state lookup per append.
const DefaultActiveKidTTL = 500 * time.Millisecond

const activeKidCacheKey = "active"

// KeyConfig is one configured key: a stable id and base64 AES key material
// (16/24/32 bytes for AES-128/192/256).
type KeyConfig struct {
	Kid string `mapstructure:"kid" validate:"required,kid"`
	Key string `mapstructure:"key" validate:"required,aeskey"`
}

// Keyring holds key material loaded once at startup plus a process-local
// temporary overlay for bootstrap flows. Material is immutable after load;
// the overlay and the active-kid cache are the only mutable parts.
type Keyring struct {
	mu      sync.RWMutex
	keys    map[string][]byte
	order   []string
	overlay map[string][]byte

	defaultActive string
	stateRepo     domain.KeyringStateRepository
	activeCache   *cache.TTL[string, string]
}

// NewKeyring decodes and validates configured keys. The service must not
// start with zero usable keys or with a key of invalid length.
func NewKeyring(keys []KeyConfig, configuredActiveKid string, stateRepo domain.KeyringStateRepository, activeTTL time.Duration) (*Keyring, error) {
	if activeTTL <= 0 {
		activeTTL = DefaultActiveKidTTL
	}

	r := &Keyring{
		keys:        make(map[string][]byte, len(keys)),
		overlay:     make(map[string][]byte),
		stateRepo:   stateRepo,
		activeCache: cache.New[string, string](activeTTL),
	}

	for _, k := range keys {
		raw, err := base64.StdEncoding.DecodeString(k.Key)
		if err != nil {
			return nil, fmt.Errorf("kid %q: failed to decode key material: %w", k.Kid, err)
		}
		if err := validateKeyLength(raw); err != nil {
			return nil, fmt.Errorf("kid %q: %w", k.Kid, err)
		}
		if _, dup := r.keys[k.Kid]; dup {
			return nil, fmt.Errorf("kid %q configured twice", k.Kid)
		}
		r.keys[k.Kid] = raw
		r.order = append(r.order, k.Kid)
	}

	if len(r.keys) == 0 {
		return nil, apperrors.ErrNoKeysConfigured
	}

	if _, ok := r.keys[configuredActiveKid]; ok {
		r.defaultActive = configuredActiveKid
	} else {
		r.defaultActive = r.order[0]
	}

	return r, nil
}

// Init aligns the durable active-kid pointer with configuration. Safe to
// call on every startup; an operator promotion always wins.
func (r *Keyring) Init(ctx context.Context) error {
	if _, err := r.stateRepo.EnsureInitialized(ctx, r.defaultActive); err != nil {
		return fmt.Errorf("failed to initialize keyring state: %w", err)
	}
	r.InvalidateActiveKid()
	return nil
}

// Has reports whether kid resolves to key material (configured or overlay).
func (r *Keyring) Has(kid string) bool {
	_, ok := r.material(kid)
	return ok
}

// Kids lists configured kids in configuration order, then overlay kids.
func (r *Keyring) Kids() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.order)+len(r.overlay))
	out = append(out, r.order...)
	for kid := range r.overlay {
		if _, configured := r.keys[kid]; !configured {
			out = append(out, kid)
		}
	}
	return out
}

// DefaultActiveKid is the configuration fallback used when the durable
// pointer is missing or names a key absent from the ring.
func (r *Keyring) DefaultActiveKid() string {
	return r.defaultActive
}

// ActiveKid resolves the kid used for new encryptions: durable pointer
// first, configured default as fallback, cached for the ring's TTL.
func (r *Keyring) ActiveKid(ctx context.Context) (string, error) {
	if kid, ok := r.activeCache.Get(activeKidCacheKey); ok {
		return kid, nil
	}

	resolved := r.defaultActive
	state, err := r.stateRepo.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to resolve active kid: %w", err)
	}
	if state != nil && r.Has(state.ActiveKid) {
		resolved = state.ActiveKid
	}

	r.activeCache.Set(activeKidCacheKey, resolved)
	return resolved, nil
}

// InvalidateActiveKid drops the cached active kid so the next resolution
// hits the durable pointer. Called after every promotion.
func (r *Keyring) InvalidateActiveKid() {
	r.activeCache.Invalidate(activeKidCacheKey)
}

// AddTemporaryKey installs key material into the process-local overlay.
// Overlay keys are not durable: tooling and bootstrap flows only, lost on
// restart.
func (r *Keyring) AddTemporaryKey(kid string, key []byte) error {
	if err := validateKeyLength(key); err != nil {
		return fmt.Errorf("kid %q: %w", kid, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.overlay[kid] = append([]byte(nil), key...)
	return nil
}

func (r *Keyring) material(kid string) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if key, ok := r.keys[kid]; ok {
		return key, true
	}
	key, ok := r.overlay[kid]
	return key, ok
}

func validateKeyLength(key []byte) error {
	switch len(key) {
	case 16, 24, 32:
		return nil
	default:
		return fmt.Errorf("%w: %d bytes (expected 16/24/32)", apperrors.ErrInvalidKeyLength, len(key))
	}
}
