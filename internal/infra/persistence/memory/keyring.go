package memory

import (
	"context"
	"sync"
	"time"

	"github.com/spounge-ai/auditvault/internal/domain"
)

// KeyringStateRepository is the in-memory active-kid pointer.
type KeyringStateRepository struct {
	mu    sync.Mutex
	state *domain.KeyringState
}

// NewKeyringStateRepository creates an uninitialized pointer.
func NewKeyringStateRepository() *KeyringStateRepository {
	return &KeyringStateRepository{}
}

func (r *KeyringStateRepository) Get(ctx context.Context) (*domain.KeyringState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == nil {
		return nil, nil
	}
	out := *r.state
	return &out, nil
}

func (r *KeyringStateRepository) EnsureInitialized(ctx context.Context, configuredActiveKid string) (*domain.KeyringState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == nil {
		r.state = &domain.KeyringState{ActiveKid: configuredActiveKid}
	} else if r.state.Version == 0 && r.state.PromotedBy == "" && r.state.ActiveKid != configuredActiveKid {
		r.state.ActiveKid = configuredActiveKid
		r.state.PromotedAt = time.Now().UTC()
	}
	out := *r.state
	return &out, nil
}

func (r *KeyringStateRepository) Promote(ctx context.Context, kid, promotedBy string) (*domain.KeyringState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == nil {
		r.state = &domain.KeyringState{}
	}
	r.state.ActiveKid = kid
	r.state.PromotedAt = time.Now().UTC()
	r.state.PromotedBy = promotedBy
	r.state.Version++

	out := *r.state
	return &out, nil
}

// KeyPolicyRepository is the in-memory key lifecycle policy table.
type KeyPolicyRepository struct {
	mu       sync.Mutex
	policies map[string]*domain.KeyPolicy
}

// NewKeyPolicyRepository creates an empty policy table.
func NewKeyPolicyRepository() *KeyPolicyRepository {
	return &KeyPolicyRepository{policies: make(map[string]*domain.KeyPolicy)}
}

func (r *KeyPolicyRepository) List(ctx context.Context) (map[string]*domain.KeyPolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]*domain.KeyPolicy, len(r.policies))
	for kid, p := range r.policies {
		cp := *p
		out[kid] = &cp
	}
	return out, nil
}

func (r *KeyPolicyRepository) EnsurePresent(ctx context.Context, kid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.policies[kid]; !ok {
		r.policies[kid] = &domain.KeyPolicy{Kid: kid, Status: domain.KeyPolicyActive, UpdatedAt: time.Now().UTC()}
	}
	return nil
}

func (r *KeyPolicyRepository) MarkActive(ctx context.Context, kid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.policies[kid] = &domain.KeyPolicy{Kid: kid, Status: domain.KeyPolicyActive, UpdatedAt: time.Now().UTC()}
	return nil
}

func (r *KeyPolicyRepository) Deprecate(ctx context.Context, kid string, until time.Time, actor string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	r.policies[kid] = &domain.KeyPolicy{
		Kid:             kid,
		Status:          domain.KeyPolicyDeprecated,
		DeprecatedAt:    &now,
		DeprecatedUntil: &until,
		DeprecatedBy:    actor,
		UpdatedAt:       now,
	}
	return nil
}
