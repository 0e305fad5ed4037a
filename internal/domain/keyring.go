package domain

import (
	"context"
	"time"
)

// KeyringState is the durable active-key pointer: a single row promotable at
// runtime without redeploying. Key material itself never lives here.
type KeyringState struct {
	ActiveKid  string
	PromotedAt time.Time
	PromotedBy string
	Version    int
}

// KeyPolicyStatus is the lifecycle state of one kid. Any kid present in the
// ring stays usable for decryption regardless of status.
type KeyPolicyStatus string

const (
	KeyPolicyActive     KeyPolicyStatus = "ACTIVE"
	KeyPolicyDeprecated KeyPolicyStatus = "DEPRECATED"
)

// KeyPolicy records lifecycle metadata for one kid.
type KeyPolicy struct {
	Kid             string
	Status          KeyPolicyStatus
	DeprecatedAt    *time.Time
	DeprecatedUntil *time.Time
	DeprecatedBy    string
	UpdatedAt       time.Time
}

// KeyringStateRepository persists the active-kid pointer. Promote must apply
// as a single-row update with a strictly increasing version so concurrent
// promotions serialize deterministically.
type KeyringStateRepository interface {
	Get(ctx context.Context) (*KeyringState, error)
	// EnsureInitialized creates the singleton row if missing. While the row
	// is still at version 0 and never operator-promoted, configuration may
	// realign the initial active kid.
	EnsureInitialized(ctx context.Context, configuredActiveKid string) (*KeyringState, error)
	Promote(ctx context.Context, kid, promotedBy string) (*KeyringState, error)
}

// KeyPolicyRepository persists per-kid lifecycle policy rows.
type KeyPolicyRepository interface {
	List(ctx context.Context) (map[string]*KeyPolicy, error)
	EnsurePresent(ctx context.Context, kid string) error
	MarkActive(ctx context.Context, kid string) error
	Deprecate(ctx context.Context, kid string, until time.Time, actor string) error
}
