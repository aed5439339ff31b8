package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key has no value.
var ErrNotFound = errors.New("cache: key not found")

// Session cache keys. These are the only keys SessionConflictRecovery is
// permitted to purge; adding a credential key anywhere else in the codebase
// without listing it here is a bug.
const (
	KeySessionToken   = "session.token"
	KeySessionRefresh = "session.refresh"
	KeySessionID      = "session.id"
	KeyIdentity       = "session.identity"
	KeyResolvedRole   = "session.role"
)

// SessionKeys enumerates every locally cached credential/session key.
func SessionKeys() []string {
	return []string{
		KeySessionToken,
		KeySessionRefresh,
		KeySessionID,
		KeyIdentity,
		KeyResolvedRole,
	}
}

// Store is durable local key/value state with no schema beyond key to opaque
// value.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}
