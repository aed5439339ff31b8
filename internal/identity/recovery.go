package identity

import (
	"context"
	"strings"

	"github.com/medtrack/server/internal/cache"
	apperrors "github.com/medtrack/server/pkg/errors"
	"github.com/medtrack/server/pkg/logger"
)

// Recovery repairs the false-conflict failure mode: an interrupted sign-in
// leaves stale local session state, and the provider then rejects the next
// sign-in as "Session already exists" even though nothing usable is active
// locally. The repair is local-only; the provider's revoke endpoint is never
// called, so a genuinely live remote session is left untouched.
type Recovery struct {
	store  cache.Store
	logger *logger.Logger
}

func NewRecovery(store cache.Store, log *logger.Logger) *Recovery {
	return &Recovery{store: store, logger: log}
}

// DetectConflict reports whether err carries the provider's documented
// session-conflict signal.
func DetectConflict(err error) bool {
	if err == nil {
		return false
	}
	if apperrors.IsCode(err, apperrors.ErrAuthConflict) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, conflictMessage) || strings.Contains(msg, conflictCode)
}

// ClearAndRetry purges every enumerated credential/session key from the
// local cache. Returns nil when the caller should re-prompt sign-in.
func (r *Recovery) ClearAndRetry(ctx context.Context) error {
	keys := cache.SessionKeys()
	if err := r.store.Delete(ctx, keys...); err != nil {
		return apperrors.Internal(err)
	}
	r.logger.Info("cleared stale session state", "keys", len(keys))
	return nil
}
