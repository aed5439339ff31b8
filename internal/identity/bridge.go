package identity

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/medtrack/server/internal/cache"
	"github.com/medtrack/server/internal/model"
	apperrors "github.com/medtrack/server/pkg/errors"
	"github.com/medtrack/server/pkg/logger"
	"github.com/medtrack/server/pkg/metrics"
	"github.com/medtrack/server/pkg/security"
)

// Bridge owns the identity token lifecycle. GetToken returns the current
// valid token or nil when absent; it never returns a stale token and never
// blocks longer than one refresh round trip.
type Bridge struct {
	client  Client
	store   cache.Store
	enc     security.Encryptor
	logger  *logger.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	token   *model.Token
	refresh string
}

type persistedToken struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewBridge(client Client, store cache.Store, enc security.Encryptor, log *logger.Logger, m *metrics.Metrics) *Bridge {
	return &Bridge{
		client:  client,
		store:   store,
		enc:     enc,
		logger:  log,
		metrics: m,
	}
}

// Resolve loads a previously persisted token so the principal does not need
// to re-authenticate on process restart. Expired entries are discarded.
func (b *Bridge) Resolve(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	token, err := b.load(ctx, cache.KeySessionToken)
	if err != nil {
		return err
	}
	if token != nil && !token.Expired(time.Now()) {
		b.token = token
	}

	refresh, err := b.load(ctx, cache.KeySessionRefresh)
	if err != nil {
		return err
	}
	if refresh != nil {
		b.refresh = refresh.Value
	}
	return nil
}

// GetToken returns the current token, refreshing it first if it has expired.
// A nil token with nil error means absent: the caller must authenticate.
func (b *Bridge) GetToken(ctx context.Context) (*model.Token, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if b.token != nil && !b.token.Expired(now) {
		t := *b.token
		return &t, nil
	}

	if b.refresh == "" {
		return nil, nil
	}

	token, refresh, err := b.client.RefreshToken(ctx, b.refresh)
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrAuthExpired) {
			// Revoked: the refresh token is dead, clear everything.
			b.countRefresh("revoked")
			b.token = nil
			b.refresh = ""
			if perr := b.store.Delete(ctx, cache.SessionKeys()...); perr != nil {
				b.logger.Error(perr, "failed to clear revoked session state")
			}
			return nil, apperrors.AuthExpired(err)
		}
		// Transient: keep state, retry on next call, report absent now.
		b.countRefresh("transient_failure")
		b.logger.Warn("token refresh failed transiently", "error", err.Error())
		return nil, nil
	}

	b.countRefresh("success")
	b.token = &token
	if refresh != "" {
		b.refresh = refresh
	}
	if err := b.persistLocked(ctx); err != nil {
		b.logger.Error(err, "failed to persist refreshed token")
	}
	t := token
	return &t, nil
}

// SetToken installs a freshly issued token and persists it.
func (b *Bridge) SetToken(ctx context.Context, token model.Token, refreshToken string) error {
	if token.Expired(time.Now()) {
		return apperrors.AuthExpired(nil)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.token = &token
	b.refresh = refreshToken
	return b.persistLocked(ctx)
}

// Invalidate drops the in-memory token and every persisted session key.
func (b *Bridge) Invalidate(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.token = nil
	b.refresh = ""
	return b.store.Delete(ctx, cache.SessionKeys()...)
}

func (b *Bridge) countRefresh(outcome string) {
	if b.metrics != nil {
		b.metrics.TokenRefreshes.WithLabelValues(outcome).Inc()
	}
}

func (b *Bridge) persistLocked(ctx context.Context) error {
	if b.token != nil && !b.token.Expired(time.Now()) {
		ttl := time.Duration(0)
		if !b.token.ExpiresAt.IsZero() {
			ttl = time.Until(b.token.ExpiresAt)
		}
		if err := b.save(ctx, cache.KeySessionToken, b.token.Value, b.token.ExpiresAt, ttl); err != nil {
			return err
		}
	}
	if b.refresh != "" {
		if err := b.save(ctx, cache.KeySessionRefresh, b.refresh, time.Time{}, 0); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bridge) save(ctx context.Context, key, value string, expiresAt time.Time, ttl time.Duration) error {
	payload, err := json.Marshal(persistedToken{Value: value, ExpiresAt: expiresAt})
	if err != nil {
		return apperrors.Internal(err)
	}
	sealed, err := b.enc.Encrypt(payload)
	if err != nil {
		return apperrors.Internal(err)
	}
	return b.store.Set(ctx, key, sealed, ttl)
}

func (b *Bridge) load(ctx context.Context, key string) (*model.Token, error) {
	sealed, err := b.store.Get(ctx, key)
	if err == cache.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	payload, err := b.enc.Decrypt(sealed)
	if err != nil {
		// Unreadable entries are treated as absent and removed.
		b.logger.Warn("dropping undecryptable cache entry", "key", key)
		_ = b.store.Delete(ctx, key)
		return nil, nil
	}

	var pt persistedToken
	if err := json.Unmarshal(payload, &pt); err != nil {
		_ = b.store.Delete(ctx, key)
		return nil, nil
	}
	return &model.Token{Value: pt.Value, ExpiresAt: pt.ExpiresAt}, nil
}
