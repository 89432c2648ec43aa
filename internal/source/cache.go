package source

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/engineeringwithtemi/aide/internal/ai"
)

// CacheStatus reports the outcome of a cache lookup. Cache failures never
// propagate as errors; callers branch on the status and degrade to
// uncached generation.
type CacheStatus int

const (
	// CacheReady means a valid cache id was returned.
	CacheReady CacheStatus = iota
	// CacheDisabled means the provider does not support caching.
	CacheDisabled
	// CacheUnpersisted means a cache was created but could not be saved;
	// the handle was discarded and the remote copy expires on its own.
	CacheUnpersisted
	// CacheUnavailable means cache creation failed.
	CacheUnavailable
)

func (s CacheStatus) String() string {
	switch s {
	case CacheReady:
		return "ready"
	case CacheDisabled:
		return "disabled"
	case CacheUnpersisted:
		return "unpersisted"
	case CacheUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// CacheStore persists the cache handle next to the source row. Passing
// nil pointers clears both fields.
type CacheStore interface {
	UpdateSourceCache(ctx context.Context, sourceID string, cacheID *string, expiresAt *time.Time) error
}

// ContentProvider supplies the content to cache. Sources pass themselves.
type ContentProvider interface {
	FullContent(ctx context.Context) (string, error)
}

// CacheManager owns one source's AI content cache: handle, expiry, lazy
// refresh, and persistence. It is composed into sources rather than
// inherited so every type shares one state machine.
type CacheManager struct {
	sourceID  uuid.UUID
	provider  ai.Provider
	store     CacheStore
	cacheID   string
	expiresAt time.Time
	now       func() time.Time
	logger    *slog.Logger
}

func NewCacheManager(sourceID uuid.UUID, provider ai.Provider, store CacheStore, logger *slog.Logger) *CacheManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &CacheManager{
		sourceID: sourceID,
		provider: provider,
		store:    store,
		now:      time.Now,
		logger:   logger,
	}
}

// Handle returns the current cache id without validity checks.
func (m *CacheManager) Handle() string { return m.cacheID }

// Restore loads a persisted handle. Both fields must be present; a handle
// without an expiry is treated as absent.
func (m *CacheManager) Restore(cacheID string, expiresAt time.Time) {
	if cacheID == "" || expiresAt.IsZero() {
		return
	}
	m.cacheID = cacheID
	m.expiresAt = expiresAt
}

// Valid reports whether a live, unexpired handle is held.
func (m *CacheManager) Valid() bool {
	return m.cacheID != "" && m.now().Before(m.expiresAt)
}

// CacheID returns a usable cache id, creating or recreating the cache as
// needed. A valid handle is returned as-is with no side effects; an
// absent or stale one triggers one creation attempt. All failures are
// absorbed into the returned status.
func (m *CacheManager) CacheID(ctx context.Context, content ContentProvider) (string, CacheStatus) {
	if m.Valid() {
		return m.cacheID, CacheReady
	}
	if m.cacheID != "" {
		m.logger.Warn("content cache expired, recreating",
			"source_id", m.sourceID, "expired_at", m.expiresAt)
	}
	return m.createCache(ctx, content)
}

func (m *CacheManager) createCache(ctx context.Context, content ContentProvider) (string, CacheStatus) {
	text, err := content.FullContent(ctx)
	if err != nil {
		m.logger.Warn("cache content fetch failed", "source_id", m.sourceID, "error", err)
		return "", CacheUnavailable
	}

	if m.provider == nil || !m.provider.SupportsCaching() {
		return "", CacheDisabled
	}

	if m.store == nil {
		m.logger.Warn("no cache store configured, skipping cache creation",
			"source_id", m.sourceID)
		return "", CacheUnpersisted
	}

	res, err := m.provider.CreateCache(ctx, text, &ai.CacheConfig{
		DisplayName: "source-" + m.sourceID.String(),
	})
	if err != nil || res == nil {
		m.logger.Warn("cache creation failed", "source_id", m.sourceID, "error", err)
		return "", CacheUnavailable
	}

	m.cacheID = res.CacheID
	m.expiresAt = res.ExpiresAt
	if err := m.store.UpdateSourceCache(ctx, m.sourceID.String(), &res.CacheID, &res.ExpiresAt); err != nil {
		// A handle we cannot find again next restart is useless; drop it
		// and let the remote TTL reclaim the orphan.
		m.logger.Warn("cache handle persistence failed, discarding handle",
			"source_id", m.sourceID, "error", err)
		m.cacheID = ""
		m.expiresAt = time.Time{}
		return "", CacheUnpersisted
	}

	m.logger.Info("content cache created",
		"source_id", m.sourceID, "cache_id", m.cacheID, "expires_at", m.expiresAt)
	return m.cacheID, CacheReady
}

// Invalidate drops the handle locally and clears the persisted fields.
// Invalidating an absent cache is a no-op.
func (m *CacheManager) Invalidate(ctx context.Context) error {
	m.cacheID = ""
	m.expiresAt = time.Time{}

	if m.store == nil {
		m.logger.Warn("no cache store configured, nothing to clear", "source_id", m.sourceID)
		return nil
	}
	return m.store.UpdateSourceCache(ctx, m.sourceID.String(), nil, nil)
}
