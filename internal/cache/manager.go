// Package cache owns the in-memory experiment configuration.
//
// The Manager decides whether the persisted copy is still fresh enough to
// serve or whether it must be refetched, and notifies subscribers whenever a
// new configuration is adopted. Failures degrade silently: the previous value
// (possibly nil or stale) stays in place and the error is only logged by the
// caller, since UI code falls back to its own defaults.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/flowrl/internal/clock"
	"github.com/roach88/flowrl/internal/model"
	"github.com/roach88/flowrl/internal/store"
)

// Fetcher retrieves a configuration for a user.
type Fetcher interface {
	FetchConfiguration(ctx context.Context, userID string) (*model.Configuration, error)
}

// IdentitySource resolves the user id sent with a fetch.
type IdentitySource interface {
	Resolve(ctx context.Context) string
}

// Manager holds the current configuration.
//
// Thread-safety model:
//   - Current/Require: lock-free reads, safe from any goroutine
//   - Load/Refresh: safe from any goroutine; adoption is serialized
//   - Subscribe/Cancel: safe from any goroutine
type Manager struct {
	store    store.Store
	fetcher  Fetcher
	identity IdentitySource
	clock    clock.Clock
	logger   *slog.Logger

	current atomic.Pointer[model.Configuration]

	// adoptMu serializes publish+persist and numbers each adoption.
	adoptMu sync.Mutex
	seq     uint64

	// notifyMu orders announcements. An adoption overtaken by a newer one
	// before it was announced is skipped.
	notifyMu sync.Mutex
	notified uint64
	subs     subscribers
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the clock (default clock.System).
func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// New creates a Manager with no current configuration.
func New(s store.Store, f Fetcher, id IdentitySource, opts ...Option) *Manager {
	m := &Manager{
		store:    s,
		fetcher:  f,
		identity: id,
		clock:    clock.System{},
		logger:   slog.Default(),
	}
	m.subs.init()
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Current returns the last adopted configuration, or nil.
func (m *Manager) Current() *model.Configuration {
	return m.current.Load()
}

// Require returns the current configuration or a
// model.CodeConfigurationUnavailable error when none has been adopted.
func (m *Manager) Require() (*model.Configuration, error) {
	if cfg := m.Current(); cfg != nil {
		return cfg, nil
	}
	return nil, model.NewError(model.CodeConfigurationUnavailable, "no configuration loaded")
}

// Cached reads the persisted configuration without adopting it.
// Returns found=false when nothing usable is stored.
func (m *Manager) Cached(ctx context.Context) (*model.Configuration, bool, error) {
	var cfg model.Configuration
	found, err := store.GetJSON(ctx, m.store, store.KeyConfiguration, &cfg)
	if err != nil || !found {
		return nil, false, err
	}
	return &cfg, true, nil
}

// Load adopts the persisted configuration when it is still valid, without
// any network call. An absent, malformed or stale copy triggers Refresh.
//
// The returned error is the Refresh error, if one ran and failed.
func (m *Manager) Load(ctx context.Context) error {
	if m.Restore(ctx) {
		return nil
	}
	return m.Refresh(ctx)
}

// Restore adopts the persisted configuration when it is still valid and
// reports whether it did. It never touches the network.
func (m *Manager) Restore(ctx context.Context) bool {
	cached, found, err := m.Cached(ctx)
	if err != nil {
		m.logger.Warn("cached configuration unreadable", "error", err)
	}
	if !found {
		return false
	}

	now := m.clock.Now()
	if !cached.ValidAt(now) {
		m.logger.Info("cached configuration stale",
			"generated_at", cached.GeneratedAt(),
			"now", now,
		)
		return false
	}

	m.logger.Debug("configuration served from cache",
		"generated_at", cached.GeneratedAt(),
		"expires_at", cached.ExpiresAt(),
	)
	m.adopt(cached)
	return true
}

// Refresh fetches the configuration for the resolved identity. On success the
// value is adopted, persisted and announced. On failure nothing changes.
func (m *Manager) Refresh(ctx context.Context) error {
	userID := m.identity.Resolve(ctx)

	cfg, err := m.fetcher.FetchConfiguration(ctx, userID)
	if err != nil {
		return err
	}

	m.adoptMu.Lock()
	m.seq++
	seq := m.seq
	m.current.Store(cfg)
	if err := store.PutJSON(ctx, m.store, store.KeyConfiguration, cfg); err != nil {
		m.logger.Warn("configuration not persisted", "error", err)
	}
	m.adoptMu.Unlock()

	m.logger.Info("configuration refreshed",
		"user_id", userID,
		"generated_at", cfg.GeneratedAt(),
		"choices", len(cfg.Choices()),
	)
	m.announce(seq, cfg)
	return nil
}

// adopt publishes cfg without persisting it (it came from the store).
func (m *Manager) adopt(cfg *model.Configuration) {
	m.adoptMu.Lock()
	m.seq++
	seq := m.seq
	m.current.Store(cfg)
	m.adoptMu.Unlock()
	m.announce(seq, cfg)
}

// announce notifies subscribers of adoption seq unless a later adoption was
// already announced.
func (m *Manager) announce(seq uint64, cfg *model.Configuration) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	if seq < m.notified {
		m.logger.Debug("configuration announcement superseded", "generated_at", cfg.GeneratedAt())
		return
	}
	m.notified = seq
	m.subs.notify(cfg)
}

// Subscribe registers fn to be called with every newly adopted
// configuration. Callbacks run on the adopting goroutine, outside the state
// locks, one announcement at a time and in adoption order. They must not
// block for long and must not call Load or Refresh.
func (m *Manager) Subscribe(fn func(*model.Configuration)) *Subscription {
	return m.subs.add(fn)
}
