// Package identity resolves the user identifier attached to every outbound call.
package identity

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/flowrl/internal/store"
)

// Resolver determines the effective user id: the override from the most
// recent configure call if one is set, otherwise the persisted device id.
//
// Thread-safety: all methods are safe for concurrent use.
type Resolver struct {
	store  store.Store
	gen    Generator
	logger *slog.Logger

	mu       sync.Mutex
	override string
	deviceID string // memoised once read or persisted
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithGenerator overrides the device id generator (default UUIDv7Generator).
func WithGenerator(g Generator) Option {
	return func(r *Resolver) {
		r.gen = g
	}
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// NewResolver creates a resolver backed by s.
func NewResolver(s store.Store, opts ...Option) *Resolver {
	r := &Resolver{
		store:  s,
		gen:    UUIDv7Generator{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetOverride replaces the override. An empty id clears it.
func (r *Resolver) SetOverride(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.override = id
}

// Override returns the current override, if any.
func (r *Resolver) Override() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.override, r.override != ""
}

// Resolve returns the user id for an outbound call.
func (r *Resolver) Resolve(ctx context.Context) string {
	if id, ok := r.Override(); ok {
		return id
	}
	return r.DeviceID(ctx)
}

// DeviceID returns the persisted device id, generating and persisting one on
// first use. A stored value that is not a UUID is replaced.
//
// When the store fails, a fresh transient id is returned and nothing is
// memoised, so the next call tries the store again.
func (r *Resolver) DeviceID(ctx context.Context) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.deviceID != "" {
		return r.deviceID
	}

	data, found, err := r.store.Get(ctx, store.KeyDeviceID)
	if err != nil {
		r.logger.Warn("device id unreadable, using transient id", "error", err)
		return r.gen.Generate()
	}
	if found {
		if id, parseErr := uuid.ParseBytes(data); parseErr == nil {
			r.deviceID = id.String()
			return r.deviceID
		}
		r.logger.Warn("stored device id is not a UUID, regenerating", "value", string(data))
	}

	id := r.gen.Generate()
	if err := r.store.Set(ctx, store.KeyDeviceID, []byte(id)); err != nil {
		r.logger.Warn("device id not persisted, using transient id", "error", err)
		return id
	}
	r.deviceID = id
	r.logger.Debug("device id generated", "device_id", id)
	return id
}
