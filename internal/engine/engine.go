package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/flowrl/internal/cache"
	"github.com/roach88/flowrl/internal/clock"
	"github.com/roach88/flowrl/internal/identity"
	"github.com/roach88/flowrl/internal/model"
	"github.com/roach88/flowrl/internal/queue"
	"github.com/roach88/flowrl/internal/remote"
	"github.com/roach88/flowrl/internal/store"
	"github.com/roach88/flowrl/internal/variant"
)

// DefaultFlushInterval is the period of the recurring flush.
const DefaultFlushInterval = 60 * time.Second

// State is the orchestrator lifecycle state.
type State int

const (
	StateUnconfigured State = iota
	StateConfigured
)

func (s State) String() string {
	switch s {
	case StateConfigured:
		return "configured"
	default:
		return "unconfigured"
	}
}

// Settings are the values an application supplies to Configure.
type Settings struct {
	// Name is informational (the application or client name).
	Name string
	// UserID overrides the device id for events and fetches. Empty means no
	// override.
	UserID string
	// APIKey authenticates both service calls.
	APIKey string
}

// Engine ties identity, configuration cache and event queue together.
//
// Configure sequences run on a single worker goroutine in call order. The
// recurring flush runs on a timer goroutine. Everything else is called
// directly by the application.
//
// Thread-safety model:
//   - Configure, LogEvent, Suspend and the read API: safe from any goroutine
//   - Close: safe from any goroutine; idempotent
type Engine struct {
	store    store.Store
	remote   remote.Service
	clock    clock.Clock
	logger   *slog.Logger
	gen      identity.Generator
	interval time.Duration
	policy   queue.FlushPolicy
	suspend  <-chan struct{}

	identity *identity.Resolver
	cache    *cache.Manager
	queue    *queue.Queue
	timer    *flushTimer
	commands *commandQueue

	mu    sync.Mutex
	state State
	name  string

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore sets the persistence backend (default: in-memory).
func WithStore(s store.Store) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithRemote sets the FlowRL service client (default: remote.Client against
// remote.DefaultBaseURL).
func WithRemote(r remote.Service) Option {
	return func(e *Engine) {
		e.remote = r
	}
}

// WithClock overrides the clock used for timestamps and cache freshness.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithFlushInterval sets the recurring flush period.
//
// Default: 60s (DefaultFlushInterval).
func WithFlushInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.interval = d
	}
}

// WithFlushPolicy selects how a flush delivers the backlog.
//
// Default: queue.PolicyPerEvent.
func WithFlushPolicy(p queue.FlushPolicy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithGenerator sets the device id generator (default UUIDv7).
func WithGenerator(g identity.Generator) Option {
	return func(e *Engine) {
		e.gen = g
	}
}

// WithSuspendSignal registers a channel that fires when the host application
// is about to be suspended. Each receive triggers a best-effort flush. The
// channel is subscribed once, on the first Configure.
func WithSuspendSignal(ch <-chan struct{}) Option {
	return func(e *Engine) {
		e.suspend = ch
	}
}

// New creates an unconfigured Engine and starts its worker.
// Call Close to release it.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		clock:    clock.System{},
		logger:   slog.Default(),
		gen:      identity.UUIDv7Generator{},
		interval: DefaultFlushInterval,
		policy:   queue.PolicyPerEvent,
		commands: newCommandQueue(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.store == nil {
		e.store = store.NewMemory()
	}
	if e.remote == nil {
		client, err := remote.New(remote.DefaultBaseURL, remote.WithLogger(e.logger))
		if err != nil {
			return nil, err
		}
		e.remote = client
	}
	if e.interval <= 0 {
		e.interval = DefaultFlushInterval
	}

	e.identity = identity.NewResolver(e.store,
		identity.WithGenerator(e.gen),
		identity.WithLogger(e.logger),
	)
	e.cache = cache.New(e.store, e.remote, e.identity,
		cache.WithClock(e.clock),
		cache.WithLogger(e.logger),
	)
	e.queue = queue.New(e.store, e.remote,
		queue.WithPolicy(e.policy),
		queue.WithLogger(e.logger),
	)
	e.timer = newFlushTimer(func() {
		_, _ = e.flush(e.ctx, "timer")
	})

	e.ctx, e.cancel = context.WithCancel(context.Background())

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run()
	}()

	return e, nil
}

// Configure applies settings and starts the asynchronous sync sequence.
//
// The credential and identity override take effect before Configure returns.
// The returned channel is closed once the sequence has finished (or the
// engine was closed first).
func (e *Engine) Configure(s Settings) <-chan struct{} {
	done := make(chan struct{})

	e.mu.Lock()
	e.name = s.Name
	e.identity.SetOverride(s.UserID)
	e.remote.SetAPIKey(s.APIKey)
	kind := commandReconfigure
	if e.state == StateUnconfigured {
		kind = commandInitial
		e.state = StateConfigured
	}
	e.mu.Unlock()

	e.logger.Info("configure",
		"name", s.Name,
		"sequence", kind.String(),
		"user_override", s.UserID != "",
	)

	if err := e.queue.Load(e.ctx); err != nil {
		e.logger.Warn("event backlog not loaded", "error", err)
	}

	if !e.commands.Enqueue(command{kind: kind, done: done}) {
		close(done)
	}
	return done
}

// run is the worker loop. It exits when the engine is closed.
func (e *Engine) run() {
	for {
		if cmd, ok := e.commands.TryDequeue(); ok {
			e.runSequence(cmd)
			continue
		}

		select {
		case <-e.ctx.Done():
			return
		case _, open := <-e.commands.Wait():
			if !open && e.commands.Len() == 0 {
				return
			}
		}
	}
}

func (e *Engine) runSequence(cmd command) {
	defer close(cmd.done)

	if e.ctx.Err() != nil {
		return
	}

	var err error
	if cmd.kind == commandInitial {
		err = e.cache.Load(e.ctx)
	} else {
		err = e.cache.Refresh(e.ctx)
	}
	if err != nil {
		e.logger.Warn("configuration not refreshed", "sequence", cmd.kind.String(), "error", err)
	}

	_, _ = e.flush(e.ctx, cmd.kind.String())

	if e.ctx.Err() != nil {
		return
	}
	e.timer.Restart(e.interval)

	if cmd.kind == commandInitial && e.suspend != nil {
		e.watchSuspend()
	}
}

func (e *Engine) watchSuspend() {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			select {
			case <-e.ctx.Done():
				return
			case _, ok := <-e.suspend:
				_ = e.Suspend(e.ctx)
				if !ok {
					return
				}
			}
		}
	}()
}

func (e *Engine) flush(ctx context.Context, trigger string) (queue.Result, error) {
	res, err := e.queue.Flush(ctx)
	if err != nil {
		e.logger.Warn("flush incomplete", "trigger", trigger, "delivered", res.Delivered, "error", err)
	}
	return res, err
}

// LogEvent records an analytics event. The event carries the resolved
// identity, the current time and the experiment context of the current
// configuration. It is persisted immediately and delivered by a later flush.
//
// An error means the event could not be persisted; it is still queued in
// memory.
func (e *Engine) LogEvent(ctx context.Context, action, category, screen string) error {
	event := model.Event{
		Timestamp:     e.clock.Now().UnixMilli(),
		CompanyID:     model.DefaultCompanyID,
		UserID:        e.identity.Resolve(ctx),
		Category:      category,
		ActionName:    action,
		ScreenName:    screen,
		Configuration: e.cache.Current().Assignments(),
	}

	e.logger.Debug("event logged",
		"action", action,
		"category", category,
		"screen", screen,
		"user_id", event.UserID,
	)
	return e.queue.Enqueue(ctx, event)
}

// Flush delivers the backlog now. Overlaps with the timer are coalesced.
func (e *Engine) Flush(ctx context.Context) (queue.Result, error) {
	return e.flush(ctx, "manual")
}

// Suspend performs a best-effort flush before the host is suspended.
// It is a no-op before the first Configure.
func (e *Engine) Suspend(ctx context.Context) error {
	if e.State() == StateUnconfigured {
		return nil
	}
	_, err := e.flush(ctx, "suspend")
	return err
}

// Close stops the timer, cancels in-flight work and waits for background
// goroutines. Pending Configure channels are closed.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.cancel()
		for _, cmd := range e.commands.Close() {
			close(cmd.done)
		}
		e.wg.Wait()
		e.timer.Stop()
		e.logger.Debug("engine closed")
	})
	return nil
}

// State returns the lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Name returns the name given to the last Configure.
func (e *Engine) Name() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.name
}

// Configuration returns the current configuration, or nil.
func (e *Engine) Configuration() *model.Configuration {
	return e.cache.Current()
}

// Variant returns the selected variant for test, or def.
func (e *Engine) Variant(test, def string) string {
	return variant.Resolve(e.cache.Current(), test, def)
}

// Picker returns a variant picker bound to this engine's configuration.
func (e *Engine) Picker() *variant.Picker {
	return variant.NewPicker(e.cache)
}

// Subscribe registers fn for configuration changes.
func (e *Engine) Subscribe(fn func(*model.Configuration)) *cache.Subscription {
	return e.cache.Subscribe(fn)
}

// Pending returns the number of undelivered events.
func (e *Engine) Pending() int {
	return e.queue.Len()
}

// PendingEvents returns the undelivered events in timestamp order.
func (e *Engine) PendingEvents() []model.Event {
	return e.queue.Events()
}

// RestoreConfiguration adopts the cached configuration when it is still
// fresh, without fetching, and reports whether it did. Offline callers use it
// so logged events carry the experiment context the user saw.
func (e *Engine) RestoreConfiguration(ctx context.Context) bool {
	return e.cache.Restore(ctx)
}

// SetUserID replaces the identity override without starting a configure
// sequence. An empty id falls back to the device id.
func (e *Engine) SetUserID(id string) {
	e.identity.SetOverride(id)
}

// UserID returns the identity events are currently attributed to.
func (e *Engine) UserID(ctx context.Context) string {
	return e.identity.Resolve(ctx)
}
