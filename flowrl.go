// Package flowrl is the FlowRL experimentation client.
//
// A Client fetches the experiment configuration assigned to the current user,
// caches it locally for 24 hours and delivers analytics events tagged with the
// experiment variants the user saw. Events are persisted before delivery and
// survive restarts.
//
// Typical use:
//
//	st, err := flowrl.OpenSQLite("flowrl.db")
//	...
//	client, err := flowrl.New(flowrl.WithStore(st))
//	...
//	defer client.Close()
//	<-client.Configure(flowrl.Settings{Name: "shop", APIKey: key})
//
//	color := client.Variant("btn_color", "red")
//	_ = client.LogEvent(ctx, "click", "checkout", "cart")
//
// One Client per process is the convention; construct it at startup and pass
// it to the code that needs it.
package flowrl

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/flowrl/internal/cache"
	"github.com/roach88/flowrl/internal/engine"
	"github.com/roach88/flowrl/internal/model"
	"github.com/roach88/flowrl/internal/queue"
	"github.com/roach88/flowrl/internal/remote"
	"github.com/roach88/flowrl/internal/store"
	"github.com/roach88/flowrl/internal/variant"
)

type (
	// Settings are the values applied by Configure.
	Settings = engine.Settings
	// Configuration is an immutable experiment assignment snapshot.
	Configuration = model.Configuration
	// ExperimentContext is one (test, selected variant) pair attached to events.
	ExperimentContext = model.ExperimentContext
	// Subscription is the handle returned by Subscribe; Cancel stops delivery.
	Subscription = cache.Subscription
	// Picker resolves variants and watches them for changes.
	Picker = variant.Picker
	// FlushPolicy selects how the event backlog is delivered.
	FlushPolicy = queue.FlushPolicy
	// FlushResult summarises one flush.
	FlushResult = queue.Result
	// Store persists the device id, cached configuration and event backlog.
	Store = store.Store
	// Error is the error type returned by the client.
	Error = model.Error
)

const (
	// PolicyPerEvent submits each event and removes only acknowledged ones.
	PolicyPerEvent = queue.PolicyPerEvent
	// PolicySubmitOneClearAll submits one event and clears the whole backlog
	// when it is acknowledged.
	PolicySubmitOneClearAll = queue.PolicySubmitOneClearAll

	// DefaultBaseURL is the FlowRL service endpoint.
	DefaultBaseURL = remote.DefaultBaseURL
	// DefaultFlushInterval is the period of the recurring flush.
	DefaultFlushInterval = engine.DefaultFlushInterval
)

// Error predicates.
var (
	IsMissingCredential = model.IsMissingCredential
	IsStorageError      = model.IsStorageError
	IsNetworkError      = model.IsNetworkError
	StatusCode          = model.StatusCode
)

// OpenSQLite opens (creating if needed) a durable store at path.
func OpenSQLite(path string) (*store.SQLite, error) {
	return store.Open(path)
}

// NewMemoryStore returns a store that keeps state for the life of the process.
func NewMemoryStore() Store {
	return store.NewMemory()
}

type options struct {
	baseURL    string
	timeout    time.Duration
	logger     *slog.Logger
	engineOpts []engine.Option
}

// Option configures a Client.
type Option func(*options)

// WithStore sets the persistence backend (default: in-memory).
func WithStore(s Store) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, engine.WithStore(s))
	}
}

// WithBaseURL points the client at another FlowRL endpoint.
func WithBaseURL(url string) Option {
	return func(o *options) {
		o.baseURL = url
	}
}

// WithRequestTimeout bounds each service call (default 10s).
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithFlushInterval sets the recurring flush period.
func WithFlushInterval(d time.Duration) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, engine.WithFlushInterval(d))
	}
}

// WithFlushPolicy selects how a flush delivers the backlog.
func WithFlushPolicy(p FlushPolicy) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, engine.WithFlushPolicy(p))
	}
}

// WithSuspendSignal registers a channel the host closes or sends on when it
// is about to be suspended; each signal triggers a best-effort flush.
func WithSuspendSignal(ch <-chan struct{}) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, engine.WithSuspendSignal(ch))
	}
}

// Client is the FlowRL experimentation client. It is safe for concurrent use.
type Client struct {
	engine *engine.Engine
}

// New creates an unconfigured Client. Call Configure to start syncing and
// Close to release it.
func New(opts ...Option) (*Client, error) {
	o := &options{
		baseURL: DefaultBaseURL,
		timeout: remote.DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	svc, err := remote.New(o.baseURL,
		remote.WithTimeout(o.timeout),
		remote.WithLogger(o.logger),
	)
	if err != nil {
		return nil, err
	}

	base := []engine.Option{
		engine.WithRemote(svc),
		engine.WithLogger(o.logger),
	}
	e, err := engine.New(append(base, o.engineOpts...)...)
	if err != nil {
		return nil, err
	}
	return &Client{engine: e}, nil
}

// Configure applies settings and starts a sync sequence. The returned channel
// is closed when the sequence has finished.
func (c *Client) Configure(s Settings) <-chan struct{} {
	return c.engine.Configure(s)
}

// LogEvent queues an analytics event. A non-nil error means the event could
// not be persisted; it is still delivered if the process lives long enough.
func (c *Client) LogEvent(ctx context.Context, action, category, screen string) error {
	return c.engine.LogEvent(ctx, action, category, screen)
}

// Configuration returns the current configuration, or nil before one is
// available.
func (c *Client) Configuration() *Configuration {
	return c.engine.Configuration()
}

// Variant returns the variant selected for test, or def.
func (c *Client) Variant(test, def string) string {
	return c.engine.Variant(test, def)
}

// Picker returns a variant picker that follows configuration changes.
func (c *Client) Picker() *Picker {
	return c.engine.Picker()
}

// Subscribe calls fn with every newly adopted configuration.
func (c *Client) Subscribe(fn func(*Configuration)) *Subscription {
	return c.engine.Subscribe(fn)
}

// Flush delivers the event backlog now.
func (c *Client) Flush(ctx context.Context) (FlushResult, error) {
	return c.engine.Flush(ctx)
}

// Pending returns the number of undelivered events.
func (c *Client) Pending() int {
	return c.engine.Pending()
}

// Suspend performs a best-effort flush before the host is suspended.
func (c *Client) Suspend(ctx context.Context) error {
	return c.engine.Suspend(ctx)
}

// Close stops background work. It does not close the store.
func (c *Client) Close() error {
	return c.engine.Close()
}
