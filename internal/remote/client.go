// Package remote implements the two FlowRL service calls the client needs:
// fetching a user's configuration and submitting one event.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/roach88/flowrl/internal/model"
)

// DefaultBaseURL is the production FlowRL endpoint.
const DefaultBaseURL = "https://api.flowrl.ai/"

// DefaultTimeout bounds a single request.
const DefaultTimeout = 10 * time.Second

const (
	configPath = "get_config"
	eventPath  = "collect_event"
)

// Service is the contract the engine depends on.
// Implemented by *Client (production) and testutil.FakeRemote (tests).
type Service interface {
	SetAPIKey(key string)
	FetchConfiguration(ctx context.Context, userID string) (*model.Configuration, error)
	SubmitEvent(ctx context.Context, event model.Event) error
}

// Client talks to the FlowRL HTTP API.
//
// Thread-safety: Client is safe for concurrent use; the API key may be
// replaced while requests are in flight.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  *slog.Logger

	mu     sync.RWMutex
	apiKey string
}

var _ Service = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http = &http.Client{Timeout: d}
	}
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a Client for baseURL. An empty baseURL uses DefaultBaseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: DefaultTimeout},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetAPIKey sets the key sent in the Authorization header.
func (c *Client) SetAPIKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiKey = key
}

func (c *Client) credential() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.apiKey == "" {
		return "", model.NewError(model.CodeMissingCredential, "no API key provided")
	}
	return c.apiKey, nil
}

// FetchConfiguration performs GET {base}/get_config?user_id={userID}.
// Any 2xx status is accepted.
func (c *Client) FetchConfiguration(ctx context.Context, userID string) (*model.Configuration, error) {
	key, err := c.credential()
	if err != nil {
		return nil, err
	}

	u := c.baseURL.ResolveReference(&url.URL{Path: configPath})
	u.RawQuery = url.Values{"user_id": {userID}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build config request: %w", err)
	}
	req.Header.Set("Authorization", key)

	c.logger.Debug("fetching configuration", "url", u.String())
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, model.WrapError(model.CodeNetwork, "fetch configuration", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.WrapError(model.CodeNetwork, "read configuration body", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, model.NewStatusError(resp.StatusCode, fmt.Sprintf("fetch configuration: %s", strings.TrimSpace(string(body))))
	}

	var cfg model.Configuration
	if err := json.Unmarshal(body, &cfg); err != nil {
		return nil, model.WrapError(model.CodeDecode, "decode configuration", err)
	}
	return &cfg, nil
}

// SubmitEvent performs POST {base}/collect_event with the event as JSON.
// Only status 200 counts as delivered.
func (c *Client) SubmitEvent(ctx context.Context, event model.Event) error {
	key, err := c.credential()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	u := c.baseURL.ResolveReference(&url.URL{Path: eventPath})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build event request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", key)

	c.logger.Debug("submitting event", "url", u.String(), "payload", string(payload))
	resp, err := c.http.Do(req)
	if err != nil {
		return model.WrapError(model.CodeNetwork, "submit event", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return model.NewStatusError(resp.StatusCode, fmt.Sprintf("submit event: %s", strings.TrimSpace(string(body))))
	}
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
