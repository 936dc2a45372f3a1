package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/flowrl/internal/model"
)

// FakeRemote is an instrumented in-process stand-in for remote.Client.
//
// Like the real client it refuses to call out without an API key.
// Every call is counted, including failed ones.
//
// Thread-safety: All methods are safe for concurrent use.
type FakeRemote struct {
	mu          sync.Mutex
	apiKey      string
	config      *model.Configuration
	fetchErr    error
	submitErr   error
	submitDelay time.Duration
	fetchUsers  []string
	submitCalls int
	submitted   []model.Event
}

// NewFakeRemote creates a fake that serves cfg (may be nil).
func NewFakeRemote(cfg *model.Configuration) *FakeRemote {
	return &FakeRemote{config: cfg}
}

// SetAPIKey implements remote.Service.
func (f *FakeRemote) SetAPIKey(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apiKey = key
}

// APIKey returns the last key set.
func (f *FakeRemote) APIKey() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.apiKey
}

// SetConfiguration replaces the configuration served by FetchConfiguration.
func (f *FakeRemote) SetConfiguration(cfg *model.Configuration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.config = cfg
}

// FailFetch makes FetchConfiguration return err (nil restores success).
func (f *FakeRemote) FailFetch(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErr = err
}

// FailSubmit makes SubmitEvent return err (nil restores success).
func (f *FakeRemote) FailSubmit(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitErr = err
}

// SetSubmitDelay makes SubmitEvent block for d (or until ctx is done).
func (f *FakeRemote) SetSubmitDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitDelay = d
}

// FetchConfiguration implements remote.Service.
func (f *FakeRemote) FetchConfiguration(ctx context.Context, userID string) (*model.Configuration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fetchUsers = append(f.fetchUsers, userID)
	if f.apiKey == "" {
		return nil, model.NewError(model.CodeMissingCredential, "no API key provided")
	}
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if f.config == nil {
		return nil, model.NewStatusError(404, "no configuration")
	}
	return f.config, nil
}

// SubmitEvent implements remote.Service.
func (f *FakeRemote) SubmitEvent(ctx context.Context, event model.Event) error {
	f.mu.Lock()
	delay := f.submitDelay
	f.submitCalls++
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return model.WrapError(model.CodeNetwork, "submit event", ctx.Err())
		case <-time.After(delay):
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.apiKey == "" {
		return model.NewError(model.CodeMissingCredential, "no API key provided")
	}
	if f.submitErr != nil {
		return f.submitErr
	}
	f.submitted = append(f.submitted, event)
	return nil
}

// FetchCalls returns the number of FetchConfiguration calls.
func (f *FakeRemote) FetchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetchUsers)
}

// FetchUsers returns the user ids passed to FetchConfiguration, in call order.
func (f *FakeRemote) FetchUsers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetchUsers...)
}

// SubmitCalls returns the number of SubmitEvent calls.
func (f *FakeRemote) SubmitCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitCalls
}

// Submitted returns the events accepted so far, in call order.
func (f *FakeRemote) Submitted() []model.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Event(nil), f.submitted...)
}
