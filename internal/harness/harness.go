package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/flowrl/internal/engine"
	"github.com/roach88/flowrl/internal/model"
	"github.com/roach88/flowrl/internal/queue"
	"github.com/roach88/flowrl/internal/remote"
	"github.com/roach88/flowrl/internal/store"
	"github.com/roach88/flowrl/internal/testutil"
)

// ScenarioStart is the instant every scenario clock starts at.
var ScenarioStart = time.UnixMilli(1700000000000).UTC()

// configureTimeout bounds a single configure step.
const configureTimeout = 10 * time.Second

// Harness is the scenario execution environment.
type Harness struct {
	store    store.Store
	service  *testutil.FakeRemote
	recorder *recorder
	clock    *testutil.FakeClock
	engine   *engine.Engine
	logger   *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario gets a fresh in-memory store and fake service.
//
// Execution flow:
// 1. Persist the cached configuration, if any
// 2. Start the engine against the recording fake service
// 3. Execute flow steps
// 4. Evaluate assertions and return the result
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	policy, err := queue.ParseFlushPolicy(scenario.FlushPolicy)
	if err != nil {
		return nil, err
	}

	st := store.NewMemory()
	if scenario.Cached != nil {
		if err := store.PutJSON(ctx, st, store.KeyConfiguration, scenario.Cached.build(ScenarioStart)); err != nil {
			return nil, fmt.Errorf("failed to seed cache: %w", err)
		}
	}

	var served *model.Configuration
	if scenario.Served != nil {
		served = scenario.Served.build(ScenarioStart)
	}
	service := testutil.NewFakeRemote(served)

	h := &Harness{
		store:    st,
		service:  service,
		recorder: newRecorder(service),
		clock:    testutil.NewFakeClock(ScenarioStart),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	eng, err := engine.New(
		engine.WithStore(h.store),
		engine.WithRemote(h.recorder),
		engine.WithClock(h.clock),
		engine.WithLogger(h.logger),
		engine.WithGenerator(testutil.NewFixedDeviceGenerator("")),
		engine.WithFlushInterval(24*time.Hour),
		engine.WithFlushPolicy(policy),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	defer eng.Close()
	h.engine = eng

	if err := h.executeFlow(ctx, scenario.Flow); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	result := NewResult()
	result.Trace = h.recorder.events()
	result.Pending = eng.Pending()

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, eng) {
		result.AddError(errMsg)
	}

	return result, nil
}

func (h *Harness) executeFlow(ctx context.Context, flow []Step) error {
	for i, step := range flow {
		if err := h.executeStep(ctx, step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}
	return nil
}

func (h *Harness) executeStep(ctx context.Context, step Step) error {
	kind, err := step.kind()
	if err != nil {
		return err
	}

	switch kind {
	case "configure":
		c := step.Configure
		h.recorder.step(fmt.Sprintf("configure user=%q", c.UserID))
		done := h.engine.Configure(engine.Settings{Name: c.Name, UserID: c.UserID, APIKey: c.APIKey})
		select {
		case <-done:
		case <-time.After(configureTimeout):
			return fmt.Errorf("configure sequence did not finish within %s", configureTimeout)
		}

	case "log":
		l := step.Log
		h.recorder.step(fmt.Sprintf("log %s/%s/%s", l.Action, l.Category, l.Screen))
		if err := h.engine.LogEvent(ctx, l.Action, l.Category, l.Screen); err != nil {
			return fmt.Errorf("log event: %w", err)
		}

	case "flush":
		h.recorder.step("flush")
		// Failures show up as submit outcomes in the trace.
		_, _ = h.engine.Flush(ctx)

	case "suspend":
		h.recorder.step("suspend")
		_ = h.engine.Suspend(ctx)

	case "advance":
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return err
		}
		h.recorder.step("advance " + d.String())
		h.clock.Advance(d)

	case "service":
		s := step.Service
		h.recorder.step(fmt.Sprintf("service fetch_status=%d submit_status=%d", s.FetchStatus, s.SubmitStatus))
		h.service.FailFetch(statusError(s.FetchStatus))
		h.service.FailSubmit(statusError(s.SubmitStatus))
	}

	return nil
}

func statusError(status int) error {
	if status == 0 {
		return nil
	}
	return model.NewStatusError(status, "injected by scenario")
}

// recorder is a remote.Service that records every call into the trace.
type recorder struct {
	inner remote.Service

	mu    sync.Mutex
	seq   int64
	trace []TraceEvent
}

var _ remote.Service = (*recorder)(nil)

func newRecorder(inner remote.Service) *recorder {
	return &recorder{inner: inner}
}

func (r *recorder) SetAPIKey(key string) {
	r.inner.SetAPIKey(key)
}

func (r *recorder) FetchConfiguration(ctx context.Context, userID string) (*model.Configuration, error) {
	cfg, err := r.inner.FetchConfiguration(ctx, userID)
	r.add(TraceEvent{Type: TraceFetch, UserID: userID, Outcome: outcome(err)})
	return cfg, err
}

func (r *recorder) SubmitEvent(ctx context.Context, event model.Event) error {
	err := r.inner.SubmitEvent(ctx, event)
	r.add(TraceEvent{
		Type:    TraceSubmit,
		UserID:  event.UserID,
		Action:  event.ActionName,
		Context: event.Configuration,
		Outcome: outcome(err),
	})
	return err
}

func (r *recorder) step(desc string) {
	r.add(TraceEvent{Type: TraceStep, Step: desc})
}

func (r *recorder) add(e TraceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	e.Seq = r.seq
	r.trace = append(r.trace, e)
}

func (r *recorder) events() []TraceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TraceEvent{}, r.trace...)
}

// outcome renders a call result as "ok", the error code, or the error code
// and HTTP status.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	code, ok := model.CodeOf(err)
	if !ok {
		return "error"
	}
	if status := model.StatusCode(err); status != 0 {
		return fmt.Sprintf("%s %d", code, status)
	}
	return string(code)
}
