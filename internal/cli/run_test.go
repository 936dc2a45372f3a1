package cli

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flowrl/internal/config"
	"github.com/roach88/flowrl/internal/engine"
	"github.com/roach88/flowrl/internal/testutil"
)

func TestParseEvents(t *testing.T) {
	events, err := parseEvents([]string{"click:ui:home", "open:app:", "tap:ui:a:b"})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, eventArg{action: "click", category: "ui", screen: "home"}, events[0])
	assert.Equal(t, eventArg{action: "open", category: "app", screen: ""}, events[1])
	assert.Equal(t, "a:b", events[2].screen, "screen keeps remaining colons")

	for _, bad := range []string{"click", "click:ui", ":ui:home"} {
		_, err := parseEvents([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestRunInvalidEvent(t *testing.T) {
	clearEnv(t)
	path := seedDatabase(t, nil)

	out, err := execute(t, testOptions(), "run", "--db", path, "--event", "click")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "action:category:screen")
}

func TestRunDeliversEventsUntilCancelled(t *testing.T) {
	clearEnv(t)
	svc := testutil.NewFakeService(t, "k1")
	svc.SetConfiguration("", btnColor(time.Now()))
	t.Setenv(config.EnvBaseURL, svc.URL())
	t.Setenv(config.EnvAPIKey, "k1")
	path := seedDatabase(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := testOptions()
	opts.engineOptions = append(opts.engineOptions, engine.WithFlushInterval(20*time.Millisecond))

	errCh := make(chan error, 1)
	go func() {
		_, err := executeContext(t, ctx, opts, "run", "--db", path,
			"--event", "click:ui:home", "--event", "open:app:launch")
		errCh <- err
	}()

	require.Eventually(t, func() bool {
		return len(svc.Events()) == 2
	}, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}

	assert.Equal(t, []string{deviceID}, svc.ConfigRequests())
	events := svc.Events()
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, deviceID, ev.UserID)
		require.Len(t, ev.Configuration, 1)
		assert.Equal(t, "btn_color", ev.Configuration[0].Name)
	}
}

func TestRunWithoutServiceKeepsBacklog(t *testing.T) {
	clearEnv(t)
	svc := testutil.NewFakeService(t, "k1")
	svc.FailWith(503)
	t.Setenv(config.EnvBaseURL, svc.URL())
	t.Setenv(config.EnvAPIKey, "k1")
	path := seedDatabase(t, nil, event(1, "queued"))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, err := executeContext(t, ctx, testOptions(), "run", "--db", path)
	require.NoError(t, err, "delivery failures do not fail the command")

	out, err := execute(t, testOptions(), "status", "--db", path, "--format", "json")
	require.NoError(t, err)
	var status StatusResult
	decodeData(t, out, &status)
	assert.Equal(t, 1, status.Pending)
	assert.False(t, status.Cached)
}
