package cli

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flowrl/internal/config"
	"github.com/roach88/flowrl/internal/engine"
	"github.com/roach88/flowrl/internal/model"
	"github.com/roach88/flowrl/internal/store"
	"github.com/roach88/flowrl/internal/testutil"
)

func TestLogQueuesWithoutNetwork(t *testing.T) {
	clearEnv(t)
	// Unroutable: any request would fail the command.
	t.Setenv(config.EnvBaseURL, "http://127.0.0.1:1/")
	path := seedDatabase(t, btnColor(t0))

	out, err := execute(t, testOptions(), "log", "click", "ui", "home", "--db", path, "--format", "json")
	require.NoError(t, err)

	var result LogResult
	decodeData(t, out, &result)
	assert.Equal(t, LogResult{Action: "click", Category: "ui", Screen: "home", UserID: deviceID, Pending: 1}, result)

	out, err = execute(t, testOptions(), "log", "scroll", "ui", "home", "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "queued ui/scroll on home")
	assert.Contains(t, out, "(2 pending)")
}

func TestLogUserOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv(config.EnvUserID, "alice")
	path := seedDatabase(t, nil)

	out, err := execute(t, testOptions(), "log", "click", "ui", "home", "--db", path, "--format", "json")
	require.NoError(t, err)

	var result LogResult
	decodeData(t, out, &result)
	assert.Equal(t, "alice", result.UserID)
}

func TestLogRequiresThreeArgs(t *testing.T) {
	clearEnv(t)
	path := seedDatabase(t, nil)

	_, err := execute(t, testOptions(), "log", "click", "ui", "--db", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 3 arg(s)")
}

// persistedEvents reads the backlog the command left in the database.
func persistedEvents(t *testing.T, path string) []model.Event {
	t.Helper()
	s, err := store.Open(path)
	require.NoError(t, err)
	defer s.Close()

	var events []model.Event
	_, err = store.GetJSON(context.Background(), s, store.KeyEvents, &events)
	require.NoError(t, err)
	return events
}

func TestLogAttachesCachedAssignments(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want []model.ExperimentContext
	}{
		{"fresh cache", t0.Add(time.Hour), []model.ExperimentContext{{Name: "btn_color", Value: "blue"}}},
		{"stale cache", t0.Add(25 * time.Hour), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(config.EnvBaseURL, "http://127.0.0.1:1/")
			path := seedDatabase(t, btnColor(t0))

			opts := testOptions()
			opts.engineOptions = append(opts.engineOptions, engine.WithClock(testutil.NewFakeClock(tt.now)))
			_, err := execute(t, opts, "log", "click", "ui", "home", "--db", path)
			require.NoError(t, err)

			events := persistedEvents(t, path)
			require.Len(t, events, 1)
			if tt.want == nil {
				assert.Empty(t, events[0].Configuration)
			} else {
				assert.Equal(t, tt.want, events[0].Configuration)
			}
			assert.Equal(t, tt.now.UnixMilli(), events[0].Timestamp)
		})
	}
}
