package harness

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flowrl/internal/model"
	"github.com/roach88/flowrl/internal/testutil"
)

func TestRun_ScenariosMatchGolden(t *testing.T) {
	entries, err := os.ReadDir(filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)

	for _, entry := range entries {
		name := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", entry.Name()))
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "assertion failures:\n%s", strings.Join(result.Errors, "\n"))
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "service_outage.yaml"))
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	assert.Equal(t, first.Trace, second.Trace)
}

func TestRun_FailedAssertionsAreReported(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: wrong_expectations
description: "every assertion is wrong"
served:
  experiments:
    - {name: btn_color, selected: blue, variants: [blue, red]}
flow:
  - configure: {api_key: k1}
  - log: {action: click, category: ui, screen: home}
assertions:
  - {type: fetch_count, count: 3}
  - {type: delivered, action: click}
  - {type: pending, count: 0}
  - {type: variant, test: btn_color, default: red, expect: red}
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "Expected: 3")
	assert.Contains(t, result.Errors[0], "Actual: 1")
	assert.Contains(t, result.Errors[1], "not found in trace")
	assert.Contains(t, result.Errors[3], "btn_color = blue")
	assert.Equal(t, 1, result.Pending)
}

func TestRun_UnreachableServiceStillRuns(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: no_config_served
description: "the service has nothing for this user"
flow:
  - configure: {api_key: k1}
assertions:
  - {type: fetch_count, count: 1}
  - {type: variant, test: btn_color, default: red, expect: red}
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
	require.Len(t, result.Trace, 2)
	assert.Equal(t, "INVALID_RESPONSE 404", result.Trace[1].Outcome)
}

func TestRecorder_SequencesCalls(t *testing.T) {
	fake := testutil.NewFakeRemote(nil)
	rec := newRecorder(fake)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	rec.step("first")
	_, err := rec.FetchConfiguration(ctx, "u1")
	require.Error(t, err)
	rec.SetAPIKey("k1")
	require.NoError(t, rec.SubmitEvent(ctx, model.Event{UserID: "u1", ActionName: "click"}))

	events := rec.events()
	require.Len(t, events, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{events[0].Seq, events[1].Seq, events[2].Seq})
	assert.Equal(t, "MISSING_CREDENTIAL", events[1].Outcome)
	assert.Equal(t, "ok", events[2].Outcome)
	assert.Equal(t, "k1", fake.APIKey())
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", outcome(nil))
	assert.Equal(t, "INVALID_RESPONSE 503", outcome(model.NewStatusError(503, "down")))
	assert.Equal(t, "NETWORK_ERROR", outcome(model.WrapError(model.CodeNetwork, "dial", testutil.ErrInjected)))
	assert.Equal(t, "error", outcome(testutil.ErrInjected))
}
