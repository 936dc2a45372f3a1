package variant

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flowrl/internal/cache"
	"github.com/roach88/flowrl/internal/model"
	"github.com/roach88/flowrl/internal/store"
	"github.com/roach88/flowrl/internal/testutil"
)

type fixedIdentity string

func (f fixedIdentity) Resolve(context.Context) string { return string(f) }

func sample() *model.Configuration {
	return model.NewConfiguration(time.UnixMilli(1700000000000), "", "",
		model.NewChoice("btn_color", "blue", "blue", "red"),
		model.NewChoice("headline", "", "short", "long"),
		model.NewChoice("empty", ""),
	)
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		cfg  *model.Configuration
		test string
		want string
	}{
		{"selected", sample(), "btn_color", "blue"},
		{"no selection", sample(), "headline", "default"},
		{"unknown test", sample(), "missing", "default"},
		{"nil configuration", nil, "btn_color", "default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.cfg, tt.test, "default"))
		})
	}
}

func TestResolveWithFallback(t *testing.T) {
	tests := []struct {
		name string
		cfg  *model.Configuration
		test string
		want string
	}{
		{"selected", sample(), "btn_color", "blue"},
		{"first variant", sample(), "headline", "short"},
		{"no variants", sample(), "empty", "default"},
		{"unknown test", sample(), "missing", "default"},
		{"nil configuration", nil, "headline", "default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveWithFallback(tt.cfg, tt.test, "default"))
		})
	}
}

func newManager(t *testing.T, served *model.Configuration) (*cache.Manager, *testutil.FakeRemote) {
	t.Helper()
	r := testutil.NewFakeRemote(served)
	r.SetAPIKey("k1")
	m := cache.New(store.NewMemory(), r, fixedIdentity("user-1"),
		cache.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	return m, r
}

func TestPicker_ReadsCurrent(t *testing.T) {
	m, _ := newManager(t, sample())
	p := NewPicker(m)

	assert.Equal(t, "fallback", p.Resolve("btn_color", "fallback"))

	require.NoError(t, m.Refresh(context.Background()))
	assert.Equal(t, "blue", p.Resolve("btn_color", "fallback"))
	assert.Equal(t, "short", p.ResolveWithFallback("headline", "fallback"))
}

func TestPicker_Watch(t *testing.T) {
	m, r := newManager(t, sample())
	p := NewPicker(m)

	var seen []string
	sub := p.Watch("btn_color", "grey", func(v string) { seen = append(seen, v) })
	assert.Equal(t, []string{"grey"}, seen, "current value delivered immediately")

	require.NoError(t, m.Refresh(context.Background()))
	require.NoError(t, m.Refresh(context.Background()))
	assert.Equal(t, []string{"grey", "blue"}, seen, "unchanged value not redelivered")

	r.SetConfiguration(model.NewConfiguration(time.UnixMilli(1700000000001), "", "",
		model.NewChoice("btn_color", "red", "blue", "red")))
	require.NoError(t, m.Refresh(context.Background()))
	assert.Equal(t, []string{"grey", "blue", "red"}, seen)

	sub.Cancel()
	r.SetConfiguration(sample())
	require.NoError(t, m.Refresh(context.Background()))
	assert.Len(t, seen, 3)
}
