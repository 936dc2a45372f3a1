package cache

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flowrl/internal/model"
	"github.com/roach88/flowrl/internal/store"
	"github.com/roach88/flowrl/internal/testutil"
)

var t0 = time.UnixMilli(1700000000000)

type fixedIdentity string

func (f fixedIdentity) Resolve(context.Context) string { return string(f) }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleConfig(generatedAt time.Time, selected string) *model.Configuration {
	return model.NewConfiguration(generatedAt, "user-1", "ab",
		model.NewChoice("btn_color", selected, "blue", "red"))
}

type fixture struct {
	store  *testutil.FlakyStore
	remote *testutil.FakeRemote
	clock  *testutil.FakeClock
	mgr    *Manager
}

func newFixture(t *testing.T, served *model.Configuration) *fixture {
	t.Helper()
	f := &fixture{
		store:  testutil.NewFlakyStore(nil),
		remote: testutil.NewFakeRemote(served),
		clock:  testutil.NewFakeClock(t0),
	}
	f.remote.SetAPIKey("k1")
	f.mgr = New(f.store, f.remote, fixedIdentity("user-1"),
		WithClock(f.clock), WithLogger(quietLogger()))
	return f
}

func (f *fixture) persist(t *testing.T, cfg *model.Configuration) {
	t.Helper()
	require.NoError(t, store.PutJSON(context.Background(), f.store, store.KeyConfiguration, cfg))
}

func TestRequire_Empty(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.mgr.Require()
	require.Error(t, err)
	assert.True(t, model.HasCode(err, model.CodeConfigurationUnavailable))
	assert.Nil(t, f.mgr.Current())
}

func TestLoad_FreshCacheSkipsNetwork(t *testing.T) {
	f := newFixture(t, sampleConfig(t0, "red"))
	f.persist(t, sampleConfig(t0.Add(-time.Hour), "blue"))

	var notified []*model.Configuration
	f.mgr.Subscribe(func(c *model.Configuration) { notified = append(notified, c) })

	require.NoError(t, f.mgr.Load(context.Background()))

	assert.Equal(t, 0, f.remote.FetchCalls())
	ch, ok := f.mgr.Current().Choice("btn_color")
	require.True(t, ok)
	v, _ := ch.SelectedVariant()
	assert.Equal(t, "blue", v)
	require.Len(t, notified, 1, "adoption from cache is announced")
}

func TestLoad_StaleCacheFetchesOnce(t *testing.T) {
	served := sampleConfig(t0, "red")
	f := newFixture(t, served)
	f.persist(t, sampleConfig(t0.Add(-25*time.Hour), "blue"))

	require.NoError(t, f.mgr.Load(context.Background()))

	assert.Equal(t, 1, f.remote.FetchCalls())
	assert.Equal(t, []string{"user-1"}, f.remote.FetchUsers())
	assert.Same(t, served, f.mgr.Current())
	assert.Equal(t, 2, f.store.Sets(store.KeyConfiguration), "seeded once, refreshed once")
}

func TestLoad_ExactlyAtExpiryIsStale(t *testing.T) {
	f := newFixture(t, sampleConfig(t0, "red"))
	f.persist(t, sampleConfig(t0.Add(-model.ValidityWindow), "blue"))

	require.NoError(t, f.mgr.Load(context.Background()))
	assert.Equal(t, 1, f.remote.FetchCalls())
}

func TestLoad_NothingPersisted(t *testing.T) {
	f := newFixture(t, sampleConfig(t0, "red"))

	require.NoError(t, f.mgr.Load(context.Background()))
	assert.Equal(t, 1, f.remote.FetchCalls())

	cached, found, err := f.mgr.Cached(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, cached.GeneratedAt().Equal(t0))
}

func TestLoad_MalformedCacheRefreshes(t *testing.T) {
	f := newFixture(t, sampleConfig(t0, "red"))
	require.NoError(t, f.store.Set(context.Background(), store.KeyConfiguration, []byte("garbage")))

	require.NoError(t, f.mgr.Load(context.Background()))
	assert.Equal(t, 1, f.remote.FetchCalls())
	assert.NotNil(t, f.mgr.Current())
}

func TestRefresh_FailureKeepsPrevious(t *testing.T) {
	f := newFixture(t, sampleConfig(t0, "blue"))
	require.NoError(t, f.mgr.Refresh(context.Background()))
	before := f.mgr.Current()

	var calls int
	f.mgr.Subscribe(func(*model.Configuration) { calls++ })

	f.remote.FailFetch(model.NewStatusError(500, "boom"))
	err := f.mgr.Refresh(context.Background())
	require.Error(t, err)

	assert.Same(t, before, f.mgr.Current())
	assert.Zero(t, calls, "no notification on failure")
}

func TestRefresh_MissingCredential(t *testing.T) {
	f := newFixture(t, sampleConfig(t0, "blue"))
	f.remote.SetAPIKey("")

	err := f.mgr.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, model.IsMissingCredential(err))
	assert.Nil(t, f.mgr.Current())
}

func TestRefresh_PersistFailureStillAdopts(t *testing.T) {
	f := newFixture(t, sampleConfig(t0, "blue"))
	f.store.FailSets(true)

	var got *model.Configuration
	f.mgr.Subscribe(func(c *model.Configuration) { got = c })

	require.NoError(t, f.mgr.Refresh(context.Background()))
	assert.NotNil(t, f.mgr.Current())
	assert.Same(t, f.mgr.Current(), got)
}

func TestSubscribe_Cancel(t *testing.T) {
	f := newFixture(t, sampleConfig(t0, "blue"))

	var a, b int
	subA := f.mgr.Subscribe(func(*model.Configuration) { a++ })
	f.mgr.Subscribe(func(*model.Configuration) { b++ })

	require.NoError(t, f.mgr.Refresh(context.Background()))
	subA.Cancel()
	subA.Cancel()
	require.NoError(t, f.mgr.Refresh(context.Background()))

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
	assert.Equal(t, 1, f.mgr.subs.count())
}

func TestSubscribe_CancelFromCallback(t *testing.T) {
	f := newFixture(t, sampleConfig(t0, "blue"))

	var sub *Subscription
	var calls int
	sub = f.mgr.Subscribe(func(*model.Configuration) {
		calls++
		sub.Cancel()
	})

	require.NoError(t, f.mgr.Refresh(context.Background()))
	require.NoError(t, f.mgr.Refresh(context.Background()))
	assert.Equal(t, 1, calls)
}

func TestConcurrentReads(t *testing.T) {
	f := newFixture(t, sampleConfig(t0, "blue"))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = f.mgr.Refresh(context.Background())
		}()
		go func() {
			defer wg.Done()
			_ = f.mgr.Current()
		}()
	}
	wg.Wait()

	assert.NotNil(t, f.mgr.Current())
	assert.Equal(t, 10, f.remote.FetchCalls())
}

func TestAnnounce_SkipsSupersededAdoption(t *testing.T) {
	f := newFixture(t, nil)
	older := sampleConfig(t0.Add(-time.Hour), "red")
	newer := sampleConfig(t0, "blue")

	var notified []*model.Configuration
	f.mgr.Subscribe(func(c *model.Configuration) { notified = append(notified, c) })

	f.mgr.announce(2, newer)
	f.mgr.announce(1, older)

	require.Len(t, notified, 1)
	assert.Same(t, newer, notified[0])
}

// sequenceFetcher returns a distinct configuration on every call.
type sequenceFetcher struct {
	mu sync.Mutex
	n  int
}

func (s *sequenceFetcher) FetchConfiguration(context.Context, string) (*model.Configuration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return sampleConfig(t0.Add(time.Duration(s.n)*time.Second), "blue"), nil
}

func TestConcurrentRefresh_LastAnnouncementIsCurrent(t *testing.T) {
	mgr := New(store.NewMemory(), &sequenceFetcher{}, fixedIdentity("user-1"),
		WithLogger(quietLogger()))

	var mu sync.Mutex
	var last *model.Configuration
	mgr.Subscribe(func(c *model.Configuration) {
		mu.Lock()
		last = c
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = mgr.Refresh(context.Background())
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Same(t, mgr.Current(), last)
}

func TestRestore_NeverFetches(t *testing.T) {
	t.Run("fresh", func(t *testing.T) {
		f := newFixture(t, sampleConfig(t0, "red"))
		f.persist(t, sampleConfig(t0.Add(-time.Hour), "blue"))

		assert.True(t, f.mgr.Restore(context.Background()))
		assert.NotNil(t, f.mgr.Current())
		assert.Equal(t, 0, f.remote.FetchCalls())
	})

	t.Run("stale", func(t *testing.T) {
		f := newFixture(t, sampleConfig(t0, "red"))
		f.persist(t, sampleConfig(t0.Add(-25*time.Hour), "blue"))

		assert.False(t, f.mgr.Restore(context.Background()))
		assert.Nil(t, f.mgr.Current())
		assert.Equal(t, 0, f.remote.FetchCalls())
	})

	t.Run("absent", func(t *testing.T) {
		f := newFixture(t, sampleConfig(t0, "red"))

		assert.False(t, f.mgr.Restore(context.Background()))
		assert.Equal(t, 0, f.remote.FetchCalls())
	})
}
