package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, found, err := m.Get(ctx, KeyDeviceID)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, m.Set(ctx, KeyDeviceID, []byte("abc")))
	got, found, err := m.Get(ctx, KeyDeviceID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("abc"), got)
	assert.Equal(t, 1, m.Keys())

	require.NoError(t, m.Delete(ctx, KeyDeviceID))
	_, found, _ = m.Get(ctx, KeyDeviceID)
	assert.False(t, found)
	assert.Equal(t, 0, m.Keys())
}

func TestMemory_CopiesValues(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	in := []byte("value")
	require.NoError(t, m.Set(ctx, "k", in))
	in[0] = 'X'

	out, _, _ := m.Get(ctx, "k")
	assert.Equal(t, "value", string(out))

	out[0] = 'Y'
	again, _, _ := m.Get(ctx, "k")
	assert.Equal(t, "value", string(again))
}

func TestMemory_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Set(ctx, "k", []byte("v"))
			_, _, _ = m.Get(ctx, "k")
		}()
	}
	wg.Wait()

	got, found, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v", string(got))
}
