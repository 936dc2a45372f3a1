package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/flowrl/internal/model"
	"github.com/roach88/flowrl/internal/store"
)

// ErrInjected is the cause carried by every injected storage failure.
var ErrInjected = errors.New("injected failure")

// FlakyStore wraps a store.Store and fails selected operations on demand.
// It also counts writes so tests can check persist-after-mutate behaviour.
//
// Thread-safety: All methods are safe for concurrent use.
type FlakyStore struct {
	inner store.Store

	mu         sync.Mutex
	failGet    bool
	failSet    bool
	failDelete bool
	sets       map[string]int
	deletes    map[string]int
}

// NewFlakyStore wraps inner. A nil inner uses a fresh store.Memory.
func NewFlakyStore(inner store.Store) *FlakyStore {
	if inner == nil {
		inner = store.NewMemory()
	}
	return &FlakyStore{
		inner:   inner,
		sets:    make(map[string]int),
		deletes: make(map[string]int),
	}
}

// FailGets toggles failure of Get.
func (s *FlakyStore) FailGets(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failGet = fail
}

// FailSets toggles failure of Set.
func (s *FlakyStore) FailSets(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSet = fail
}

// FailDeletes toggles failure of Delete.
func (s *FlakyStore) FailDeletes(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failDelete = fail
}

// Get implements store.Store.
func (s *FlakyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	fail := s.failGet
	s.mu.Unlock()
	if fail {
		return nil, false, model.WrapError(model.CodeStorage, "get "+key, ErrInjected)
	}
	return s.inner.Get(ctx, key)
}

// Set implements store.Store.
func (s *FlakyStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	fail := s.failSet
	s.sets[key]++
	s.mu.Unlock()
	if fail {
		return model.WrapError(model.CodeStorage, "set "+key, ErrInjected)
	}
	return s.inner.Set(ctx, key, value)
}

// Delete implements store.Store.
func (s *FlakyStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	fail := s.failDelete
	s.deletes[key]++
	s.mu.Unlock()
	if fail {
		return model.WrapError(model.CodeStorage, "delete "+key, ErrInjected)
	}
	return s.inner.Delete(ctx, key)
}

// Sets returns how many times Set was called for key, including failures.
func (s *FlakyStore) Sets(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets[key]
}

// Deletes returns how many times Delete was called for key, including failures.
func (s *FlakyStore) Deletes(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deletes[key]
}
