package cache

import (
	"sync"

	"github.com/roach88/flowrl/internal/model"
)

// Subscription is a handle returned by Subscribe.
type Subscription struct {
	id    uint64
	owner *subscribers
	once  sync.Once
}

// Cancel stops further notifications. Safe to call more than once.
func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.owner.remove(s.id)
	})
}

type subscriber struct {
	id uint64
	fn func(*model.Configuration)
}

// subscribers is a registration-ordered callback list.
type subscribers struct {
	mu     sync.Mutex
	nextID uint64
	list   []subscriber
}

func (s *subscribers) init() {
	s.list = nil
	s.nextID = 1
}

func (s *subscribers) add(fn func(*model.Configuration)) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.list = append(s.list, subscriber{id: id, fn: fn})
	return &Subscription{id: id, owner: s}
}

func (s *subscribers) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.list {
		if sub.id == id {
			s.list = append(s.list[:i:i], s.list[i+1:]...)
			return
		}
	}
}

// notify calls every subscriber with cfg. The list is snapshotted so a
// callback may Subscribe or Cancel without deadlocking.
func (s *subscribers) notify(cfg *model.Configuration) {
	s.mu.Lock()
	snapshot := make([]subscriber, len(s.list))
	copy(snapshot, s.list)
	s.mu.Unlock()

	for _, sub := range snapshot {
		sub.fn(cfg)
	}
}

func (s *subscribers) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.list)
}
