package store

import (
	"context"
	"sync"
	"time"
)

type subscriber struct {
	id int
	fn func(State)
}

// Store owns the State snapshot. Dispatches are serialized; eager
// subscribers run synchronously inside the dispatch, lazy subscribers on
// a fixed digest cadence.
type Store struct {
	mu          sync.Mutex
	state       State
	dispatching bool
	nextID      int
	subscribers []subscriber
	lazy        []subscriber
	digestEvery time.Duration
}

// New builds a store starting from initial. digestEvery controls the
// lazy-subscriber cadence; zero picks the default of one animation
// frame (16ms).
func New(initial State, digestEvery time.Duration) *Store {
	if digestEvery <= 0 {
		digestEvery = 16 * time.Millisecond
	}
	return &Store{state: initial, digestEvery: digestEvery}
}

// GetState returns the current snapshot.
func (s *Store) GetState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch runs fn on a shallow copy of the current snapshot and swaps
// it in, then notifies eager subscribers synchronously with the new
// snapshot. Dispatches must not overlap: the session drives them from a
// single goroutine, and dispatching from inside a mutator or subscriber
// panics because two mutations would race for the same snapshot.
func (s *Store) Dispatch(fn func(*State)) {
	s.mu.Lock()
	if s.dispatching {
		s.mu.Unlock()
		panic("store: dispatch during dispatch")
	}
	s.dispatching = true
	next := s.state
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.dispatching = false
		s.mu.Unlock()
	}()

	fn(&next)

	s.mu.Lock()
	s.state = next
	subs := make([]subscriber, len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(next)
	}
}

// Subscribe registers an eager subscriber and immediately invokes it
// with the current snapshot. Returns an unsubscribe func.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subscribers = append(s.subscribers, subscriber{id: id, fn: fn})
	cur := s.state
	s.mu.Unlock()

	fn(cur)

	return func() { s.remove(&s.subscribers, id) }
}

// Connect projects the snapshot through mapFn and invokes fn only when
// the projection changes. P must be comparable, which is what makes the
// short-circuit cheap.
func Connect[P comparable](s *Store, mapFn func(State) P, fn func(P)) func() {
	var last P
	var seeded bool
	return s.Subscribe(func(st State) {
		next := mapFn(st)
		if !seeded || next != last {
			fn(next)
		}
		last = next
		seeded = true
	})
}

// LazyConnect is Connect on the digest cadence instead of per-dispatch.
// Use it for derived values that are expensive to project.
func LazyConnect[P comparable](s *Store, mapFn func(State) P, fn func(P)) func() {
	var last P
	var seeded bool
	sub := func(st State) {
		next := mapFn(st)
		if !seeded || next != last {
			fn(next)
		}
		last = next
		seeded = true
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.lazy = append(s.lazy, subscriber{id: id, fn: sub})
	cur := s.state
	s.mu.Unlock()

	sub(cur)

	return func() { s.remove(&s.lazy, id) }
}

// Run drives the lazy digest until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(s.digestEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Digest()
		}
	}
}

// Digest notifies lazy subscribers with the current snapshot. Exposed
// for tests; Run calls it on a ticker.
func (s *Store) Digest() {
	s.mu.Lock()
	cur := s.state
	lazy := make([]subscriber, len(s.lazy))
	copy(lazy, s.lazy)
	s.mu.Unlock()

	for _, sub := range lazy {
		sub.fn(cur)
	}
}

// Dispose drops all subscribers.
func (s *Store) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = nil
	s.lazy = nil
}

func (s *Store) remove(list *[]subscriber, id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range *list {
		if sub.id == id {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return
		}
	}
}
