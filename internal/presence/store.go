package presence

import "sync"

// Store keeps the latest State per user. Writes replace the previous value
// wholesale and are pushed to subscribers.
type Store struct {
	// setMu orders writes and their notifications, so subscribers see
	// updates in write order.
	setMu sync.Mutex

	mu     sync.RWMutex
	states map[string]State
	subs   map[int]func(State)
	order  []int
	nextID int
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		states: make(map[string]State),
		subs:   make(map[int]func(State)),
	}
}

// Set records st as the current presence of st.UserID and notifies subscribers
// in subscription order. Concurrent Sets are serialized through the
// notification, so the last update a subscriber sees is the stored one.
// Callbacks may read the store but must not call Set.
func (s *Store) Set(st State) {
	s.setMu.Lock()
	defer s.setMu.Unlock()

	s.mu.Lock()
	s.states[st.UserID] = st
	fns := make([]func(State), 0, len(s.order))
	for _, id := range s.order {
		fns = append(fns, s.subs[id])
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}

// Get returns the current presence for userID.
func (s *Store) Get(userID string) (State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[userID]
	return st, ok
}

// All returns a copy of every known presence.
func (s *Store) All() []State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]State, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, st)
	}
	return out
}

// Subscribe registers fn to be called on every Set. The returned func removes
// the subscription; calling it more than once is harmless.
func (s *Store) Subscribe(fn func(State)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.order = append(s.order, id)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[id]; !ok {
			return
		}
		delete(s.subs, id)
		for i, v := range s.order {
			if v == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
}
