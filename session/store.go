package session

import (
	"sync"

	"github.com/google/uuid"
)

// Store holds the authoritative session state and applies actions to it
// through a single reducer. Snapshots are value copies, so callers can never
// mutate the store's state from the outside.
type Store struct {
	mu          sync.RWMutex
	current     Session
	subscribers map[string]func(Session)
}

// NewStore creates an empty, logged-out session store.
func NewStore() *Store {
	return &Store{
		subscribers: make(map[string]func(Session)),
	}
}

// State returns a snapshot of the current session.
func (s *Store) State() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.clone()
}

// Dispatch applies an action and notifies subscribers with the new snapshot.
// Subscribers are invoked outside the lock so they may call back into the
// store.
func (s *Store) Dispatch(action Action) {
	s.mu.Lock()
	s.current = reduce(s.current, action)
	snapshot := s.current.clone()
	listeners := make([]func(Session), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
}

// Subscribe registers fn to be called after every dispatch. The returned
// function removes the subscription and is safe to call more than once.
func (s *Store) Subscribe(fn func(Session)) (unsubscribe func()) {
	id := uuid.New().String()
	s.mu.Lock()
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// reduce produces the next session for an action. It is the only place
// session state changes, which keeps the authenticated-implies-credentials
// invariant in one spot.
func reduce(s Session, action Action) Session {
	switch a := action.(type) {
	case LoginStart:
		s.IsLoading = true
		s.Error = ""

	case LoginSuccess:
		s.User = a.User.Clone()
		s.AccessToken = a.AccessToken
		s.RefreshToken = a.RefreshToken
		s.IsAuthenticated = s.User != nil && s.AccessToken != ""
		s.IsLoading = false
		s.Error = ""

	case LoginFailure:
		s.User = nil
		s.AccessToken = ""
		s.RefreshToken = ""
		s.IsAuthenticated = false
		s.IsLoading = false
		s.Error = a.Message

	case Logout:
		s = Session{}

	case RenewalSuccess:
		s.AccessToken = a.AccessToken
		if a.RefreshToken != "" {
			s.RefreshToken = a.RefreshToken
		}

	case SetLoading:
		s.IsLoading = a.Loading

	case ClearError:
		s.Error = ""

	case UpdateUser:
		if s.User == nil {
			return s
		}
		s.User = s.User.Merge(a.Partial)
	}
	return s
}
