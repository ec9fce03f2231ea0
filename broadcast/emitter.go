// Package broadcast carries the process-wide logout signal. It decouples the
// request pipeline, which discovers unrecoverable auth failures deep inside a
// network call, from the session owner that has to react to them.
package broadcast

import (
	"sync"

	"github.com/google/uuid"
)

// Reason identifies why a logout was broadcast.
type Reason string

const (
	// ReasonRenewalFailed means the token renewal exchange failed and the
	// session cannot be recovered.
	ReasonRenewalFailed Reason = "renewal_failed"

	// ReasonCredentialMissing means a renewal was needed but no refresh
	// token was available.
	ReasonCredentialMissing Reason = "credential_missing"

	// ReasonUserRequested means the user explicitly signed out.
	ReasonUserRequested Reason = "user_requested"
)

// Event is the single event type the emitter carries.
type Event struct {
	Reason Reason
}

// LogoutEmitter is a typed publish/subscribe channel for logout events. Any
// component may publish, any component may subscribe, and neither needs a
// reference to the other.
type LogoutEmitter struct {
	mu          sync.RWMutex
	subscribers map[string]func(Event)
}

// NewLogoutEmitter creates an emitter with no subscribers.
func NewLogoutEmitter() *LogoutEmitter {
	return &LogoutEmitter{
		subscribers: make(map[string]func(Event)),
	}
}

// Subscribe registers fn for every subsequent publish. The returned function
// removes the subscription; after it returns fn is never called again.
func (e *LogoutEmitter) Subscribe(fn func(Event)) (unsubscribe func()) {
	id := uuid.New().String()
	e.mu.Lock()
	e.subscribers[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.subscribers, id)
		e.mu.Unlock()
	}
}

// Publish delivers the event synchronously to every current subscriber.
func (e *LogoutEmitter) Publish(event Event) {
	e.mu.RLock()
	listeners := make([]func(Event), 0, len(e.subscribers))
	for _, fn := range e.subscribers {
		listeners = append(listeners, fn)
	}
	e.mu.RUnlock()

	for _, fn := range listeners {
		fn(event)
	}
}
