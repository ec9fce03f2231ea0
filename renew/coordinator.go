// Package renew coordinates access-token renewal so that any number of
// concurrent callers discovering an expired credential produce exactly one
// renewal exchange.
package renew

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-auth-client/broadcast"
	"github.com/jrsteele09/go-auth-client/credstore"
	"github.com/jrsteele09/go-auth-client/identity"
	"github.com/jrsteele09/go-auth-client/internal/utils"
	"github.com/jrsteele09/go-auth-client/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrNoRefreshToken is returned when a renewal is needed but no refresh
// token is available. The session is torn down before it is returned.
var ErrNoRefreshToken = errors.New("no refresh token available")

// RenewClient performs the renewal exchange against the identity server.
type RenewClient interface {
	Renew(ctx context.Context, refreshToken string) (*identity.TokenPair, error)
}

// outcome is what every waiter of one renewal cycle receives.
type outcome struct {
	accessToken string
	err         error
}

// Coordinator guarantees at most one in-flight renewal process-wide. The
// first caller to find the gate open performs the exchange; everyone who
// arrives while it is closed waits on a queue that is settled in FIFO order
// when the exchange finishes.
type Coordinator struct {
	client RenewClient
	creds  credstore.Repo
	state  *session.Store
	events *broadcast.LogoutEmitter

	mu       sync.Mutex
	renewing bool
	waiters  []chan outcome
}

// NewCoordinator wires a coordinator to its collaborators.
func NewCoordinator(client RenewClient, creds credstore.Repo, state *session.Store, events *broadcast.LogoutEmitter) (*Coordinator, error) {
	if client == nil {
		return nil, errors.New("[NewCoordinator] renew client is required")
	}
	if creds == nil {
		return nil, errors.New("[NewCoordinator] credential repo is required")
	}
	if state == nil {
		return nil, errors.New("[NewCoordinator] session store is required")
	}
	if events == nil {
		return nil, errors.New("[NewCoordinator] logout emitter is required")
	}
	return &Coordinator{
		client: client,
		creds:  creds,
		state:  state,
		events: events,
	}, nil
}

// EnsureFreshToken returns a freshly renewed access token. Concurrent calls
// share a single renewal exchange: all of them resolve with the same token
// or reject with the same error. A started exchange always runs to
// completion; callers cannot cancel it.
func (c *Coordinator) EnsureFreshToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.renewing {
		ch := make(chan outcome, 1)
		c.waiters = append(c.waiters, ch)
		c.mu.Unlock()
		o := <-ch
		return o.accessToken, o.err
	}

	refreshToken := c.currentRefreshToken()
	if refreshToken == "" {
		// The fast failure still owns the gate: callers racing in while
		// the teardown runs queue up behind it and share its single
		// broadcast instead of each publishing their own.
		c.renewing = true
		c.mu.Unlock()
		c.teardown(broadcast.ReasonCredentialMissing)
		c.settle(outcome{err: ErrNoRefreshToken})
		return "", ErrNoRefreshToken
	}

	c.renewing = true
	c.mu.Unlock()

	// The exchange deliberately ignores the caller's context: once a
	// renewal starts it must settle every queued waiter, so it cannot be
	// abandoned by whichever caller happened to trigger it.
	pair, err := c.client.Renew(context.Background(), refreshToken)
	if err != nil {
		log.Err(err).Msg("[Coordinator.EnsureFreshToken] renewal exchange failed")
		renewErr := errors.Wrap(err, "[Coordinator.EnsureFreshToken] renewal failed")
		c.teardown(broadcast.ReasonRenewalFailed)
		c.settle(outcome{err: renewErr})
		return "", renewErr
	}

	update := credstore.Update{AccessToken: utils.Ptr(pair.AccessToken)}
	if pair.RefreshToken != "" {
		update.RefreshToken = utils.Ptr(pair.RefreshToken)
	}
	if err := c.creds.Save(update); err != nil {
		log.Err(err).Msg("[Coordinator.EnsureFreshToken] failed to persist renewed credentials")
	}
	c.state.Dispatch(session.RenewalSuccess{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})

	c.settle(outcome{accessToken: pair.AccessToken})
	return pair.AccessToken, nil
}

// currentRefreshToken prefers the live session, falling back to the
// persisted store for the pre-bootstrap window. Callers hold c.mu.
func (c *Coordinator) currentRefreshToken() string {
	if token := c.state.State().RefreshToken; token != "" {
		return token
	}
	snapshot, err := c.creds.Load()
	if err != nil {
		log.Err(err).Msg("[Coordinator.currentRefreshToken] load persisted credentials")
		return ""
	}
	return snapshot.RefreshToken
}

// settle closes the renewal cycle: every queued waiter receives the same
// outcome, in the order it arrived, and the gate reopens with an empty
// queue. No waiter is ever settled twice.
func (c *Coordinator) settle(o outcome) {
	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.renewing = false
	c.mu.Unlock()

	for _, ch := range waiters {
		ch <- o
	}
}

// teardown clears local and persisted credentials and broadcasts a logout.
func (c *Coordinator) teardown(reason broadcast.Reason) {
	if err := c.creds.Clear(); err != nil {
		log.Err(err).Msg("[Coordinator.teardown] failed to clear persisted credentials")
	}
	c.state.Dispatch(session.Logout{})
	c.events.Publish(broadcast.Event{Reason: reason})
}
