// Package auth owns the session lifecycle: login, logout, bootstrap, and
// profile updates. It keeps the session store and the credential store in
// agreement and reacts to process-wide logout broadcasts.
package auth

import (
	"context"
	"time"

	"github.com/jrsteele09/go-auth-client/broadcast"
	"github.com/jrsteele09/go-auth-client/credstore"
	"github.com/jrsteele09/go-auth-client/identity"
	"github.com/jrsteele09/go-auth-client/internal/utils"
	"github.com/jrsteele09/go-auth-client/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultLoginTimeout bounds the login exchange; the renewal exchange is
// deliberately unbounded.
const DefaultLoginTimeout = 10 * time.Second

// IdentityClient is the slice of the identity server the service needs.
type IdentityClient interface {
	Login(ctx context.Context, identifier, secret string) (*identity.LoginResult, error)
	Revoke(ctx context.Context, refreshToken string) error
}

// TokenRenewer obtains a fresh access token through the single-flight
// coordinator.
type TokenRenewer interface {
	EnsureFreshToken(ctx context.Context) (string, error)
}

// Repos holds the external collaborators of the Service.
type Repos struct {
	Credentials credstore.Repo
	Identity    IdentityClient
}

// LoginResult is what a successful Login returns to its caller.
type LoginResult = identity.LoginResult

// Service coordinates the session store, credential store, identity client,
// and renewal coordinator behind the operations the hosting application
// calls.
type Service struct {
	repos        Repos
	state        *session.Store
	renewer      TokenRenewer
	events       *broadcast.LogoutEmitter
	loginTimeout time.Duration
	nowTime      func() time.Time
	unsubscribe  func()
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithLoginTimeout overrides the login exchange timeout.
func WithLoginTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.loginTimeout = d
	}
}

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// NewService initializes a Service and subscribes it to the logout
// broadcaster for its lifetime; Close detaches the subscription.
func NewService(
	repos Repos,
	state *session.Store,
	renewer TokenRenewer,
	events *broadcast.LogoutEmitter,
	options ...ServiceOption,
) (*Service, error) {
	if repos.Credentials == nil {
		return nil, errors.New("[NewService] Credentials repo is required")
	}
	if repos.Identity == nil {
		return nil, errors.New("[NewService] Identity client is required")
	}
	if state == nil {
		return nil, errors.New("[NewService] session store is required")
	}
	if renewer == nil {
		return nil, errors.New("[NewService] token renewer is required")
	}
	if events == nil {
		return nil, errors.New("[NewService] logout emitter is required")
	}

	service := &Service{
		repos:        repos,
		state:        state,
		renewer:      renewer,
		events:       events,
		loginTimeout: DefaultLoginTimeout,
		nowTime:      time.Now,
	}

	for _, opt := range options {
		opt(service)
	}

	// Whatever broadcasts a logout, the visible session follows it.
	service.unsubscribe = events.Subscribe(func(broadcast.Event) {
		state.Dispatch(session.Logout{})
	})

	return service, nil
}

// Close removes the logout subscription. The service must not be used
// afterwards.
func (s *Service) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

// State returns the current session snapshot for UI consumers.
func (s *Service) State() session.Session {
	return s.state.State()
}

// Subscribe registers fn for every session change and returns the
// unsubscribe function.
func (s *Service) Subscribe(fn func(session.Session)) (unsubscribe func()) {
	return s.state.Subscribe(fn)
}

// Login exchanges an identifier and secret for a session. It never returns
// an error: on failure it returns nil and records a user-facing message in
// the session snapshot, so callers render the snapshot instead of handling
// exceptions. The exchange is bounded by the login timeout.
func (s *Service) Login(ctx context.Context, identifier, secret string) *LoginResult {
	s.state.Dispatch(session.LoginStart{})

	ctx, cancel := context.WithTimeout(ctx, s.loginTimeout)
	defer cancel()

	result, err := s.repos.Identity.Login(ctx, identifier, secret)
	if err != nil {
		log.Err(err).Msg("[Service.Login] login exchange failed")
		s.state.Dispatch(session.LoginFailure{Message: userFacingMessage(err)})
		return nil
	}

	s.persist(result.User, result.AccessToken, result.RefreshToken)
	s.state.Dispatch(session.LoginSuccess{
		User:         result.User,
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	})
	return result
}

// Logout best-effort-revokes the refresh token server-side, then
// unconditionally clears local and persisted state. It never fails.
func (s *Service) Logout(ctx context.Context) {
	if refreshToken := s.state.State().RefreshToken; refreshToken != "" {
		if err := s.repos.Identity.Revoke(ctx, refreshToken); err != nil {
			log.Err(err).Msg("[Service.Logout] refresh token revocation failed")
		}
	}
	if err := s.repos.Credentials.Clear(); err != nil {
		log.Err(err).Msg("[Service.Logout] failed to clear persisted credentials")
	}
	s.state.Dispatch(session.Logout{})
	s.events.Publish(broadcast.Event{Reason: broadcast.ReasonUserRequested})
}

// EnsureFreshToken exposes the coordinator's renewal to callers outside the
// request pipeline.
func (s *Service) EnsureFreshToken(ctx context.Context) (string, error) {
	return s.renewer.EnsureFreshToken(ctx)
}

// UpdateUser shallow-merges a partial profile into the current user and
// persists the merged result in the same step. A logged-out session is left
// untouched.
func (s *Service) UpdateUser(partial session.User) {
	s.state.Dispatch(session.UpdateUser{Partial: partial})
	merged := s.state.State().User
	if merged == nil {
		return
	}
	if err := s.repos.Credentials.Save(credstore.Update{User: utils.Ptr(merged)}); err != nil {
		log.Err(err).Msg("[Service.UpdateUser] failed to persist user")
	}
}

// ClearError discards the last login failure message.
func (s *Service) ClearError() {
	s.state.Dispatch(session.ClearError{})
}

// Bootstrap reconstructs the session from the credential store at process
// start. With an access token and cached user it hydrates directly; with
// only a refresh token and cached user it renews once first. Renewal
// failures end in a clean logged-out state, never an error to the caller.
// An access token whose exp claim has already passed is treated as absent.
func (s *Service) Bootstrap(ctx context.Context) {
	s.state.Dispatch(session.SetLoading{Loading: true})
	defer s.state.Dispatch(session.SetLoading{Loading: false})

	snapshot, err := s.repos.Credentials.Load()
	if err != nil {
		log.Err(err).Msg("[Service.Bootstrap] failed to load persisted credentials")
		return
	}

	accessToken := snapshot.AccessToken
	if accessToken != "" && s.tokenExpired(accessToken) {
		accessToken = ""
	}

	switch {
	case accessToken != "" && snapshot.User != nil:
		s.state.Dispatch(session.LoginSuccess{
			User:         snapshot.User,
			AccessToken:  accessToken,
			RefreshToken: snapshot.RefreshToken,
		})

	case snapshot.RefreshToken != "" && snapshot.User != nil:
		freshToken, err := s.renewer.EnsureFreshToken(ctx)
		if err != nil {
			// The coordinator already cleared state and broadcast the
			// logout; make sure the visible session agrees.
			s.state.Dispatch(session.Logout{})
			return
		}
		refreshToken := s.state.State().RefreshToken
		if refreshToken == "" {
			// The server did not rotate the refresh token, so the renewal
			// left the pre-bootstrap session without one; the stored token
			// is still the live credential.
			refreshToken = snapshot.RefreshToken
		}
		s.state.Dispatch(session.LoginSuccess{
			User:         snapshot.User,
			AccessToken:  freshToken,
			RefreshToken: refreshToken,
		})
	}
}

// persist writes the full credential set in the same logical step as the
// state transition that carries it.
func (s *Service) persist(user session.User, accessToken, refreshToken string) {
	update := credstore.Update{
		AccessToken:  utils.Ptr(accessToken),
		RefreshToken: utils.Ptr(refreshToken),
	}
	if user != nil {
		update.User = utils.Ptr(user)
	}
	if err := s.repos.Credentials.Save(update); err != nil {
		log.Err(err).Msg("[Service.persist] failed to persist credentials")
	}
}

func (s *Service) tokenExpired(accessToken string) bool {
	expiry, ok := identity.TokenExpiry(accessToken)
	return ok && !expiry.After(s.nowTime())
}
