package auth_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-client/auth"
	"github.com/jrsteele09/go-auth-client/broadcast"
	"github.com/jrsteele09/go-auth-client/credstore"
	"github.com/jrsteele09/go-auth-client/credstore/repofake"
	"github.com/jrsteele09/go-auth-client/identity"
	"github.com/jrsteele09/go-auth-client/renew"
	"github.com/jrsteele09/go-auth-client/session"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const (
	testIdentifier = "a@x.com"
	testSecret     = "p"
)

// fakeIdentityClient stands in for the remote identity server.
type fakeIdentityClient struct {
	loginFunc  func(ctx context.Context, identifier, secret string) (*identity.LoginResult, error)
	renewFunc  func(ctx context.Context, refreshToken string) (*identity.TokenPair, error)
	revokeFunc func(ctx context.Context, refreshToken string) error

	loginCalls  atomic.Int32
	renewCalls  atomic.Int32
	revokeCalls atomic.Int32
}

func (c *fakeIdentityClient) Login(ctx context.Context, identifier, secret string) (*identity.LoginResult, error) {
	c.loginCalls.Add(1)
	if c.loginFunc == nil {
		return nil, errors.New("login not configured")
	}
	return c.loginFunc(ctx, identifier, secret)
}

func (c *fakeIdentityClient) Renew(ctx context.Context, refreshToken string) (*identity.TokenPair, error) {
	c.renewCalls.Add(1)
	if c.renewFunc == nil {
		return nil, errors.New("renew not configured")
	}
	return c.renewFunc(ctx, refreshToken)
}

func (c *fakeIdentityClient) Revoke(ctx context.Context, refreshToken string) error {
	c.revokeCalls.Add(1)
	if c.revokeFunc == nil {
		return nil
	}
	return c.revokeFunc(ctx, refreshToken)
}

type testFixture struct {
	identity    *fakeIdentityClient
	creds       *repofake.FakeCredentialRepo
	state       *session.Store
	events      *broadcast.LogoutEmitter
	coordinator *renew.Coordinator
	service     *auth.Service
}

func setupTestFixture(t *testing.T, options ...auth.ServiceOption) *testFixture {
	t.Helper()

	identityClient := &fakeIdentityClient{}
	creds := repofake.NewFakeCredentialRepo()
	state := session.NewStore()
	events := broadcast.NewLogoutEmitter()

	coordinator, err := renew.NewCoordinator(identityClient, creds, state, events)
	require.NoError(t, err)

	service, err := auth.NewService(
		auth.Repos{Credentials: creds, Identity: identityClient},
		state,
		coordinator,
		events,
		options...,
	)
	require.NoError(t, err)
	t.Cleanup(service.Close)

	return &testFixture{
		identity:    identityClient,
		creds:       creds,
		state:       state,
		events:      events,
		coordinator: coordinator,
		service:     service,
	}
}

// requireConsistent asserts that the credential store and the session state
// machine agree on every persisted field.
func (f *testFixture) requireConsistent(t *testing.T) {
	t.Helper()
	s := f.state.State()
	snapshot, err := f.creds.Load()
	require.NoError(t, err)
	require.Equal(t, s.AccessToken, snapshot.AccessToken)
	require.Equal(t, s.RefreshToken, snapshot.RefreshToken)
	if s.User == nil {
		require.Nil(t, snapshot.User)
	} else {
		require.Equal(t, s.User, snapshot.User)
	}
}

func successfulLogin() func(context.Context, string, string) (*identity.LoginResult, error) {
	return func(_ context.Context, identifier, secret string) (*identity.LoginResult, error) {
		if identifier != testIdentifier || secret != testSecret {
			return nil, &identity.ServerError{Status: 401, Message: "invalid credentials"}
		}
		return &identity.LoginResult{
			User:         session.User{"id": "1", "role": "student"},
			AccessToken:  "T1",
			RefreshToken: "R1",
		}, nil
	}
}

func TestNewService_MissingDependencies(t *testing.T) {
	identityClient := &fakeIdentityClient{}
	creds := repofake.NewFakeCredentialRepo()
	state := session.NewStore()
	events := broadcast.NewLogoutEmitter()
	coordinator, err := renew.NewCoordinator(identityClient, creds, state, events)
	require.NoError(t, err)

	_, err = auth.NewService(auth.Repos{Identity: identityClient}, state, coordinator, events)
	require.Error(t, err)
	_, err = auth.NewService(auth.Repos{Credentials: creds}, state, coordinator, events)
	require.Error(t, err)
	_, err = auth.NewService(auth.Repos{Credentials: creds, Identity: identityClient}, nil, coordinator, events)
	require.Error(t, err)
	_, err = auth.NewService(auth.Repos{Credentials: creds, Identity: identityClient}, state, nil, events)
	require.Error(t, err)
	_, err = auth.NewService(auth.Repos{Credentials: creds, Identity: identityClient}, state, coordinator, nil)
	require.Error(t, err)
}

func TestLogin_Success(t *testing.T) {
	f := setupTestFixture(t)
	f.identity.loginFunc = successfulLogin()

	result := f.service.Login(context.Background(), testIdentifier, testSecret)
	require.NotNil(t, result)
	require.Equal(t, "T1", result.AccessToken)
	require.Equal(t, "R1", result.RefreshToken)

	s := f.service.State()
	require.True(t, s.IsAuthenticated)
	require.False(t, s.IsLoading)
	require.Empty(t, s.Error)
	require.Equal(t, "1", s.User.ID())
	require.Equal(t, "student", s.User.Role())
	require.Equal(t, "T1", s.AccessToken)
	require.Equal(t, "R1", s.RefreshToken)

	f.requireConsistent(t)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	f := setupTestFixture(t)
	f.identity.loginFunc = successfulLogin()

	result := f.service.Login(context.Background(), testIdentifier, "wrong")
	require.Nil(t, result)

	s := f.service.State()
	require.False(t, s.IsAuthenticated)
	require.False(t, s.IsLoading)
	require.Equal(t, auth.MsgInvalidCredentials, s.Error)
}

func TestLogin_Timeout(t *testing.T) {
	f := setupTestFixture(t, auth.WithLoginTimeout(30*time.Millisecond))
	f.identity.loginFunc = func(ctx context.Context, _, _ string) (*identity.LoginResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	result := f.service.Login(context.Background(), testIdentifier, testSecret)
	require.Nil(t, result)
	require.Equal(t, auth.MsgRequestTimedOut, f.service.State().Error)
}

func TestLogin_UnknownServerPhrasePassesThrough(t *testing.T) {
	f := setupTestFixture(t)
	f.identity.loginFunc = func(context.Context, string, string) (*identity.LoginResult, error) {
		return nil, &identity.ServerError{Status: 422, Message: "account requires parental approval"}
	}

	require.Nil(t, f.service.Login(context.Background(), testIdentifier, testSecret))
	require.Equal(t, "account requires parental approval", f.service.State().Error)
}

func TestLogin_KnownServerPhraseTranslated(t *testing.T) {
	f := setupTestFixture(t)
	f.identity.loginFunc = func(context.Context, string, string) (*identity.LoginResult, error) {
		return nil, &identity.ServerError{Status: 400, Message: "User Not Found"}
	}

	require.Nil(t, f.service.Login(context.Background(), testIdentifier, testSecret))
	require.Equal(t, auth.MsgInvalidCredentials, f.service.State().Error)
}

func TestLogin_MalformedResponseReadsAsTimeout(t *testing.T) {
	f := setupTestFixture(t)
	f.identity.loginFunc = func(context.Context, string, string) (*identity.LoginResult, error) {
		return nil, errors.Wrap(identity.ErrMalformedResponse, "[Client.Login] extract tokens")
	}

	require.Nil(t, f.service.Login(context.Background(), testIdentifier, testSecret))
	require.Equal(t, auth.MsgRequestTimedOut, f.service.State().Error)
}

func TestLogin_ClearError(t *testing.T) {
	f := setupTestFixture(t)
	f.identity.loginFunc = successfulLogin()

	require.Nil(t, f.service.Login(context.Background(), testIdentifier, "wrong"))
	require.NotEmpty(t, f.service.State().Error)

	f.service.ClearError()
	require.Empty(t, f.service.State().Error)
}

func TestLogout_RevokesAndClears(t *testing.T) {
	f := setupTestFixture(t)
	f.identity.loginFunc = successfulLogin()
	require.NotNil(t, f.service.Login(context.Background(), testIdentifier, testSecret))

	var revoked string
	f.identity.revokeFunc = func(_ context.Context, refreshToken string) error {
		revoked = refreshToken
		return nil
	}

	f.service.Logout(context.Background())

	require.Equal(t, "R1", revoked)
	require.Equal(t, session.Session{}, f.service.State())
	f.requireConsistent(t)
}

func TestLogout_RevocationFailureIsSwallowed(t *testing.T) {
	f := setupTestFixture(t)
	f.identity.loginFunc = successfulLogin()
	require.NotNil(t, f.service.Login(context.Background(), testIdentifier, testSecret))

	f.identity.revokeFunc = func(context.Context, string) error {
		return errors.New("revocation endpoint unreachable")
	}

	f.service.Logout(context.Background())

	require.Equal(t, session.Session{}, f.service.State())
	snapshot, err := f.creds.Load()
	require.NoError(t, err)
	require.Equal(t, credstore.Snapshot{}, snapshot)
}

func TestLogout_WithoutSessionSkipsRevocation(t *testing.T) {
	f := setupTestFixture(t)

	f.service.Logout(context.Background())

	require.Equal(t, int32(0), f.identity.revokeCalls.Load())
	require.Equal(t, session.Session{}, f.service.State())
}

func TestUpdateUser_MergesAndPersists(t *testing.T) {
	f := setupTestFixture(t)
	f.identity.loginFunc = successfulLogin()
	require.NotNil(t, f.service.Login(context.Background(), testIdentifier, testSecret))

	f.service.UpdateUser(session.User{"first_name": "Jane", "role": "teacher"})

	s := f.service.State()
	require.Equal(t, "teacher", s.User.Role())
	require.Equal(t, "1", s.User.ID())
	require.True(t, s.IsAuthenticated)

	f.requireConsistent(t)
}

func TestUpdateUser_WithoutSessionIsNoop(t *testing.T) {
	f := setupTestFixture(t)

	f.service.UpdateUser(session.User{"first_name": "Jane"})

	require.Nil(t, f.service.State().User)
	snapshot, err := f.creds.Load()
	require.NoError(t, err)
	require.Nil(t, snapshot.User)
}

func TestBootstrap_HydratesFromStore(t *testing.T) {
	f := setupTestFixture(t)
	f.creds.Seed(credstore.Snapshot{
		AccessToken:  "T1",
		RefreshToken: "R1",
		User:         session.User{"id": "1", "role": "student"},
	})

	f.service.Bootstrap(context.Background())

	s := f.service.State()
	require.True(t, s.IsAuthenticated)
	require.False(t, s.IsLoading)
	require.Equal(t, "T1", s.AccessToken)
	require.Equal(t, "R1", s.RefreshToken)
	require.Equal(t, "1", s.User.ID())
	require.Equal(t, int32(0), f.identity.renewCalls.Load())
}

func TestBootstrap_RenewsWhenOnlyRefreshTokenPresent(t *testing.T) {
	f := setupTestFixture(t)
	f.creds.Seed(credstore.Snapshot{
		RefreshToken: "R1",
		User:         session.User{"id": "1"},
	})
	f.identity.renewFunc = func(_ context.Context, refreshToken string) (*identity.TokenPair, error) {
		require.Equal(t, "R1", refreshToken)
		return &identity.TokenPair{AccessToken: "T2", RefreshToken: "R2"}, nil
	}

	f.service.Bootstrap(context.Background())

	s := f.service.State()
	require.True(t, s.IsAuthenticated)
	require.False(t, s.IsLoading)
	require.Equal(t, "T2", s.AccessToken)
	require.Equal(t, "R2", s.RefreshToken)
	require.Equal(t, "1", s.User.ID())
	require.Equal(t, int32(1), f.identity.renewCalls.Load())
}

// A renewal that does not rotate the refresh token must still leave the
// stored token on the hydrated session, or the store and state machine
// disagree and a later logout cannot revoke anything.
func TestBootstrap_RenewalWithoutRotationKeepsRefreshToken(t *testing.T) {
	f := setupTestFixture(t)
	f.creds.Seed(credstore.Snapshot{
		RefreshToken: "R1",
		User:         session.User{"id": "1"},
	})
	f.identity.renewFunc = func(context.Context, string) (*identity.TokenPair, error) {
		return &identity.TokenPair{AccessToken: "T2"}, nil
	}

	f.service.Bootstrap(context.Background())

	s := f.service.State()
	require.True(t, s.IsAuthenticated)
	require.Equal(t, "T2", s.AccessToken)
	require.Equal(t, "R1", s.RefreshToken)
	f.requireConsistent(t)

	var revoked string
	f.identity.revokeFunc = func(_ context.Context, refreshToken string) error {
		revoked = refreshToken
		return nil
	}
	f.service.Logout(context.Background())
	require.Equal(t, "R1", revoked)
}

func TestBootstrap_RenewalFailureEndsLoggedOut(t *testing.T) {
	f := setupTestFixture(t)
	f.creds.Seed(credstore.Snapshot{
		RefreshToken: "R1",
		User:         session.User{"id": "1"},
	})
	f.identity.renewFunc = func(context.Context, string) (*identity.TokenPair, error) {
		return nil, &identity.ServerError{Status: 400, Message: "refresh token expired"}
	}

	var logouts atomic.Int32
	f.events.Subscribe(func(broadcast.Event) { logouts.Add(1) })

	f.service.Bootstrap(context.Background())

	require.Equal(t, session.Session{}, f.service.State())
	snapshot, err := f.creds.Load()
	require.NoError(t, err)
	require.Equal(t, credstore.Snapshot{}, snapshot)
	require.Equal(t, int32(1), logouts.Load())
}

func TestBootstrap_EmptyStoreStaysLoggedOut(t *testing.T) {
	f := setupTestFixture(t)

	f.service.Bootstrap(context.Background())

	s := f.service.State()
	require.False(t, s.IsAuthenticated)
	require.False(t, s.IsLoading)
	require.Equal(t, int32(0), f.identity.renewCalls.Load())
}

func TestBootstrap_AccessTokenWithoutUserStaysLoggedOut(t *testing.T) {
	f := setupTestFixture(t)
	f.creds.Seed(credstore.Snapshot{AccessToken: "T1"})

	f.service.Bootstrap(context.Background())

	require.False(t, f.service.State().IsAuthenticated)
}

// Bootstrapping twice from the same persisted state converges: the first
// pass refreshes, the second hydrates directly without another renewal.
func TestBootstrap_Idempotent(t *testing.T) {
	f := setupTestFixture(t)
	f.creds.Seed(credstore.Snapshot{
		RefreshToken: "R1",
		User:         session.User{"id": "1"},
	})
	f.identity.renewFunc = func(context.Context, string) (*identity.TokenPair, error) {
		return &identity.TokenPair{AccessToken: "T2", RefreshToken: "R2"}, nil
	}

	f.service.Bootstrap(context.Background())
	first := f.service.State()
	require.Equal(t, int32(1), f.identity.renewCalls.Load())

	f.service.Bootstrap(context.Background())
	second := f.service.State()

	require.Equal(t, int32(1), f.identity.renewCalls.Load(), "second bootstrap must not renew again")
	require.Equal(t, first, second)
}

func TestBroadcastLogout_TearsDownSession(t *testing.T) {
	f := setupTestFixture(t)
	f.identity.loginFunc = successfulLogin()
	require.NotNil(t, f.service.Login(context.Background(), testIdentifier, testSecret))

	f.events.Publish(broadcast.Event{Reason: broadcast.ReasonRenewalFailed})

	require.Equal(t, session.Session{}, f.service.State())
}

func TestClose_DetachesFromBroadcasts(t *testing.T) {
	f := setupTestFixture(t)
	f.identity.loginFunc = successfulLogin()
	require.NotNil(t, f.service.Login(context.Background(), testIdentifier, testSecret))

	f.service.Close()
	f.events.Publish(broadcast.Event{Reason: broadcast.ReasonRenewalFailed})

	require.True(t, f.service.State().IsAuthenticated)
}

func TestEnsureFreshToken_Delegates(t *testing.T) {
	f := setupTestFixture(t)
	f.identity.loginFunc = successfulLogin()
	require.NotNil(t, f.service.Login(context.Background(), testIdentifier, testSecret))

	f.identity.renewFunc = func(context.Context, string) (*identity.TokenPair, error) {
		return &identity.TokenPair{AccessToken: "T2"}, nil
	}

	token, err := f.service.EnsureFreshToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "T2", token)
	require.Equal(t, "T2", f.service.State().AccessToken)
	f.requireConsistent(t)
}

func TestSubscribe_SessionChangesVisibleToConsumers(t *testing.T) {
	f := setupTestFixture(t)
	f.identity.loginFunc = successfulLogin()

	var snapshots []session.Session
	unsubscribe := f.service.Subscribe(func(s session.Session) {
		snapshots = append(snapshots, s)
	})
	defer unsubscribe()

	require.NotNil(t, f.service.Login(context.Background(), testIdentifier, testSecret))

	require.NotEmpty(t, snapshots)
	last := snapshots[len(snapshots)-1]
	require.True(t, last.IsAuthenticated)
	require.Equal(t, "T1", last.AccessToken)
}
