package renew

import (
	"context"
	"time"

	"github.com/jrsteele09/go-auth-client/identity"
	"golang.org/x/oauth2"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// TokenSource adapts the coordinator to oauth2.TokenSource so the managed
// credential can feed any x/oauth2-aware HTTP client. The cached access
// token is reused until its exp claim passes; renewal then goes through the
// coordinator's single-flight gate like every other caller.
func (c *Coordinator) TokenSource() oauth2.TokenSource {
	return &coordinatorTokenSource{coordinator: c}
}

type coordinatorTokenSource struct {
	coordinator *Coordinator
}

func (ts *coordinatorTokenSource) Token() (*oauth2.Token, error) {
	current := ts.coordinator.state.State().AccessToken
	if current != "" {
		expiry, ok := identity.TokenExpiry(current)
		if !ok || expiry.After(NowTimeFunc()) {
			return &oauth2.Token{
				AccessToken: current,
				TokenType:   "Bearer",
				Expiry:      expiry,
			}, nil
		}
	}

	fresh, err := ts.coordinator.EnsureFreshToken(context.Background())
	if err != nil {
		return nil, err
	}
	expiry, _ := identity.TokenExpiry(fresh)
	return &oauth2.Token{
		AccessToken: fresh,
		TokenType:   "Bearer",
		Expiry:      expiry,
	}, nil
}
