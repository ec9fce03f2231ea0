// Package pipeline wraps outbound HTTP calls: it attaches the current
// access token on the way out and recovers from authorization failures on
// the way back by renewing the credential and replaying the request once.
package pipeline

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-client/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// SessionState provides the current session snapshot. *session.Store
// satisfies it.
type SessionState interface {
	State() session.Session
}

// TokenRenewer obtains a fresh access token, coordinating with every other
// caller that needs one. *renew.Coordinator satisfies it.
type TokenRenewer interface {
	EnsureFreshToken(ctx context.Context) (string, error)
}

// Transport is an http.RoundTripper decorator. It is stateless between
// requests; the per-request retry bookkeeping lives in an attempt value
// created for each RoundTrip, never on the request itself.
type Transport struct {
	base    http.RoundTripper
	state   SessionState
	renewer TokenRenewer
}

// attempt tracks one logical request through the pipeline.
type attempt struct {
	id      string
	retried bool
}

// NewTransport wraps base (nil means http.DefaultTransport) with the
// credential pipeline.
func NewTransport(base http.RoundTripper, state SessionState, renewer TokenRenewer) (*Transport, error) {
	if state == nil {
		return nil, errors.New("[NewTransport] session state is required")
	}
	if renewer == nil {
		return nil, errors.New("[NewTransport] token renewer is required")
	}
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		base:    base,
		state:   state,
		renewer: renewer,
	}, nil
}

// RoundTrip attaches the access token, sends the request, and on a 401
// renews the credential and replays the request exactly once. A second 401
// comes back to the caller untouched. Content-Type is never forced, so
// multipart bodies keep whatever boundary the caller negotiated.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	a := &attempt{id: uuid.New().String()}

	if req.Body != nil && req.GetBody != nil {
		// Every send uses a fresh GetBody copy, so the original body is
		// never read; the RoundTripper contract still makes it ours to
		// close.
		req.Body.Close()
	}

	resp, err := t.send(req, t.state.State().AccessToken, false)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || a.retried {
		return resp, nil
	}
	if req.Body != nil && req.GetBody == nil {
		// The body was consumed and cannot be replayed.
		return resp, nil
	}
	a.retried = true

	freshToken, renewErr := t.renewer.EnsureFreshToken(req.Context())
	if renewErr != nil {
		resp.Body.Close()
		return nil, errors.Wrap(renewErr, "[Transport.RoundTrip] credential renewal")
	}
	resp.Body.Close()

	log.Debug().
		Str("request_id", a.id).
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Msg("retrying request with renewed credential")

	return t.send(req, freshToken, true)
}

// send issues a clone of req with the given access token attached. A token
// already set by the caller is left alone on the first pass; the renewed
// token always wins on the retry because the original one just failed.
func (t *Transport) send(req *http.Request, accessToken string, force bool) (*http.Response, error) {
	out := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, errors.Wrap(err, "[Transport.send] rewind request body")
		}
		out.Body = body
	}
	if accessToken != "" && (force || out.Header.Get("Authorization") == "") {
		out.Header.Set("Authorization", "Bearer "+accessToken)
	}
	return t.base.RoundTrip(out)
}

var _ http.RoundTripper = (*Transport)(nil)
