// Package identity talks to the remote identity/authorization server: the
// login, token-renewal, and revocation exchanges. It tolerates the several
// response envelopes the server is known to emit for the same logical
// fields.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-auth-client/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Default endpoint paths; override with options when the server differs.
const (
	DefaultLoginPath  = "/v1/auth/login"
	DefaultRenewPath  = "/v1/auth/refresh-tokens"
	DefaultRevokePath = "/v1/auth/logout"
)

// ServerError is a structured failure returned by the identity server.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("identity server returned status %d", e.Status)
	}
	return fmt.Sprintf("identity server returned status %d: %s", e.Status, e.Message)
}

// LoginResult is the outcome of a successful login exchange.
type LoginResult struct {
	User         session.User
	AccessToken  string
	RefreshToken string
}

// Client performs the identity exchanges over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	loginPath  string
	renewPath  string
	revokePath string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithPaths overrides the endpoint paths. Empty strings keep the defaults.
func WithPaths(login, renew, revoke string) ClientOption {
	return func(c *Client) {
		if login != "" {
			c.loginPath = login
		}
		if renew != "" {
			c.renewPath = renew
		}
		if revoke != "" {
			c.revokePath = revoke
		}
	}
}

// NewClient creates a client for the identity server at baseURL.
func NewClient(baseURL string, options ...ClientOption) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("[NewClient] base URL is required")
	}
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		loginPath:  DefaultLoginPath,
		renewPath:  DefaultRenewPath,
		revokePath: DefaultRevokePath,
	}
	for _, opt := range options {
		opt(client)
	}
	return client, nil
}

// Login exchanges an identifier and secret for a user profile and token
// pair. A success response missing a recognizable access token is reported
// as ErrMalformedResponse.
func (c *Client) Login(ctx context.Context, identifier, secret string) (*LoginResult, error) {
	payload, err := c.post(ctx, c.loginPath, map[string]string{
		"email":    identifier,
		"password": secret,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Login] exchange")
	}

	pair, err := ExtractTokenPair(payload)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Login] extract tokens")
	}
	user, _ := ExtractUser(payload)

	return &LoginResult{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// Renew exchanges a refresh token for a new token pair.
func (c *Client) Renew(ctx context.Context, refreshToken string) (*TokenPair, error) {
	payload, err := c.post(ctx, c.renewPath, map[string]string{
		"refresh_token": refreshToken,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Renew] exchange")
	}

	pair, err := ExtractTokenPair(payload)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Renew] extract tokens")
	}
	return &pair, nil
}

// Revoke invalidates a refresh token server-side. The response body is
// ignored; callers treat revocation as fire-and-forget.
func (c *Client) Revoke(ctx context.Context, refreshToken string) error {
	if _, err := c.post(ctx, c.revokePath, map[string]string{
		"refresh_token": refreshToken,
	}); err != nil {
		return errors.Wrap(err, "[Client.Revoke] exchange")
	}
	return nil
}

// post sends a JSON body and returns the raw response payload for 2xx
// statuses. Other statuses become a *ServerError carrying the server's
// message when one can be parsed out.
func (c *Client) post(ctx context.Context, path string, body map[string]string) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "marshal request body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response body")
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		serverErr := &ServerError{Status: resp.StatusCode, Message: serverMessage(payload)}
		log.Debug().Int("status", resp.StatusCode).Str("path", path).Msg("identity exchange failed")
		return nil, serverErr
	}
	return payload, nil
}

// serverMessage pulls the human-readable message out of an error payload,
// tolerating both a bare and a data-wrapped envelope.
func serverMessage(payload []byte) string {
	body := map[string]any{}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	body = unwrapEnvelope(body)
	if msg, ok := body["message"].(string); ok {
		return msg
	}
	if msg, ok := body["error"].(string); ok {
		return msg
	}
	return ""
}
