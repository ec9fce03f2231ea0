package identity

import (
	"encoding/json"

	"github.com/jrsteele09/go-auth-client/session"
	"github.com/pkg/errors"
)

// TokenPair is the logical result of a login or renewal exchange. An empty
// RefreshToken means the server did not rotate the refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// ErrMalformedResponse indicates a success response that carried no
// recognizable access token in any accepted shape.
var ErrMalformedResponse = errors.New("response carries no recognizable access token")

// extractStrategy pulls a token pair out of one known response convention.
// Strategies are tried in order; the first one that finds an access token
// wins.
type extractStrategy func(body map[string]any) (TokenPair, bool)

// extractStrategies is ordered most specific first: the nested pair is the
// canonical shape, the flat pair is the legacy fallback. A "data" envelope
// is unwrapped before either is tried.
var extractStrategies = []extractStrategy{
	extractNestedPair,
	extractFlatPair,
}

// ExtractTokenPair locates the token pair inside a success payload,
// tolerating the known nesting conventions for the same logical fields.
func ExtractTokenPair(payload []byte) (TokenPair, error) {
	body := map[string]any{}
	if err := json.Unmarshal(payload, &body); err != nil {
		return TokenPair{}, errors.Wrap(ErrMalformedResponse, err.Error())
	}
	body = unwrapEnvelope(body)

	for _, extract := range extractStrategies {
		if pair, ok := extract(body); ok {
			return pair, nil
		}
	}
	return TokenPair{}, ErrMalformedResponse
}

// ExtractUser locates the user profile inside a success payload, if present.
func ExtractUser(payload []byte) (session.User, bool) {
	body := map[string]any{}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, false
	}
	body = unwrapEnvelope(body)

	user, ok := body["user"].(map[string]any)
	if !ok || len(user) == 0 {
		return nil, false
	}
	return session.User(user), true
}

// unwrapEnvelope strips a single outer {"data": {...}} wrapper.
func unwrapEnvelope(body map[string]any) map[string]any {
	if inner, ok := body["data"].(map[string]any); ok {
		return inner
	}
	return body
}

// extractNestedPair reads tokens.access.token / tokens.refresh.token.
func extractNestedPair(body map[string]any) (TokenPair, bool) {
	tokens, ok := body["tokens"].(map[string]any)
	if !ok {
		return TokenPair{}, false
	}
	access := nestedToken(tokens, "access")
	if access == "" {
		return TokenPair{}, false
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: nestedToken(tokens, "refresh"),
	}, true
}

// extractFlatPair reads access_token / refresh_token.
func extractFlatPair(body map[string]any) (TokenPair, bool) {
	access, _ := body["access_token"].(string)
	if access == "" {
		return TokenPair{}, false
	}
	refresh, _ := body["refresh_token"].(string)
	return TokenPair{AccessToken: access, RefreshToken: refresh}, true
}

func nestedToken(tokens map[string]any, kind string) string {
	entry, ok := tokens[kind].(map[string]any)
	if !ok {
		return ""
	}
	token, _ := entry["token"].(string)
	return token
}
