package auth

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-auth-client/identity"
	"github.com/pkg/errors"
)

// User-facing failure messages. UI code renders these verbatim.
const (
	MsgInvalidCredentials = "Incorrect email or password."
	MsgRequestTimedOut    = "The request timed out. Please try again."
	MsgLoginFailed        = "Unable to sign in. Please try again."
)

// knownPhrases translates structured server messages into their user-facing
// equivalents. Unknown phrases pass through verbatim.
var knownPhrases = map[string]string{
	"invalid credentials":         MsgInvalidCredentials,
	"incorrect email or password": MsgInvalidCredentials,
	"user not found":              MsgInvalidCredentials,
	"password incorrect":          MsgInvalidCredentials,
	"request timeout":             MsgRequestTimedOut,
}

// userFacingMessage maps a login failure onto the message the session
// snapshot carries. Transport trouble and malformed success responses read
// as a timeout; a 401 reads as bad credentials; structured server messages
// go through the phrase table.
func userFacingMessage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return MsgRequestTimedOut
	}
	if errors.Is(err, identity.ErrMalformedResponse) {
		return MsgRequestTimedOut
	}

	var serverErr *identity.ServerError
	if errors.As(err, &serverErr) {
		if serverErr.Status == http.StatusUnauthorized {
			return MsgInvalidCredentials
		}
		message := strings.TrimSpace(serverErr.Message)
		if message == "" {
			return MsgLoginFailed
		}
		if translated, ok := knownPhrases[strings.ToLower(message)]; ok {
			return translated
		}
		return message
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return MsgRequestTimedOut
	}
	return MsgLoginFailed
}
