package config

import (
	"time"
)

const (
	identityBaseURLVar = "IDENTITY_BASE_URL"
	loginPathVar       = "IDENTITY_LOGIN_PATH"
	renewPathVar       = "IDENTITY_RENEW_PATH"
	revokePathVar      = "IDENTITY_REVOKE_PATH"
	loginTimeoutVar    = "LOGIN_TIMEOUT"
)

type Identity struct{}

var _ IdentityConfig = Identity{}

func (Identity) GetIdentityBaseURL() string {
	return GetEnv(identityBaseURLVar, "http://localhost:5000")
}

func (Identity) GetLoginPath() string {
	return GetEnv(loginPathVar, "")
}

func (Identity) GetRenewPath() string {
	return GetEnv(renewPathVar, "")
}

func (Identity) GetRevokePath() string {
	return GetEnv(revokePathVar, "")
}

func (Identity) GetLoginTimeout() time.Duration {
	raw := GetEnv(loginTimeoutVar, "")
	if raw == "" {
		return 10 * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}
