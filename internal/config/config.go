package config

import "time"

type Config interface {
	EnvConfig
	IdentityConfig
}

type EnvConfig interface {
	GetAppName() string
	GetDataFolder() string
	GetEnv() string
}

type IdentityConfig interface {
	GetIdentityBaseURL() string
	GetLoginPath() string
	GetRenewPath() string
	GetRevokePath() string
	GetLoginTimeout() time.Duration
}

type mainConfig struct {
	EnvVars
	Identity
}

func New() Config {
	return mainConfig{}
}
