package config

import (
	"os"
	"path/filepath"
)

const (
	appNameVar = "APP_NAME"
	folderVar  = "FOLDER"
	envVar     = "ENV"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Go Auth Client")
}

func (EnvVars) GetDataFolder() string {
	if folder := GetEnv(folderVar, ""); folder != "" {
		return folder
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".auth-client"
	}
	return filepath.Join(home, ".auth-client")
}

func (EnvVars) GetEnv() string {
	return GetEnv(envVar, "DEV")
}

// GetEnv reads an environment variable with a fallback default.
func GetEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}
