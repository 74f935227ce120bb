package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variable names for overrides.
const (
	EnvConfig    = "FTPSYNC_CONFIG"
	EnvHost      = "FTPSYNC_HOST"
	EnvPort      = "FTPSYNC_PORT"
	EnvUser      = "FTPSYNC_USER"
	EnvPassword  = "FTPSYNC_PASSWORD" //nolint:gosec // G101: variable name, not a credential
	EnvLocalRoot = "FTPSYNC_LOCAL_ROOT"
)

// dotEnvFile is read from the working directory by LoadDotEnv.
const dotEnvFile = ".env"

// EnvOverrides holds values derived from environment variables. Empty
// strings and a zero Port mean "not set".
type EnvOverrides struct {
	ConfigPath string
	Host       string
	Port       int
	User       string
	Password   string
	LocalRoot  string
}

// LoadDotEnv loads path (".env" when empty) into the process environment.
// Variables already set in the environment win. A missing file is not an
// error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = dotEnvFile
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}

	return nil
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; Resolve applies the relevant fields.
func ReadEnvOverrides() (EnvOverrides, error) {
	env := EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		Host:       os.Getenv(EnvHost),
		User:       os.Getenv(EnvUser),
		Password:   os.Getenv(EnvPassword),
		LocalRoot:  os.Getenv(EnvLocalRoot),
	}

	if raw := os.Getenv(EnvPort); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return EnvOverrides{}, fmt.Errorf("%s: invalid port %q: %w", EnvPort, raw, err)
		}

		env.Port = port
	}

	return env, nil
}
