// Package testutil provides shared environment helpers for the E2E tests,
// which build and run the ftpsync binary against a real FTP server.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// AllowedHostsEnv lists the FTP hosts E2E tests may write to, comma
// separated.
const AllowedHostsEnv = "FTPSYNC_ALLOWED_TEST_HOSTS"

// LoadDotEnv loads KEY=VALUE pairs from the .env file at envPath. Variables
// already set in the environment win. A missing file is ignored (CI sets
// the variables directly).
func LoadDotEnv(envPath string) {
	if _, err := os.Stat(envPath); err != nil {
		return
	}

	if err := godotenv.Load(envPath); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: loading %s: %v\n", envPath, err)
		os.Exit(1)
	}
}

// RequireEnv returns the values of names, crashing the process when any is
// unset.
func RequireEnv(names ...string) map[string]string {
	values := make(map[string]string, len(names))

	var missing []string

	for _, name := range names {
		v := os.Getenv(name)
		if v == "" {
			missing = append(missing, name)
			continue
		}

		values[name] = v
	}

	if len(missing) > 0 {
		fmt.Fprintf(os.Stderr, "FATAL: %s not set\n", strings.Join(missing, ", "))
		fmt.Fprintln(os.Stderr, "Set them in .env or as environment variables.")
		os.Exit(1)
	}

	return values
}

// ValidateAllowlist crashes the process unless the host named by
// hostEnvVar appears in FTPSYNC_ALLOWED_TEST_HOSTS.
func ValidateAllowlist(hostEnvVar string) {
	allowlist := os.Getenv(AllowedHostsEnv)
	if allowlist == "" {
		fmt.Fprintf(os.Stderr, "FATAL: %s not set\n", AllowedHostsEnv)
		fmt.Fprintf(os.Stderr, "Example: %s=ftp.staging.example.com\n", AllowedHostsEnv)
		os.Exit(1)
	}

	host := os.Getenv(hostEnvVar)
	if host == "" {
		fmt.Fprintf(os.Stderr, "FATAL: %s not set\n", hostEnvVar)
		os.Exit(1)
	}

	for _, a := range strings.Split(allowlist, ",") {
		if strings.TrimSpace(a) == host {
			return
		}
	}

	fmt.Fprintf(os.Stderr, "FATAL: %s=%q is not in %s=%q\n", hostEnvVar, host, AllowedHostsEnv, allowlist)
	os.Exit(1)
}

// FindModuleRoot walks up from the current directory to find go.mod.
// Returns the fallback if the root is not found.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}
