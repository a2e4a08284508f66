package utils

import (
	"os"
	"slices"
	"time"

	"go.viam.com/usbinspector/logging"
)

const (
	// DefaultLookupTimeout is how long a single USBSTOR parent lookup may take before the
	// device is reported as unresolved.
	DefaultLookupTimeout = 5 * time.Second

	// LookupTimeoutEnvVar is the environment variable that can be set to override
	// DefaultLookupTimeout.
	LookupTimeoutEnvVar = "USBINSPECTOR_LOOKUP_TIMEOUT"

	// DebugEnvVar turns on debug logging when set to one of EnvTrueValues.
	DebugEnvVar = "USBINSPECTOR_DEBUG"

	// EnvVarPrefix is the prefix for all usbinspector environment variables.
	EnvVarPrefix = "USBINSPECTOR_"
)

// EnvTrueValues contains strings that we interpret as boolean true in env vars.
var EnvTrueValues = []string{"true", "yes", "1", "TRUE", "YES"}

// GetLookupTimeout calculates the parent lookup timeout
// (env variable value if set, DefaultLookupTimeout otherwise).
func GetLookupTimeout(logger logging.Logger) time.Duration {
	return timeoutHelper(DefaultLookupTimeout, LookupTimeoutEnvVar, logger)
}

// DebugFromEnv returns whether DebugEnvVar asks for debug logging.
func DebugFromEnv() bool {
	return slices.Contains(EnvTrueValues, os.Getenv(DebugEnvVar))
}

func timeoutHelper(defaultTimeout time.Duration, timeoutEnvVar string, logger logging.Logger) time.Duration {
	if timeoutVal := os.Getenv(timeoutEnvVar); timeoutVal != "" {
		timeout, err := time.ParseDuration(timeoutVal)
		if err != nil || timeout <= 0 {
			logger.Warnw("Failed to parse env var, falling back to default timeout",
				"env_var", timeoutEnvVar, "value", timeoutVal, "default", defaultTimeout)
			return defaultTimeout
		}
		return timeout
	}
	return defaultTimeout
}
