package config

import (
	"os"
	"time"
)

// EnvPrefix prefixes every environment variable copse reads.
const EnvPrefix = "COPSE_"

// getEnvString returns the value of the environment variable with the given key
// (prefixed with EnvPrefix), or the default value if not set.
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvDuration returns the value of the environment variable with the given key
// (prefixed with EnvPrefix) parsed as time.Duration, or the default value if not
// set or invalid.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

// ApplyEnv overrides file settings from the environment:
// COPSE_INSTANCE_NAME, COPSE_REDIS_URL (or plain REDIS_URL),
// COPSE_HEALTH_ADDR and COPSE_POLL_INTERVAL.
func ApplyEnv(c *CopseConfig) {
	c.Instance = getEnvString("INSTANCE_NAME", c.Instance)

	if url := os.Getenv("REDIS_URL"); url != "" {
		c.RedisURL = url
	}
	c.RedisURL = getEnvString("REDIS_URL", c.RedisURL)

	c.HealthAddr = getEnvString("HEALTH_ADDR", c.HealthAddr)
	c.PollInterval = getEnvDuration("POLL_INTERVAL", c.PollInterval)
}
