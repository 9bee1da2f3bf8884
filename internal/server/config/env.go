package config

import (
	"os"
	"time"
)

// parseEnv overlays Config fields from environment variables. A .env file
// loaded by the entrypoint ends up here too.
func parseEnv(cfg *Config) {
	cfg.EndpointAddr = getEnv("RUN_ADDRESS", cfg.EndpointAddr)
	cfg.DatabaseDSN = getEnv("DATABASE_DSN", cfg.DatabaseDSN)
	cfg.SecretKey = getEnv("SECRET_KEY", cfg.SecretKey)
	cfg.S3RootUser = getEnv("S3_ROOT_USER", cfg.S3RootUser)
	cfg.S3RootPassword = getEnv("S3_ROOT_PASSWORD", cfg.S3RootPassword)
	cfg.S3Bucket = getEnv("S3_BUCKET", cfg.S3Bucket)
	cfg.S3Region = getEnv("S3_REGION", cfg.S3Region)
	cfg.S3BaseEndpoint = getEnv("S3_BASE_ENDPOINT", cfg.S3BaseEndpoint)

	if raw := os.Getenv("TOKEN_VALIDITY_DURATION"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			cfg.TokenValidityDuration = d
		}
	}
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
