// Package config loads service configuration from the environment and
// integration provisioning files from YAML.
package config

import (
	"os"
	"strconv"
)

// Config holds service configuration.
type Config struct {
	LogLevel string

	// DatabaseDriver is "sqlite" or "postgres"; DatabaseURL is the DSN.
	DatabaseDriver string
	DatabaseURL    string

	// CredentialSecret seeds the credential vault key. Empty disables
	// network-mode credential storage.
	CredentialSecret string

	// RedisAddr enables the seen-hash cache when set.
	RedisAddr string

	// IntegrationsFile provisions integrations at startup when set.
	IntegrationsFile string

	// ArchiveBucket enables the S3 archive sink when set.
	ArchiveBucket   string
	ArchiveRegion   string
	ArchiveEndpoint string
	ArchivePrefix   string

	// OTLPEndpoint enables metric export when set.
	OTLPEndpoint string

	// SyncCheckSeconds bounds how late a due sync cycle starts.
	SyncCheckSeconds int
}

// Load loads configuration from environment variables.
func Load() *Config {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	driver := os.Getenv("DATABASE_DRIVER")
	if driver == "" {
		driver = "sqlite"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = "file:backoffice.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	syncCheck := 30
	if v := os.Getenv("SYNC_CHECK_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			syncCheck = n
		}
	}

	return &Config{
		LogLevel:         logLevel,
		DatabaseDriver:   driver,
		DatabaseURL:      dbURL,
		CredentialSecret: os.Getenv("CREDENTIAL_SECRET"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		IntegrationsFile: os.Getenv("INTEGRATIONS_FILE"),
		ArchiveBucket:    os.Getenv("ARCHIVE_BUCKET"),
		ArchiveRegion:    os.Getenv("ARCHIVE_REGION"),
		ArchiveEndpoint:  os.Getenv("ARCHIVE_ENDPOINT"),
		ArchivePrefix:    os.Getenv("ARCHIVE_PREFIX"),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		SyncCheckSeconds: syncCheck,
	}
}
