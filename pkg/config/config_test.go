package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cstorehq/backoffice/pkg/config"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"LOG_LEVEL", "DATABASE_DRIVER", "DATABASE_URL", "SYNC_CHECK_SECONDS"} {
		t.Setenv(k, "")
	}

	cfg := config.Load()
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Contains(t, cfg.DatabaseURL, "backoffice.db")
	assert.Equal(t, 30, cfg.SyncCheckSeconds)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://bo@localhost/bo")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("ARCHIVE_BUCKET", "pos-archive")
	t.Setenv("SYNC_CHECK_SECONDS", "5")

	cfg := config.Load()
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, "pos-archive", cfg.ArchiveBucket)
	assert.Equal(t, 5, cfg.SyncCheckSeconds)
}

const goodIntegrations = `
integrations:
  - company_id: co-1
    store_id: st-1
    pos_type: GILBARCO_PASSPORT
    connection_mode: FILE_EXCHANGE
    exchange_root: /exchange/st-1
    store_location_id: "241"
    poll_interval_seconds: 300
    generate_acknowledgments: true
    sync:
      enabled: true
      interval_mins: 60
      departments: true
      tax_rates: true
  - company_id: co-1
    store_id: st-2
    pos_type: VERIFONE_COMMANDER
    connection_mode: FILE_EXCHANGE
    exchange_root: /exchange/st-2
`

func TestParseIntegrations(t *testing.T) {
	profiles, err := config.ParseIntegrations([]byte(goodIntegrations))
	require.NoError(t, err)
	require.Len(t, profiles, 2)

	first := profiles[0]
	assert.Equal(t, "co-1", first.CompanyID)
	assert.Equal(t, "GILBARCO_PASSPORT", first.POSType)
	assert.Equal(t, "241", first.StoreLocationID, "numeric-looking ids stay strings")
	assert.Equal(t, 300, first.PollIntervalSeconds)
	assert.True(t, first.GenerateAcks)
	assert.True(t, first.Sync.Enabled)
	assert.Equal(t, 60, first.Sync.IntervalMins)
	assert.True(t, first.Sync.Departments)
	assert.False(t, first.Sync.TenderTypes)
}

func TestParseIntegrations_SchemaViolations(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing store_id", `
integrations:
  - company_id: co-1
    pos_type: GILBARCO_PASSPORT
`},
		{"unknown pos_type", `
integrations:
  - company_id: co-1
    store_id: st-1
    pos_type: SQUARE
`},
		{"negative poll interval", `
integrations:
  - company_id: co-1
    store_id: st-1
    pos_type: GILBARCO_PASSPORT
    poll_interval_seconds: -5
`},
		{"unknown field", `
integrations:
  - company_id: co-1
    store_id: st-1
    pos_type: GILBARCO_PASSPORT
    frobnicate: true
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.ParseIntegrations([]byte(tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid integrations file")
		})
	}
}

func TestParseIntegrations_DuplicateStore(t *testing.T) {
	_, err := config.ParseIntegrations([]byte(`
integrations:
  - {company_id: co-1, store_id: st-1, pos_type: GILBARCO_PASSPORT}
  - {company_id: co-1, store_id: st-1, pos_type: GENERIC_NAXML}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "appears twice")
}

func TestParseIntegrations_FileBasedNeedsRoot(t *testing.T) {
	_, err := config.ParseIntegrations([]byte(`
integrations:
  - company_id: co-1
    store_id: st-1
    pos_type: GILBARCO_PASSPORT
    connection_mode: FILE_EXCHANGE
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exchange_root")
}

func TestLoadIntegrations_MissingFile(t *testing.T) {
	_, err := config.LoadIntegrations(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadIntegrations_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "integrations.yaml")
	require.NoError(t, os.WriteFile(path, []byte(goodIntegrations), 0o644))

	profiles, err := config.LoadIntegrations(path)
	require.NoError(t, err)
	assert.Len(t, profiles, 2)
}
