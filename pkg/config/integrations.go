package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// IntegrationProfile provisions one store's POS integration at startup.
type IntegrationProfile struct {
	CompanyID           string      `yaml:"company_id" json:"company_id"`
	StoreID             string      `yaml:"store_id" json:"store_id"`
	POSType             string      `yaml:"pos_type" json:"pos_type"`
	ConnectionMode      string      `yaml:"connection_mode,omitempty" json:"connection_mode,omitempty"`
	ExchangeRoot        string      `yaml:"exchange_root,omitempty" json:"exchange_root,omitempty"`
	ImportPath          string      `yaml:"import_path,omitempty" json:"import_path,omitempty"`
	ExportPath          string      `yaml:"export_path,omitempty" json:"export_path,omitempty"`
	ArchivePath         string      `yaml:"archive_path,omitempty" json:"archive_path,omitempty"`
	ErrorPath           string      `yaml:"error_path,omitempty" json:"error_path,omitempty"`
	NAXMLVersion        string      `yaml:"naxml_version,omitempty" json:"naxml_version,omitempty"`
	StoreLocationID     string      `yaml:"store_location_id,omitempty" json:"store_location_id,omitempty"`
	PollIntervalSeconds int         `yaml:"poll_interval_seconds,omitempty" json:"poll_interval_seconds,omitempty"`
	GenerateAcks        bool        `yaml:"generate_acknowledgments,omitempty" json:"generate_acknowledgments,omitempty"`
	ArchiveProcessed    *bool       `yaml:"archive_processed,omitempty" json:"archive_processed,omitempty"`
	Sync                SyncProfile `yaml:"sync,omitempty" json:"sync,omitempty"`

	// Credentials are sealed into the integration record at provisioning
	// time and never stored in plaintext.
	Credentials *CredentialsProfile `yaml:"credentials,omitempty" json:"credentials,omitempty"`
}

// CredentialsProfile is the plaintext connection login of a network-mode
// integration as written in the provisioning file.
type CredentialsProfile struct {
	Host     string `yaml:"host,omitempty" json:"host,omitempty"`
	Port     int    `yaml:"port,omitempty" json:"port,omitempty"`
	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
	APIKey   string `yaml:"api_key,omitempty" json:"api_key,omitempty"`
}

// SyncProfile carries the per-integration sync flags.
type SyncProfile struct {
	Enabled      bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	IntervalMins int  `yaml:"interval_mins,omitempty" json:"interval_mins,omitempty"`
	Departments  bool `yaml:"departments,omitempty" json:"departments,omitempty"`
	TenderTypes  bool `yaml:"tender_types,omitempty" json:"tender_types,omitempty"`
	Cashiers     bool `yaml:"cashiers,omitempty" json:"cashiers,omitempty"`
	TaxRates     bool `yaml:"tax_rates,omitempty" json:"tax_rates,omitempty"`
}

// integrationsSchema rejects malformed provisioning files before any of
// their content reaches the database.
const integrationsSchema = `{
  "type": "object",
  "required": ["integrations"],
  "properties": {
    "integrations": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["company_id", "store_id", "pos_type"],
        "properties": {
          "company_id": {"type": "string", "minLength": 1},
          "store_id": {"type": "string", "minLength": 1},
          "pos_type": {"type": "string", "enum": ["GILBARCO_PASSPORT", "VERIFONE_COMMANDER", "GENERIC_NAXML"]},
          "connection_mode": {"type": "string", "enum": ["FILE_EXCHANGE", "NETWORK"]},
          "exchange_root": {"type": "string"},
          "import_path": {"type": "string"},
          "export_path": {"type": "string"},
          "archive_path": {"type": "string"},
          "error_path": {"type": "string"},
          "naxml_version": {"type": "string"},
          "store_location_id": {"type": "string"},
          "poll_interval_seconds": {"type": "integer", "minimum": 0},
          "generate_acknowledgments": {"type": "boolean"},
          "archive_processed": {"type": "boolean"},
          "sync": {
            "type": "object",
            "properties": {
              "enabled": {"type": "boolean"},
              "interval_mins": {"type": "integer", "minimum": 1},
              "departments": {"type": "boolean"},
              "tender_types": {"type": "boolean"},
              "cashiers": {"type": "boolean"},
              "tax_rates": {"type": "boolean"}
            },
            "additionalProperties": false
          },
          "credentials": {
            "type": "object",
            "properties": {
              "host": {"type": "string"},
              "port": {"type": "integer", "minimum": 1, "maximum": 65535},
              "username": {"type": "string"},
              "password": {"type": "string"},
              "api_key": {"type": "string"}
            },
            "additionalProperties": false
          }
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`

type integrationsFile struct {
	Integrations []IntegrationProfile `yaml:"integrations" json:"integrations"`
}

// LoadIntegrations reads and validates a provisioning file. Validation
// failures name the offending path inside the document.
func LoadIntegrations(path string) ([]IntegrationProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load integrations %q: %w", path, err)
	}
	return ParseIntegrations(data)
}

// ParseIntegrations validates and decodes provisioning YAML.
func ParseIntegrations(data []byte) ([]IntegrationProfile, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse integrations: %w", err)
	}

	// The schema validator wants json-decoded values, so round-trip the
	// YAML document through JSON first.
	jsonBytes, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("normalize integrations: %w", err)
	}
	var doc any
	if err := json.Unmarshal(jsonBytes, &doc); err != nil {
		return nil, fmt.Errorf("normalize integrations: %w", err)
	}

	schema := jsonschema.MustCompileString("integrations.json", integrationsSchema)
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("invalid integrations file: %w", err)
	}

	var file integrationsFile
	if err := json.Unmarshal(jsonBytes, &file); err != nil {
		return nil, fmt.Errorf("decode integrations: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Integrations))
	for _, p := range file.Integrations {
		if _, dup := seen[p.StoreID]; dup {
			return nil, fmt.Errorf("invalid integrations file: store %s appears twice", p.StoreID)
		}
		seen[p.StoreID] = struct{}{}
		if strings.EqualFold(p.ConnectionMode, "FILE_EXCHANGE") && p.ExchangeRoot == "" {
			return nil, fmt.Errorf("invalid integrations file: store %s is file-based without exchange_root", p.StoreID)
		}
	}
	return file.Integrations, nil
}
