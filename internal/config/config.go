// Package config loads and validates the ETL runtime configuration. The
// config file carries endpoints and tuning; credentials come only from the
// environment so the file can live in version control.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServiceRefresh configures the optional post-run map service restart.
type ServiceRefresh struct {
	AdminBase   string `json:"adminBase"`
	Folder      string `json:"folder"`
	Service     string `json:"service"`
	ServiceType string `json:"serviceType"`

	// Username and Password are populated from the environment, never from
	// the config file.
	Username string `json:"-"`
	Password string `json:"-"`
}

// Config is the full runtime configuration for one archive instance.
type Config struct {
	// TransportDSN selects the remote archive transport, either a direct
	// ftp:// endpoint or an ftpproxy+https:// relay.
	TransportDSN string `json:"transportDsn"`
	LateFolder   string `json:"lateFolder"`
	EarlyFolder  string `json:"earlyFolder"`

	LateStagingDir  string `json:"lateStagingDir"`
	EarlyStagingDir string `json:"earlyStagingDir"`
	ArchiveDir      string `json:"archiveDir"`

	CatalogDSN    string `json:"catalogDsn"`
	RetentionDays int    `json:"retentionDays"`

	FilenamePattern string `json:"filenamePattern"`
	TimestampLayout string `json:"timestampLayout"`

	RunInterval Duration `json:"runInterval"`
	ListenAddr  string   `json:"listenAddr"`

	ServiceRefresh *ServiceRefresh `json:"serviceRefresh"`

	// FTPUsername and FTPPassword override credentials embedded in the
	// transport DSN. Environment only.
	FTPUsername string `json:"-"`
	FTPPassword string `json:"-"`
}

// Duration unmarshals Go duration strings ("30m", "1h") from JSON.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(value)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Load reads the config file at path, validates it against the embedded
// schema, applies environment overrides, and fills defaults.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// Parse validates and decodes a raw config document.
func Parse(raw []byte) (*Config, error) {
	if err := validateSchema(bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	cfg := &Config{}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("IMERG_TRANSPORT_DSN")); v != "" {
		c.TransportDSN = v
	}
	if v := strings.TrimSpace(os.Getenv("IMERG_CATALOG_DSN")); v != "" {
		c.CatalogDSN = v
	}
	c.FTPUsername = os.Getenv("IMERG_FTP_USERNAME")
	c.FTPPassword = os.Getenv("IMERG_FTP_PASSWORD")
	if v := intEnv("IMERG_RETENTION_DAYS", 0); v > 0 {
		c.RetentionDays = v
	}
	if c.ServiceRefresh != nil {
		c.ServiceRefresh.Username = os.Getenv("IMERG_SERVICE_ADMIN_USERNAME")
		c.ServiceRefresh.Password = os.Getenv("IMERG_SERVICE_ADMIN_PASSWORD")
	}
}

func (c *Config) applyDefaults() {
	if c.RetentionDays == 0 {
		c.RetentionDays = 90
	}
	if c.RunInterval == 0 {
		c.RunInterval = Duration(30 * time.Minute)
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":8090"
	}
	if c.ServiceRefresh != nil && c.ServiceRefresh.ServiceType == "" {
		c.ServiceRefresh.ServiceType = "ImageServer"
	}
}

func (c *Config) validate() error {
	var missing []string
	for _, field := range []struct {
		name, value string
	}{
		{"transportDsn", c.TransportDSN},
		{"lateFolder", c.LateFolder},
		{"earlyFolder", c.EarlyFolder},
		{"lateStagingDir", c.LateStagingDir},
		{"earlyStagingDir", c.EarlyStagingDir},
		{"archiveDir", c.ArchiveDir},
		{"catalogDsn", c.CatalogDSN},
	} {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("config missing required fields: %s", strings.Join(missing, ", "))
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("retentionDays must not be negative")
	}
	return nil
}

func intEnv(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}
