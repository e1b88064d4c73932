package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validConfig = `{
  "transportDsn": "ftpproxy+https://proxy.example.net/ProxyFTP.aspx?host=jsimpson.pps.eosdis.nasa.gov",
  "lateFolder": "/data/imerg/gis",
  "earlyFolder": "/data/imerg/gis/early",
  "lateStagingDir": "/var/imerg/staging/late",
  "earlyStagingDir": "/var/imerg/staging/early",
  "archiveDir": "/var/imerg/archive",
  "catalogDsn": "postgres://imerg:pw@localhost/imerg?sslmode=disable",
  "retentionDays": 60,
  "runInterval": "30m",
  "listenAddr": ":9090",
  "serviceRefresh": {
    "adminBase": "https://gis.example.net/arcgis/admin",
    "folder": "Global",
    "service": "IMERG_30Min"
  }
}`

func TestParseAcceptsAFullConfig(t *testing.T) {
	cfg, err := Parse([]byte(validConfig))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cfg.RetentionDays != 60 {
		t.Fatalf("unexpected retention days %d", cfg.RetentionDays)
	}
	if time.Duration(cfg.RunInterval) != 30*time.Minute {
		t.Fatalf("unexpected run interval %s", time.Duration(cfg.RunInterval))
	}
	if cfg.ListenAddr != ":9090" {
		t.Fatalf("unexpected listen addr %q", cfg.ListenAddr)
	}
	if cfg.ServiceRefresh == nil || cfg.ServiceRefresh.ServiceType != "ImageServer" {
		t.Fatalf("expected the default service type, got %+v", cfg.ServiceRefresh)
	}
}

func TestParseAppliesDefaults(t *testing.T) {
	minimal := `{
  "transportDsn": "ftp://ftp.example.net",
  "lateFolder": "/gis",
  "earlyFolder": "/gis/early",
  "lateStagingDir": "/tmp/late",
  "earlyStagingDir": "/tmp/early",
  "archiveDir": "/tmp/archive",
  "catalogDsn": "postgres://localhost/imerg"
}`
	cfg, err := Parse([]byte(minimal))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cfg.RetentionDays != 90 {
		t.Fatalf("expected the default retention, got %d", cfg.RetentionDays)
	}
	if time.Duration(cfg.RunInterval) != 30*time.Minute {
		t.Fatalf("expected the default interval, got %s", time.Duration(cfg.RunInterval))
	}
	if cfg.ListenAddr != ":8090" {
		t.Fatalf("expected the default listen addr, got %q", cfg.ListenAddr)
	}
	if cfg.ServiceRefresh != nil {
		t.Fatalf("expected no service refresh block, got %+v", cfg.ServiceRefresh)
	}
}

func TestParseRejectsMissingRequiredFields(t *testing.T) {
	_, err := Parse([]byte(`{"transportDsn": "ftp://ftp.example.net"}`))
	if err == nil {
		t.Fatalf("expected schema validation to fail")
	}
	if !strings.Contains(err.Error(), "schema") {
		t.Fatalf("expected a schema error, got %v", err)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	broken := strings.Replace(validConfig, `"retentionDays": 60,`, `"retentionDays": 60, "surprise": true,`, 1)
	if _, err := Parse([]byte(broken)); err == nil {
		t.Fatalf("expected unknown fields to be rejected")
	}
}

func TestParseRejectsMalformedDurations(t *testing.T) {
	broken := strings.Replace(validConfig, `"runInterval": "30m"`, `"runInterval": "tomorrow"`, 1)
	if _, err := Parse([]byte(broken)); err == nil {
		t.Fatalf("expected a malformed duration to be rejected")
	}
}

func TestParseRejectsNegativeRetention(t *testing.T) {
	broken := strings.Replace(validConfig, `"retentionDays": 60`, `"retentionDays": -5`, 1)
	if _, err := Parse([]byte(broken)); err == nil {
		t.Fatalf("expected negative retention to be rejected")
	}
}

func TestEnvironmentOverridesAndSecrets(t *testing.T) {
	t.Setenv("IMERG_CATALOG_DSN", "postgres://other/imerg")
	t.Setenv("IMERG_FTP_USERNAME", "jsimpson@example.net")
	t.Setenv("IMERG_FTP_PASSWORD", "hunter2")
	t.Setenv("IMERG_RETENTION_DAYS", "14")
	t.Setenv("IMERG_SERVICE_ADMIN_USERNAME", "siteadmin")
	t.Setenv("IMERG_SERVICE_ADMIN_PASSWORD", "adminpw")

	cfg, err := Parse([]byte(validConfig))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cfg.CatalogDSN != "postgres://other/imerg" {
		t.Fatalf("catalog dsn not overridden: %q", cfg.CatalogDSN)
	}
	if cfg.FTPUsername != "jsimpson@example.net" || cfg.FTPPassword != "hunter2" {
		t.Fatalf("ftp credentials not picked up")
	}
	if cfg.RetentionDays != 14 {
		t.Fatalf("retention not overridden: %d", cfg.RetentionDays)
	}
	if cfg.ServiceRefresh.Username != "siteadmin" || cfg.ServiceRefresh.Password != "adminpw" {
		t.Fatalf("service admin credentials not picked up")
	}
}

func TestLoadReadsFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(validConfig), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.LateFolder != "/data/imerg/gis" {
		t.Fatalf("unexpected late folder %q", cfg.LateFolder)
	}
}

func TestLoadReportsAMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatalf("expected a missing file to fail")
	}
}
