package app

import (
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/SERVIR/IMERG-30Min-ETL/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg, err := config.Parse([]byte(`{
  "transportDsn": "ftp://ftp.example.net",
  "lateFolder": "/gis",
  "earlyFolder": "/gis/early",
  "lateStagingDir": "` + filepath.Join(base, "late") + `",
  "earlyStagingDir": "` + filepath.Join(base, "early") + `",
  "archiveDir": "` + filepath.Join(base, "archive") + `",
  "catalogDsn": "postgres://localhost/imerg"
}`))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	return cfg
}

func TestBuildAssemblesARuntime(t *testing.T) {
	runtime, err := Build(testConfig(t), log.New(os.Stderr, "", 0))
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer runtime.Close()
	if runtime.Orchestrator == nil {
		t.Fatalf("expected an orchestrator")
	}
}

func TestBuildRejectsAnUnknownTransportScheme(t *testing.T) {
	cfg := testConfig(t)
	cfg.TransportDSN = "gopher://ftp.example.net"
	if _, err := Build(cfg, log.New(os.Stderr, "", 0)); err == nil {
		t.Fatalf("expected an unsupported scheme to fail")
	}
}

func TestCredentialedDSNOnlyTouchesDirectFTP(t *testing.T) {
	got, err := credentialedDSN("ftp://ftp.example.net", "jsimpson", "pw")
	if err != nil {
		t.Fatalf("credentialed dsn: %v", err)
	}
	if got != "ftp://jsimpson:pw@ftp.example.net" {
		t.Fatalf("unexpected dsn %q", got)
	}

	proxy := "ftpproxy+https://proxy.example.net/relay?host=ftp.example.net"
	got, err = credentialedDSN(proxy, "jsimpson", "pw")
	if err != nil {
		t.Fatalf("credentialed dsn: %v", err)
	}
	if got != proxy {
		t.Fatalf("expected the proxy dsn unchanged, got %q", got)
	}
}
