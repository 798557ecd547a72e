package daemonrun

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dtddsync/internal/config"
	"dtddsync/internal/logging"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Index.Path = filepath.Join(base, "data", "trigger_index.json")
	cfg.DTDD.APIKey = "dtdd-key"
	cfg.Jellyfin.URL = "http://jellyfin.invalid"
	cfg.Jellyfin.APIKey = "jf-key"
	return &cfg
}

func TestAssemble(t *testing.T) {
	cfg := testConfig(t)
	components, err := Assemble(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	defer components.Close()
	if components.Enricher == nil || components.Index == nil || components.Catalog == nil || components.Notifier == nil {
		t.Fatalf("incomplete components %+v", components)
	}
	if components.Index.Path() != cfg.Index.Path {
		t.Fatalf("index path = %q", components.Index.Path())
	}
	if _, err := os.Stat(cfg.LedgerPath()); err != nil {
		t.Fatalf("ledger not created: %v", err)
	}
}

func TestAssembleRejectsBadSeeds(t *testing.T) {
	cfg := testConfig(t)
	cfg.Index.SeedsPath = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := Assemble(cfg, logging.NewNop()); err == nil || !strings.Contains(err.Error(), "seeds") {
		t.Fatalf("expected seeds error, got %v", err)
	}
}

func TestAssembleRequiresKeys(t *testing.T) {
	cfg := testConfig(t)
	cfg.DTDD.APIKey = ""
	if _, err := Assemble(cfg, logging.NewNop()); err == nil {
		t.Fatal("expected missing api key to fail")
	}
}
