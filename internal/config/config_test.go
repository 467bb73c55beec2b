package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if cfg.Host != "127.0.0.1" || cfg.Port != 8080 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.DBPath != filepath.Join(cfg.DataDir, "records.db") {
		t.Errorf("DBPath = %q, want under data dir", cfg.DBPath)
	}
}

func TestLoad_Layering(t *testing.T) {
	dataDir := t.TempDir()
	configJSON := `{
		"port": 9000,
		"records_dir": "/srv/exports",
		"default_center": "center-file"
	}`
	if err := os.WriteFile(
		filepath.Join(dataDir, "config.json"),
		[]byte(configJSON), 0o644,
	); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CLINICVIEW_DATA_DIR", dataDir)
	t.Setenv("CLINICVIEW_DEFAULT_CENTER", "center-env")

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	RegisterServeFlags(fs)
	if err := fs.Parse([]string{"--port", "9100"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(fs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// File beats defaults, env beats file, flags beat env.
	if cfg.RecordsDir != "/srv/exports" {
		t.Errorf("RecordsDir = %q", cfg.RecordsDir)
	}
	if cfg.DefaultCenter != "center-env" {
		t.Errorf("DefaultCenter = %q", cfg.DefaultCenter)
	}
	if cfg.Port != 9100 {
		t.Errorf("Port = %d, want 9100", cfg.Port)
	}
	if cfg.DBPath != filepath.Join(dataDir, "records.db") {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
}

func TestLoad_UnsetFlagsDoNotOverride(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("CLINICVIEW_DATA_DIR", dataDir)
	t.Setenv("CLINICVIEW_PORT", "9200")

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	RegisterServeFlags(fs)
	if err := fs.Parse(nil); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(fs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9200 {
		t.Errorf("Port = %d, want env value 9200", cfg.Port)
	}
}

func TestLoad_MalformedConfigFile(t *testing.T) {
	dataDir := t.TempDir()
	if err := os.WriteFile(
		filepath.Join(dataDir, "config.json"),
		[]byte("{not json"), 0o644,
	); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CLINICVIEW_DATA_DIR", dataDir)

	if _, err := LoadMinimal(); err == nil {
		t.Fatal("expected error for malformed config file")
	}
}
