package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Host          string        `json:"host"`
	Port          int           `json:"port"`
	NoBrowser     bool          `json:"no_browser"`
	RecordsDir    string        `json:"records_dir"`
	DataDir       string        `json:"data_dir"`
	DBPath        string        `json:"-"`
	DefaultCenter string        `json:"default_center,omitempty"`
	WriteTimeout  time.Duration `json:"-"`
}

// Default returns a Config with default values.
func Default() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf(
			"determining home directory: %w", err,
		)
	}
	dataDir := filepath.Join(home, ".clinicview")
	return Config{
		Host:         "127.0.0.1",
		Port:         8080,
		RecordsDir:   filepath.Join(dataDir, "records"),
		DataDir:      dataDir,
		DBPath:       filepath.Join(dataDir, "records.db"),
		WriteTimeout: 30 * time.Second,
	}, nil
}

// Load builds a Config by layering: defaults < config file <
// env < flags. The provided FlagSet must already be parsed by
// the caller. Only flags that were explicitly set override the
// lower layers.
func Load(fs *flag.FlagSet) (Config, error) {
	cfg, err := LoadMinimal()
	if err != nil {
		return cfg, err
	}
	applyFlags(&cfg, fs)
	return cfg, nil
}

// LoadMinimal builds a Config from defaults, config file, and
// env, without parsing CLI flags. Use this for subcommands that
// manage their own flag sets.
func LoadMinimal() (Config, error) {
	cfg, err := Default()
	if err != nil {
		return cfg, err
	}
	if err := cfg.loadFile(); err != nil {
		return cfg, fmt.Errorf("loading config file: %w", err)
	}
	cfg.loadEnv()
	cfg.DBPath = filepath.Join(cfg.DataDir, "records.db")
	return cfg, nil
}

func (c *Config) configPath() string {
	return filepath.Join(c.DataDir, "config.json")
}

func (c *Config) loadFile() error {
	// The data dir may itself be overridden by env; check that
	// location first so the file and the override agree.
	dataDir := c.DataDir
	if v := os.Getenv("CLINICVIEW_DATA_DIR"); v != "" {
		dataDir = v
	}
	data, err := os.ReadFile(
		filepath.Join(dataDir, "config.json"),
	)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var file struct {
		Host          string `json:"host"`
		Port          int    `json:"port"`
		RecordsDir    string `json:"records_dir"`
		DefaultCenter string `json:"default_center"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	if file.Host != "" {
		c.Host = file.Host
	}
	if file.Port != 0 {
		c.Port = file.Port
	}
	if file.RecordsDir != "" {
		c.RecordsDir = file.RecordsDir
	}
	if file.DefaultCenter != "" {
		c.DefaultCenter = file.DefaultCenter
	}
	return nil
}

func (c *Config) loadEnv() {
	if v := os.Getenv("CLINICVIEW_RECORDS_DIR"); v != "" {
		c.RecordsDir = v
	}
	if v := os.Getenv("CLINICVIEW_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("CLINICVIEW_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("CLINICVIEW_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	if v := os.Getenv("CLINICVIEW_DEFAULT_CENTER"); v != "" {
		c.DefaultCenter = v
	}
}

// RegisterServeFlags registers serve-command flags on fs.
// The caller must call fs.Parse before passing fs to Load.
func RegisterServeFlags(fs *flag.FlagSet) {
	fs.String("host", "127.0.0.1", "Host to bind to")
	fs.Int("port", 8080, "Port to listen on")
	fs.String("records-dir", "", "Directory of center record exports")
	fs.String("center", "", "Default center for dashboard queries")
	fs.Bool(
		"no-browser", false,
		"Don't open browser on startup",
	)
}

// applyFlags copies explicitly-set flags from fs into cfg.
func applyFlags(cfg *Config, fs *flag.FlagSet) {
	if fs == nil {
		return
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Host = f.Value.String()
		case "port":
			// flag already validated the int; ignore parse error
			cfg.Port, _ = strconv.Atoi(f.Value.String())
		case "records-dir":
			cfg.RecordsDir = f.Value.String()
		case "center":
			cfg.DefaultCenter = f.Value.String()
		case "no-browser":
			cfg.NoBrowser = f.Value.String() == "true"
		}
	})
}
