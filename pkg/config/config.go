// Package config loads ft settings from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kraitsura/flowtree/pkg/diagram"
	"github.com/kraitsura/flowtree/pkg/expansion"
	"github.com/kraitsura/flowtree/pkg/store"
)

// Environment overrides.
const (
	EnvDB           = "FT_DB"
	EnvWorkspace    = "FT_WORKSPACE"
	EnvStateBackend = "FT_STATE_BACKEND"
	EnvConfig       = "FT_CONFIG"
)

// DBFileName is searched for from the working directory upwards.
const DBFileName = ".flowtree.db"

// State backends.
const (
	StateFile   = "file"
	StateBadger = "badger"
	StateMemory = "memory"
)

// Config is the on-disk settings file.
type Config struct {
	Store    StoreConfig    `yaml:"store"`
	State    StateConfig    `yaml:"state"`
	Explorer ExplorerConfig `yaml:"explorer"`
	Server   ServerConfig   `yaml:"server"`
	Diagram  DiagramConfig  `yaml:"diagram"`
	Log      LogConfig      `yaml:"log"`
}

type StoreConfig struct {
	Driver    store.Driver `yaml:"driver"`
	Path      string       `yaml:"path,omitempty"`
	Workspace string       `yaml:"workspace"`
	Remote    string       `yaml:"remote,omitempty"` // base URL of an `ft serve` instance
}

type StateConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path,omitempty"`
}

type ExplorerConfig struct {
	VisibleDepth int  `yaml:"visible_depth"`
	ASCII        bool `yaml:"ascii,omitempty"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MutationRate   float64  `yaml:"mutation_rate"`
	MutationBurst  int      `yaml:"mutation_burst"`
}

type DiagramConfig struct {
	Direction   diagram.Direction `yaml:"direction"`
	MMDCPath    string            `yaml:"mmdc_path,omitempty"`
	Theme       string            `yaml:"theme,omitempty"`
	PreviewPort int               `yaml:"preview_port,omitempty"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file,omitempty"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Store:    StoreConfig{Driver: store.DriverPure, Workspace: store.DefaultWorkspace},
		State:    StateConfig{Backend: StateFile},
		Explorer: ExplorerConfig{VisibleDepth: expansion.VisibleDepth},
		Server: ServerConfig{
			Addr:           "127.0.0.1:8000",
			AllowedOrigins: []string{"http://localhost:3000"},
			MutationRate:   50,
			MutationBurst:  100,
		},
		Diagram: DiagramConfig{Direction: diagram.TopDown, Theme: "dark"},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/ft/config.yaml, falling back to
// ~/.config/ft/config.yaml.
func DefaultPath() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ft", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "ft", "config.yaml")
}

// Load reads path over the defaults. A missing file yields the defaults.
// Environment overrides are applied last.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes cfg as YAML, creating the directory.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ApplyEnv overlays FT_* variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvDB); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv(EnvWorkspace); v != "" {
		c.Store.Workspace = v
	}
	if v := os.Getenv(EnvStateBackend); v != "" {
		c.State.Backend = strings.ToLower(v)
	}
}

// Validate rejects settings no component can honour.
func (c Config) Validate() error {
	if !c.Store.Driver.IsValid() {
		return fmt.Errorf("store.driver: unknown driver %q (want %q or %q)", c.Store.Driver, store.DriverPure, store.DriverCGO)
	}
	switch c.State.Backend {
	case StateFile, StateBadger, StateMemory:
	default:
		return fmt.Errorf("state.backend: unknown backend %q", c.State.Backend)
	}
	if c.Explorer.VisibleDepth < 1 {
		return fmt.Errorf("explorer.visible_depth must be at least 1, got %d", c.Explorer.VisibleDepth)
	}
	if !c.Diagram.Direction.IsValid() {
		return fmt.Errorf("diagram.direction: unknown direction %q", c.Diagram.Direction)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// ParseLevel maps a config level name to slog.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return l, fmt.Errorf("log.level: %w", err)
	}
	return l, nil
}

// DiscoverDB finds the database path using priority: env > flag > walk-up >
// config file > data dir. The data dir path is returned even when it does not
// exist yet, since the store creates it.
func (c Config) DiscoverDB(flagPath string) (string, error) {
	// 1. Environment variable
	if envPath := os.Getenv(EnvDB); envPath != "" {
		return envPath, nil
	}

	// 2. CLI flag
	if flagPath != "" {
		return flagPath, nil
	}

	// 3. Walk up from CWD
	if dir, err := os.Getwd(); err == nil {
		for {
			candidate := filepath.Join(dir, DBFileName)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	// 4. Config file
	if c.Store.Path != "" {
		return c.Store.Path, nil
	}

	// 5. XDG data dir
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "ft", "flowtree.db"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("no database found (set %s, use --db, or run from a directory containing %s)", EnvDB, DBFileName)
	}
	return filepath.Join(home, ".local", "share", "ft", "flowtree.db"), nil
}

// StatePath returns the expansion state location for workspace.
func (c Config) StatePath(workspace string) string {
	if c.State.Path == "" {
		p := expansion.DefaultStatePath(workspace)
		if c.State.Backend == StateBadger && p != "" {
			return filepath.Join(filepath.Dir(p), "state.badger")
		}
		return p
	}
	if c.State.Backend == StateFile {
		return filepath.Join(c.State.Path, fmt.Sprintf("%s-%s.json", expansion.StorageKey, workspace))
	}
	return c.State.Path
}
