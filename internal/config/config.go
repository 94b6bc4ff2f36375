package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Listen     string   `yaml:"listen"`
	PatternDir string   `yaml:"patternDir"`
	Database   Database `yaml:"database"`
	Sound      Sound    `yaml:"sound"`
	Haptics    Haptics  `yaml:"haptics"`
	Log        Log      `yaml:"log"`
}

type Database struct {
	// Driver is sqlite, postgres or none.
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type Sound struct {
	Enabled   bool          `yaml:"enabled"`
	AssetPath string        `yaml:"assetPath"`
	ToneHz    float64       `yaml:"toneHz"`
	Smoothing time.Duration `yaml:"smoothing"`
}

type Haptics struct {
	// Backend is noop or serial.
	Backend  string `yaml:"backend"`
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baudRate"`
}

type Log struct {
	Development bool `yaml:"development"`
}

func DefaultConfig() Config {
	return Config{
		Listen:     ":8080",
		PatternDir: defaultDataPath("patterns"),
		Database: Database{
			Driver: "sqlite",
			DSN:    defaultDataPath("history.db"),
		},
		Sound: Sound{
			Enabled:   false,
			ToneHz:    180,
			Smoothing: 15 * time.Millisecond,
		},
		Haptics: Haptics{
			Backend:  "noop",
			Port:     "/dev/ttyUSB0",
			BaudRate: 9600,
		},
	}
}

func defaultDataPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".local", "share", "haptics", name)
}

// Load reads a YAML file over the defaults. A missing file yields the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres", "none":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	switch c.Haptics.Backend {
	case "noop", "serial":
	default:
		return fmt.Errorf("unknown haptics backend %q", c.Haptics.Backend)
	}
	if c.Sound.Smoothing <= 0 {
		return fmt.Errorf("sound smoothing must be positive, got %s", c.Sound.Smoothing)
	}
	if c.PatternDir == "" {
		return errors.New("patternDir must be set")
	}
	return nil
}
