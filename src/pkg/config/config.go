// Package config loads the imagestore settings from an optional YAML file and
// the process environment. Settings are read once at startup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/q-controller/imagestore/src/pkg/images/picker"
	"github.com/q-controller/imagestore/src/pkg/images/upload"
	"github.com/q-controller/imagestore/src/pkg/utils"
)

const (
	EnvEndpoint = "IMAGESTORE_API_URL"
	EnvAPIKey   = "IMAGESTORE_API_KEY"
	EnvRoot     = "IMAGESTORE_ROOT"
)

type Config struct {
	// Root is the app-private directory; relative paths below resolve
	// against it.
	Root       string `yaml:"root"`
	ImagesDir  string `yaml:"images_dir"`
	JournalDir string `yaml:"journal_dir"`
	LibraryDir string `yaml:"library_dir"`
	InboxDir   string `yaml:"inbox_dir"`

	Endpoint    string        `yaml:"endpoint"`
	APIKey      string        `yaml:"api_key"`
	SettleDelay time.Duration `yaml:"settle_delay"`

	Port           int           `yaml:"port"`
	GRPCPort       int           `yaml:"grpc_port"`
	CaptureTimeout time.Duration `yaml:"capture_timeout"`
	CaptureQuiet   time.Duration `yaml:"capture_quiet"`
	LogLevel       string        `yaml:"log_level"`
}

func Default() *Config {
	root := ".imagestore"
	if home, err := os.UserHomeDir(); err == nil {
		root = filepath.Join(home, ".imagestore")
	}

	return &Config{
		Root:           root,
		ImagesDir:      "images",
		JournalDir:     "journal",
		LibraryDir:     "library",
		InboxDir:       "inbox",
		SettleDelay:    upload.DefaultSettleDelay,
		Port:           8080,
		GRPCPort:       8081,
		CaptureTimeout: 2 * time.Minute,
		CaptureQuiet:   picker.DefaultQuiet,
	}
}

// Load reads path (skipped when empty) over the defaults and applies the
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if unmarshalErr := utils.Unmarshal(cfg, path); unmarshalErr != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, unmarshalErr)
		}
	}

	if root := os.Getenv(EnvRoot); root != "" {
		cfg.Root = root
	}
	if endpoint := os.Getenv(EnvEndpoint); endpoint != "" {
		cfg.Endpoint = endpoint
	}
	if apiKey := os.Getenv(EnvAPIKey); apiKey != "" {
		cfg.APIKey = apiKey
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("root must be set")
	}
	if c.ImagesDir == "" {
		return fmt.Errorf("images_dir must be set")
	}
	if c.Endpoint != "" && !utils.IsHTTP(c.Endpoint) {
		return fmt.Errorf("endpoint %q is not an http(s) url", c.Endpoint)
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("settle_delay must not be negative")
	}
	if c.CaptureQuiet < 0 {
		return fmt.Errorf("capture_quiet must not be negative")
	}
	for name, port := range map[string]int{"port": c.Port, "grpc_port": c.GRPCPort} {
		if port < 0 || port > 65535 {
			return fmt.Errorf("%s %d is out of range", name, port)
		}
	}
	return nil
}

func (c *Config) resolve(dir string) string {
	if dir == "" || filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(c.Root, dir)
}

func (c *Config) ImagesPath() string  { return c.resolve(c.ImagesDir) }
func (c *Config) JournalPath() string { return c.resolve(c.JournalDir) }
func (c *Config) LibraryPath() string { return c.resolve(c.LibraryDir) }
func (c *Config) InboxPath() string   { return c.resolve(c.InboxDir) }

// UploadEnabled reports whether an endpoint was configured.
func (c *Config) UploadEnabled() bool {
	return c.Endpoint != ""
}
