// Package config loads the safesync server configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"strings"
	"time"

	"github.com/ruteri/safesync/interfaces"
	"gopkg.in/yaml.v3"
)

// Config is the server configuration.
type Config struct {
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	// CachePath is the bbolt offline cache file. Empty disables the cache.
	CachePath string `yaml:"cache_path"`

	// Locations are storage location URIs. More than one location is
	// combined into a multi provider.
	Locations []string `yaml:"locations"`

	SyncTimeout time.Duration `yaml:"sync_timeout"`

	Safes []Safe `yaml:"safes"`
}

// Safe is a local database file pushed on a schedule.
type Safe struct {
	Name     string `yaml:"name"`
	Path     string `yaml:"path"`
	Ref      string `yaml:"ref"`
	Schedule string `yaml:"schedule"`
}

// Default returns the configuration used for fields the file leaves unset.
func Default() Config {
	return Config{
		ListenAddr:  "127.0.0.1:8080",
		MetricsAddr: "127.0.0.1:8090",
		SyncTimeout: 30 * time.Second,
	}
}

// Load reads the configuration at path, applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown fields are rejected.
// The result is not validated.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrMalformedConfig, err)
	}
	return &cfg, nil
}

// ApplyEnv overrides locations from SAFESYNC_LOCATIONS (comma separated)
// and the cache path from SAFESYNC_CACHE_PATH when they are set.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("SAFESYNC_LOCATIONS"); v != "" {
		c.Locations = nil
		for _, loc := range strings.Split(v, ",") {
			if loc = strings.TrimSpace(loc); loc != "" {
				c.Locations = append(c.Locations, loc)
			}
		}
	}
	if v := os.Getenv("SAFESYNC_CACHE_PATH"); v != "" {
		c.CachePath = v
	}
}

// StorageLocations parses the configured location URIs.
func (c *Config) StorageLocations() ([]interfaces.StorageLocation, error) {
	locations := make([]interfaces.StorageLocation, 0, len(c.Locations))
	for _, uri := range c.Locations {
		loc, err := interfaces.NewStorageLocation(uri)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidLocation, err)
		}
		locations = append(locations, loc)
	}
	return locations, nil
}

// Validate checks cfg and returns the first problem found.
func Validate(cfg *Config) error {
	if err := validateAddr(cfg.ListenAddr); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidListenAddr, err)
	}
	if cfg.MetricsAddr != "" {
		if err := validateAddr(cfg.MetricsAddr); err != nil {
			return fmt.Errorf("%w: metrics: %w", ErrInvalidListenAddr, err)
		}
	}

	if len(cfg.Locations) == 0 {
		return ErrNoLocations
	}
	if _, err := cfg.StorageLocations(); err != nil {
		return err
	}

	if cfg.SyncTimeout <= 0 {
		return ErrInvalidTimeout
	}

	seen := make(map[string]bool, len(cfg.Safes))
	for i, safe := range cfg.Safes {
		switch {
		case safe.Name == "":
			return fmt.Errorf("%w: safe %d has no name", ErrInvalidSafe, i)
		case seen[safe.Name]:
			return fmt.Errorf("%w: duplicate name %q", ErrInvalidSafe, safe.Name)
		case safe.Path == "":
			return fmt.Errorf("%w: safe %q has no path", ErrInvalidSafe, safe.Name)
		}
		if err := interfaces.FileReference(safe.Ref).Validate(); err != nil {
			return fmt.Errorf("%w: safe %q: %w", ErrInvalidSafe, safe.Name, err)
		}
		seen[safe.Name] = true
	}

	return nil
}

func validateAddr(addr string) error {
	_, _, err := net.SplitHostPort(addr)
	return err
}
