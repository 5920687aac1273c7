// Package config manages lanshare configuration: defaults, the JSON file in
// ~/.lanshare, environment overrides and live reload
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// ConfigDirName is the name of the config directory
	ConfigDirName = ".lanshare"
	// ConfigFileName is the name of the config file
	ConfigFileName = "config.json"
)

// Config holds the lanshare configuration
type Config struct {
	// Name is announced to viewers; the hostname when empty
	Name string `json:"name"`
	// Username travels in the register message when viewing
	Username string `json:"username"`

	VideoPort     int `json:"video_port"`
	CommandPort   int `json:"command_port"`
	DiscoveryPort int `json:"discovery_port"`

	Width           int `json:"width"`
	JPEGQuality     int `json:"jpeg_quality"`
	ChunkSize       int `json:"chunk_size"`
	FrameIntervalMs int `json:"frame_interval_ms"`
	// Monitor is the display index captured by serve
	Monitor int `json:"monitor"`

	Announce           bool `json:"announce"`
	AnnounceIntervalMs int  `json:"announce_interval_ms"`
	ScanDurationMs     int  `json:"scan_duration_ms"`

	// MetricsAddr enables the status/metrics HTTP endpoint, e.g. "127.0.0.1:9090"
	MetricsAddr string `json:"metrics_addr,omitempty"`

	Verbose    bool      `json:"verbose"`
	InputDebug bool      `json:"input_debug"`
	Log        LogConfig `json:"log"`
}

// LogConfig controls the optional rotating log file
type LogConfig struct {
	File       string `json:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// FrameInterval returns the pause between two streamed frames
func (c *Config) FrameInterval() time.Duration {
	return time.Duration(c.FrameIntervalMs) * time.Millisecond
}

// AnnounceInterval returns the discovery broadcast period
func (c *Config) AnnounceInterval() time.Duration {
	return time.Duration(c.AnnounceIntervalMs) * time.Millisecond
}

// ScanDuration returns the discovery listening window
func (c *Config) ScanDuration() time.Duration {
	return time.Duration(c.ScanDurationMs) * time.Millisecond
}

// Paths holds commonly used paths
type Paths struct {
	// ConfigDir is ~/.lanshare
	ConfigDir string
	// ConfigFile is ~/.lanshare/config.json
	ConfigFile string
	// LogsDir is ~/.lanshare/logs
	LogsDir string
}

// GetPaths returns the standard paths
func GetPaths() (*Paths, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ConfigDirName)
	return &Paths{
		ConfigDir:  configDir,
		ConfigFile: filepath.Join(configDir, ConfigFileName),
		LogsDir:    filepath.Join(configDir, "logs"),
	}, nil
}

// EnsureDirectories creates all required directories
func (p *Paths) EnsureDirectories() error {
	dirs := []string{p.ConfigDir, p.LogsDir}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Default returns a new Config with default values
func Default() *Config {
	return &Config{
		VideoPort:          9999,
		CommandPort:        9998,
		DiscoveryPort:      9997,
		Width:              640,
		JPEGQuality:        50,
		ChunkSize:          8192,
		FrameIntervalMs:    10,
		Announce:           true,
		AnnounceIntervalMs: 2000,
		ScanDurationMs:     3000,
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// DefaultPath returns ~/.lanshare/config.json, creating the directories
func DefaultPath() (string, error) {
	paths, err := GetPaths()
	if err != nil {
		return "", err
	}
	if err := paths.EnsureDirectories(); err != nil {
		return "", err
	}
	return paths.ConfigFile, nil
}

// Load reads the config file at path (the default path when empty),
// applies environment overrides and validates the result. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration to path (the default path when empty)
func (c *Config) Save(path string) error {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from LANSHARE_* variables
func (c *Config) ApplyEnv() error {
	ints := []struct {
		key string
		dst *int
	}{
		{"LANSHARE_VIDEO_PORT", &c.VideoPort},
		{"LANSHARE_COMMAND_PORT", &c.CommandPort},
		{"LANSHARE_DISCOVERY_PORT", &c.DiscoveryPort},
		{"LANSHARE_WIDTH", &c.Width},
		{"LANSHARE_JPEG_QUALITY", &c.JPEGQuality},
		{"LANSHARE_CHUNK_SIZE", &c.ChunkSize},
		{"LANSHARE_MONITOR", &c.Monitor},
	}
	for _, e := range ints {
		if v := os.Getenv(e.key); v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("invalid %s=%q: %w", e.key, v, err)
			}
			*e.dst = n
		}
	}

	if v := os.Getenv("LANSHARE_NAME"); v != "" {
		c.Name = v
	}
	if v := os.Getenv("LANSHARE_USERNAME"); v != "" {
		c.Username = v
	}
	if v := os.Getenv("LANSHARE_LOG_FILE"); v != "" {
		c.Log.File = v
	}
	if v := os.Getenv("LANSHARE_METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	if v := os.Getenv("LANSHARE_VERBOSE"); v != "" {
		c.Verbose = truthy(v)
	}
	if v := os.Getenv("SS_INPUT_DEBUG"); v != "" {
		c.InputDebug = truthy(v)
	}
	return nil
}

// Validate checks ranges
func (c *Config) Validate() error {
	for name, port := range map[string]int{
		"video_port":     c.VideoPort,
		"command_port":   c.CommandPort,
		"discovery_port": c.DiscoveryPort,
	} {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("%s %d out of range", name, port)
		}
	}
	if c.JPEGQuality < 0 || c.JPEGQuality > 100 {
		return fmt.Errorf("jpeg_quality %d out of range 0-100", c.JPEGQuality)
	}
	if c.Width < 0 {
		return fmt.Errorf("width %d must not be negative", c.Width)
	}
	if c.ChunkSize < 64 || c.ChunkSize > 65000 {
		return fmt.Errorf("chunk_size %d out of range 64-65000", c.ChunkSize)
	}
	if c.FrameIntervalMs < 0 || c.AnnounceIntervalMs < 0 || c.ScanDurationMs < 0 {
		return errors.New("intervals must not be negative")
	}
	if c.Monitor < 0 {
		return fmt.Errorf("monitor %d must not be negative", c.Monitor)
	}
	return nil
}

// DisplayName returns Name, or the hostname when unset
func (c *Config) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "Unknown"
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
