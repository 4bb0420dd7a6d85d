package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Probe names accepted in the probes list.
const (
	ProbeGit          = "git"
	ProbeWeather      = "weather"
	ProbeConnectivity = "connectivity"
)

// Connectivity methods.
const (
	MethodPing = "ping"
	MethodTCP  = "tcp"
)

// Config represents configuration data for the feed builder, the stats
// recorder and the web page.
type Config struct {
	DataDirectory string             `yaml:"data_directory"`
	FeedFile      string             `yaml:"feed_file"`
	StatsDB       string             `yaml:"stats_db"`
	RetentionDays int                `yaml:"retention_days"`
	LogLevel      string             `yaml:"log_level"`
	Probes        []string           `yaml:"probes"`
	Git           GitConfig          `yaml:"git"`
	Weather       WeatherConfig      `yaml:"weather"`
	Connectivity  ConnectivityConfig `yaml:"connectivity"`
	Sampler       SamplerConfig      `yaml:"sampler"`
	Server        ServerConfig       `yaml:"server"`
}

// GitConfig points the git probe at a working tree.
type GitConfig struct {
	RepoPath       string `yaml:"repo_path"`
	Fetch          *bool  `yaml:"fetch"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// WeatherConfig describes the forecast location and API client identity.
type WeatherConfig struct {
	Name           string  `yaml:"name"`
	Latitude       float64 `yaml:"latitude"`
	Longitude      float64 `yaml:"longitude"`
	Endpoint       string  `yaml:"endpoint"`
	UserAgent      string  `yaml:"user_agent"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// ConnectivityConfig defines the reachability check.
type ConnectivityConfig struct {
	Target         string `yaml:"target"`
	Method         string `yaml:"method"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// SamplerConfig tunes the resource readers.
type SamplerConfig struct {
	CPUIntervalMS  int    `yaml:"cpu_interval_ms"`
	DiskPath       string `yaml:"disk_path"`
	IPProbeAddress string `yaml:"ip_probe_address"`
}

// ServerConfig configures the status page.
type ServerConfig struct {
	Addr               string  `yaml:"addr"`
	PushIntervalSec    int     `yaml:"push_interval_seconds"`
	StatsRatePerSecond float64 `yaml:"stats_rate_per_second"`
}

// DefaultConfig returns sensible defaults in case no configuration file is provided.
func DefaultConfig() Config {
	fetch := true
	return Config{
		DataDirectory: "data",
		FeedFile:      "feed.json",
		StatsDB:       "stats.sqlite",
		RetentionDays: 7,
		LogLevel:      "info",
		Probes:        []string{ProbeGit, ProbeWeather, ProbeConnectivity},
		Git: GitConfig{
			RepoPath:       ".",
			Fetch:          &fetch,
			TimeoutSeconds: 20,
		},
		Weather: WeatherConfig{
			Name:           "Oslo",
			Latitude:       59.91,
			Longitude:      10.75,
			Endpoint:       "https://api.met.no/weatherapi/locationforecast/2.0/compact",
			TimeoutSeconds: 10,
		},
		Connectivity: ConnectivityConfig{
			Target:         "8.8.8.8",
			Method:         MethodPing,
			TimeoutSeconds: 1,
		},
		Sampler: SamplerConfig{
			CPUIntervalMS:  200,
			DiskPath:       "/",
			IPProbeAddress: "8.8.8.8:80",
		},
		Server: ServerConfig{
			Addr:               ":8000",
			PushIntervalSec:    5,
			StatsRatePerSecond: 2,
		},
	}
}

// Load reads configuration from yaml file. Missing files fall back to defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.DataDirectory == "" {
		c.DataDirectory = def.DataDirectory
	}
	if c.FeedFile == "" {
		c.FeedFile = def.FeedFile
	}
	if c.StatsDB == "" {
		c.StatsDB = def.StatsDB
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = def.RetentionDays
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.Git.RepoPath == "" {
		c.Git.RepoPath = def.Git.RepoPath
	}
	if c.Git.Fetch == nil {
		c.Git.Fetch = def.Git.Fetch
	}
	if c.Git.TimeoutSeconds <= 0 {
		c.Git.TimeoutSeconds = def.Git.TimeoutSeconds
	}
	if c.Weather.Name == "" {
		c.Weather.Name = def.Weather.Name
	}
	if c.Weather.Endpoint == "" {
		c.Weather.Endpoint = def.Weather.Endpoint
	}
	if c.Weather.TimeoutSeconds <= 0 {
		c.Weather.TimeoutSeconds = def.Weather.TimeoutSeconds
	}
	if c.Connectivity.Target == "" {
		c.Connectivity.Target = def.Connectivity.Target
	}
	if c.Connectivity.Method == "" {
		c.Connectivity.Method = def.Connectivity.Method
	}
	if c.Connectivity.TimeoutSeconds <= 0 {
		c.Connectivity.TimeoutSeconds = def.Connectivity.TimeoutSeconds
	}
	if c.Sampler.CPUIntervalMS <= 0 {
		c.Sampler.CPUIntervalMS = def.Sampler.CPUIntervalMS
	}
	if c.Sampler.DiskPath == "" {
		c.Sampler.DiskPath = def.Sampler.DiskPath
	}
	if c.Sampler.IPProbeAddress == "" {
		c.Sampler.IPProbeAddress = def.Sampler.IPProbeAddress
	}
	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
	if c.Server.PushIntervalSec <= 0 {
		c.Server.PushIntervalSec = def.Server.PushIntervalSec
	}
	if c.Server.StatsRatePerSecond <= 0 {
		c.Server.StatsRatePerSecond = def.Server.StatsRatePerSecond
	}
}

// Validate reports structural problems. The weather user agent is
// checked when the weather probe is built, so serving the page does not
// require it.
func (c Config) Validate() error {
	seen := make(map[string]bool, len(c.Probes))
	for _, name := range c.Probes {
		switch name {
		case ProbeGit, ProbeWeather, ProbeConnectivity:
		default:
			return fmt.Errorf("unknown probe %q", name)
		}
		if seen[name] {
			return fmt.Errorf("probe %q listed more than once", name)
		}
		seen[name] = true
	}
	switch c.Connectivity.Method {
	case MethodPing, MethodTCP:
	default:
		return fmt.Errorf("connectivity method must be %q or %q, got %q", MethodPing, MethodTCP, c.Connectivity.Method)
	}
	if c.Weather.Latitude < -90 || c.Weather.Latitude > 90 {
		return fmt.Errorf("weather latitude %v out of range", c.Weather.Latitude)
	}
	if c.Weather.Longitude < -180 || c.Weather.Longitude > 180 {
		return fmt.Errorf("weather longitude %v out of range", c.Weather.Longitude)
	}
	return nil
}

// FeedPath is the canonical location of the persisted feed.
func (c Config) FeedPath() string {
	return c.dataPath(c.FeedFile)
}

// StatsDBPath is the location of the sample store.
func (c Config) StatsDBPath() string {
	return c.dataPath(c.StatsDB)
}

// Retention is the maximum age of a stored sample.
func (c Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// FetchEnabled reports whether the git probe refreshes remote refs first.
func (g GitConfig) FetchEnabled() bool {
	return g.Fetch == nil || *g.Fetch
}

func (c Config) dataPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.DataDirectory, name)
}
