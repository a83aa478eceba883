// Package config loads comitup-watch settings from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Probe methods.
const (
	MethodPing = "ping"
	MethodICMP = "icmp"
	MethodHTTP = "http"
)

type Config struct {
	ServiceType     string        `yaml:"service_type"`
	FreshnessWindow time.Duration `yaml:"freshness_window"`
	StartupGrace    time.Duration `yaml:"startup_grace"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`

	Probe     ProbeConfig     `yaml:"probe"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Network   NetworkConfig   `yaml:"network"`
	API       APIConfig       `yaml:"api"`
	Log       LogConfig       `yaml:"log"`
}

type ProbeConfig struct {
	Method  string        `yaml:"method"`
	Timeout time.Duration `yaml:"timeout"`
	Period  time.Duration `yaml:"period"`

	// Rate is probes per second; Burst is how many may start at once.
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`

	// Binary overrides the ping executable.
	Binary string `yaml:"binary"`

	// Privileged selects raw ICMP sockets for the icmp method.
	Privileged bool `yaml:"privileged"`

	// Port is the web service port for the http method.
	Port int `yaml:"port"`
}

type DiscoveryConfig struct {
	Interface     string        `yaml:"interface"`
	QueryInterval time.Duration `yaml:"query_interval"`
}

type NetworkConfig struct {
	NMCLI          string        `yaml:"nmcli"`
	Debounce       time.Duration `yaml:"debounce"`
	RescanInterval time.Duration `yaml:"rescan_interval"`
}

// APIConfig controls the optional HTTP status API. An empty Listen
// disables it.
type APIConfig struct {
	Listen string  `yaml:"listen"`
	Rate   float64 `yaml:"rate"`
	Burst  int     `yaml:"burst"`
}

type LogConfig struct {
	File  string `yaml:"file"`
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ServiceType:     "_comitup._tcp.local.",
		FreshnessWindow: 30 * time.Second,
		StartupGrace:    5 * time.Second,
		SweepInterval:   time.Second,
		Probe: ProbeConfig{
			Method:  MethodPing,
			Timeout: 400 * time.Millisecond,
			Period:  10 * time.Second,
			Rate:    20,
			Burst:   5,
		},
		Discovery: DiscoveryConfig{
			QueryInterval: 10 * time.Second,
		},
		Network: NetworkConfig{
			NMCLI:          "nmcli",
			Debounce:       500 * time.Millisecond,
			RescanInterval: 30 * time.Second,
		},
		API: APIConfig{
			Rate:  200,
			Burst: 500,
		},
		Log: LogConfig{
			File:  "comitup-watch.log",
			Level: "info",
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("could not parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.ServiceType == "" {
		return fmt.Errorf("config: service_type must not be empty")
	}

	switch c.Probe.Method {
	case MethodPing, MethodICMP, MethodHTTP:
	default:
		return fmt.Errorf("config: unknown probe method %q (supported: %s, %s, %s)", c.Probe.Method, MethodPing, MethodICMP, MethodHTTP)
	}

	durations := []struct {
		key string
		d   time.Duration
	}{
		{"freshness_window", c.FreshnessWindow},
		{"sweep_interval", c.SweepInterval},
		{"probe.timeout", c.Probe.Timeout},
		{"probe.period", c.Probe.Period},
		{"discovery.query_interval", c.Discovery.QueryInterval},
		{"network.debounce", c.Network.Debounce},
		{"network.rescan_interval", c.Network.RescanInterval},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("config: %s must be positive, got %v", d.key, d.d)
		}
	}
	if c.StartupGrace < 0 {
		return fmt.Errorf("config: startup_grace must not be negative, got %v", c.StartupGrace)
	}

	if c.Probe.Rate <= 0 || c.Probe.Burst < 1 {
		return fmt.Errorf("config: probe rate and burst must be positive, got %v/%d", c.Probe.Rate, c.Probe.Burst)
	}
	if c.Probe.Port < 0 || c.Probe.Port > 65535 {
		return fmt.Errorf("config: probe.port out of range: %d", c.Probe.Port)
	}
	if c.API.Listen != "" && (c.API.Rate <= 0 || c.API.Burst < 1) {
		return fmt.Errorf("config: api rate and burst must be positive, got %v/%d", c.API.Rate, c.API.Burst)
	}
	return nil
}
