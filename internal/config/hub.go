// Package config resolves hub and agent configuration with the
// precedence defaults < config file < environment < flags.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// HubConfig holds configuration for the bridge hub daemon.
type HubConfig struct {
	Port            int           `yaml:"port"`
	MetricsAddr     string        `yaml:"metrics_addr"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	LogLevel        string        `yaml:"log_level"`
	HeartbeatExpiry time.Duration `yaml:"heartbeat_expiry"`
	ConfigFile      string        `yaml:"-"`
}

// SetDefaults initializes c with built-in defaults.
func (c *HubConfig) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Port == 0 {
		c.Port = 8390
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = fmt.Sprintf(":%d", c.Port)
	}
	if c.HeartbeatExpiry == 0 {
		c.HeartbeatExpiry = 15 * time.Second
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
}

// ApplyEnv overlays environment variables onto the current values.
func (c *HubConfig) ApplyEnv() {
	if v := getEnv("CONFIG_FILE", ""); v != "" {
		c.ConfigFile = v
	}
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := getEnv("PORT", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	if v := getEnv("METRICS_ADDR", ""); v != "" {
		if strings.Contains(v, ":") {
			c.MetricsAddr = v
		} else {
			c.MetricsAddr = ":" + v
		}
	}
	if v := getEnv("ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitList(v)
	}
	if v := getEnv("HEARTBEAT_EXPIRY", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HeartbeatExpiry = d
		}
	}
}

// LoadFile overlays values from a YAML config file.
func (c *HubConfig) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// BindFlags registers command-line flags bound to c.
func (c *HubConfig) BindFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.Port, "port", c.Port, "listen port")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "metrics listen address")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level")
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "config file path")
	fs.DurationVar(&c.HeartbeatExpiry, "heartbeat-expiry", c.HeartbeatExpiry, "evict contexts silent for this long")
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv("BRIDGE_" + key); ok {
		return v
	}
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
