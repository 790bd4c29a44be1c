package config

import (
	"flag"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// AgentConfig holds configuration for a page-context agent.
type AgentConfig struct {
	HubURL               string        `yaml:"hub_url"`
	ContextID            string        `yaml:"context_id"`
	Kind                 string        `yaml:"kind"`
	CallbackPort         int           `yaml:"callback_port"`
	LogLevel             string        `yaml:"log_level"`
	RedisAddr            string        `yaml:"redis_addr"`
	ChannelTimeout       time.Duration `yaml:"channel_timeout"`
	ReconnectDelay       time.Duration `yaml:"reconnect_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ConfigFile           string        `yaml:"-"`
}

// SetDefaults initializes c with built-in defaults.
func (c *AgentConfig) SetDefaults() {
	if c.HubURL == "" {
		c.HubURL = "http://127.0.0.1:8390"
	}
	if c.Kind == "" {
		c.Kind = "page"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ChannelTimeout == 0 {
		c.ChannelTimeout = time.Second
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 3 * time.Second
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 10
	}
}

// ApplyEnv overlays environment variables onto the current values.
func (c *AgentConfig) ApplyEnv() {
	if v := getEnv("CONFIG_FILE", ""); v != "" {
		c.ConfigFile = v
	}
	if v := getEnv("HUB_URL", ""); v != "" {
		c.HubURL = v
	}
	if v := getEnv("CONTEXT_ID", ""); v != "" {
		c.ContextID = v
	}
	if v := getEnv("CONTEXT_KIND", ""); v != "" {
		c.Kind = v
	}
	if v := getEnv("CALLBACK_PORT", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.CallbackPort = n
		}
	}
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := getEnv("REDIS_ADDR", ""); v != "" {
		c.RedisAddr = v
	}
	if v := getEnv("RECONNECT_DELAY", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.ReconnectDelay = d
		}
	}
	if v := getEnv("MAX_RECONNECT_ATTEMPTS", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxReconnectAttempts = n
		}
	}
}

// LoadFile overlays values from a YAML config file.
func (c *AgentConfig) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// BindFlags registers command-line flags bound to c.
func (c *AgentConfig) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.HubURL, "hub-url", c.HubURL, "hub base URL")
	fs.StringVar(&c.ContextID, "context-id", c.ContextID, "context identity (generated when empty)")
	fs.StringVar(&c.Kind, "kind", c.Kind, "context kind: page, panel, popup")
	fs.IntVar(&c.CallbackPort, "callback-port", c.CallbackPort, "local port for broadcast delivery (0 = ephemeral)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level")
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "redis address for the recovery flag store")
	fs.DurationVar(&c.ReconnectDelay, "reconnect-delay", c.ReconnectDelay, "delay between channel reconnect attempts")
	fs.IntVar(&c.MaxReconnectAttempts, "max-reconnect-attempts", c.MaxReconnectAttempts, "reconnect attempts before giving up")
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "config file path")
}
