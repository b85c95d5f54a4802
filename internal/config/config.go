// Package config handles configuration loading, environment overlay,
// validation and persistence for slingshot.
package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"
	DefaultGamePort   = 2004
	DefaultAPIListen  = "127.0.0.1:5080"
	DefaultTeamID     = 424242

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "SLINGSHOT_"
)

// Config is the root configuration structure.
type Config struct {
	mu   sync.RWMutex
	path string

	Server     ServerConfig     `json:"server"`
	Session    SessionConfig    `json:"session"`
	Supervisor SupervisorConfig `json:"supervisor"`
	API        APIConfig        `json:"api"`
	MQTT       MQTTConfig       `json:"mqtt"`
	Storage    StorageConfig    `json:"storage"`
	Logging    LoggingConfig    `json:"logging"`
}

// ServerConfig locates the game automation server.
type ServerConfig struct {
	Host              string `json:"host"`
	Port              int    `json:"port"`
	TeamID            int    `json:"team_id"`
	TimeoutSec        int    `json:"timeout_sec"`
	ConnectTimeoutSec int    `json:"connect_timeout_sec"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// CallTimeout is the per-exchange deadline.
func (s ServerConfig) CallTimeout() time.Duration {
	return time.Duration(s.TimeoutSec) * time.Second
}

// ConnectTimeout bounds the TCP dial.
func (s ServerConfig) ConnectTimeout() time.Duration {
	return time.Duration(s.ConnectTimeoutSec) * time.Second
}

// SessionConfig holds the protocol session policy.
type SessionConfig struct {
	StartLevel    int    `json:"start_level"`
	MaxZoomTrials int    `json:"max_zoom_trials"`
	ShotRetries   int    `json:"shot_retries"`
	LoadOnConnect bool   `json:"load_on_connect"`
	DefaultMode   string `json:"default_mode"`
}

// SupervisorConfig controls the optional game-server process and the
// reconnect policy.
type SupervisorConfig struct {
	GameCommand             string   `json:"game_command"`
	GameArgs                []string `json:"game_args"`
	WorkDir                 string   `json:"work_dir"`
	StartupDelaySec         int      `json:"startup_delay_sec"`
	RestartEveryEpisodes    int      `json:"restart_every_episodes"`
	ConnectRetries          int      `json:"connect_retries"`
	ConnectRetryIntervalSec int      `json:"connect_retry_interval_sec"`
}

// APIConfig holds the REST control surface settings.
type APIConfig struct {
	Enabled        bool     `json:"enabled"`
	Listen         string   `json:"listen"`
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps"`
	EnableMetrics  bool     `json:"enable_metrics"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled              bool   `json:"enabled"`
	BrokerURL            string `json:"broker_url"`
	Port                 int    `json:"port"`
	UseTLS               bool   `json:"use_tls"`
	CertFile             string `json:"cert_file"`
	KeyFile              string `json:"key_file"`
	CAFile               string `json:"ca_file"`
	ClientID             string `json:"client_id"`
	TopicPrefix          string `json:"topic_prefix"`
	HeartbeatIntervalSec int    `json:"heartbeat_interval_sec"`
}

// StorageConfig holds the SQLite history settings.
type StorageConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	Console    bool   `json:"console"`
	MaxAgeDays int    `json:"max_age_days"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "127.0.0.1",
			Port:              DefaultGamePort,
			TeamID:            DefaultTeamID,
			TimeoutSec:        30,
			ConnectTimeoutSec: 10,
		},
		Session: SessionConfig{
			StartLevel:    1,
			MaxZoomTrials: 5,
			ShotRetries:   0,
			LoadOnConnect: true,
			DefaultMode:   "safe",
		},
		Supervisor: SupervisorConfig{
			StartupDelaySec:         5,
			RestartEveryEpisodes:    0,
			ConnectRetries:          5,
			ConnectRetryIntervalSec: 3,
		},
		API: APIConfig{
			Enabled:       true,
			Listen:        DefaultAPIListen,
			RateLimitRPS:  50,
			EnableMetrics: true,
		},
		MQTT: MQTTConfig{
			Enabled:              false,
			BrokerURL:            "localhost",
			Port:                 1883,
			TopicPrefix:          "slingshot",
			HeartbeatIntervalSec: 60,
		},
		Storage: StorageConfig{
			Enabled: true,
			Path:    filepath.Join("data", "slingshot.db"),
		},
		Logging: LoggingConfig{
			Level:      "info",
			Directory:  "logs",
			Console:    true,
			MaxAgeDays: 7,
		},
	}
}

// Load reads configuration from configDir/config.json, creating it with
// defaults when missing.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env")
// into the process environment. Missing files are ignored.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("file", f).Msg("failed to load env file")
		}
	}
}

// ApplyEnv overlays SLINGSHOT_* environment variables onto the config.
// It returns the names of the variables that were applied.
func (c *Config) ApplyEnv() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var applied []string
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
			applied = append(applied, EnvPrefix+name)
		}
	}
	num := func(name string, dst *int) error {
		v, ok := os.LookupEnv(EnvPrefix + name)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
		applied = append(applied, EnvPrefix+name)
		return nil
	}

	str("HOST", &c.Server.Host)
	str("LOG_LEVEL", &c.Logging.Level)
	str("API_LISTEN", &c.API.Listen)
	str("DB_PATH", &c.Storage.Path)
	if v, ok := os.LookupEnv(EnvPrefix + "MQTT_BROKER"); ok {
		c.MQTT.BrokerURL = v
		c.MQTT.Enabled = v != ""
		applied = append(applied, EnvPrefix+"MQTT_BROKER")
	}
	for name, dst := range map[string]*int{
		"PORT":        &c.Server.Port,
		"TEAM_ID":     &c.Server.TeamID,
		"TIMEOUT_SEC": &c.Server.TimeoutSec,
	} {
		if err := num(name, dst); err != nil {
			return applied, err
		}
	}
	return applied, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetServer returns a copy of the server section.
func (c *Config) GetServer() ServerConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Server
}

// GetSession returns a copy of the session section.
func (c *Config) GetSession() SessionConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Session
}

// GetSupervisor returns a copy of the supervisor section.
func (c *Config) GetSupervisor() SupervisorConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.Supervisor
	s.GameArgs = append([]string(nil), c.Supervisor.GameArgs...)
	return s
}

// GetAPI returns a copy of the API section.
func (c *Config) GetAPI() APIConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.API
}

// GetMQTT returns a copy of the MQTT section.
func (c *Config) GetMQTT() MQTTConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.MQTT
}

// GetStorage returns a copy of the storage section.
func (c *Config) GetStorage() StorageConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Storage
}

// GetLogging returns a copy of the logging section.
func (c *Config) GetLogging() LoggingConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Logging
}

// SetServer replaces the server section.
func (c *Config) SetServer(s ServerConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Server = s
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}
