package config

import (
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/energizer-project/slingshot/internal/game"
	"github.com/energizer-project/slingshot/internal/protocol"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate checks every section of the configuration.
func Validate(cfg *Config) *ValidationResult {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	result := &ValidationResult{}
	validateServer(&cfg.Server, result)
	validateSession(&cfg.Session, result)
	validateSupervisor(&cfg.Supervisor, result)
	validateAPI(&cfg.API, result)
	validateMQTT(&cfg.MQTT, result)
	validateLogging(&cfg.Logging, result)
	return result
}

func validateServer(s *ServerConfig, result *ValidationResult) {
	if strings.TrimSpace(s.Host) == "" {
		result.AddError("server.host", "game server host is required")
	}
	validatePort(s.Port, "server.port", result)

	if s.TeamID <= 0 {
		result.AddError("server.team_id", "team id must be positive")
	}
	if s.TimeoutSec < 1 {
		result.AddError("server.timeout_sec", "per-call timeout must be at least 1 second")
	} else if s.TimeoutSec > 300 {
		result.AddWarning("server.timeout_sec",
			fmt.Sprintf("per-call timeout of %ds hides stalled servers for a long time", s.TimeoutSec))
	}
	if s.ConnectTimeoutSec < 1 {
		result.AddError("server.connect_timeout_sec", "connect timeout must be at least 1 second")
	}
}

func validateSession(s *SessionConfig, result *ValidationResult) {
	if err := game.ValidateLevel(s.StartLevel); err != nil {
		result.AddError("session.start_level", err.Error())
	}
	if s.MaxZoomTrials < 1 {
		result.AddError("session.max_zoom_trials", "at least one zoom attempt is required")
	}
	if s.ShotRetries < 0 {
		result.AddError("session.shot_retries", "shot retries cannot be negative")
	} else if s.ShotRetries > 0 {
		result.AddWarning("session.shot_retries",
			"refused shots will be re-sent; side effects of a refused shot are unknown")
	}
	if _, err := protocol.ParseShotMode(s.DefaultMode); err != nil {
		result.AddError("session.default_mode", err.Error())
	}
}

func validateSupervisor(s *SupervisorConfig, result *ValidationResult) {
	if s.GameCommand != "" && s.WorkDir != "" {
		if _, err := os.Stat(s.WorkDir); os.IsNotExist(err) {
			result.AddWarning("supervisor.work_dir",
				fmt.Sprintf("directory does not exist: %s", s.WorkDir))
		}
	}
	if s.RestartEveryEpisodes < 0 {
		result.AddError("supervisor.restart_every_episodes", "cannot be negative")
	}
	if s.ConnectRetries < 1 {
		result.AddError("supervisor.connect_retries", "at least one connect attempt is required")
	}
	if s.ConnectRetryIntervalSec < 0 {
		result.AddError("supervisor.connect_retry_interval_sec", "cannot be negative")
	}
}

func validateAPI(a *APIConfig, result *ValidationResult) {
	if !a.Enabled {
		return
	}
	if _, _, err := net.SplitHostPort(a.Listen); err != nil {
		result.AddError("api.listen", fmt.Sprintf("invalid listen address %q: %v", a.Listen, err))
	}
	if a.RateLimitRPS < 1 {
		result.AddWarning("api.rate_limit_rps", "rate limit is disabled (0 RPS)")
	}
}

func validateMQTT(m *MQTTConfig, result *ValidationResult) {
	if !m.Enabled {
		return
	}
	if strings.TrimSpace(m.BrokerURL) == "" {
		result.AddError("mqtt.broker_url", "MQTT broker URL is required when enabled")
	}
	if m.Port < 1 || m.Port > 65535 {
		result.AddError("mqtt.port", "invalid MQTT port")
	}
	if m.UseTLS && (m.CertFile == "") != (m.KeyFile == "") {
		result.AddError("mqtt.cert_file", "client certificate and key must be set together")
	}
	if m.HeartbeatIntervalSec > 0 && m.HeartbeatIntervalSec < 10 {
		result.AddWarning("mqtt.heartbeat_interval_sec",
			"heartbeat interval less than 10s may cause excessive traffic")
	}
}

func validateLogging(l *LoggingConfig, result *ValidationResult) {
	if _, err := zerolog.ParseLevel(l.Level); err != nil {
		result.AddError("logging.level", fmt.Sprintf("unknown level %q", l.Level))
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
	}
}
