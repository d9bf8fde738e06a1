package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"chatbridge/internal/domain"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for chatbridge.
type Config struct {
	General GeneralConfig `json:"general" yaml:"general"`
	Slack   SlackConfig   `json:"slack" yaml:"slack"`
	Bridge  BridgeConfig  `json:"bridge" yaml:"bridge"`
	Audit   AuditConfig   `json:"audit" yaml:"audit"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

type GeneralConfig struct {
	LogLevel  string `json:"logLevel" yaml:"logLevel"`
	LogFormat string `json:"logFormat" yaml:"logFormat"`                 // text | json
	LogFile   string `json:"logFile,omitempty" yaml:"logFile,omitempty"` // optional log file path
}

// SlackConfig holds the platform credentials. BotToken is the auth token used
// for Web API calls; AppToken (xapp-...) opens the Socket Mode connection.
type SlackConfig struct {
	BotToken              string `json:"botToken" yaml:"botToken"`
	AppToken              string `json:"appToken" yaml:"appToken"`
	APIURL                string `json:"apiUrl,omitempty" yaml:"apiUrl,omitempty"`
	ConnectTimeoutSeconds int    `json:"connectTimeoutSeconds" yaml:"connectTimeoutSeconds"`
	SocketDebug           bool   `json:"socketDebug,omitempty" yaml:"socketDebug,omitempty"`
}

// BridgeConfig tunes the ingestion loop.
type BridgeConfig struct {
	BotDisplayName      string  `json:"botDisplayName" yaml:"botDisplayName"`
	AddressingMode      string  `json:"addressingMode" yaml:"addressingMode"` // im | mention
	DebugReplyOnFailure bool    `json:"debugReplyOnFailure" yaml:"debugReplyOnFailure"`
	StartupGraceSeconds float64 `json:"startupGraceSeconds" yaml:"startupGraceSeconds"`
	PollIntervalSeconds float64 `json:"pollIntervalSeconds" yaml:"pollIntervalSeconds"`
	QueueSize           int     `json:"queueSize" yaml:"queueSize"`
}

// StartupGrace converts StartupGraceSeconds. Zero means no suppression.
func (b BridgeConfig) StartupGrace() time.Duration {
	return time.Duration(b.StartupGraceSeconds * float64(time.Second))
}

func (b BridgeConfig) PollInterval() time.Duration {
	return time.Duration(b.PollIntervalSeconds * float64(time.Second))
}

func (b BridgeConfig) Mode() domain.AddressingMode {
	return domain.AddressingMode(b.AddressingMode)
}

// AuditConfig configures the handler-failure ledger.
type AuditConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	DBPath        string `json:"dbPath" yaml:"dbPath"`
	RetentionDays int    `json:"retentionDays" yaml:"retentionDays"` // 0 keeps everything
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

// DefaultConfigDir returns the default config directory (~/.chatbridge).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chatbridge"
	}
	return filepath.Join(home, ".chatbridge")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Load reads a JSON or YAML config (chosen by extension), expands ${VAR}
// references, applies defaults for absent keys and validates the result.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	// Defaults may carry placeholders the file did not override.
	cfg.Slack.BotToken = ExpandEnvVars(cfg.Slack.BotToken)
	cfg.Slack.AppToken = ExpandEnvVars(cfg.Slack.AppToken)
	cfg.Audit.DBPath = ExpandPath(cfg.Audit.DBPath)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		val, exists := os.LookupEnv(groups[1])
		if exists && val != "" {
			return val
		}
		if len(groups) >= 3 && groups[2] != "" {
			return groups[2]
		}
		return match // Keep original if no env var and no default
	})
}

// Save writes cfg to path, as YAML for .yaml/.yml and JSON otherwise.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values. Credentials are checked
// separately by RequireCredentials so that a fresh config still validates.
func Validate(cfg *Config) error {
	var errs []string

	switch strings.ToLower(cfg.General.LogLevel) {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	switch strings.ToLower(cfg.General.LogFormat) {
	case "", "text", "json":
		// valid
	default:
		errs = append(errs, "general.logFormat must be one of: text, json")
	}

	if strings.TrimSpace(cfg.Bridge.BotDisplayName) == "" {
		errs = append(errs, "bridge.botDisplayName is required")
	}
	if !cfg.Bridge.Mode().Valid() {
		errs = append(errs, "bridge.addressingMode must be one of: im, mention")
	}
	if cfg.Bridge.StartupGraceSeconds < 0 || cfg.Bridge.StartupGraceSeconds > 60 {
		errs = append(errs, "bridge.startupGraceSeconds must be between 0 and 60")
	}
	if cfg.Bridge.PollIntervalSeconds <= 0 || cfg.Bridge.PollIntervalSeconds > 60 {
		errs = append(errs, "bridge.pollIntervalSeconds must be > 0 and <= 60")
	}
	if cfg.Bridge.QueueSize < 0 {
		errs = append(errs, "bridge.queueSize must be >= 0")
	}

	if cfg.Slack.ConnectTimeoutSeconds < 0 {
		errs = append(errs, "slack.connectTimeoutSeconds must be >= 0")
	}

	if cfg.Audit.Enabled && cfg.Audit.DBPath == "" {
		errs = append(errs, "audit.dbPath is required when audit is enabled")
	}
	if cfg.Audit.RetentionDays < 0 {
		errs = append(errs, "audit.retentionDays must be >= 0")
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		errs = append(errs, "metrics.addr is required when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// RequireCredentials reports missing or unexpanded Slack tokens.
func RequireCredentials(cfg *Config) error {
	var missing []string
	if !credentialSet(cfg.Slack.BotToken) {
		missing = append(missing, "slack.botToken (or SLACK_BOT_TOKEN)")
	}
	if !credentialSet(cfg.Slack.AppToken) {
		missing = append(missing, "slack.appToken (or SLACK_APP_TOKEN)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing credentials: %s", strings.Join(missing, ", "))
	}
	return nil
}

func credentialSet(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && !envVarPattern.MatchString(v)
}

// Sanitize returns a copy of the config with sensitive values masked.
func Sanitize(cfg *Config) *Config {
	out := *cfg
	out.Slack.BotToken = maskString(cfg.Slack.BotToken)
	out.Slack.AppToken = maskString(cfg.Slack.AppToken)
	return &out
}

// maskString shows first 4 and last 4 chars, masks the rest.
func maskString(s string) string {
	if s == "" || envVarPattern.MatchString(s) {
		return s
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
