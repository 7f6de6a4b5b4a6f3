package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"kanmonconnect/internal/connect"
	"kanmonconnect/internal/protocol"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. KANMON_CONNECT_TOKEN.
const EnvPrefix = "KANMON_"

// Config is the root configuration for the kanmonconnect host.
type Config struct {
	General GeneralConfig `json:"general" yaml:"general"`
	Connect ConnectConfig `json:"connect" yaml:"connect"`
	Browser BrowserConfig `json:"browser" yaml:"browser"`
	Journal JournalConfig `json:"journal" yaml:"journal"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	Server  ServerConfig  `json:"server" yaml:"server"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel" yaml:"logLevel" env:"LOG_LEVEL"`
	LogFile  string `json:"logFile,omitempty" yaml:"logFile,omitempty" env:"LOG_FILE"` // optional log file path
}

// ConnectConfig holds the defaults for starting a Connect session.
type ConnectConfig struct {
	Environment              string   `json:"environment" yaml:"environment" env:"ENVIRONMENT"` // production | sandbox | staging | development
	ConnectToken             string   `json:"connectToken,omitempty" yaml:"connectToken,omitempty" env:"CONNECT_TOKEN"`
	CustomInitializationName string   `json:"customInitializationName,omitempty" yaml:"customInitializationName,omitempty" env:"CUSTOM_INITIALIZATION_NAME"`
	ProductSubset            []string `json:"productSubset,omitempty" yaml:"productSubset,omitempty" env:"PRODUCT_SUBSET"`
}

// BrowserConfig configures the Chrome host.
type BrowserConfig struct {
	Headless        bool   `json:"headless" yaml:"headless" env:"HEADLESS"`
	ProfileDir      string `json:"profileDir" yaml:"profileDir" env:"PROFILE_DIR"`
	UserAgentPrefix string `json:"userAgentPrefix" yaml:"userAgentPrefix" env:"USER_AGENT_PREFIX"`
	DownloadsDir    string `json:"downloadsDir" yaml:"downloadsDir" env:"DOWNLOADS_DIR"`
	CameraPolicy    string `json:"cameraPolicy" yaml:"cameraPolicy" env:"CAMERA_POLICY"` // "grant" | "deny"
}

// JournalConfig configures the SQLite record of bridge traffic.
type JournalConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled" env:"JOURNAL_ENABLED"`
	DBPath        string `json:"dbPath" yaml:"dbPath" env:"JOURNAL_DB_PATH"`
	RetentionDays int    `json:"retentionDays" yaml:"retentionDays" env:"JOURNAL_RETENTION_DAYS"`
}

// MetricsConfig configures the Prometheus endpoint served by the control server.
type MetricsConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled" env:"METRICS_ENABLED"`
	Endpoint string `json:"endpoint" yaml:"endpoint" env:"METRICS_ENDPOINT"`
}

// ServerConfig configures the local HTTP control server.
type ServerConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" env:"SERVER_ENABLED"`
	Host    string `json:"host" yaml:"host" env:"SERVER_HOST"`
	Port    int    `json:"port" yaml:"port" env:"SERVER_PORT"`

	// Browser origins, besides the server's own, allowed to reach the
	// control routes and the event feed.
	AllowedOrigins []string `json:"allowedOrigins,omitempty" yaml:"allowedOrigins,omitempty" env:"SERVER_ALLOWED_ORIGINS"`
}

// DefaultConfigDir returns the default config directory (~/.kanmonconnect).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kanmonconnect"
	}
	return filepath.Join(home, ".kanmonconnect")
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

// Load reads a JSON or YAML config (by extension), expands ${VAR} references,
// applies KANMON_* environment overrides and validates the result.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	cfg, err := decode(path, []byte(ExpandEnvVars(string(data))))
	if err != nil {
		return nil, err
	}
	if err := resolve(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadRaw reads the config file as written: ${VAR} references stay in place
// and neither the environment nor ~/ expansion is applied.
func LoadRaw(path string) (*Config, error) {
	path = ExpandPath(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}
	return decode(path, data)
}

// SetInFile changes one value in the config file at path. The file keeps its
// ${VAR} references and picks up no KANMON_* overrides; the effective config
// those produce is validated before anything is written.
func SetInFile(path, key, value string) error {
	raw, err := LoadRaw(path)
	if err != nil {
		return err
	}
	if err := SetByPath(raw, key, value); err != nil {
		return fmt.Errorf("set value: %w", err)
	}
	if _, err := Effective(raw); err != nil {
		return err
	}
	return Save(ExpandPath(path), raw)
}

// Effective returns the config raw stands for once ${VAR} references,
// environment overrides and ~/ paths are resolved. raw is not modified.
func Effective(raw *Config) (*Config, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("cannot marshal config: %w", err)
	}
	cfg := Defaults()
	if err := json.Unmarshal([]byte(ExpandEnvVars(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config: %w", err)
	}
	if err := resolve(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte) (*Config, error) {
	cfg := Defaults()
	var err error
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}
	return cfg, nil
}

func resolve(cfg *Config) error {
	if err := ApplyEnv(cfg); err != nil {
		return err
	}
	cfg.ExpandPaths()
	if err := Validate(cfg); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	return nil
}

// ApplyEnv overrides cfg with any KANMON_* variables that are set.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("cannot apply environment overrides: %w", err)
	}
	return nil
}

// ExpandPaths resolves ~/ in every path setting.
func (c *Config) ExpandPaths() {
	c.General.LogFile = ExpandPath(c.General.LogFile)
	c.Browser.ProfileDir = ExpandPath(c.Browser.ProfileDir)
	c.Browser.DownloadsDir = ExpandPath(c.Browser.DownloadsDir)
	c.Journal.DBPath = ExpandPath(c.Journal.DBPath)
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
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

// Save writes cfg as YAML or indented JSON, depending on the extension.
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

	// The file may hold a connect token.
	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch strings.ToLower(cfg.General.LogLevel) {
	case "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if _, err := connect.BaseURL(connect.Environment(cfg.Connect.Environment)); err != nil {
		errs = append(errs, "connect.environment must be one of: production, sandbox, staging, development")
	}
	for _, p := range cfg.Connect.ProductSubset {
		if !protocol.ProductType(p).Known() {
			errs = append(errs, fmt.Sprintf("connect.productSubset has unknown product: %s", p))
		}
	}

	switch cfg.Browser.CameraPolicy {
	case "grant", "deny":
		// valid
	default:
		errs = append(errs, "browser.cameraPolicy must be one of: grant, deny")
	}

	if cfg.Journal.RetentionDays < 1 {
		errs = append(errs, "journal.retentionDays must be >= 1")
	}
	if cfg.Journal.Enabled && cfg.Journal.DBPath == "" {
		errs = append(errs, "journal.dbPath is required when the journal is enabled")
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
		errs = append(errs, "metrics.endpoint must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
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
