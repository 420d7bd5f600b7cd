package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hpungsan/flightrecorder/internal/logging"
	"github.com/hpungsan/flightrecorder/internal/privacy"
	"github.com/hpungsan/flightrecorder/internal/retention"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FLIGHTRECORDER_"

// Config file names, in lookup order.
var configFileNames = []string{"config.yaml", "config.yml", "config.json"}

// Config holds application configuration.
type Config struct {
	Storage StorageConfig `json:"storage" yaml:"storage"`
	Capture CaptureConfig `json:"capture" yaml:"capture"`
	Privacy PrivacyConfig `json:"privacy" yaml:"privacy"`
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	MCP     MCPConfig     `json:"mcp" yaml:"mcp"`
}

// StorageConfig controls the capture database and retention.
type StorageConfig struct {
	// DatabasePath is the SQLite file. Empty means <base>/captures.db; "~/" is expanded.
	DatabasePath string `json:"database_path" yaml:"database_path"`

	// MaxCaptures keeps at most this many rows after each prune pass. 0 disables.
	MaxCaptures int `json:"max_captures" yaml:"max_captures"`

	// MaxAgeDays deletes rows older than this many days. 0 disables.
	MaxAgeDays int `json:"max_age_days" yaml:"max_age_days"`

	// PruneIntervalHours is the period between automatic prune passes in the daemon.
	PruneIntervalHours int `json:"prune_interval_hours" yaml:"prune_interval_hours"`

	// DBMaxOpenConns limits open database connections. 0 means the sql.DB default.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty" yaml:"db_max_open_conns,omitempty"`
}

// CaptureConfig controls the monitors.
type CaptureConfig struct {
	ClipboardEnabled         bool `json:"clipboard_enabled" yaml:"clipboard_enabled"`
	AccessibilityEnabled     bool `json:"accessibility_enabled" yaml:"accessibility_enabled"`
	KeystrokeFallbackEnabled bool `json:"keystroke_fallback_enabled" yaml:"keystroke_fallback_enabled"`

	// SnapshotIntervalMS is the poll interval used by monitors without their own override.
	SnapshotIntervalMS int `json:"snapshot_interval_ms" yaml:"snapshot_interval_ms"`

	// ClipboardIntervalMS overrides SnapshotIntervalMS for the clipboard monitor when non-zero.
	ClipboardIntervalMS int `json:"clipboard_interval_ms,omitempty" yaml:"clipboard_interval_ms,omitempty"`

	// TextFieldIntervalMS overrides SnapshotIntervalMS for the text field monitor when non-zero.
	TextFieldIntervalMS int `json:"text_field_interval_ms,omitempty" yaml:"text_field_interval_ms,omitempty"`

	// MinContentLength drops content shorter than this many bytes.
	MinContentLength int `json:"min_content_length" yaml:"min_content_length"`

	// MaxContentLength truncates content to this many bytes.
	MaxContentLength int `json:"max_content_length" yaml:"max_content_length"`

	// ChannelSize is the capacity of the monitor-to-coordinator channel.
	ChannelSize int `json:"channel_size" yaml:"channel_size"`
}

// PrivacyConfig controls the privacy filter.
type PrivacyConfig struct {
	FiltersEnabled     bool `json:"filters_enabled" yaml:"filters_enabled"`
	UseBuiltinPatterns bool `json:"use_builtin_patterns" yaml:"use_builtin_patterns"`

	// Mode is one of "block", "redact", or "warn".
	Mode string `json:"mode" yaml:"mode"`

	// FilterPatterns are extra regular expressions, checked after the built-ins.
	FilterPatterns []string `json:"filter_patterns" yaml:"filter_patterns"`

	// ExcludedApps are never captured (case-insensitive exact match).
	ExcludedApps []string `json:"excluded_apps" yaml:"excluded_apps"`

	SkipPasswordFields   bool   `json:"skip_password_fields" yaml:"skip_password_fields"`
	RedactionPlaceholder string `json:"redaction_placeholder" yaml:"redaction_placeholder"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `json:"level" yaml:"level"`

	// Dir, when set, receives a per-session log file in addition to stderr.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// MCPConfig controls the MCP server.
type MCPConfig struct {
	// DisabledTools lists MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty" yaml:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			MaxCaptures:        100000,
			MaxAgeDays:         30,
			PruneIntervalHours: 24,
		},
		Capture: CaptureConfig{
			ClipboardEnabled:     true,
			AccessibilityEnabled: true,
			SnapshotIntervalMS:   500,
			TextFieldIntervalMS:  2000,
			MinContentLength:     1,
			MaxContentLength:     1000000,
			ChannelSize:          100,
		},
		Privacy: PrivacyConfig{
			FiltersEnabled:       true,
			UseBuiltinPatterns:   true,
			Mode:                 "block",
			ExcludedApps:         privacy.DefaultExcludedApps(),
			SkipPasswordFields:   true,
			RedactionPlaceholder: privacy.DefaultPlaceholder,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultBaseDir returns $FLIGHTRECORDER_HOME, or ~/.flightrecorder.
func DefaultBaseDir() (string, error) {
	if dir := os.Getenv(EnvPrefix + "HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".flightrecorder"), nil
}

// Path returns the config file in baseDir: the first existing one in lookup
// order, or baseDir/config.yaml when none exists.
func Path(baseDir string) string {
	for _, name := range configFileNames {
		p := filepath.Join(baseDir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return filepath.Join(baseDir, configFileNames[0])
}

// Load reads the config file in baseDir over the defaults, applies
// environment overrides, and resolves paths. Missing files yield defaults.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.flightrecorder.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFile(Path(baseDir))
	if err != nil {
		return nil, err
	}
	applyEnv(cfg, os.Getenv)
	cfg.resolvePaths(baseDir)
	return cfg, nil
}

// loadFile decodes configPath onto the defaults.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}

	if isJSON(configPath) {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(configPath), err)
	}

	cfg.Privacy.ExcludedApps = dedupeStrings(cfg.Privacy.ExcludedApps)
	cfg.MCP.DisabledTools = dedupeStrings(cfg.MCP.DisabledTools)
	return cfg, nil
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

// applyEnv overlays FLIGHTRECORDER_* variables. Unparseable values are ignored.
func applyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv(EnvPrefix + "DATABASE_PATH"); v != "" {
		cfg.Storage.DatabasePath = v
	}
	if v, ok := envInt(getenv, "MAX_CAPTURES"); ok {
		cfg.Storage.MaxCaptures = v
	}
	if v, ok := envInt(getenv, "MAX_AGE_DAYS"); ok {
		cfg.Storage.MaxAgeDays = v
	}
	if v := getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := getenv(EnvPrefix + "PRIVACY_MODE"); v != "" {
		cfg.Privacy.Mode = v
	}
	if v, ok := envBool(getenv, "CLIPBOARD_ENABLED"); ok {
		cfg.Capture.ClipboardEnabled = v
	}
	if v, ok := envBool(getenv, "ACCESSIBILITY_ENABLED"); ok {
		cfg.Capture.AccessibilityEnabled = v
	}
}

func envInt(getenv func(string) string, key string) (int, bool) {
	v := getenv(EnvPrefix + key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(getenv func(string) string, key string) (bool, bool) {
	v := getenv(EnvPrefix + key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, false
	}
	return b, true
}

// resolvePaths fills the default database path and expands "~/" prefixes.
func (c *Config) resolvePaths(baseDir string) {
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = filepath.Join(baseDir, "captures.db")
	}
	c.Storage.DatabasePath = expandHome(c.Storage.DatabasePath)
	c.Logging.Dir = expandHome(c.Logging.Dir)
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}

// Validate checks cross-field constraints. It reports the first problem found.
func (c *Config) Validate() error {
	if c.Capture.MinContentLength < 0 {
		return fmt.Errorf("capture.min_content_length must not be negative")
	}
	if c.Capture.MinContentLength > c.Capture.MaxContentLength {
		return fmt.Errorf("capture.min_content_length (%d) exceeds capture.max_content_length (%d)",
			c.Capture.MinContentLength, c.Capture.MaxContentLength)
	}
	if c.Capture.SnapshotIntervalMS <= 0 {
		return fmt.Errorf("capture.snapshot_interval_ms must be positive")
	}
	if c.Capture.ClipboardIntervalMS < 0 || c.Capture.TextFieldIntervalMS < 0 {
		return fmt.Errorf("capture intervals must not be negative")
	}
	if c.Capture.ChannelSize < 1 {
		return fmt.Errorf("capture.channel_size must be at least 1")
	}
	if c.Storage.MaxCaptures < 0 || c.Storage.MaxAgeDays < 0 {
		return fmt.Errorf("storage retention limits must not be negative")
	}
	if c.Storage.PruneIntervalHours <= 0 {
		return fmt.Errorf("storage.prune_interval_hours must be positive")
	}
	if _, err := privacy.ParseMode(c.Privacy.Mode); err != nil {
		return fmt.Errorf("privacy.mode: %w", err)
	}
	for i, expr := range c.Privacy.FilterPatterns {
		if _, err := regexp.Compile(expr); err != nil {
			return fmt.Errorf("privacy.filter_patterns[%d]: %w", i, err)
		}
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

// ClipboardInterval returns the clipboard poll interval.
func (c *Config) ClipboardInterval() time.Duration {
	return intervalMS(c.Capture.ClipboardIntervalMS, c.Capture.SnapshotIntervalMS)
}

// TextFieldInterval returns the focused-field poll interval.
func (c *Config) TextFieldInterval() time.Duration {
	return intervalMS(c.Capture.TextFieldIntervalMS, c.Capture.SnapshotIntervalMS)
}

// PruneInterval returns the automatic prune period.
func (c *Config) PruneInterval() time.Duration {
	return time.Duration(c.Storage.PruneIntervalHours) * time.Hour
}

// MaxAge returns the retention age, or 0 when age pruning is disabled.
func (c *Config) MaxAge() time.Duration {
	return time.Duration(c.Storage.MaxAgeDays) * 24 * time.Hour
}

func intervalMS(override, fallback int) time.Duration {
	if override > 0 {
		return time.Duration(override) * time.Millisecond
	}
	return time.Duration(fallback) * time.Millisecond
}

// RetentionPolicy converts the storage limits for the pruner.
func (c *Config) RetentionPolicy() retention.Policy {
	return retention.Policy{
		MaxAge:      c.MaxAge(),
		MaxCaptures: c.Storage.MaxCaptures,
		Interval:    c.PruneInterval(),
	}
}

// FilterConfig converts the privacy section for privacy.NewFilter.
// The mode must already have passed Validate; an unknown mode falls back to block.
func (c *Config) FilterConfig() privacy.FilterConfig {
	mode, _ := privacy.ParseMode(c.Privacy.Mode)
	return privacy.FilterConfig{
		Enabled:              c.Privacy.FiltersEnabled,
		Mode:                 mode,
		UseBuiltinPatterns:   c.Privacy.UseBuiltinPatterns,
		CustomPatterns:       c.Privacy.FilterPatterns,
		ExcludedApps:         c.Privacy.ExcludedApps,
		RedactionPlaceholder: c.Privacy.RedactionPlaceholder,
	}
}

// Marshal encodes the config as YAML, or JSON when format is "json".
func (c *Config) Marshal(format string) ([]byte, error) {
	if strings.EqualFold(format, "json") {
		return json.MarshalIndent(c, "", "  ")
	}
	return yaml.Marshal(c)
}

// Save writes the config to path atomically. The encoding follows the extension.
func (c *Config) Save(path string) error {
	format := "yaml"
	if isJSON(path) {
		format = "json"
	}
	data, err := c.Marshal(format)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close config: %w", err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		return fmt.Errorf("failed to set config permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}

// dedupeStrings trims whitespace, drops empties, and removes duplicates.
func dedupeStrings(in []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(in))

	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
