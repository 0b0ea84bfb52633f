// ABOUTME: Configuration loading and parsing for coven-replybot
// ABOUTME: TOML or YAML files with environment variable expansion, defaults, and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Supported completion providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config represents the complete coven-replybot configuration
type Config struct {
	Matrix  MatrixConfig  `toml:"matrix" yaml:"matrix"`
	LLM     LLMConfig     `toml:"llm" yaml:"llm"`
	Limits  LimitsConfig  `toml:"limits" yaml:"limits"`
	Idle    IdleConfig    `toml:"idle" yaml:"idle"`
	Logging LoggingConfig `toml:"logging" yaml:"logging"`
}

// MatrixConfig holds the bot account and who it answers
type MatrixConfig struct {
	Homeserver  string `toml:"homeserver" yaml:"homeserver"`
	Username    string `toml:"username" yaml:"username"`
	Password    string `toml:"password" yaml:"password"`
	RecoveryKey string `toml:"recovery_key" yaml:"recovery_key"`
	// DisplayName is matched in message bodies as a mention when clients
	// do not send m.mentions.
	DisplayName  string   `toml:"display_name" yaml:"display_name"`
	AllowedRooms []string `toml:"allowed_rooms" yaml:"allowed_rooms"`
	AllowedUsers []string `toml:"allowed_users" yaml:"allowed_users"`
	ReplyInDMs   bool     `toml:"reply_in_dms" yaml:"reply_in_dms"`
}

// LLMConfig selects the completion provider
type LLMConfig struct {
	Provider     string         `toml:"provider" yaml:"provider"`
	Model        string         `toml:"model" yaml:"model"`
	BaseURL      string         `toml:"base_url" yaml:"base_url"`
	APIKey       string         `toml:"api_key" yaml:"api_key"`
	SystemPrompt string         `toml:"system_prompt" yaml:"system_prompt"`
	Settings     map[string]any `toml:"settings" yaml:"settings"`

	// Nil means detect from the model name.
	SupportsImages *bool `toml:"supports_images" yaml:"supports_images"`
	SupportsNames  *bool `toml:"supports_names" yaml:"supports_names"`

	Timeout    time.Duration `toml:"-" yaml:"-"`
	TimeoutRaw string        `toml:"timeout" yaml:"timeout"`
}

// LimitsConfig bounds history, content, and delivery
type LimitsConfig struct {
	MaxMessages int `toml:"max_messages" yaml:"max_messages"`
	MaxText     int `toml:"max_text" yaml:"max_text"`
	MaxImages   int `toml:"max_images" yaml:"max_images"`
	MaxNodes    int `toml:"max_nodes" yaml:"max_nodes"`
	ChunkSize   int `toml:"chunk_size" yaml:"chunk_size"`

	EditDelay  time.Duration `toml:"-" yaml:"-"`
	SweepQuiet time.Duration `toml:"-" yaml:"-"`

	EditDelayRaw  string `toml:"edit_delay" yaml:"edit_delay"`
	SweepQuietRaw string `toml:"sweep_quiet" yaml:"sweep_quiet"`
}

// IdleConfig controls the periodic filler messages
type IdleConfig struct {
	Enabled  bool     `toml:"enabled" yaml:"enabled"`
	Messages []string `toml:"messages" yaml:"messages"`

	Interval    time.Duration `toml:"-" yaml:"-"`
	IntervalRaw string        `toml:"interval" yaml:"interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `toml:"level" yaml:"level"`
}

// Defaults applied to unset fields.
const (
	DefaultMaxMessages = 20
	DefaultMaxText     = 100000
	DefaultMaxImages   = 5
	DefaultMaxNodes    = 100
	DefaultChunkSize   = 4096
	DefaultEditDelay   = 1300 * time.Millisecond
	DefaultSweepQuiet  = 60 * time.Second
	DefaultIdle        = 30 * time.Minute
	DefaultLLMTimeout  = 2 * time.Minute
	DefaultModel       = "gpt-4o"
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .yaml or .yml are decoded as YAML, everything else as TOML.
// Environment variables in the format ${VAR_NAME} are expanded first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// Unset variables expand to an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(re.FindStringSubmatch(match)[1])
	})
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.LLM.Provider == "" {
		c.LLM.Provider = ProviderOpenAI
	}
	if c.LLM.Model == "" {
		c.LLM.Model = DefaultModel
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = DefaultLLMTimeout
	}

	l := &c.Limits
	if l.MaxMessages == 0 {
		l.MaxMessages = DefaultMaxMessages
	}
	if l.MaxText == 0 {
		l.MaxText = DefaultMaxText
	}
	if l.MaxImages == 0 {
		l.MaxImages = DefaultMaxImages
	}
	if l.MaxNodes == 0 {
		l.MaxNodes = DefaultMaxNodes
	}
	if l.ChunkSize == 0 {
		l.ChunkSize = DefaultChunkSize
	}
	if l.EditDelayRaw == "" {
		l.EditDelay = DefaultEditDelay
	}
	if l.SweepQuiet == 0 {
		l.SweepQuiet = DefaultSweepQuiet
	}

	if c.Idle.Interval == 0 {
		c.Idle.Interval = DefaultIdle
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Matrix.Homeserver == "" {
		return fmt.Errorf("matrix.homeserver is required")
	}
	u, err := url.Parse(c.Matrix.Homeserver)
	if err != nil {
		return fmt.Errorf("matrix.homeserver is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("matrix.homeserver must use http or https scheme")
	}
	if c.Matrix.Username == "" {
		return fmt.Errorf("matrix.username is required")
	}
	if c.Matrix.Password == "" {
		return fmt.Errorf("matrix.password is required")
	}

	if !slices.Contains([]string{ProviderOpenAI, ProviderGemini}, c.LLM.Provider) {
		return fmt.Errorf("llm.provider must be %q or %q, got %q", ProviderOpenAI, ProviderGemini, c.LLM.Provider)
	}
	if c.LLM.BaseURL != "" {
		if _, err := url.Parse(c.LLM.BaseURL); err != nil {
			return fmt.Errorf("llm.base_url is not a valid URL: %w", err)
		}
	}
	if c.LLM.Provider == ProviderGemini && c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required for the gemini provider")
	}

	l := c.Limits
	for name, v := range map[string]int{
		"limits.max_messages": l.MaxMessages,
		"limits.max_text":     l.MaxText,
		"limits.max_nodes":    l.MaxNodes,
		"limits.chunk_size":   l.ChunkSize,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if l.MaxImages < 0 {
		return fmt.Errorf("limits.max_images must not be negative")
	}
	if l.EditDelay < 0 {
		return fmt.Errorf("limits.edit_delay must not be negative")
	}

	if c.Idle.Enabled && c.Idle.Interval <= 0 {
		return fmt.Errorf("idle.interval must be positive")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"llm.timeout", cfg.LLM.TimeoutRaw, &cfg.LLM.Timeout},
		{"limits.edit_delay", cfg.Limits.EditDelayRaw, &cfg.Limits.EditDelay},
		{"limits.sweep_quiet", cfg.Limits.SweepQuietRaw, &cfg.Limits.SweepQuiet},
		{"idle.interval", cfg.Idle.IntervalRaw, &cfg.Idle.Interval},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

// DefaultPath returns the config file location: COVEN_REPLYBOT_CONFIG,
// then $XDG_CONFIG_HOME/coven/replybot.toml, then ~/.config/coven/replybot.toml.
func DefaultPath() string {
	if p := os.Getenv("COVEN_REPLYBOT_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(configHome(), "coven", "replybot.toml")
}

// DataDir returns the directory for persistent state such as the crypto store.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "coven")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".local", "share", "coven")
	}
	return filepath.Join(home, ".local", "share", "coven")
}

func configHome() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return xdg
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config")
	}
	return filepath.Join(home, ".config")
}
