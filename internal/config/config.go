// ABOUTME: Configuration loading and parsing for filedesk
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Defaults applied when a field is left empty.
const (
	DefaultBaseURL           = "https://api.openai.com/v1"
	DefaultAPIVersion        = "assistants=v2"
	DefaultRequestTimeout    = 60 * time.Second
	DefaultMaxRetries        = 3
	DefaultRolloverThreshold = 20
	DefaultPollInterval      = 2 * time.Second
	DefaultPollTimeout       = 120 * time.Second
	DefaultSizeLimitMB       = 50
	DefaultKeyPrefix         = "filedesk"
	DefaultLockTTL           = 5 * time.Minute
)

// Session backends.
const (
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config represents the complete filedesk configuration
type Config struct {
	Server       ServerConfig       `yaml:"server" toml:"server"`
	Assistant    AssistantConfig    `yaml:"assistant" toml:"assistant"`
	Conversation ConversationConfig `yaml:"conversation" toml:"conversation"`
	Session      SessionConfig      `yaml:"session" toml:"session"`
	Files        FilesConfig        `yaml:"files" toml:"files"`
	Frontends    FrontendsConfig    `yaml:"frontends" toml:"frontends"`
	Logging      LoggingConfig      `yaml:"logging" toml:"logging"`
}

// ServerConfig holds the HTTP API address. An empty address disables the HTTP server.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// AssistantConfig describes the remote assistant API.
type AssistantConfig struct {
	BaseURL     string `yaml:"base_url" toml:"base_url"`
	APIKey      string `yaml:"api_key" toml:"api_key"`
	AssistantID string `yaml:"assistant_id" toml:"assistant_id"`
	APIVersion  string `yaml:"api_version" toml:"api_version"` // value of the OpenAI-Beta header
	MaxRetries  int    `yaml:"max_retries" toml:"max_retries"`

	RequestTimeout    time.Duration `yaml:"-" toml:"-"`
	RequestTimeoutRaw string        `yaml:"request_timeout" toml:"request_timeout"`
}

// ConversationConfig holds the thread lifecycle and polling policy.
type ConversationConfig struct {
	RolloverThreshold int    `yaml:"rollover_threshold" toml:"rollover_threshold"`
	SearchInstruction string `yaml:"search_instruction" toml:"search_instruction"`

	PollInterval time.Duration `yaml:"-" toml:"-"`
	PollTimeout  time.Duration `yaml:"-" toml:"-"`

	// Raw string values for YAML/TOML unmarshaling
	PollIntervalRaw string `yaml:"poll_interval" toml:"poll_interval"`
	PollTimeoutRaw  string `yaml:"poll_timeout" toml:"poll_timeout"`
}

// SessionConfig selects and configures the session store.
type SessionConfig struct {
	Backend string       `yaml:"backend" toml:"backend"`
	Redis   RedisConfig  `yaml:"redis" toml:"redis"`
	SQLite  SQLiteConfig `yaml:"sqlite" toml:"sqlite"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr      string `yaml:"addr" toml:"addr"`
	Password  string `yaml:"password" toml:"password"`
	DB        int    `yaml:"db" toml:"db"`
	KeyPrefix string `yaml:"key_prefix" toml:"key_prefix"`

	LockTTL    time.Duration `yaml:"-" toml:"-"`
	LockTTLRaw string        `yaml:"lock_ttl" toml:"lock_ttl"`
}

// SQLiteConfig holds the SQLite database path.
type SQLiteConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// FilesConfig holds local file storage settings.
type FilesConfig struct {
	Dir         string `yaml:"dir" toml:"dir"`
	WorkDir     string `yaml:"work_dir" toml:"work_dir"`
	SizeLimitMB int64  `yaml:"size_limit_mb" toml:"size_limit_mb"`
}

// SizeLimit returns the compression threshold in bytes.
func (f FilesConfig) SizeLimit() int64 {
	return f.SizeLimitMB * 1024 * 1024
}

// FrontendsConfig holds configuration for all chat frontends
type FrontendsConfig struct {
	Telegram TelegramConfig `yaml:"telegram" toml:"telegram"`
	Matrix   MatrixConfig   `yaml:"matrix" toml:"matrix"`
}

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	Enabled      bool    `yaml:"enabled" toml:"enabled"`
	Token        string  `yaml:"token" toml:"token"`
	AllowedUsers []int64 `yaml:"allowed_users" toml:"allowed_users"`
}

// MatrixConfig holds Matrix integration configuration
type MatrixConfig struct {
	Enabled       bool     `yaml:"enabled" toml:"enabled"`
	Homeserver    string   `yaml:"homeserver" toml:"homeserver"`
	UserID        string   `yaml:"user_id" toml:"user_id"`
	AccessToken   string   `yaml:"access_token" toml:"access_token"`
	AllowedRooms  []string `yaml:"allowed_rooms" toml:"allowed_rooms"`
	CommandPrefix string   `yaml:"command_prefix" toml:"command_prefix"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data, strings.EqualFold(filepath.Ext(path), ".toml"))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes raw configuration bytes, applies defaults and validates the result.
func Parse(data []byte, isTOML bool) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if isTOML {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func (c *Config) applyDefaults() {
	if c.Assistant.BaseURL == "" {
		c.Assistant.BaseURL = DefaultBaseURL
	}
	c.Assistant.BaseURL = strings.TrimRight(c.Assistant.BaseURL, "/")
	if c.Assistant.APIVersion == "" {
		c.Assistant.APIVersion = DefaultAPIVersion
	}
	if c.Assistant.RequestTimeout == 0 {
		c.Assistant.RequestTimeout = DefaultRequestTimeout
	}
	if c.Assistant.MaxRetries == 0 {
		c.Assistant.MaxRetries = DefaultMaxRetries
	}

	if c.Conversation.RolloverThreshold == 0 {
		c.Conversation.RolloverThreshold = DefaultRolloverThreshold
	}
	if c.Conversation.PollInterval == 0 {
		c.Conversation.PollInterval = DefaultPollInterval
	}
	if c.Conversation.PollTimeout == 0 {
		c.Conversation.PollTimeout = DefaultPollTimeout
	}

	if c.Session.Backend == "" {
		c.Session.Backend = BackendRedis
	}
	if c.Session.Redis.KeyPrefix == "" {
		c.Session.Redis.KeyPrefix = DefaultKeyPrefix
	}
	if c.Session.Redis.LockTTL == 0 {
		c.Session.Redis.LockTTL = DefaultLockTTL
	}

	if c.Files.SizeLimitMB == 0 {
		c.Files.SizeLimitMB = DefaultSizeLimitMB
	}
	if c.Files.WorkDir == "" {
		c.Files.WorkDir = os.TempDir()
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Assistant.APIKey == "" {
		return fmt.Errorf("assistant.api_key is required")
	}
	if c.Assistant.AssistantID == "" {
		return fmt.Errorf("assistant.assistant_id is required")
	}
	if c.Assistant.MaxRetries < 0 {
		return fmt.Errorf("assistant.max_retries must not be negative")
	}

	if c.Conversation.RolloverThreshold < 1 {
		return fmt.Errorf("conversation.rollover_threshold must be positive")
	}
	if c.Conversation.PollInterval <= 0 || c.Conversation.PollTimeout <= 0 {
		return fmt.Errorf("conversation.poll_interval and poll_timeout must be positive")
	}

	switch c.Session.Backend {
	case BackendRedis:
		if c.Session.Redis.Addr == "" {
			return fmt.Errorf("session.redis.addr is required for the redis backend")
		}
	case BackendSQLite:
		if c.Session.SQLite.Path == "" {
			return fmt.Errorf("session.sqlite.path is required for the sqlite backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("session.backend %q is not one of redis, sqlite, memory", c.Session.Backend)
	}

	if c.Files.Dir == "" {
		return fmt.Errorf("files.dir is required")
	}
	if c.Files.SizeLimitMB < 0 {
		return fmt.Errorf("files.size_limit_mb must not be negative")
	}

	if c.Frontends.Telegram.Enabled && c.Frontends.Telegram.Token == "" {
		return fmt.Errorf("frontends.telegram.token is required when telegram is enabled")
	}
	if c.Frontends.Matrix.Enabled {
		if c.Frontends.Matrix.Homeserver == "" || c.Frontends.Matrix.UserID == "" || c.Frontends.Matrix.AccessToken == "" {
			return fmt.Errorf("frontends.matrix requires homeserver, user_id and access_token when enabled")
		}
	}

	if !c.Frontends.Telegram.Enabled && !c.Frontends.Matrix.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("nothing to serve: enable a frontend or set server.http_addr")
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
		{"assistant.request_timeout", cfg.Assistant.RequestTimeoutRaw, &cfg.Assistant.RequestTimeout},
		{"conversation.poll_interval", cfg.Conversation.PollIntervalRaw, &cfg.Conversation.PollInterval},
		{"conversation.poll_timeout", cfg.Conversation.PollTimeoutRaw, &cfg.Conversation.PollTimeout},
		{"session.redis.lock_ttl", cfg.Session.Redis.LockTTLRaw, &cfg.Session.Redis.LockTTL},
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
