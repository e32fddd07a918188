// ABOUTME: Configuration loading and parsing for coevo-node
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete coevo-node configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Node      NodeConfig      `yaml:"node"`
	Agents    AgentsConfig    `yaml:"agents"`
	Providers ProvidersConfig `yaml:"providers"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds the HTTP listen address for the read-only surface
// (health, node identity, event stream)
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// NodeConfig holds node identity configuration
type NodeConfig struct {
	// KeyPath is where the Ed25519 signing key lives; created on first run
	KeyPath string `yaml:"key_path"`
}

// AgentsConfig holds agent runtime configuration
type AgentsConfig struct {
	Enabled      bool   `yaml:"enabled"`
	PersonaPath  string `yaml:"persona_path"`
	DefaultModel string `yaml:"default_model"`
	HelpBoard    string `yaml:"help_board"`
	ContextPosts int    `yaml:"context_posts"`
	MaxTokens    int    `yaml:"max_tokens"`

	ReplyCooldown  time.Duration `yaml:"-"`
	SummonCooldown time.Duration `yaml:"-"`
	BountyCooldown time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	ReplyCooldownRaw  string `yaml:"reply_cooldown"`
	SummonCooldownRaw string `yaml:"summon_cooldown"`
	BountyCooldownRaw string `yaml:"bounty_cooldown"`

	// Cooldown state backend: "memory" (default) or "redis"
	CooldownBackend string `yaml:"cooldown_backend"`
	RedisAddr       string `yaml:"redis_addr"`
}

// ProvidersConfig holds credentials and endpoints for generation backends.
// A provider with no credential is simply not registered; resolving a model
// reference against it becomes a configuration error at dispatch time.
type ProvidersConfig struct {
	Default    string           `yaml:"default"`
	Anthropic  AnthropicConfig  `yaml:"anthropic"`
	OpenAI     ChatCompatConfig `yaml:"openai"`
	OpenRouter ChatCompatConfig `yaml:"openrouter"`
	Gemini     GeminiConfig     `yaml:"gemini"`
	Ollama     OllamaConfig     `yaml:"ollama"`
}

// AnthropicConfig holds Anthropic messages-API configuration
type AnthropicConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// ChatCompatConfig holds configuration for an OpenAI-compatible
// chat-completions backend (OpenAI, OpenRouter)
type ChatCompatConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// GeminiConfig holds Gemini generateContent configuration
type GeminiConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// OllamaConfig holds local completion configuration
type OllamaConfig struct {
	BaseURL string `yaml:"base_url"`
}

// SchedulerConfig holds the periodic loop configuration
type SchedulerConfig struct {
	DigestBoard   string `yaml:"digest_board"`
	ReportWeekday string `yaml:"report_weekday"`

	Interval time.Duration `yaml:"-"`

	IntervalRaw string `yaml:"interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in values that have sensible defaults so a minimal
// config file stays minimal.
func (c *Config) applyDefaults() {
	if c.Agents.HelpBoard == "" {
		c.Agents.HelpBoard = "help"
	}
	if c.Agents.ContextPosts == 0 {
		c.Agents.ContextPosts = 15
	}
	if c.Agents.MaxTokens == 0 {
		c.Agents.MaxTokens = 500
	}
	if c.Agents.CooldownBackend == "" {
		c.Agents.CooldownBackend = "memory"
	}
	if c.Providers.Default == "" {
		c.Providers.Default = "anthropic"
	}
	if c.Scheduler.DigestBoard == "" {
		c.Scheduler.DigestBoard = "general"
	}
	if c.Scheduler.ReportWeekday == "" {
		c.Scheduler.ReportWeekday = "Sunday"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Node.KeyPath == "" {
		return fmt.Errorf("node.key_path is required")
	}

	if c.Agents.Enabled && c.Agents.PersonaPath == "" {
		return fmt.Errorf("agents.persona_path is required when agents are enabled")
	}

	switch c.Agents.CooldownBackend {
	case "memory":
	case "redis":
		if c.Agents.RedisAddr == "" {
			return fmt.Errorf("agents.redis_addr is required when cooldown_backend is redis")
		}
	default:
		return fmt.Errorf("agents.cooldown_backend must be \"memory\" or \"redis\", got %q", c.Agents.CooldownBackend)
	}

	if _, err := parseWeekday(c.Scheduler.ReportWeekday); err != nil {
		return err
	}

	return nil
}

// parseWeekday maps a weekday name to time.Weekday.
func parseWeekday(name string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if d.String() == name {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("scheduler.report_weekday %q is not a weekday name", name)
}

// ReportDay returns the parsed weekly report weekday. Validate guarantees
// the raw value parses.
func (c *Config) ReportDay() time.Weekday {
	d, _ := parseWeekday(c.Scheduler.ReportWeekday)
	return d
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	type field struct {
		raw  string
		def  time.Duration
		dst  *time.Duration
		name string
	}

	fields := []field{
		{cfg.Agents.ReplyCooldownRaw, 40 * time.Second, &cfg.Agents.ReplyCooldown, "reply_cooldown"},
		{cfg.Agents.SummonCooldownRaw, 20 * time.Second, &cfg.Agents.SummonCooldown, "summon_cooldown"},
		{cfg.Agents.BountyCooldownRaw, 20 * time.Second, &cfg.Agents.BountyCooldown, "bounty_cooldown"},
		{cfg.Scheduler.IntervalRaw, 24 * time.Hour, &cfg.Scheduler.Interval, "interval"},
	}

	for _, f := range fields {
		if f.raw == "" {
			*f.dst = f.def
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
