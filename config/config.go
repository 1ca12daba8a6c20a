// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AccessMode controls who may talk to the agent.
type AccessMode string

const (
	AccessPublic    AccessMode = "public"
	AccessAdminOnly AccessMode = "admin_only"
	AccessAllowlist AccessMode = "allowlist"
)

// Config holds all runtime settings for the agent service.
type Config struct {
	// Model gateway. When ProxyURL is set the OpenAI-compatible proxy is
	// used; otherwise Provider/APIKey select a direct provider.
	ProxyURL string
	Provider string
	Model    string
	APIKey   string

	// Paths.
	Workspace       string
	BlockedPatterns string
	SystemPrompt    string
	StatsDB         string

	// Loop limits.
	MaxIterations      int
	MaxHistory         int
	MaxToolOutput      int
	MaxContextMessages int
	MaxContextChars    int
	MaxHistoryChars    int
	MaxBlocked         int

	// Timeouts.
	LLMTimeout     time.Duration
	CommandTimeout time.Duration
	WebTimeout     time.Duration

	// Sandbox.
	SandboxEnabled bool
	SandboxImage   string
	SandboxTTL     time.Duration

	// Messaging callbacks.
	BotURL     string
	UserbotURL string

	// Access control.
	Access    AccessMode
	AdminID   int64
	Allowlist []int64

	Port     int
	LogLevel string
}

// Load reads configuration from environment variables, applying defaults.
func Load() *Config {
	return &Config{
		ProxyURL: getEnv("PROXY_URL", ""),
		Provider: getEnv("LLM_PROVIDER", "openai"),
		Model:    getEnv("LLM_MODEL", "gpt-4o"),
		APIKey:   getSecret("LLM_API_KEY"),

		Workspace:       getEnv("WORKSPACE_DIR", "/workspace"),
		BlockedPatterns: getEnv("BLOCKED_PATTERNS_FILE", ""),
		SystemPrompt:    getEnv("SYSTEM_PROMPT_FILE", ""),
		StatsDB:         getEnv("STATS_DB", ""),

		MaxIterations:      getEnvInt("MAX_ITERATIONS", 30),
		MaxHistory:         getEnvInt("MAX_HISTORY", 10),
		MaxToolOutput:      getEnvInt("MAX_TOOL_OUTPUT", 8000),
		MaxContextMessages: getEnvInt("MAX_CONTEXT_MESSAGES", 40),
		MaxContextChars:    getEnvInt("MAX_CONTEXT_CHARS", 50000),
		MaxHistoryChars:    getEnvInt("MAX_HISTORY_CHARS", 30000),
		MaxBlocked:         getEnvInt("MAX_BLOCKED_COMMANDS", 10),

		LLMTimeout:     getEnvDuration("LLM_TIMEOUT", 120*time.Second),
		CommandTimeout: getEnvDuration("COMMAND_TIMEOUT", 60*time.Second),
		WebTimeout:     getEnvDuration("WEB_TIMEOUT", 30*time.Second),

		SandboxEnabled: getEnvBool("SANDBOX_ENABLED", false),
		SandboxImage:   getEnv("SANDBOX_IMAGE", "ferret-sandbox:latest"),
		SandboxTTL:     getEnvDuration("SANDBOX_TTL", 30*time.Minute),

		BotURL:     getEnv("BOT_URL", ""),
		UserbotURL: getEnv("USERBOT_URL", ""),

		Access:    AccessMode(getEnv("ACCESS_MODE", string(AccessPublic))),
		AdminID:   getEnvInt64("ADMIN_ID", 0),
		Allowlist: getEnvInt64List("ALLOWED_USER_IDS"),

		Port:     getEnvInt("PORT", 8011),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.ProxyURL == "" && c.APIKey == "" {
		return fmt.Errorf("either PROXY_URL or LLM_API_KEY must be set")
	}
	if c.Workspace == "" {
		return fmt.Errorf("WORKSPACE_DIR must not be empty")
	}
	switch c.Access {
	case AccessPublic, AccessAdminOnly, AccessAllowlist:
	default:
		return fmt.Errorf("invalid ACCESS_MODE %q", c.Access)
	}
	if c.Access != AccessPublic && c.AdminID == 0 {
		return fmt.Errorf("ACCESS_MODE %q requires ADMIN_ID", c.Access)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("MAX_ITERATIONS must be >= 1")
	}
	if c.MaxBlocked < 1 {
		return fmt.Errorf("MAX_BLOCKED_COMMANDS must be >= 1")
	}
	return nil
}

// getSecret reads NAME, falling back to the file named by NAME_FILE
// (docker-secrets convention).
func getSecret(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	if path := os.Getenv(key + "_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return strings.TrimSpace(string(data))
		}
	}
	return ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64List(key string) []int64 {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []int64
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if n, err := strconv.ParseInt(part, 10, 64); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}
