// Package config loads taskbridge configuration from defaults, an optional
// YAML file, environment variables (TASKBRIDGE_ prefix), and a local .env.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/taskbridge/taskbridge/pkg/errors"
)

type Config struct {
	Log       LogConfig       `koanf:"log"`
	Chat      ChatConfig      `koanf:"chat"`
	Server    ServerConfig    `koanf:"server"`
	Loop      LoopConfig      `koanf:"loop"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Audit     AuditConfig     `koanf:"audit"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

// ChatConfig configures the chat-model client.
type ChatConfig struct {
	Provider    string  `koanf:"provider"` // deepseek, openai
	Model       string  `koanf:"model"`
	BaseURL     string  `koanf:"base_url"`
	APIKey      string  `koanf:"api_key"`
	Temperature float64 `koanf:"temperature"`
	MaxTokens   int     `koanf:"max_tokens"`
}

// ServerConfig configures the task-server client. The task server is an MCP
// server spawned as a child process and spoken to over stdio.
type ServerConfig struct {
	Command        string        `koanf:"command"`
	Args           []string      `koanf:"args"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	MaxRetries     int           `koanf:"max_retries"`
	RetryDelay     time.Duration `koanf:"retry_delay"`
}

// LoopConfig bounds the tool-calling conversation loop.
type LoopConfig struct {
	MaxIterations int           `koanf:"max_iterations"`
	Deadline      time.Duration `koanf:"deadline"`
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // stdout, otlp, none
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

// AuditConfig configures the tool-invocation audit store.
// An empty path disables persistence; events then stay in memory.
type AuditConfig struct {
	Path string `koanf:"path"`
}

func Load(path string) (*Config, error) {
	// Pick up a local .env before reading the environment, as the
	// original deployment workflow expects.
	_ = godotenv.Load()

	k := koanf.New(".")

	// Defaults
	k.Set("log.level", "info")
	k.Set("log.format", "text")
	k.Set("chat.provider", "deepseek")
	k.Set("chat.model", "deepseek-chat")
	k.Set("chat.base_url", "https://api.deepseek.com")
	k.Set("chat.temperature", 0.7)
	k.Set("chat.max_tokens", 4000)
	k.Set("server.command", "./mcp_todo_task")
	k.Set("server.request_timeout", "30s")
	k.Set("server.max_retries", 3)
	k.Set("server.retry_delay", "1s")
	k.Set("loop.max_iterations", 5)
	k.Set("loop.deadline", "5m")
	k.Set("telemetry.exporter", "none")

	// 1. Load from file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.New(errors.CodeConfiguration, "failed to load config file", err).
				WithContext("path", path)
		}
	}

	// 2. Load from ENV (TASKBRIDGE_CHAT_API_KEY -> chat.api_key). Keys are
	// two levels deep, so only the first underscore separates sections;
	// the rest stay part of the field name.
	if err := k.Load(env.Provider("TASKBRIDGE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "TASKBRIDGE_")), "_", ".", 1)
	}), nil); err != nil {
		return nil, errors.New(errors.CodeConfiguration, "failed to load environment", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.New(errors.CodeConfiguration, "failed to unmarshal config", err)
	}

	return &cfg, nil
}

// Validate checks the settings every command needs. Chat credentials are
// checked separately by ValidateChat so read-only commands work without them.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Command) == "" {
		return errors.New(errors.CodeConfiguration, "task server command cannot be empty", nil).
			WithContext("key", "server.command")
	}
	if c.Server.MaxRetries < 0 {
		return errors.New(errors.CodeConfiguration, "server.max_retries cannot be negative", nil)
	}
	if c.Loop.MaxIterations < 1 {
		return errors.New(errors.CodeConfiguration, "loop.max_iterations must be at least 1", nil)
	}
	return nil
}

// ValidateChat checks the settings the chat-model client needs. Called before
// any completion is attempted so missing credentials never reach the network.
func (c *Config) ValidateChat() error {
	if strings.TrimSpace(c.Chat.APIKey) == "" {
		return errors.New(errors.CodeConfiguration, "chat API key is not set", nil).
			WithContext("key", "chat.api_key").
			WithContext("env", "TASKBRIDGE_CHAT_API_KEY")
	}
	switch c.Chat.Provider {
	case "deepseek", "openai":
	default:
		return errors.New(errors.CodeConfiguration, "unknown chat provider", nil).
			WithContext("provider", c.Chat.Provider)
	}
	return nil
}
