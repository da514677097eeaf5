package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/mwhitaker/herald/internal/guardrail"
	"github.com/mwhitaker/herald/internal/tools"
)

// ProviderConfig describes one chat-completion vendor endpoint.
type ProviderConfig struct {
	BaseURL     string            `mapstructure:"base_url"`
	APIKey      string            `mapstructure:"api_key"`
	Models      map[string]string `mapstructure:"models"`
	Temperature float64           `mapstructure:"temperature"`
	MaxTokens   int64             `mapstructure:"max_tokens"`
}

type AgentConfig struct {
	MaxIterations    int    `mapstructure:"max_iterations"`
	ContextMaxTokens int    `mapstructure:"context_max_tokens"`
	ProfilesDir      string `mapstructure:"profiles_dir"`
}

// GuardrailConfig controls the moderation layer. Mode is an explicit
// posture: fail_open allows content when the moderation endpoint
// errors, fail_closed blocks it.
type GuardrailConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Mode    string `mapstructure:"mode"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

type Config struct {
	Providers       map[string]ProviderConfig         `mapstructure:"providers"`
	DefaultProvider string                            `mapstructure:"default_provider"`
	Agent           AgentConfig                       `mapstructure:"agent"`
	Guardrails      GuardrailConfig                   `mapstructure:"guardrails"`
	Server          ServerConfig                      `mapstructure:"server"`
	Storage         StorageConfig                     `mapstructure:"storage"`
	Tools           map[string]tools.ToolServerConfig `mapstructure:"tools"`
}

// Load reads herald.yaml from the working directory or $HOME/.herald.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("herald")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.herald")

	v.SetDefault("default_provider", "inception")
	v.SetDefault("providers.inception.base_url", "https://api.inceptionlabs.ai/v1")
	v.SetDefault("providers.inception.api_key", "${INCEPTION_API_KEY}")
	v.SetDefault("providers.inception.models.default", "mercury")
	v.SetDefault("providers.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("providers.openai.api_key", "${OPENAI_API_KEY}")
	v.SetDefault("providers.openai.models.default", "gpt-4o-mini")
	v.SetDefault("agent.max_iterations", 5)
	v.SetDefault("agent.context_max_tokens", 6000)
	v.SetDefault("guardrails.enabled", false)
	v.SetDefault("guardrails.mode", string(guardrail.ModeFailOpen))
	v.SetDefault("guardrails.api_key", "${OPENAI_API_KEY}")
	v.SetDefault("guardrails.model", guardrail.DefaultModerationModel)
	v.SetDefault("server.port", 8080)
	v.SetDefault("storage.db_path", filepath.Join(os.Getenv("HOME"), ".herald", "herald.db"))

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; the defaults describe both vendors.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Expand environment variable references in API keys.
	for name, p := range cfg.Providers {
		p.APIKey = expandEnvRef(p.APIKey)
		cfg.Providers[name] = p
	}
	cfg.Guardrails.APIKey = expandEnvRef(cfg.Guardrails.APIKey)

	return &cfg, nil
}

func expandEnvRef(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	return s
}

// Provider returns the config for a named provider, falling back to the
// default provider when name is empty.
func (c *Config) Provider(name string) (ProviderConfig, error) {
	if name == "" {
		name = c.DefaultProvider
	}
	p, ok := c.Providers[name]
	if !ok {
		return ProviderConfig{}, fmt.Errorf("unknown provider: %s", name)
	}
	return p, nil
}

// GuardrailMode returns the configured moderation posture, honoring the
// enabled flag.
func (c *Config) GuardrailMode() guardrail.Mode {
	if !c.Guardrails.Enabled {
		return guardrail.ModeOff
	}
	switch guardrail.Mode(c.Guardrails.Mode) {
	case guardrail.ModeFailClosed:
		return guardrail.ModeFailClosed
	default:
		return guardrail.ModeFailOpen
	}
}
