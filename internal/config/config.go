// /internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

func init() {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found, falling back to system environment variables")
	}
}

// Get returns a raw environment value.
func Get(key string) string {
	return os.Getenv(key)
}

type Config struct {
	DiscordToken   string   `env:"DISCORD_TOKEN"`
	StoragePath    string   `env:"STORAGE_PATH" envDefault:"datastore.json"`
	GuildBlacklist []string `env:"DISCORD_GUILD_BLACKLIST" envSeparator:","`
	CommandPrefix  string   `env:"COMMAND_PREFIX" envDefault:"/"`

	SendInterval    time.Duration `env:"SEND_INTERVAL" envDefault:"800ms"`
	DebugMode       bool          `env:"DEBUG_MODE" envDefault:"false"`
	DebugConcurrent bool          `env:"DEBUG_CONCURRENT" envDefault:"false"`

	AdminUserIDs     []string `env:"ADMIN_USER_IDS" envSeparator:","`
	FeaturesDisabled []string `env:"FEATURES_DISABLED" envSeparator:","`

	AIAPIKey  string        `env:"AI_API_KEY"`
	AIBaseURL string        `env:"AI_BASE_URL" envDefault:"https://api.deepseek.com/v1"`
	AIModel   string        `env:"AI_MODEL" envDefault:"deepseek-chat"`
	AITimeout time.Duration `env:"AI_TIMEOUT" envDefault:"30s"`

	MathTemperature float64 `env:"MATH_TEMPERATURE" envDefault:"0.1"`
	MathMaxTokens   int     `env:"MATH_MAX_TOKENS" envDefault:"8192"`
	MathTopP        float64 `env:"MATH_TOP_P" envDefault:"0.1"`

	HistoryPerGroup               int           `env:"HISTORY_PER_GROUP" envDefault:"50"`
	RandomReplyCooldown           time.Duration `env:"RANDOM_REPLY_COOLDOWN" envDefault:"60s"`
	RandomReplyProbability        float64       `env:"RANDOM_REPLY_PROBABILITY" envDefault:"0.05"`
	RandomReplyProbabilityMention float64       `env:"RANDOM_REPLY_PROBABILITY_MENTION" envDefault:"0.8"`
	EchoProbability               float64       `env:"ECHO_PROBABILITY" envDefault:"0.02"`
	EchoReverseProbability        float64       `env:"ECHO_REVERSE_PROBABILITY" envDefault:"0.1"`
	ConceptsPath                  string        `env:"CONCEPTS_PATH"`
	PromptsDir                    string        `env:"PROMPTS_DIR"`

	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile     string `env:"LOG_FILE"`
}

// Load parses the environment into a Config without enforcing the
// presence of the chat token. Used by tooling that only touches storage.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// New loads the bot configuration and requires DISCORD_TOKEN.
func New() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if cfg.DiscordToken == "" {
		return nil, errors.New("DISCORD_TOKEN is not set")
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.SendInterval < 0 {
		return fmt.Errorf("SEND_INTERVAL must not be negative, got %s", c.SendInterval)
	}
	for name, p := range map[string]float64{
		"RANDOM_REPLY_PROBABILITY":         c.RandomReplyProbability,
		"RANDOM_REPLY_PROBABILITY_MENTION": c.RandomReplyProbabilityMention,
		"ECHO_PROBABILITY":                 c.EchoProbability,
		"ECHO_REVERSE_PROBABILITY":         c.EchoReverseProbability,
	} {
		if p < 0 || p > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", name, p)
		}
	}
	if c.HistoryPerGroup <= 0 {
		c.HistoryPerGroup = 50
	}
	return nil
}
