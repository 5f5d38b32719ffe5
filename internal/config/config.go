package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Reddit    RedditConfig    `yaml:"reddit" mapstructure:"reddit"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Discovery DiscoveryConfig `yaml:"discovery" mapstructure:"discovery"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// RedditConfig holds forum API credentials and scrape targets.
type RedditConfig struct {
	ClientID     string   `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret string   `yaml:"client_secret" mapstructure:"client_secret"`
	UserAgent    string   `yaml:"user_agent" mapstructure:"user_agent"`
	Subreddits   []string `yaml:"subreddits" mapstructure:"subreddits"`
}

// AnthropicConfig holds extraction API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// DiscoveryConfig configures default cycle behavior.
type DiscoveryConfig struct {
	Mode   string `yaml:"mode" mapstructure:"mode"`
	Limit  int    `yaml:"limit" mapstructure:"limit"`
	Enrich bool   `yaml:"enrich" mapstructure:"enrich"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SONGSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Credentials default empty so the env bindings register.
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "songscout.db")
	v.SetDefault("reddit.client_id", "")
	v.SetDefault("reddit.client_secret", "")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("reddit.user_agent", "songscout music discovery bot v0.1")
	v.SetDefault("reddit.subreddits", []string{"tipofmytongue", "WhatsThisSong", "NameThatSong"})
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("discovery.mode", "solved")
	v.SetDefault("discovery.limit", 100)
	v.SetDefault("discovery.enrich", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// ValidateCredentials checks the credentials required to run a discovery
// cycle. Forum app credentials are optional (the public JSON endpoints
// work without them, only slower), but they come as a pair.
func (c *Config) ValidateCredentials() error {
	if c.Anthropic.Key == "" {
		return eris.New("config: anthropic API key is required (SONGSCOUT_ANTHROPIC_KEY)")
	}
	if (c.Reddit.ClientID == "") != (c.Reddit.ClientSecret == "") {
		return eris.New("config: reddit client ID and secret must be set together")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
