package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Discord  DiscordConfig  `mapstructure:"discord"`
	Database DatabaseConfig `mapstructure:"database"`
	Health   HealthConfig   `mapstructure:"health"`
	Embed    EmbedConfig    `mapstructure:"embed"`
	About    AboutConfig    `mapstructure:"about"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Presence PresenceConfig `mapstructure:"presence"`
	API      APIConfig      `mapstructure:"api"`
	AI       AIConfig       `mapstructure:"ai"`

	// Loaded from the commands and modules files
	Commands CommandsConfig `mapstructure:"-"`
	Modules  ModulesConfig  `mapstructure:"-"`
}

// DiscordConfig holds Discord bot configuration
type DiscordConfig struct {
	Token          string        `mapstructure:"token"`
	ClientID       string        `mapstructure:"client_id"`
	GuildID        string        `mapstructure:"guild_id"` // empty publishes commands globally
	HandlerTimeout time.Duration `mapstructure:"handler_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// HealthConfig holds health endpoint configuration
type HealthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// EmbedConfig holds shared embed styling
type EmbedConfig struct {
	Color        int    `mapstructure:"color"`
	ErrorColor   int    `mapstructure:"error_color"`
	SuccessEmoji string `mapstructure:"success_emoji"`
	ErrorEmoji   string `mapstructure:"error_emoji"`
	Ephemeral    bool   `mapstructure:"ephemeral"`
}

// AboutConfig describes the bot and its maintainer
type AboutConfig struct {
	Name       string `mapstructure:"name"`
	Introduce  string `mapstructure:"introduce"`
	Provider   string `mapstructure:"provider"` // maintainer user id
	Repository string `mapstructure:"repository"`
}

// LoggerConfig holds the Discord log channel settings
type LoggerConfig struct {
	ChannelID string `mapstructure:"channel_id"`
	UTCOffset int    `mapstructure:"utc_offset"`
	QueueSize int    `mapstructure:"queue_size"`
}

// PresenceConfig controls the rotating status text
type PresenceConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
	Type     string `mapstructure:"type"` // playing, listening, watching, competing
	Fallback string `mapstructure:"fallback"`
}

// APIConfig holds external API endpoints
type APIConfig struct {
	Hitokoto string        `mapstructure:"hitokoto"`
	IPAPI    string        `mapstructure:"ip_api"`
	MCStatus string        `mapstructure:"mcstatus"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// AIConfig holds the OpenAI-compatible endpoint settings
type AIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// secrets are read from the environment and override the files
type secrets struct {
	DiscordToken string `env:"DISCORD_TOKEN"`
	ClientID     string `env:"DISCORD_CLIENT_ID"`
	AIAPIKey     string `env:"AI_API_KEY"`
	AIBaseURL    string `env:"AI_BASE_URL"`
	LogChannelID string `env:"LOG_CHANNEL_ID"`
}

// LoadConfig loads the general, commands and modules configuration files.
// The commands and modules files are optional; defaults apply when missing.
func LoadConfig(path, commandsPath, modulesPath string) (*Config, error) {
	v := newViper(path)
	setGeneralDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cv := newViper(commandsPath)
	setCommandDefaults(cv)
	if err := readOptional(cv); err != nil {
		return nil, fmt.Errorf("failed to read commands config: %w", err)
	}
	if err := cv.Unmarshal(&config.Commands); err != nil {
		return nil, fmt.Errorf("failed to unmarshal commands config: %w", err)
	}

	mv := newViper(modulesPath)
	setModuleDefaults(mv)
	if err := readOptional(mv); err != nil {
		return nil, fmt.Errorf("failed to read modules config: %w", err)
	}
	if err := mv.Unmarshal(&config.Modules); err != nil {
		return nil, fmt.Errorf("failed to unmarshal modules config: %w", err)
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}

	return &config, nil
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	return v
}

func readOptional(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() error {
	var s secrets
	if err := env.Parse(&s); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}

	if s.DiscordToken != "" {
		c.Discord.Token = s.DiscordToken
	}
	if s.ClientID != "" {
		c.Discord.ClientID = s.ClientID
	}
	if s.AIAPIKey != "" {
		c.AI.APIKey = s.AIAPIKey
	}
	if s.AIBaseURL != "" {
		c.AI.BaseURL = s.AIBaseURL
	}
	if s.LogChannelID != "" {
		c.Logger.ChannelID = s.LogChannelID
	}
	return nil
}

func setGeneralDefaults(v *viper.Viper) {
	v.SetDefault("discord.handler_timeout", "2m")
	v.SetDefault("database.path", "./miyako-bot.db")
	v.SetDefault("health.enabled", true)
	v.SetDefault("health.port", 8080)
	v.SetDefault("health.path", "/health")
	v.SetDefault("embed.color", 0xF5A9B8)
	v.SetDefault("embed.error_color", 0xE74C3C)
	v.SetDefault("embed.success_emoji", "✅")
	v.SetDefault("embed.error_emoji", "❌")
	v.SetDefault("embed.ephemeral", true)
	v.SetDefault("about.name", "Miyako")
	v.SetDefault("logger.utc_offset", 8)
	v.SetDefault("logger.queue_size", 256)
	v.SetDefault("presence.enabled", true)
	v.SetDefault("presence.schedule", "@every 30m")
	v.SetDefault("presence.type", "playing")
	v.SetDefault("api.hitokoto", "https://v1.hitokoto.cn")
	v.SetDefault("api.ip_api", "http://ip-api.com")
	v.SetDefault("api.mcstatus", "https://api.mcstatus.io")
	v.SetDefault("api.timeout", "30s")
	v.SetDefault("ai.base_url", "https://api.openai.com/v1")
	v.SetDefault("ai.timeout", "90s")
}
