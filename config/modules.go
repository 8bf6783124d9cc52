package config

import (
	"time"

	"github.com/spf13/viper"
)

// ModulesConfig holds event module settings from the modules file
type ModulesConfig struct {
	Keywords KeywordsConfig `mapstructure:"keywords"`
	Member   MemberConfig   `mapstructure:"member"`
	Loggers  LoggersConfig  `mapstructure:"loggers"`
}

// TriggerGroup pairs keywords with candidate responses
type TriggerGroup struct {
	Keywords  []string `mapstructure:"keywords"`
	Responses []string `mapstructure:"responses"`
}

// KeywordsConfig holds the keyword auto responder settings
type KeywordsConfig struct {
	Enabled     bool                    `mapstructure:"enabled"`
	LogTriggers bool                    `mapstructure:"log_triggers"`
	Delay       time.Duration           `mapstructure:"delay"`
	Cooldown    time.Duration           `mapstructure:"cooldown"` // per channel
	Whitelist   bool                    `mapstructure:"whitelist"`
	Channels    []string                `mapstructure:"channels"`
	Triggers    map[string]TriggerGroup `mapstructure:"triggers"`
}

// MemberConfig holds welcome and farewell settings
type MemberConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	JoinEmoji     string   `mapstructure:"join_emoji"`
	LeaveEmoji    string   `mapstructure:"leave_emoji"`
	JoinMessages  []string `mapstructure:"join_messages"`
	LeaveMessages []string `mapstructure:"leave_messages"`
}

// LoggersConfig toggles the activity loggers
type LoggersConfig struct {
	MessageCreate bool `mapstructure:"message_create"`
	MessageUpdate bool `mapstructure:"message_update"`
	MessageDelete bool `mapstructure:"message_delete"`
	Voice         bool `mapstructure:"voice"`
	Role          bool `mapstructure:"role"`
	Member        bool `mapstructure:"member"`
}

func setModuleDefaults(v *viper.Viper) {
	v.SetDefault("keywords.enabled", false)
	v.SetDefault("keywords.log_triggers", true)
	v.SetDefault("keywords.delay", "0s")
	v.SetDefault("keywords.cooldown", "5s")
	v.SetDefault("keywords.whitelist", false)
	v.SetDefault("member.enabled", true)
	v.SetDefault("member.join_emoji", "🎉")
	v.SetDefault("member.leave_emoji", "👋")
	v.SetDefault("member.join_messages", []string{"歡迎加入！"})
	v.SetDefault("member.leave_messages", []string{"期待再次相見！"})
	v.SetDefault("loggers.message_create", false)
	v.SetDefault("loggers.message_update", true)
	v.SetDefault("loggers.message_delete", true)
	v.SetDefault("loggers.voice", true)
	v.SetDefault("loggers.role", true)
	v.SetDefault("loggers.member", true)
}
