package config

import (
	"time"

	"github.com/spf13/viper"
)

// CommandsConfig holds per-command settings from the commands file
type CommandsConfig struct {
	Announce  EmojiConfig     `mapstructure:"announce"`
	Purge     PurgeConfig     `mapstructure:"purge"`
	Ping      EmojiConfig     `mapstructure:"ping"`
	About     AboutCmdConfig  `mapstructure:"about"`
	Hitokoto  EmojiConfig     `mapstructure:"hitokoto"`
	Chat      ChatConfig      `mapstructure:"chat"`
	Consult   ConsultConfig   `mapstructure:"consult"`
	Music     MusicConfig     `mapstructure:"music"`
	IPInfo    EmojiConfig     `mapstructure:"ipinfo"`
	Minecraft MinecraftConfig `mapstructure:"minecraft"`
	Timestamp TimestampConfig `mapstructure:"timestamp"`
	Stream    StreamConfig    `mapstructure:"stream"`
}

// EmojiConfig is used by commands whose only setting is their title emoji
type EmojiConfig struct {
	Emoji string `mapstructure:"emoji"`
}

// PurgeConfig holds bulk delete limits
type PurgeConfig struct {
	Emoji     string        `mapstructure:"emoji"`
	MaxAmount int           `mapstructure:"max_amount"`
	AgeCutoff time.Duration `mapstructure:"age_cutoff"` // older messages are deleted one by one
	Pace      time.Duration `mapstructure:"pace"`
}

// AboutCmdConfig holds about command settings
type AboutCmdConfig struct {
	Emoji string `mapstructure:"emoji"`
}

// ModelConfig describes one selectable chat model
type ModelConfig struct {
	Name        string  `mapstructure:"name"`
	Label       string  `mapstructure:"label"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float32 `mapstructure:"temperature"`
}

// ChatConfig holds AI chat and history settings
type ChatConfig struct {
	Emoji          string        `mapstructure:"emoji"`
	ArchiveDir     string        `mapstructure:"archive_dir"`
	PromptFiles    []string      `mapstructure:"prompt_files"`
	SystemPrompt   string        `mapstructure:"system_prompt"`
	ContextLimit   int           `mapstructure:"context_limit"` // turn pairs sent as context, 0 sends all
	SessionLimit   int           `mapstructure:"session_limit"` // turns per process lifetime, 0 disables
	InputMaxLength int           `mapstructure:"input_max_length"`
	DefaultModel   string        `mapstructure:"default_model"`
	Models         []ModelConfig `mapstructure:"models"`
}

// ConsultConfig holds the AI consult panel settings. Consult keeps its own
// transcripts and session counter apart from chat.
type ConsultConfig struct {
	Emoji          string   `mapstructure:"emoji"`
	Title          string   `mapstructure:"title"`
	Description    string   `mapstructure:"description"`
	BotNickname    string   `mapstructure:"bot_nickname"`
	Model          string   `mapstructure:"model"`
	ArchiveDir     string   `mapstructure:"archive_dir"`
	PromptFiles    []string `mapstructure:"prompt_files"`
	SystemPrompt   string   `mapstructure:"system_prompt"`
	ContextLimit   int      `mapstructure:"context_limit"`
	SessionLimit   int      `mapstructure:"session_limit"`
	InputMaxLength int      `mapstructure:"input_max_length"`
}

// ProgressBarConfig controls the music progress bar
type ProgressBarConfig struct {
	Length    int    `mapstructure:"length"`
	Indicator string `mapstructure:"indicator"`
	LeftChar  string `mapstructure:"left_char"`
	RightChar string `mapstructure:"right_char"`
}

// ButtonBarConfig holds the emoji of the music panel buttons
type ButtonBarConfig struct {
	Play   string `mapstructure:"play"`
	Repeat string `mapstructure:"repeat"`
	Pause  string `mapstructure:"pause"`
	Resume string `mapstructure:"resume"`
	Skip   string `mapstructure:"skip"`
}

// MusicConfig holds music panel and playback settings
type MusicConfig struct {
	Emoji           string            `mapstructure:"emoji"`
	RefreshInterval time.Duration     `mapstructure:"refresh_interval"`
	IdleTimeout     time.Duration     `mapstructure:"idle_timeout"`
	Volume          int               `mapstructure:"volume"` // percent
	QueuePreview    int               `mapstructure:"queue_preview"`
	ProgressBar     ProgressBarConfig `mapstructure:"progress_bar"`
	Buttons         ButtonBarConfig   `mapstructure:"buttons"`
}

// ServerPreset is a named game server offered as a choice
type ServerPreset struct {
	Name    string `mapstructure:"name"`
	Address string `mapstructure:"address"`
}

// MinecraftConfig holds game server command settings
type MinecraftConfig struct {
	Emoji   string         `mapstructure:"emoji"`
	Presets []ServerPreset `mapstructure:"presets"`
}

// TimestampConfig holds timestamp command settings
type TimestampConfig struct {
	Emoji         string `mapstructure:"emoji"`
	DefaultOffset int    `mapstructure:"default_offset"`
}

// StreamConfig holds the live notification settings
type StreamConfig struct {
	Emoji      string   `mapstructure:"emoji"`
	UserLogin  string   `mapstructure:"user_login"`
	UserAvatar string   `mapstructure:"user_avatar"`
	RoleID     string   `mapstructure:"role_id"` // empty mentions everyone
	Messages   []string `mapstructure:"messages"`
}

func setCommandDefaults(v *viper.Viper) {
	v.SetDefault("announce.emoji", "📢")
	v.SetDefault("purge.emoji", "🗑️")
	v.SetDefault("purge.max_amount", 100)
	v.SetDefault("purge.age_cutoff", "336h")
	v.SetDefault("purge.pace", "1s")
	v.SetDefault("ping.emoji", "🏓")
	v.SetDefault("about.emoji", "📖")
	v.SetDefault("hitokoto.emoji", "💬")
	v.SetDefault("chat.emoji", "🌸")
	v.SetDefault("chat.archive_dir", "./data/chat")
	v.SetDefault("chat.system_prompt", "You are Miyako, a friendly assistant. Reply in Traditional Chinese.")
	v.SetDefault("chat.context_limit", 10)
	v.SetDefault("chat.session_limit", 0)
	v.SetDefault("chat.input_max_length", 1000)
	v.SetDefault("chat.default_model", "gpt-4o-mini")
	v.SetDefault("consult.emoji", "🏝️")
	v.SetDefault("consult.title", "諮詢服務")
	v.SetDefault("consult.description", "點擊下方按鈕提出您的問題。")
	v.SetDefault("consult.bot_nickname", "小島")
	v.SetDefault("consult.archive_dir", "./data/consult")
	v.SetDefault("consult.system_prompt", "You answer questions about the community server rules. Reply in Traditional Chinese.")
	v.SetDefault("consult.context_limit", 5)
	v.SetDefault("consult.session_limit", 10)
	v.SetDefault("consult.input_max_length", 1000)
	v.SetDefault("music.emoji", "🎧")
	v.SetDefault("music.refresh_interval", "2500ms")
	v.SetDefault("music.idle_timeout", "5m")
	v.SetDefault("music.volume", 20)
	v.SetDefault("music.queue_preview", 5)
	v.SetDefault("music.progress_bar.length", 14)
	v.SetDefault("music.progress_bar.indicator", "🔘")
	v.SetDefault("music.progress_bar.left_char", "▬")
	v.SetDefault("music.progress_bar.right_char", "▬")
	v.SetDefault("music.buttons.play", "🎵")
	v.SetDefault("music.buttons.repeat", "🔁")
	v.SetDefault("music.buttons.pause", "⏸️")
	v.SetDefault("music.buttons.resume", "▶️")
	v.SetDefault("music.buttons.skip", "⏭️")
	v.SetDefault("ipinfo.emoji", "🌐")
	v.SetDefault("minecraft.emoji", "⛏️")
	v.SetDefault("timestamp.emoji", "🕒")
	v.SetDefault("timestamp.default_offset", 8)
	v.SetDefault("stream.emoji", "🍘")
}

// Model returns the profile for the given model name, falling back to the
// default model when name is empty or unknown.
func (c ChatConfig) Model(name string) ModelConfig {
	if name == "" {
		name = c.DefaultModel
	}
	for _, m := range c.Models {
		if m.Name == name {
			return m
		}
	}
	return ModelConfig{Name: name, Label: name}
}
