// Package commands implements the slash commands and the buttons and modals
// they own.
package commands

import (
	"context"
	"time"

	"miyako-bot/config"
	"miyako-bot/internal/command"
	"miyako-bot/internal/gateway"
	"miyako-bot/internal/history"
	"miyako-bot/internal/hitokoto"
	"miyako-bot/internal/ipapi"
	"miyako-bot/internal/llm"
	"miyako-bot/internal/logsink"
	"miyako-bot/internal/mcstatus"
	"miyako-bot/internal/music"
	"miyako-bot/internal/panel"
	"miyako-bot/internal/reply"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Completer runs chat completions
type Completer interface {
	Complete(ctx context.Context, profile config.ModelConfig, messages []history.Message) (llm.Response, error)
}

// QuoteSource returns random quotes
type QuoteSource interface {
	Random(ctx context.Context) (*hitokoto.Quote, error)
}

// IPLookup resolves address information
type IPLookup interface {
	Lookup(ctx context.Context, address string) (*ipapi.Info, error)
}

// ServerStatus queries game servers
type ServerStatus interface {
	Status(ctx context.Context, address string) (*mcstatus.Status, error)
	IconURL(address string) string
}

// TrackResolver turns a query or link into a playable track
type TrackResolver interface {
	Resolve(ctx context.Context, query, requestedBy string) (*music.Track, error)
}

// Player controls guild playback
type Player interface {
	Play(ctx context.Context, guildID, channelID string, t *music.Track) (int, error)
	TogglePause(guildID string) (bool, error)
	ToggleRepeat(guildID string) (bool, error)
	Skip(guildID string) error
	Snapshot(guildID string) (music.State, bool)
}

// Deps carries everything the command handlers need
type Deps struct {
	Config  *config.Config
	Replies *reply.Formatter
	Sink    logsink.Logger
	Logger  *zap.Logger

	Chat          *history.Store
	Consult       *history.Store
	ChatPrompt    string // combined prompt files or the configured system prompt
	ConsultPrompt string
	Models        Completer

	Quotes  QuoteSource
	IPs     IPLookup
	Servers ServerStatus

	Tracks        TrackResolver
	Player        Player
	MusicPanels   *panel.Manager
	ConsultPanels *panel.Manager

	// Now is replaced in tests
	Now func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// All returns every command descriptor
func All(d *Deps) []*command.Descriptor {
	var names []string
	descriptors := []*command.Descriptor{
		d.announce(),
		d.purge(),
		d.ping(),
		d.about(func() []string { return names }),
		d.hitokoto(),
		d.chat(),
		d.consult(),
		d.music(),
		d.ipinfo(),
		d.minecraft(),
		d.timestamp(),
		d.stream(),
	}
	for _, desc := range descriptors {
		names = append(names, desc.Name())
	}
	return descriptors
}

// timestampLayout formats embed timestamps
const timestampLayout = time.RFC3339

var adminPermission int64 = discordgo.PermissionAdministrator

// localized sets the zh-TW display name of a command or option
func localized(name string) *map[discordgo.Locale]string {
	return &map[discordgo.Locale]string{discordgo.ChineseTW: name}
}

func (d *Deps) embed(title string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: title,
		Color: d.Config.Embed.Color,
	}
}

// requireAdmin rejects callers without the Administrator permission
func requireAdmin(it *gateway.Interaction) error {
	if !it.IsAdmin() {
		return errNotAdmin
	}
	return nil
}

// respondEmbeds answers with embeds, ephemeral when asked
func respondEmbeds(it *gateway.Interaction, ephemeral bool, embeds ...*discordgo.MessageEmbed) error {
	data := &discordgo.InteractionResponseData{Embeds: embeds}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return it.Respond(data)
}
