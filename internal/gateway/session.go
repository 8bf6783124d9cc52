// Package gateway narrows the discordgo session to the calls the bot makes
// and tracks the reply state of each interaction.
package gateway

import (
	"time"

	"github.com/bwmarrin/discordgo"
)

// Session is the subset of the Discord REST surface used by handlers
type Session interface {
	InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse) error
	InteractionResponseEdit(i *discordgo.Interaction, edit *discordgo.WebhookEdit) (*discordgo.Message, error)
	FollowupMessageCreate(i *discordgo.Interaction, wait bool, params *discordgo.WebhookParams) (*discordgo.Message, error)

	ChannelMessage(channelID, messageID string) (*discordgo.Message, error)
	ChannelMessages(channelID string, limit int, beforeID string) ([]*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend) (*discordgo.Message, error)
	ChannelMessageEditComplex(edit *discordgo.MessageEdit) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string) error
	ChannelMessagesBulkDelete(channelID string, messageIDs []string) error

	Channel(channelID string) (*discordgo.Channel, error)
	Guild(guildID string) (*discordgo.Guild, error)

	ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand) ([]*discordgo.ApplicationCommand, error)
	HeartbeatLatency() time.Duration
	BotUser() *discordgo.User
	Guilds() []*discordgo.Guild
	// VoiceChannel returns the voice channel the user is connected to
	VoiceChannel(guildID, userID string) (string, bool)
}

// Discord adapts a *discordgo.Session to Session
type Discord struct {
	S *discordgo.Session
}

// FromSession wraps a discordgo session
func FromSession(s *discordgo.Session) *Discord {
	return &Discord{S: s}
}

func (d *Discord) InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse) error {
	return d.S.InteractionRespond(i, resp)
}

func (d *Discord) InteractionResponseEdit(i *discordgo.Interaction, edit *discordgo.WebhookEdit) (*discordgo.Message, error) {
	return d.S.InteractionResponseEdit(i, edit)
}

func (d *Discord) FollowupMessageCreate(i *discordgo.Interaction, wait bool, params *discordgo.WebhookParams) (*discordgo.Message, error) {
	return d.S.FollowupMessageCreate(i, wait, params)
}

func (d *Discord) ChannelMessage(channelID, messageID string) (*discordgo.Message, error) {
	return d.S.ChannelMessage(channelID, messageID)
}

func (d *Discord) ChannelMessages(channelID string, limit int, beforeID string) ([]*discordgo.Message, error) {
	return d.S.ChannelMessages(channelID, limit, beforeID, "", "")
}

func (d *Discord) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend) (*discordgo.Message, error) {
	return d.S.ChannelMessageSendComplex(channelID, data)
}

func (d *Discord) ChannelMessageEditComplex(edit *discordgo.MessageEdit) (*discordgo.Message, error) {
	return d.S.ChannelMessageEditComplex(edit)
}

func (d *Discord) ChannelMessageDelete(channelID, messageID string) error {
	return d.S.ChannelMessageDelete(channelID, messageID)
}

func (d *Discord) ChannelMessagesBulkDelete(channelID string, messageIDs []string) error {
	return d.S.ChannelMessagesBulkDelete(channelID, messageIDs)
}

// Channel prefers the state cache and falls back to REST
func (d *Discord) Channel(channelID string) (*discordgo.Channel, error) {
	if d.S.State != nil {
		if ch, err := d.S.State.Channel(channelID); err == nil {
			return ch, nil
		}
	}
	return d.S.Channel(channelID)
}

// Guild prefers the state cache and falls back to REST
func (d *Discord) Guild(guildID string) (*discordgo.Guild, error) {
	if d.S.State != nil {
		if g, err := d.S.State.Guild(guildID); err == nil {
			return g, nil
		}
	}
	return d.S.Guild(guildID)
}

func (d *Discord) ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand) ([]*discordgo.ApplicationCommand, error) {
	return d.S.ApplicationCommandBulkOverwrite(appID, guildID, commands)
}

func (d *Discord) HeartbeatLatency() time.Duration {
	return d.S.HeartbeatLatency()
}

func (d *Discord) BotUser() *discordgo.User {
	if d.S.State == nil {
		return nil
	}
	return d.S.State.User
}

func (d *Discord) Guilds() []*discordgo.Guild {
	if d.S.State == nil {
		return nil
	}
	d.S.State.RLock()
	defer d.S.State.RUnlock()
	return append([]*discordgo.Guild(nil), d.S.State.Guilds...)
}

func (d *Discord) VoiceChannel(guildID, userID string) (string, bool) {
	if d.S.State == nil {
		return "", false
	}
	vs, err := d.S.State.VoiceState(guildID, userID)
	if err != nil || vs.ChannelID == "" {
		return "", false
	}
	return vs.ChannelID, true
}
