// Package gatewaytest provides an in-memory gateway.Session for tests.
package gatewaytest

import (
	"fmt"
	"sync"
	"time"

	"miyako-bot/internal/gateway"

	"github.com/bwmarrin/discordgo"
)

var _ gateway.Session = (*Fake)(nil)

// Fake is an in-memory Session used by tests across packages
type Fake struct {
	mu sync.Mutex

	Responses []*discordgo.InteractionResponse
	Edits     []*discordgo.WebhookEdit
	Followups []*discordgo.WebhookParams

	Sent        map[string]*discordgo.MessageSend // message id -> payload
	Edited      []*discordgo.MessageEdit
	Deleted     []string
	BulkDeleted [][]string
	Messages    map[string][]*discordgo.Message // channel id -> newest first
	Published   []*discordgo.ApplicationCommand

	// Failures injected per operation
	RespondErr error
	EditErr    error
	SendErr    error
	MsgEditErr error
	DeleteErr  error

	Latency   time.Duration
	User      *discordgo.User
	GuildList []*discordgo.Guild
	Voice     map[string]string // user id -> voice channel id

	nextID int
}

// NewFake returns an empty fake session
func NewFake() *Fake {
	return &Fake{
		Sent:     make(map[string]*discordgo.MessageSend),
		Messages: make(map[string][]*discordgo.Message),
		Voice:    make(map[string]string),
		User:     &discordgo.User{ID: "bot", Username: "Miyako"},
	}
}

func (f *Fake) InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RespondErr != nil {
		return f.RespondErr
	}
	f.Responses = append(f.Responses, resp)
	return nil
}

func (f *Fake) InteractionResponseEdit(i *discordgo.Interaction, edit *discordgo.WebhookEdit) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.EditErr != nil {
		return nil, f.EditErr
	}
	f.Edits = append(f.Edits, edit)
	return &discordgo.Message{ID: "original"}, nil
}

func (f *Fake) FollowupMessageCreate(i *discordgo.Interaction, wait bool, params *discordgo.WebhookParams) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Followups = append(f.Followups, params)
	return &discordgo.Message{ID: "followup"}, nil
}

func (f *Fake) ChannelMessage(channelID, messageID string) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.Messages[channelID] {
		if m.ID == messageID {
			return m, nil
		}
	}
	return nil, fmt.Errorf("HTTP 404 Not Found: Unknown Message %s", messageID)
}

func (f *Fake) ChannelMessages(channelID string, limit int, beforeID string) ([]*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.Messages[channelID]
	start := 0
	if beforeID != "" {
		for idx, m := range msgs {
			if m.ID == beforeID {
				start = idx + 1
				break
			}
		}
	}
	end := start + limit
	if end > len(msgs) {
		end = len(msgs)
	}
	if start > end {
		start = end
	}
	return append([]*discordgo.Message(nil), msgs[start:end]...), nil
}

func (f *Fake) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return nil, f.SendErr
	}
	f.nextID++
	id := fmt.Sprintf("msg-%d", f.nextID)
	f.Sent[id] = data
	return &discordgo.Message{ID: id, ChannelID: channelID}, nil
}

func (f *Fake) ChannelMessageEditComplex(edit *discordgo.MessageEdit) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.MsgEditErr != nil {
		return nil, f.MsgEditErr
	}
	f.Edited = append(f.Edited, edit)
	return &discordgo.Message{ID: edit.ID, ChannelID: edit.Channel}, nil
}

func (f *Fake) ChannelMessageDelete(channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	f.Deleted = append(f.Deleted, messageID)
	return nil
}

func (f *Fake) ChannelMessagesBulkDelete(channelID string, messageIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.BulkDeleted = append(f.BulkDeleted, append([]string(nil), messageIDs...))
	return nil
}

func (f *Fake) Channel(channelID string) (*discordgo.Channel, error) {
	return &discordgo.Channel{ID: channelID, Name: "channel-" + channelID}, nil
}

func (f *Fake) Guild(guildID string) (*discordgo.Guild, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.GuildList {
		if g.ID == guildID {
			return g, nil
		}
	}
	return &discordgo.Guild{ID: guildID, Name: "guild-" + guildID}, nil
}

func (f *Fake) ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand) ([]*discordgo.ApplicationCommand, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Published = commands
	return commands, nil
}

func (f *Fake) HeartbeatLatency() time.Duration { return f.Latency }

func (f *Fake) BotUser() *discordgo.User { return f.User }

func (f *Fake) Guilds() []*discordgo.Guild {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*discordgo.Guild(nil), f.GuildList...)
}

func (f *Fake) VoiceChannel(guildID, userID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.Voice[userID]
	return ch, ok
}

// SetMessageEditError makes subsequent channel message edits fail
func (f *Fake) SetMessageEditError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.MsgEditErr = err
}

// DeletedIDs returns the ids of deleted channel messages
func (f *Fake) DeletedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Deleted...)
}

// Snapshot returns the number of responses, edits and followups
func (f *Fake) Snapshot() (responses int, edits int, followups int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Responses), len(f.Edits), len(f.Followups)
}

// Counts returns the number of sent, edited and deleted channel messages
func (f *Fake) Counts() (sent, edited, deleted int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sent), len(f.Edited), len(f.Deleted)
}

// LastEdit returns the most recent interaction response edit
func (f *Fake) LastEdit() *discordgo.WebhookEdit {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Edits) == 0 {
		return nil
	}
	return f.Edits[len(f.Edits)-1]
}

// LastResponse returns the most recent interaction response
func (f *Fake) LastResponse() *discordgo.InteractionResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Responses) == 0 {
		return nil
	}
	return f.Responses[len(f.Responses)-1]
}

// NewSlash builds a slash command interaction for tests
func NewSlash(name string, options ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.Interaction {
	return &discordgo.Interaction{
		ID:        "interaction",
		Type:      discordgo.InteractionApplicationCommand,
		GuildID:   "guild",
		ChannelID: "channel",
		Member:    &discordgo.Member{User: &discordgo.User{ID: "user", Username: "tester"}},
		Data: discordgo.ApplicationCommandInteractionData{
			Name:    name,
			Options: options,
		},
	}
}

// NewButton builds a button interaction for tests
func NewButton(customID string) *discordgo.Interaction {
	return &discordgo.Interaction{
		ID:        "interaction",
		Type:      discordgo.InteractionMessageComponent,
		GuildID:   "guild",
		ChannelID: "channel",
		Member:    &discordgo.Member{User: &discordgo.User{ID: "user", Username: "tester"}},
		Data: discordgo.MessageComponentInteractionData{
			CustomID:      customID,
			ComponentType: discordgo.ButtonComponent,
		},
	}
}

// NewModal builds a modal submit interaction for tests
func NewModal(customID string, values map[string]string) *discordgo.Interaction {
	rows := make([]discordgo.MessageComponent, 0, len(values))
	for id, v := range values {
		rows = append(rows, &discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			&discordgo.TextInput{CustomID: id, Value: v},
		}})
	}
	return &discordgo.Interaction{
		ID:        "interaction",
		Type:      discordgo.InteractionModalSubmit,
		GuildID:   "guild",
		ChannelID: "channel",
		Member:    &discordgo.Member{User: &discordgo.User{ID: "user", Username: "tester"}},
		Data: discordgo.ModalSubmitInteractionData{
			CustomID:   customID,
			Components: rows,
		},
	}
}
