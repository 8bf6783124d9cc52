package gateway

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// Kind classifies an inbound interaction
type Kind int

const (
	Unknown Kind = iota
	SlashCommand
	ButtonClick
	ModalSubmit
)

func (k Kind) String() string {
	switch k {
	case SlashCommand:
		return "slash"
	case ButtonClick:
		return "button"
	case ModalSubmit:
		return "modal"
	default:
		return "unknown"
	}
}

// ReplyState tracks what has been sent back for an interaction
type ReplyState int

const (
	Unanswered ReplyState = iota
	Deferred
	Answered
)

func (s ReplyState) String() string {
	switch s {
	case Deferred:
		return "deferred"
	case Answered:
		return "answered"
	default:
		return "unanswered"
	}
}

// ErrNotAcknowledged is returned when editing a reply that was never sent
var ErrNotAcknowledged = errors.New("interaction has not been acknowledged")

// Interaction wraps one inbound interaction together with its reply state.
// It is safe for use by the handler and the router concurrently.
type Interaction struct {
	*discordgo.Interaction

	session Session

	mu    sync.Mutex
	state ReplyState
	// set when the acknowledgement was a component update or a modal; the
	// original response then is not a reply that can be edited
	noOriginal bool
}

// NewInteraction wraps i for dispatch
func NewInteraction(s Session, i *discordgo.Interaction) *Interaction {
	return &Interaction{Interaction: i, session: s}
}

// Session returns the session the interaction arrived on
func (it *Interaction) Session() Session {
	return it.session
}

// Kind classifies the interaction
func (it *Interaction) Kind() Kind {
	switch it.Type {
	case discordgo.InteractionApplicationCommand:
		return SlashCommand
	case discordgo.InteractionMessageComponent:
		return ButtonClick
	case discordgo.InteractionModalSubmit:
		return ModalSubmit
	default:
		return Unknown
	}
}

// State returns the current reply state
func (it *Interaction) State() ReplyState {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.state
}

// Key returns the routing key: command name or custom id
func (it *Interaction) Key() string {
	switch it.Kind() {
	case SlashCommand:
		return it.ApplicationCommandData().Name
	case ButtonClick:
		return it.MessageComponentData().CustomID
	case ModalSubmit:
		return it.ModalSubmitData().CustomID
	default:
		return ""
	}
}

// Caller returns the invoking user in guilds and DMs
func (it *Interaction) Caller() *discordgo.User {
	if it.Member != nil && it.Member.User != nil {
		return it.Member.User
	}
	if it.User != nil {
		return it.User
	}
	return &discordgo.User{}
}

// UserID returns the invoking user's id
func (it *Interaction) UserID() string {
	return it.Caller().ID
}

// IsAdmin reports whether the caller has the Administrator permission
func (it *Interaction) IsAdmin() bool {
	return it.Member != nil && it.Member.Permissions&discordgo.PermissionAdministrator != 0
}

// Defer acknowledges the interaction and shows a loading state
func (it *Interaction) Defer(ephemeral bool) error {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.state != Unanswered {
		return nil
	}

	resp := &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredChannelMessageWithSource}
	if ephemeral {
		resp.Data = &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral}
	}
	if err := it.session.InteractionRespond(it.Interaction, resp); err != nil {
		return fmt.Errorf("failed to defer interaction: %w", err)
	}
	it.state = Deferred
	return nil
}

// DeferUpdate acknowledges a component interaction without a new message
func (it *Interaction) DeferUpdate() error {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.state != Unanswered {
		return nil
	}

	resp := &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredMessageUpdate}
	if err := it.session.InteractionRespond(it.Interaction, resp); err != nil {
		return fmt.Errorf("failed to defer update: %w", err)
	}
	it.state = Deferred
	it.noOriginal = true
	return nil
}

// Respond sends the first reply, or edits the existing one when the
// interaction was already acknowledged.
func (it *Interaction) Respond(data *discordgo.InteractionResponseData) error {
	it.mu.Lock()
	if it.state == Unanswered {
		defer it.mu.Unlock()
		err := it.session.InteractionRespond(it.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: data,
		})
		if err != nil {
			return fmt.Errorf("failed to respond to interaction: %w", err)
		}
		it.state = Answered
		return nil
	}
	it.mu.Unlock()

	embeds := data.Embeds
	if embeds == nil {
		embeds = []*discordgo.MessageEmbed{}
	}
	components := data.Components
	if components == nil {
		components = []discordgo.MessageComponent{}
	}
	edit := &discordgo.WebhookEdit{
		Embeds:          &embeds,
		Components:      &components,
		Files:           data.Files,
		AllowedMentions: data.AllowedMentions,
	}
	if data.Content != "" {
		edit.Content = &data.Content
	}
	return it.Edit(edit)
}

// Edit updates the deferred or sent reply. After a component update or a
// modal there is no reply to edit, so an ephemeral followup is sent instead.
func (it *Interaction) Edit(edit *discordgo.WebhookEdit) error {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.state == Unanswered {
		return ErrNotAcknowledged
	}

	if it.noOriginal {
		params := &discordgo.WebhookParams{
			Files:           edit.Files,
			AllowedMentions: edit.AllowedMentions,
			Flags:           discordgo.MessageFlagsEphemeral,
		}
		if edit.Content != nil {
			params.Content = *edit.Content
		}
		if edit.Embeds != nil {
			params.Embeds = *edit.Embeds
		}
		if edit.Components != nil {
			params.Components = *edit.Components
		}
		if _, err := it.session.FollowupMessageCreate(it.Interaction, true, params); err != nil {
			return fmt.Errorf("failed to send followup: %w", err)
		}
		it.state = Answered
		return nil
	}

	if _, err := it.session.InteractionResponseEdit(it.Interaction, edit); err != nil {
		return fmt.Errorf("failed to edit interaction response: %w", err)
	}
	it.state = Answered
	return nil
}

// ShowModal answers the interaction with a modal dialog
func (it *Interaction) ShowModal(customID, title string, inputs ...*discordgo.TextInput) error {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.state != Unanswered {
		return fmt.Errorf("cannot show modal %s: interaction already %s", customID, it.state)
	}

	rows := make([]discordgo.MessageComponent, 0, len(inputs))
	for _, in := range inputs {
		rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{in}})
	}

	err := it.session.InteractionRespond(it.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID:   customID,
			Title:      title,
			Components: rows,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to show modal: %w", err)
	}
	it.state = Answered
	it.noOriginal = true
	return nil
}

// Subcommand returns the invoked subcommand name and its options, or an
// empty name and the top-level options.
func (it *Interaction) Subcommand() (string, Options) {
	opts := it.ApplicationCommandData().Options
	if len(opts) == 1 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		return opts[0].Name, NewOptions(opts[0].Options)
	}
	return "", NewOptions(opts)
}

// ModalValue returns the value of a text input in a submitted modal
func (it *Interaction) ModalValue(customID string) string {
	for _, row := range it.ModalSubmitData().Components {
		ar, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, c := range ar.Components {
			if in, ok := c.(*discordgo.TextInput); ok && in.CustomID == customID {
				return in.Value
			}
		}
	}
	return ""
}
