// Package command holds the command registry and the interaction router.
package command

import (
	"context"
	"fmt"
	"sort"

	"miyako-bot/internal/gateway"

	"github.com/bwmarrin/discordgo"
)

// Handler processes one interaction. A returned error is reported to the
// user by the router; classify it with apperr to control the message.
type Handler func(ctx context.Context, it *gateway.Interaction) error

// Descriptor describes one slash command and the components it owns
type Descriptor struct {
	Definition *discordgo.ApplicationCommand
	Handler    Handler
	Buttons    map[string]Handler // custom id -> handler
	Modals     map[string]Handler // custom id -> handler
}

// Name returns the command name
func (d *Descriptor) Name() string {
	return d.Definition.Name
}

// Registry indexes descriptors by command name and component custom id.
// It is immutable after construction.
type Registry struct {
	commands map[string]*Descriptor
	buttons  map[string]Handler
	modals   map[string]Handler
}

// Publisher replaces the published command list
type Publisher interface {
	ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand) ([]*discordgo.ApplicationCommand, error)
}

// NewRegistry builds the lookup tables. Duplicate command names or custom
// ids are rejected.
func NewRegistry(descriptors ...*Descriptor) (*Registry, error) {
	r := &Registry{
		commands: make(map[string]*Descriptor),
		buttons:  make(map[string]Handler),
		modals:   make(map[string]Handler),
	}

	for _, d := range descriptors {
		if d.Definition == nil || d.Definition.Name == "" {
			return nil, fmt.Errorf("command descriptor without a name")
		}
		if d.Handler == nil {
			return nil, fmt.Errorf("command %s has no handler", d.Name())
		}
		if _, exists := r.commands[d.Name()]; exists {
			return nil, fmt.Errorf("duplicate command name: %s", d.Name())
		}
		r.commands[d.Name()] = d

		for id, h := range d.Buttons {
			if _, exists := r.buttons[id]; exists {
				return nil, fmt.Errorf("duplicate button id %s in command %s", id, d.Name())
			}
			r.buttons[id] = h
		}
		for id, h := range d.Modals {
			if _, exists := r.modals[id]; exists {
				return nil, fmt.Errorf("duplicate modal id %s in command %s", id, d.Name())
			}
			r.modals[id] = h
		}
	}

	return r, nil
}

// Lookup finds the handler for an interaction by kind and routing key
func (r *Registry) Lookup(kind gateway.Kind, key string) (Handler, bool) {
	switch kind {
	case gateway.SlashCommand:
		if d, ok := r.commands[key]; ok {
			return d.Handler, true
		}
	case gateway.ButtonClick:
		h, ok := r.buttons[key]
		return h, ok
	case gateway.ModalSubmit:
		h, ok := r.modals[key]
		return h, ok
	}
	return nil, false
}

// Names returns the command names in sorted order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the command definitions in name order
func (r *Registry) Definitions() []*discordgo.ApplicationCommand {
	defs := make([]*discordgo.ApplicationCommand, 0, len(r.commands))
	for _, name := range r.Names() {
		defs = append(defs, r.commands[name].Definition)
	}
	return defs
}

// Publish replaces the platform's command list with this registry's.
// An empty guildID publishes globally.
func (r *Registry) Publish(p Publisher, appID, guildID string) (int, error) {
	published, err := p.ApplicationCommandBulkOverwrite(appID, guildID, r.Definitions())
	if err != nil {
		return 0, fmt.Errorf("failed to publish commands: %w", err)
	}
	return len(published), nil
}

// Clear removes every published command
func Clear(p Publisher, appID, guildID string) error {
	if _, err := p.ApplicationCommandBulkOverwrite(appID, guildID, []*discordgo.ApplicationCommand{}); err != nil {
		return fmt.Errorf("failed to clear commands: %w", err)
	}
	return nil
}
