package gateway

import "github.com/bwmarrin/discordgo"

// Options indexes slash command options by name
type Options map[string]*discordgo.ApplicationCommandInteractionDataOption

// NewOptions builds an index of opts
func NewOptions(opts []*discordgo.ApplicationCommandInteractionDataOption) Options {
	m := make(Options, len(opts))
	for _, o := range opts {
		m[o.Name] = o
	}
	return m
}

// String returns a string option or def when absent
func (o Options) String(name, def string) string {
	if opt, ok := o[name]; ok && opt.Type == discordgo.ApplicationCommandOptionString {
		return opt.StringValue()
	}
	return def
}

// Int returns an integer option or def when absent
func (o Options) Int(name string, def int64) int64 {
	if opt, ok := o[name]; ok && opt.Type == discordgo.ApplicationCommandOptionInteger {
		return opt.IntValue()
	}
	return def
}

// Bool returns a boolean option or def when absent
func (o Options) Bool(name string, def bool) bool {
	if opt, ok := o[name]; ok && opt.Type == discordgo.ApplicationCommandOptionBoolean {
		return opt.BoolValue()
	}
	return def
}

// ID returns the snowflake of a channel, role, user or mentionable option
func (o Options) ID(name string) string {
	opt, ok := o[name]
	if !ok {
		return ""
	}
	if id, ok := opt.Value.(string); ok {
		return id
	}
	return ""
}
