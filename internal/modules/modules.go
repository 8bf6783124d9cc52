// Package modules holds the bot's gateway event handlers: the keyword
// responder, the member greeter and the activity loggers.
package modules

import (
	"context"

	"miyako-bot/config"
	"miyako-bot/internal/gateway"
	"miyako-bot/internal/logsink"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Set groups the event modules enabled by configuration
type Set struct {
	Keywords *Keywords // nil when disabled
	Greeter  *Greeter
	Activity *Activity
}

// New builds the modules from cfg
func New(cfg *config.Config, session gateway.Session, sink logsink.Logger, logger *zap.Logger) *Set {
	s := &Set{
		Greeter:  NewGreeter(cfg.Modules.Member, cfg.Embed, session, sink),
		Activity: NewActivity(cfg.Modules.Loggers, session, sink),
	}
	if cfg.Modules.Keywords.Enabled {
		s.Keywords = NewKeywords(cfg.Modules.Keywords, session, sink, logger)
	}
	return s
}

// Handlers returns discordgo event handlers bound to ctx
func (s *Set) Handlers(ctx context.Context) []interface{} {
	return []interface{}{
		func(_ *discordgo.Session, m *discordgo.MessageCreate) {
			s.Activity.MessageCreate(ctx, m.Message)
			if s.Keywords != nil {
				go s.Keywords.OnMessage(ctx, m.Message)
			}
		},
		func(_ *discordgo.Session, m *discordgo.MessageUpdate) {
			s.Activity.MessageUpdate(ctx, m.BeforeUpdate, m.Message)
		},
		func(_ *discordgo.Session, m *discordgo.MessageDelete) {
			s.Activity.MessageDelete(ctx, m.ChannelID, m.BeforeDelete)
		},
		func(_ *discordgo.Session, v *discordgo.VoiceStateUpdate) {
			s.Activity.VoiceStateUpdate(ctx, v.BeforeUpdate, v.VoiceState)
		},
		func(_ *discordgo.Session, m *discordgo.GuildMemberUpdate) {
			s.Activity.RoleUpdate(ctx, m.BeforeUpdate, m.Member)
		},
		func(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
			s.Activity.MemberAdd(ctx, m.Member)
			s.Greeter.OnJoin(ctx, m.Member)
		},
		func(_ *discordgo.Session, m *discordgo.GuildMemberRemove) {
			s.Activity.MemberRemove(ctx, m.Member)
			s.Greeter.OnLeave(ctx, m.Member)
		},
	}
}

func channelName(session gateway.Session, channelID string) string {
	if ch, err := session.Channel(channelID); err == nil && ch.Name != "" {
		return ch.Name
	}
	return channelID
}

func userTag(u *discordgo.User) string {
	if u.Discriminator == "" || u.Discriminator == "0" {
		return u.Username
	}
	return u.Username + "#" + u.Discriminator
}
