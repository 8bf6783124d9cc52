package modules

import (
	"context"
	"fmt"

	"miyako-bot/config"
	"miyako-bot/internal/gateway"
	"miyako-bot/internal/logsink"

	"github.com/bwmarrin/discordgo"
	"github.com/samber/lo"
)

// Greeter posts welcome and farewell embeds in the guild system channel
type Greeter struct {
	cfg     config.MemberConfig
	color   int
	session gateway.Session
	sink    logsink.Logger
	pick    func([]string) string
}

// NewGreeter creates a Greeter
func NewGreeter(cfg config.MemberConfig, embed config.EmbedConfig, session gateway.Session, sink logsink.Logger) *Greeter {
	return &Greeter{cfg: cfg, color: embed.Color, session: session, sink: sink, pick: lo.Sample[string]}
}

// OnJoin welcomes a new member
func (g *Greeter) OnJoin(ctx context.Context, m *discordgo.Member) {
	g.post(ctx, m, fmt.Sprintf("%s ┃ 歡迎新成員！", g.cfg.JoinEmoji), "已加入", g.cfg.JoinMessages, "歡迎")
}

// OnLeave says goodbye to a departed member
func (g *Greeter) OnLeave(ctx context.Context, m *discordgo.Member) {
	g.post(ctx, m, fmt.Sprintf("%s ┃ 成員離開 (；′⌒')", g.cfg.LeaveEmoji), "已離開", g.cfg.LeaveMessages, "離開")
}

func (g *Greeter) post(ctx context.Context, m *discordgo.Member, title, verb string, messages []string, kind string) {
	if !g.cfg.Enabled || m == nil || m.User == nil {
		return
	}

	guild, err := g.session.Guild(m.GuildID)
	if err != nil {
		g.sink.SendLog(ctx, fmt.Sprintf("❌ 無法取得伺服器 %s 的資訊", m.GuildID), logsink.Error, err)
		return
	}
	if guild.SystemChannelID == "" {
		return
	}

	embed := &discordgo.MessageEmbed{
		Title:       title,
		Color:       g.color,
		Description: fmt.Sprintf("**%s** %s **%s**！", m.User.Username, verb, guild.Name),
		Thumbnail:   &discordgo.MessageEmbedThumbnail{URL: m.User.AvatarURL("")},
	}
	if len(messages) > 0 {
		embed.Fields = []*discordgo.MessageEmbedField{{Name: "　", Value: g.pick(messages)}}
	}

	if _, err := g.session.ChannelMessageSendComplex(guild.SystemChannelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{embed},
	}); err != nil {
		g.sink.SendLog(ctx, fmt.Sprintf("❌ 無法發送%s訊息至「%s」", kind, guild.Name), logsink.Error, err)
	}
}
