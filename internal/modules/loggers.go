package modules

import (
	"context"
	"fmt"
	"strings"

	"miyako-bot/config"
	"miyako-bot/internal/gateway"
	"miyako-bot/internal/logsink"

	"github.com/bwmarrin/discordgo"
	"github.com/samber/lo"
)

// Activity mirrors guild activity to the log sink
type Activity struct {
	cfg     config.LoggersConfig
	session gateway.Session
	sink    logsink.Logger
}

// NewActivity creates the activity loggers
func NewActivity(cfg config.LoggersConfig, session gateway.Session, sink logsink.Logger) *Activity {
	return &Activity{cfg: cfg, session: session, sink: sink}
}

func (a *Activity) MessageCreate(ctx context.Context, m *discordgo.Message) {
	if !a.cfg.MessageCreate || m.Author == nil || m.Author.Bot {
		return
	}
	a.sink.SendLog(ctx, fmt.Sprintf("✏️ %s 在「#%s」發送了訊息: %s",
		userTag(m.Author), channelName(a.session, m.ChannelID), m.Content), logsink.Info, nil)
}

// MessageUpdate logs edits. before is nil when the message was not cached.
func (a *Activity) MessageUpdate(ctx context.Context, before, after *discordgo.Message) {
	if !a.cfg.MessageUpdate || after == nil {
		return
	}
	author := after.Author
	if author == nil && before != nil {
		author = before.Author
	}
	if author == nil || author.Bot {
		return
	}

	old := "無法獲取內容"
	if before != nil {
		if before.Content == after.Content {
			return
		}
		old = before.Content
	}
	a.sink.SendLog(ctx, fmt.Sprintf("✏️ %s 在「#%s」編輯了訊息: \n 原內容: %s \n 新內容: %s",
		userTag(author), channelName(a.session, after.ChannelID), old, after.Content), logsink.Warn, nil)
}

// MessageDelete logs deletions. before is nil when the message was not cached.
func (a *Activity) MessageDelete(ctx context.Context, channelID string, before *discordgo.Message) {
	if !a.cfg.MessageDelete {
		return
	}
	channel := channelName(a.session, channelID)
	if before == nil || before.Author == nil {
		a.sink.SendLog(ctx, fmt.Sprintf("✏️ 有訊息在「#%s」被刪除: 無法獲取內容", channel), logsink.Warn, nil)
		return
	}
	if before.Author.Bot {
		return
	}
	content := before.Content
	if content == "" {
		content = "無法獲取內容"
	}
	a.sink.SendLog(ctx, fmt.Sprintf("✏️ %s 在「#%s」刪除了訊息: %s",
		userTag(before.Author), channel, content), logsink.Warn, nil)
}

// VoiceStateUpdate logs joins, leaves and switches between voice channels
func (a *Activity) VoiceStateUpdate(ctx context.Context, before, after *discordgo.VoiceState) {
	if !a.cfg.Voice || after == nil {
		return
	}

	who := "<@" + after.UserID + ">"
	if after.Member != nil && after.Member.User != nil {
		who = userTag(after.Member.User)
	}

	from := ""
	if before != nil {
		from = before.ChannelID
	}
	to := after.ChannelID

	switch {
	case from == "" && to != "":
		a.sink.SendLog(ctx, fmt.Sprintf("🔊 %s 加入了語音頻道「%s」", who, channelName(a.session, to)), logsink.Info, nil)
	case from != "" && to == "":
		a.sink.SendLog(ctx, fmt.Sprintf("🔇 %s 離開了語音頻道「%s」", who, channelName(a.session, from)), logsink.Info, nil)
	case from != "" && from != to:
		a.sink.SendLog(ctx, fmt.Sprintf("🔊 %s 從「%s」切換到「%s」",
			who, channelName(a.session, from), channelName(a.session, to)), logsink.Info, nil)
	}
}

// RoleUpdate logs roles gained and lost by a member
func (a *Activity) RoleUpdate(ctx context.Context, before, after *discordgo.Member) {
	if !a.cfg.Role || before == nil || after == nil || after.User == nil {
		return
	}

	added, removed := lo.Difference(after.Roles, before.Roles)
	if len(added) == 0 && len(removed) == 0 {
		return
	}

	names := a.roleNames(after.GuildID)
	label := func(ids []string) string {
		return strings.Join(lo.Map(ids, func(id string, _ int) string {
			if n, ok := names[id]; ok {
				return n
			}
			return id
		}), ", ")
	}

	tag := userTag(after.User)
	var lines []string
	if len(added) > 0 {
		lines = append(lines, fmt.Sprintf("🏷️ %s 獲得了新身分組: %s", tag, label(added)))
	}
	if len(removed) > 0 {
		lines = append(lines, fmt.Sprintf("🏷️ %s 失去了身分組: %s", tag, label(removed)))
	}
	owned := label(after.Roles)
	if owned == "" {
		owned = "無角色"
	}
	lines = append(lines, fmt.Sprintf(" %s 擁有的身分組: %s", tag, owned))

	a.sink.SendLog(ctx, strings.Join(lines, "\n"), logsink.Info, nil)
}

func (a *Activity) roleNames(guildID string) map[string]string {
	guild, err := a.session.Guild(guildID)
	if err != nil {
		return nil
	}
	return lo.SliceToMap(guild.Roles, func(r *discordgo.Role) (string, string) { return r.ID, r.Name })
}

// MemberAdd logs a member joining
func (a *Activity) MemberAdd(ctx context.Context, m *discordgo.Member) {
	a.memberLine(ctx, m, "已加入")
}

// MemberRemove logs a member leaving
func (a *Activity) MemberRemove(ctx context.Context, m *discordgo.Member) {
	a.memberLine(ctx, m, "已離開")
}

func (a *Activity) memberLine(ctx context.Context, m *discordgo.Member, verb string) {
	if !a.cfg.Member || m == nil || m.User == nil {
		return
	}
	guild := m.GuildID
	if g, err := a.session.Guild(m.GuildID); err == nil {
		guild = g.Name
	}
	a.sink.SendLog(ctx, fmt.Sprintf("🚧 %s %s「%s」", m.User.Username, verb, guild), logsink.Info, nil)
}
