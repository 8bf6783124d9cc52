package commands

import (
	"context"
	"fmt"
	"strings"

	"miyako-bot/internal/command"
	"miyako-bot/internal/gateway"

	"github.com/bwmarrin/discordgo"
	"github.com/samber/lo"
)

// maxFieldValue is the platform limit for an embed field value
const maxFieldValue = 1024

func (d *Deps) about(commandNames func() []string) *command.Descriptor {
	return &command.Descriptor{
		Definition: &discordgo.ApplicationCommand{
			Name:              "about",
			NameLocalizations: localized("關於"),
			Description:       "查看機器人的相關資訊",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:              discordgo.ApplicationCommandOptionBoolean,
					Name:              "show_guild_ids",
					NameLocalizations: *localized("顯示伺服器id"),
					Description:       "是否在伺服器列表中顯示伺服器 ID",
				},
			},
		},
		Handler: func(ctx context.Context, it *gateway.Interaction) error {
			return d.handleAbout(ctx, it, commandNames())
		},
	}
}

func (d *Deps) handleAbout(_ context.Context, it *gateway.Interaction, commandNames []string) error {
	_, opts := it.Subcommand()
	showIDs := opts.Bool("show_guild_ids", false)

	session := it.Session()
	botName := d.Config.About.Name
	var avatar string
	if u := session.BotUser(); u != nil {
		botName = u.Username
		avatar = u.AvatarURL("256")
	}

	guilds := session.Guilds()
	members := lo.SumBy(guilds, func(g *discordgo.Guild) int { return g.MemberCount })
	guildLines := lo.Map(guilds, func(g *discordgo.Guild, _ int) string {
		if showIDs {
			return fmt.Sprintf("- %s（ID: %s）", g.Name, g.ID)
		}
		return "- " + g.Name
	})
	guildList := "無"
	if len(guildLines) > 0 {
		guildList = truncateField(strings.Join(guildLines, "\n"))
	}

	commandList := strings.Join(lo.Map(commandNames, func(name string, _ int) string {
		return "`" + name + "`"
	}), " | ")

	embed := d.embed(fmt.Sprintf("%s ┃ 關於%s", d.Config.Commands.About.Emoji, botName))
	embed.Description = d.Config.About.Introduce
	if avatar != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: avatar}
	}
	embed.Fields = []*discordgo.MessageEmbedField{
		{Name: "服務提供者", Value: fmt.Sprintf("<@%s>", d.Config.About.Provider), Inline: true},
		{Name: "GitHub 儲存庫", Value: fmt.Sprintf("[前往 GitHub 儲存庫](%s)", d.Config.About.Repository), Inline: true},
		{Name: fmt.Sprintf("共有 %d 條指令", len(commandNames)), Value: truncateField(commandList)},
		{Name: fmt.Sprintf("在 %d 個伺服器服務 %d 位成員", len(guilds), members), Value: guildList},
	}

	return respondEmbeds(it, false, embed)
}

// truncateField keeps a field value within the platform limit
func truncateField(s string) string {
	runes := []rune(s)
	if len(runes) <= maxFieldValue {
		return s
	}
	return string(runes[:maxFieldValue-1]) + "…"
}
