package commands

import (
	"context"
	"fmt"

	"miyako-bot/internal/apperr"
	"miyako-bot/internal/command"
	"miyako-bot/internal/gateway"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/samber/lo"
)

var errNotAdmin = apperr.Permissionf("你必須是伺服器的管理者才能使用此指令！")

const announceFetchFailure = "無法找到該訊息 ID，請檢查以下內容！\n" +
	" 1. 機器人應具有 `讀取訊息歷史`、`檢視頻道`、`發送訊息`、`嵌入連結`、`提及身分組` 權限。\n" +
	" 2. 確認訊息 ID 是否正確！"

func (d *Deps) announce() *command.Descriptor {
	return &command.Descriptor{
		Definition: &discordgo.ApplicationCommand{
			Name:                     "announce",
			NameLocalizations:        localized("發送公告"),
			Description:              "將目前頻道的訊息轉為公告發送到指定頻道",
			DefaultMemberPermissions: &adminPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:              discordgo.ApplicationCommandOptionString,
					Name:              "message_id",
					NameLocalizations: *localized("訊息id"),
					Description:       "要作為公告內容的訊息 ID",
					Required:          true,
				},
				{
					Type:              discordgo.ApplicationCommandOptionChannel,
					Name:              "channel",
					NameLocalizations: *localized("頻道"),
					Description:       "要發送公告的頻道",
					ChannelTypes:      []discordgo.ChannelType{discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews},
					Required:          true,
				},
				{
					Type:              discordgo.ApplicationCommandOptionRole,
					Name:              "role",
					NameLocalizations: *localized("身分組"),
					Description:       "要提及的身分組",
				},
			},
		},
		Handler: d.handleAnnounce,
	}
}

func (d *Deps) handleAnnounce(ctx context.Context, it *gateway.Interaction) error {
	if err := requireAdmin(it); err != nil {
		return err
	}

	_, opts := it.Subcommand()
	messageID := opts.String("message_id", "")
	targetID := opts.ID("channel")
	roleID := opts.ID("role")

	if _, err := snowflake.Parse(messageID); err != nil {
		return apperr.Wrap(apperr.UserInput, announceFetchFailure, err)
	}

	session := it.Session()
	source, err := session.ChannelMessage(it.ChannelID, messageID)
	if err != nil {
		return apperr.Wrap(apperr.NotFound, announceFetchFailure, err)
	}

	embed := d.embed(fmt.Sprintf("%s ┃ 公告", d.Config.Commands.Announce.Emoji))
	embed.Description = source.Content
	if len(source.Attachments) > 0 {
		embed.Image = &discordgo.MessageEmbedImage{URL: source.Attachments[0].URL}
	}

	send := &discordgo.MessageSend{
		Embeds:          []*discordgo.MessageEmbed{embed},
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}
	if roleID != "" {
		send.Content = fmt.Sprintf("<@&%s>", roleID)
		send.AllowedMentions.Roles = []string{roleID}
	}

	if _, err := session.ChannelMessageSendComplex(targetID, send); err != nil {
		return apperr.Externalf(err, "無法發送公告到該頻道，請確認機器人在該頻道具有 `發送訊息` 與 `嵌入連結` 權限！")
	}

	channelName := targetID
	if ch, err := session.Channel(targetID); err == nil {
		channelName = ch.Name
	}

	confirmation := fmt.Sprintf("公告已發送到 %s", channelName)
	if roleID != "" {
		confirmation += fmt.Sprintf(" 並提及 %s", d.roleName(session, it.GuildID, roleID))
	}
	confirmation += "！"

	return it.Respond(&discordgo.InteractionResponseData{
		Content: confirmation,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
}

func (d *Deps) roleName(session gateway.Session, guildID, roleID string) string {
	guild, err := session.Guild(guildID)
	if err != nil {
		return roleID
	}
	role, ok := lo.Find(guild.Roles, func(r *discordgo.Role) bool { return r.ID == roleID })
	if !ok {
		return roleID
	}
	return role.Name
}
