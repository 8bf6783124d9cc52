package commands

import (
	"context"
	"fmt"
	"math/rand/v2"

	"miyako-bot/internal/apperr"
	"miyako-bot/internal/command"
	"miyako-bot/internal/gateway"

	"github.com/bwmarrin/discordgo"
	"github.com/samber/lo"
)

func (d *Deps) stream() *command.Descriptor {
	return &command.Descriptor{
		Definition: &discordgo.ApplicationCommand{
			Name:                     "stream",
			NameLocalizations:        localized("直播通知"),
			Description:              "發送直播開始通知到目前頻道",
			DefaultMemberPermissions: &adminPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:              discordgo.ApplicationCommandOptionString,
					Name:              "title",
					NameLocalizations: *localized("標題"),
					Description:       "直播標題",
					Required:          true,
				},
			},
		},
		Handler: d.handleStream,
	}
}

func (d *Deps) handleStream(_ context.Context, it *gateway.Interaction) error {
	if err := requireAdmin(it); err != nil {
		return err
	}
	if err := it.Defer(true); err != nil {
		return err
	}

	cfg := d.Config.Commands.Stream
	_, opts := it.Subcommand()
	url := fmt.Sprintf("https://www.twitch.tv/%s", cfg.UserLogin)

	embed := d.embed(opts.String("title", ""))
	embed.Author = &discordgo.MessageEmbedAuthor{Name: fmt.Sprintf("%s ┃ 直播通知", cfg.Emoji)}
	embed.URL = url
	embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: cfg.UserAvatar}
	// The query string defeats the preview image cache
	embed.Image = &discordgo.MessageEmbedImage{
		URL: fmt.Sprintf("https://static-cdn.jtvnw.net/previews-ttv/live_user_%s-1280x720.jpg?r=%d", cfg.UserLogin, 100000+rand.IntN(900000)),
	}
	embed.Timestamp = d.now().Format(timestampLayout)

	mention := "@everyone"
	if cfg.RoleID != "" {
		mention = fmt.Sprintf("<@&%s>", cfg.RoleID)
	}
	content := mention
	if len(cfg.Messages) > 0 {
		content += " " + lo.Sample(cfg.Messages)
	}

	watch := discordgo.Button{Label: "前往觀看直播", Style: discordgo.LinkButton, URL: url}
	_, err := it.Session().ChannelMessageSendComplex(it.ChannelID, &discordgo.MessageSend{
		Content:    content,
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: []discordgo.MessageComponent{discordgo.ActionsRow{Components: []discordgo.MessageComponent{watch}}},
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeEveryone, discordgo.AllowedMentionTypeRoles},
		},
	})
	if err != nil {
		return apperr.Externalf(err, "無法發送直播通知，請確認機器人在此頻道具有 `發送訊息` 與 `嵌入連結` 權限！")
	}

	d.Replies.InfoReply(it, "**公告已發送！**")
	return nil
}
