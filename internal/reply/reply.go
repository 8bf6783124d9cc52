// Package reply builds the uniform success and failure replies.
package reply

import (
	"fmt"

	"miyako-bot/config"
	"miyako-bot/internal/gateway"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Formatter sends success and error embeds to an interaction
type Formatter struct {
	embed  config.EmbedConfig
	about  config.AboutConfig
	logger *zap.Logger
}

// NewFormatter creates a reply formatter
func NewFormatter(embed config.EmbedConfig, about config.AboutConfig, logger *zap.Logger) *Formatter {
	return &Formatter{embed: embed, about: about, logger: logger}
}

// ErrorEmbed builds the "execution failed" embed for message
func (f *Formatter) ErrorEmbed(message string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: fmt.Sprintf("%s ┃ 執行時失敗", f.embed.ErrorEmoji),
		Color: f.embed.ErrorColor,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name: message,
				Value: fmt.Sprintf("-# 如果您認為這是機器人本身的問題，請至 [GitHub 儲存庫](%s) 建立一個 Issue，或與 <@%s> 聯繫，來報告該問題。",
					f.about.Repository, f.about.Provider),
				Inline: true,
			},
		},
	}
}

// InfoEmbed builds the "operation succeeded" embed for message
func (f *Formatter) InfoEmbed(message string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: fmt.Sprintf("%s ┃ 操作成功", f.embed.SuccessEmoji),
		Color: f.embed.Color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: message, Value: "　", Inline: true},
		},
	}
}

// ErrorReply reports a failure to the user. Delivery errors are swallowed.
func (f *Formatter) ErrorReply(it *gateway.Interaction, message string, files ...*discordgo.File) {
	f.send(it, f.ErrorEmbed(message), files)
}

// InfoReply reports a success to the user. Delivery errors are swallowed.
func (f *Formatter) InfoReply(it *gateway.Interaction, message string, files ...*discordgo.File) {
	f.send(it, f.InfoEmbed(message), files)
}

// send makes exactly one outbound call chosen by the reply state
func (f *Formatter) send(it *gateway.Interaction, embed *discordgo.MessageEmbed, files []*discordgo.File) {
	embeds := []*discordgo.MessageEmbed{embed}
	components := []discordgo.MessageComponent{}

	var err error
	switch it.State() {
	case gateway.Unanswered:
		data := &discordgo.InteractionResponseData{Embeds: embeds, Files: files}
		if f.embed.Ephemeral {
			data.Flags = discordgo.MessageFlagsEphemeral
		}
		err = it.Respond(data)
	case gateway.Deferred, gateway.Answered:
		err = it.Edit(&discordgo.WebhookEdit{
			Embeds:     &embeds,
			Components: &components,
			Files:      files,
		})
	}

	if err != nil {
		f.logger.Debug("Failed to deliver reply",
			zap.String("interaction", it.ID),
			zap.String("state", it.State().String()),
			zap.Error(err),
		)
	}
}
