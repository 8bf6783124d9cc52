package commands

import (
	"context"
	"fmt"

	"miyako-bot/internal/apperr"
	"miyako-bot/internal/command"
	"miyako-bot/internal/gateway"

	"github.com/bwmarrin/discordgo"
)

func (d *Deps) hitokoto() *command.Descriptor {
	return &command.Descriptor{
		Definition: &discordgo.ApplicationCommand{
			Name:              "hitokoto",
			NameLocalizations: localized("一言"),
			Description:       "獲取一條動漫相關的名言短句",
		},
		Handler: d.handleHitokoto,
	}
}

func (d *Deps) handleHitokoto(ctx context.Context, it *gateway.Interaction) error {
	quote, err := d.Quotes.Random(ctx)
	if err != nil {
		return apperr.Externalf(err, "無法獲取短句，請稍後再試！\n- 原因：連線至 Hitokoto API 時出現錯誤。")
	}

	from := quote.From
	if from == "" {
		from = "未知"
	}

	embed := d.embed(fmt.Sprintf("%s ┃ 一言", d.Config.Commands.Hitokoto.Emoji))
	embed.Description = quote.Text
	embed.Fields = []*discordgo.MessageEmbedField{{Name: "　", Value: from}}
	embed.Footer = &discordgo.MessageEmbedFooter{Text: "使用 Hitokoto 語句 API"}

	return respondEmbeds(it, false, embed)
}
