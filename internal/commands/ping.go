package commands

import (
	"context"
	"fmt"

	"miyako-bot/internal/command"
	"miyako-bot/internal/gateway"

	"github.com/bwmarrin/discordgo"
)

func (d *Deps) ping() *command.Descriptor {
	return &command.Descriptor{
		Definition: &discordgo.ApplicationCommand{
			Name:              "ping",
			NameLocalizations: localized("延遲"),
			Description:       "測試機器人延遲",
		},
		Handler: d.handlePing,
	}
}

func (d *Deps) handlePing(_ context.Context, it *gateway.Interaction) error {
	latency := it.Session().HeartbeatLatency()

	embed := d.embed(fmt.Sprintf("%s ┃ Pong!", d.Config.Commands.Ping.Emoji))
	embed.Description = fmt.Sprintf("機器人延遲：%dms", latency.Milliseconds())
	embed.Timestamp = d.now().Format(timestampLayout)

	return respondEmbeds(it, true, embed)
}
