package commands

import (
	"context"
	"fmt"
	"net/netip"
	"strings"

	"miyako-bot/internal/apperr"
	"miyako-bot/internal/command"
	"miyako-bot/internal/gateway"
	"miyako-bot/internal/ipapi"

	"github.com/bwmarrin/discordgo"
)

func (d *Deps) ipinfo() *command.Descriptor {
	return &command.Descriptor{
		Definition: &discordgo.ApplicationCommand{
			Name:              "ipinfo",
			NameLocalizations: localized("網際協定位址資訊"),
			Description:       "查詢 IPv4 或 IPv6 位址的相關資訊",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:              discordgo.ApplicationCommandOptionString,
					Name:              "address",
					NameLocalizations: *localized("位址"),
					Description:       "輸入 IPv4 或 IPv6 位址",
					Required:          true,
				},
			},
		},
		Handler: d.handleIPInfo,
	}
}

func (d *Deps) handleIPInfo(ctx context.Context, it *gateway.Interaction) error {
	_, opts := it.Subcommand()
	address := strings.TrimSpace(opts.String("address", ""))
	if _, err := netip.ParseAddr(address); err != nil {
		return apperr.UserInputf("請輸入有效的 IPv4 或 IPv6 位址！")
	}

	info, err := d.IPs.Lookup(ctx, address)
	if err != nil {
		return err
	}

	embed := d.embed(fmt.Sprintf("%s ┃ 網際協定位址資訊 - %s", d.Config.Commands.IPInfo.Emoji, address))
	embed.Fields = []*discordgo.MessageEmbedField{
		{Name: "是行動網路", Value: ipapi.YesNo(info.Mobile), Inline: true},
		{Name: "是託管服務", Value: ipapi.YesNo(info.Hosting), Inline: true},
		{Name: "是代理服務", Value: ipapi.YesNo(info.Proxy), Inline: true},
		{Name: "地理位置", Value: orNone(info.Location())},
		{Name: "服務供應商", Value: orNone(info.ISP)},
		{Name: "自治系統", Value: orNone(info.AS)},
	}

	return respondEmbeds(it, false, embed)
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "無"
	}
	return s
}
