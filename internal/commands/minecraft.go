package commands

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"miyako-bot/config"
	"miyako-bot/internal/apperr"
	"miyako-bot/internal/command"
	"miyako-bot/internal/gateway"
	"miyako-bot/internal/mcstatus"

	"github.com/bwmarrin/discordgo"
	"github.com/samber/lo"
)

var playerNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,16}$`)

func (d *Deps) minecraft() *command.Descriptor {
	presets := lo.Map(d.Config.Commands.Minecraft.Presets, func(p config.ServerPreset, _ int) *discordgo.ApplicationCommandOptionChoice {
		return &discordgo.ApplicationCommandOptionChoice{Name: p.Name, Value: p.Address}
	})

	return &command.Descriptor{
		Definition: &discordgo.ApplicationCommand{
			Name:              "minecraft",
			NameLocalizations: localized("麥塊"),
			Description:       "麥塊相關的輔助功能",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:              discordgo.ApplicationCommandOptionSubCommand,
					Name:              "server",
					NameLocalizations: *localized("伺服器狀態資訊"),
					Description:       "查詢 Minecraft 伺服器狀態資訊",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:              discordgo.ApplicationCommandOptionString,
							Name:              "preset",
							NameLocalizations: *localized("選擇預設伺服器"),
							Description:       "從預設列表中選擇伺服器",
							Choices:           presets,
						},
						{
							Type:              discordgo.ApplicationCommandOptionString,
							Name:              "address",
							NameLocalizations: *localized("輸入伺服器位址"),
							Description:       "手動輸入伺服器 IP 位址",
						},
					},
				},
				{
					Type:              discordgo.ApplicationCommandOptionSubCommand,
					Name:              "skin",
					NameLocalizations: *localized("玩家外觀資訊"),
					Description:       "查詢 Minecraft 玩家的外觀資訊",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:              discordgo.ApplicationCommandOptionString,
							Name:              "player",
							NameLocalizations: *localized("玩家名稱"),
							Description:       "要查詢的玩家名稱",
							Required:          true,
						},
					},
				},
			},
		},
		Handler: d.handleMinecraft,
	}
}

func (d *Deps) handleMinecraft(ctx context.Context, it *gateway.Interaction) error {
	sub, opts := it.Subcommand()
	switch sub {
	case "server":
		return d.serverStatus(ctx, it, opts)
	case "skin":
		return d.playerSkin(it, opts)
	default:
		return fmt.Errorf("unknown minecraft subcommand %q", sub)
	}
}

func (d *Deps) serverStatus(ctx context.Context, it *gateway.Interaction, opts gateway.Options) error {
	address := opts.String("preset", "")
	if address == "" {
		address = strings.TrimSpace(opts.String("address", ""))
	}
	if address == "" {
		return apperr.UserInputf("請選擇預設伺服器或手動輸入伺服器 IP 位址！")
	}
	if !mcstatus.ValidAddress(address) {
		return apperr.UserInputf("請輸入有效的伺服器 IP 或域名！")
	}

	status, err := d.Servers.Status(ctx, address)
	if err != nil {
		if apperr.Is(err, apperr.External) {
			return apperr.Externalf(err, "無法連接到伺服器 %s，伺服器可能離線或無法連接。", address)
		}
		return err
	}

	embed := d.embed(fmt.Sprintf("%s ┃ 伺服器狀態 - %s", d.Config.Commands.Minecraft.Emoji, address))
	embed.Description = status.MOTD.Clean
	embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: d.Servers.IconURL(address)}
	embed.Fields = []*discordgo.MessageEmbedField{
		{Name: "玩家在線", Value: fmt.Sprintf("%d / %d", status.Players.Online, status.Players.Max), Inline: true},
		{Name: "遊戲版本", Value: orNone(status.Version.NameClean), Inline: true},
		{Name: "協定版本", Value: strconv.Itoa(status.Version.Protocol), Inline: true},
		{Name: "線上玩家", Value: truncateField(status.PlayerList())},
		{Name: "真實位址", Value: fmt.Sprintf("||%s||", orNone(status.IP))},
	}

	return respondEmbeds(it, false, embed)
}

func (d *Deps) playerSkin(it *gateway.Interaction, opts gateway.Options) error {
	player := strings.TrimSpace(opts.String("player", ""))
	if !playerNamePattern.MatchString(player) {
		return apperr.UserInputf("請輸入有效的玩家名稱！")
	}

	embed := d.embed(fmt.Sprintf("%s ┃ 玩家外觀 - %s", d.Config.Commands.Minecraft.Emoji, player))
	embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: mcstatus.AvatarURL(player)}
	embed.Image = &discordgo.MessageEmbedImage{URL: mcstatus.SkinRenderURL(player)}
	embed.Footer = &discordgo.MessageEmbedFooter{Text: "使用 Minotar 與 StarLight Skins API"}

	download := discordgo.Button{
		Label: fmt.Sprintf("下載 %s 的外觀", player),
		Style: discordgo.LinkButton,
		URL:   mcstatus.SkinDownloadURL(player),
	}

	return it.Respond(&discordgo.InteractionResponseData{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: []discordgo.MessageComponent{discordgo.ActionsRow{Components: []discordgo.MessageComponent{download}}},
	})
}
