package commands

import (
	"context"
	"fmt"
	"time"

	"miyako-bot/internal/apperr"
	"miyako-bot/internal/command"
	"miyako-bot/internal/gateway"
	"miyako-bot/internal/logsink"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxPurge is the platform's per-request message fetch limit
const maxPurge = 100

func (d *Deps) purgeLimit() int {
	limit := d.Config.Commands.Purge.MaxAmount
	if limit <= 0 || limit > maxPurge {
		limit = maxPurge
	}
	return limit
}

func (d *Deps) purge() *command.Descriptor {
	minAmount := 1.0
	return &command.Descriptor{
		Definition: &discordgo.ApplicationCommand{
			Name:                     "purge",
			NameLocalizations:        localized("刪除訊息"),
			Description:              "刪除目前頻道中最近的訊息",
			DefaultMemberPermissions: &adminPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:              discordgo.ApplicationCommandOptionInteger,
					Name:              "amount",
					NameLocalizations: *localized("數量"),
					Description:       fmt.Sprintf("要刪除的訊息數量 (1 ~ %d)", d.purgeLimit()),
					MinValue:          &minAmount,
					MaxValue:          float64(d.purgeLimit()),
					Required:          true,
				},
			},
		},
		Handler: d.handlePurge,
	}
}

func (d *Deps) handlePurge(ctx context.Context, it *gateway.Interaction) error {
	if err := requireAdmin(it); err != nil {
		return err
	}

	cfg := d.Config.Commands.Purge
	limit := d.purgeLimit()

	_, opts := it.Subcommand()
	amount := int(opts.Int("amount", 0))
	if amount < 1 || amount > limit {
		return apperr.UserInputf("請輸入一個介於 1 到 %d 之間的數字！", limit)
	}

	if err := it.Defer(true); err != nil {
		return err
	}

	title := fmt.Sprintf("%s ┃ 刪除訊息", cfg.Emoji)
	progress := d.embed(title)
	progress.Description = fmt.Sprintf("正在刪除 %d 條訊息，這可能需要一些時間", amount)
	if err := it.Respond(&discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{progress}}); err != nil {
		return err
	}

	session := it.Session()
	messages, err := session.ChannelMessages(it.ChannelID, amount, "")
	if err != nil {
		return apperr.Externalf(err, "無法取得頻道訊息，請確認機器人具有 `讀取訊息歷史` 權限！")
	}

	recent, old := splitByAge(messages, d.now(), cfg.AgeCutoff)
	deleted := 0

	switch len(recent) {
	case 0:
	case 1:
		// Bulk delete needs at least two ids
		if err := session.ChannelMessageDelete(it.ChannelID, recent[0]); err != nil {
			return apperr.Externalf(err, "無法刪除訊息，請確認機器人具有 `管理訊息` 權限！")
		}
		deleted++
	default:
		if err := session.ChannelMessagesBulkDelete(it.ChannelID, recent); err != nil {
			return apperr.Externalf(err, "無法刪除訊息，請確認機器人具有 `管理訊息` 權限！")
		}
		deleted += len(recent)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.Pace > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.Pace), 1)
	}
	for _, id := range old {
		if err := limiter.Wait(ctx); err != nil {
			return apperr.Externalf(err, "刪除訊息逾時，已刪除 %d 條訊息", deleted)
		}
		if err := session.ChannelMessageDelete(it.ChannelID, id); err != nil {
			d.Sink.SendLog(ctx, fmt.Sprintf("❌ 無法刪除訊息 ID: %s", id), logsink.Warn, err)
			continue
		}
		deleted++
	}

	d.Logger.Info("Purged messages",
		zap.String("channel", it.ChannelID),
		zap.Int("requested", amount),
		zap.Int("bulk", len(recent)),
		zap.Int("single", len(old)),
		zap.Int("deleted", deleted),
	)

	done := d.embed(title)
	done.Description = fmt.Sprintf("已成功刪除 %d 條訊息！", deleted)
	return it.Respond(&discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{done}})
}

// splitByAge separates message ids newer than cutoff from older ones using
// the creation time encoded in the id
func splitByAge(messages []*discordgo.Message, now time.Time, cutoff time.Duration) (recent, old []string) {
	if cutoff <= 0 {
		cutoff = 14 * 24 * time.Hour
	}
	boundary := now.Add(-cutoff)

	isRecent := func(m *discordgo.Message, _ int) bool {
		id, err := snowflake.Parse(m.ID)
		if err != nil {
			return false
		}
		return id.Time().After(boundary)
	}
	toID := func(m *discordgo.Message, _ int) string { return m.ID }

	recentMsgs, oldMsgs := lo.FilterReject(messages, isRecent)
	return lo.Map(recentMsgs, toID), lo.Map(oldMsgs, toID)
}
