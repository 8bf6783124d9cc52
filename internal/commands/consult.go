package commands

import (
	"context"
	"fmt"
	"math"
	"time"

	"miyako-bot/internal/command"
	"miyako-bot/internal/gateway"
	"miyako-bot/internal/logsink"
	"miyako-bot/internal/panel"

	"github.com/bwmarrin/discordgo"
)

const (
	consultStartButton = "consult_start_button"
	consultModal       = "consult_modal"
)

func (d *Deps) consult() *command.Descriptor {
	return &command.Descriptor{
		Definition: &discordgo.ApplicationCommand{
			Name:                     "consult",
			NameLocalizations:        localized("諮詢"),
			Description:              "創建一個 AI 對話控制面板",
			DefaultMemberPermissions: &adminPermission,
		},
		Handler: d.handleConsult,
		Buttons: map[string]command.Handler{consultStartButton: d.handleConsultStart},
		Modals:  map[string]command.Handler{consultModal: d.handleConsultModal},
	}
}

func (d *Deps) consultTitle() string {
	cfg := d.Config.Commands.Consult
	return fmt.Sprintf("%s ┃ 與「%s」諮詢", cfg.Emoji, cfg.BotNickname)
}

// consultView renders the static consult panel; it never needs refreshing
func (d *Deps) consultView(bot *discordgo.User) panel.RenderFunc {
	cfg := d.Config.Commands.Consult
	return func() (panel.View, bool) {
		embed := d.embed(d.consultTitle())
		embed.Description = cfg.Description
		if bot != nil {
			embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: bot.AvatarURL("64")}
		}
		start := discordgo.Button{
			CustomID: consultStartButton,
			Label:    fmt.Sprintf("與「%s」諮詢", cfg.BotNickname),
			Style:    discordgo.PrimaryButton,
		}
		return panel.View{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: []discordgo.MessageComponent{discordgo.ActionsRow{Components: []discordgo.MessageComponent{start}}},
		}, false
	}
}

func (d *Deps) handleConsult(ctx context.Context, it *gateway.Interaction) error {
	if err := requireAdmin(it); err != nil {
		return err
	}
	if err := it.Defer(true); err != nil {
		return err
	}

	if _, err := d.ConsultPanels.CreatePanel(ctx, it.GuildID, it.ChannelID, d.consultView(it.Session().BotUser())); err != nil {
		return err
	}

	d.Sink.SendLog(ctx, fmt.Sprintf("💬 %s 創建了 AI 對話控制面板", it.Caller().Username), logsink.Info, nil)
	d.Replies.InfoReply(it, "**已創建 AI 對話控制面板！**")
	return nil
}

func (d *Deps) handleConsultStart(_ context.Context, it *gateway.Interaction) error {
	cfg := d.Config.Commands.Consult
	return it.ShowModal(consultModal, fmt.Sprintf("與「%s」諮詢", cfg.BotNickname), &discordgo.TextInput{
		CustomID:    "message",
		Label:       "輸入您的疑問",
		Style:       discordgo.TextInputParagraph,
		Placeholder: "例如：我可以蓋生怪塔嗎？",
		MaxLength:   cfg.InputMaxLength,
		Required:    true,
	})
}

func (d *Deps) handleConsultModal(ctx context.Context, it *gateway.Interaction) error {
	cfg := d.Config.Commands.Consult
	if err := it.Defer(true); err != nil {
		return err
	}

	message := it.ModalValue("message")
	profile := d.Config.Commands.Chat.Model(cfg.Model)

	start := time.Now()
	answer, err := d.Consult.AppendTurn(ctx, it.UserID(), message, d.ConsultPrompt, cfg.ContextLimit, completeWith(d.Models, profile))
	if err != nil {
		return aiFailure(err)
	}
	elapsed := time.Since(start)

	embed := d.embed(d.consultTitle())
	embed.Fields = []*discordgo.MessageEmbedField{
		{Name: fmt.Sprintf("%s 的訊息", it.Caller().Username), Value: truncateField(message)},
		{Name: fmt.Sprintf("%s 的回應", cfg.BotNickname), Value: truncateField(orNone(answer))},
	}
	embed.Footer = &discordgo.MessageEmbedFooter{
		Text: fmt.Sprintf("耗時 %d 秒 | 內容由 AI 進行回應，可能存在疏漏，請仔細甄別。", int(math.Round(elapsed.Seconds()))),
	}

	d.Sink.SendLog(ctx, fmt.Sprintf("💬 %s 取得了「諮詢」回應內容：\n%s", it.Caller().Username, answer), logsink.Info, nil)
	return respondEmbeds(it, true, embed)
}
