package commands

import (
	"context"
	"fmt"
	"os"

	"miyako-bot/config"
	"miyako-bot/internal/apperr"
	"miyako-bot/internal/command"
	"miyako-bot/internal/gateway"
	"miyako-bot/internal/history"

	"github.com/bwmarrin/discordgo"
	"github.com/samber/lo"
)

const (
	chatPromptModal = "chat_prompt_modal"
	chatEditModal   = "chat_edit_modal"

	// maxTextInput is the platform limit for a prefilled text input
	maxTextInput = 4000
)

func (d *Deps) chat() *command.Descriptor {
	cfg := d.Config.Commands.Chat
	bot := d.Config.About.Name

	models := lo.Map(cfg.Models, func(m config.ModelConfig, _ int) *discordgo.ApplicationCommandOptionChoice {
		label := m.Label
		if label == "" {
			label = m.Name
		}
		return &discordgo.ApplicationCommandOptionChoice{Name: label, Value: m.Name}
	})

	sub := func(name, zh, description string, options ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:              discordgo.ApplicationCommandOptionSubCommand,
			Name:              name,
			NameLocalizations: *localized(zh),
			Description:       description,
			Options:           options,
		}
	}

	return &command.Descriptor{
		Definition: &discordgo.ApplicationCommand{
			Name:              "chat",
			NameLocalizations: localized(fmt.Sprintf("與%s聊天", bot)),
			Description:       fmt.Sprintf("與%s進行聊天或管理聊天歷史", bot),
			Options: []*discordgo.ApplicationCommandOption{
				sub("send", "傳送訊息", fmt.Sprintf("與%s進行聊天", bot),
					&discordgo.ApplicationCommandOption{
						Type:              discordgo.ApplicationCommandOptionString,
						Name:              "message",
						NameLocalizations: *localized("訊息"),
						Description:       fmt.Sprintf("輸入要發送給%s的訊息（內容將由 AI 生成，請仔細甄別）", bot),
						MaxLength:         cfg.InputMaxLength,
						Required:          true,
					},
					&discordgo.ApplicationCommandOption{
						Type:              discordgo.ApplicationCommandOptionString,
						Name:              "model",
						NameLocalizations: *localized("模型"),
						Description:       "選擇要使用的語言模型",
						Choices:           models,
					},
				),
				sub("prompt", "編輯系統提示詞", "編輯您專屬的系統提示詞"),
				sub("edit", "編輯最近的回應", fmt.Sprintf("編輯%s最近一次的回應", bot)),
				sub("export", "匯出聊天紀錄", "匯出您的聊天歷史紀錄"),
				sub("delete", "刪除聊天紀錄", "刪除您的聊天歷史紀錄"),
			},
		},
		Handler: d.handleChat,
		Modals: map[string]command.Handler{
			chatPromptModal: d.handleChatPromptModal,
			chatEditModal:   d.handleChatEditModal,
		},
	}
}

func (d *Deps) handleChat(ctx context.Context, it *gateway.Interaction) error {
	sub, opts := it.Subcommand()
	switch sub {
	case "send":
		return d.chatSend(ctx, it, opts)
	case "prompt":
		prompt := d.Chat.SystemPrompt(it.UserID(), d.ChatPrompt)
		return it.ShowModal(chatPromptModal, "編輯系統提示詞", &discordgo.TextInput{
			CustomID: "systemPrompt",
			Label:    "請編輯系統提示詞",
			Style:    discordgo.TextInputParagraph,
			Value:    clip(prompt, maxTextInput),
			Required: false,
		})
	case "edit":
		return d.chatEdit(it)
	case "export":
		return d.chatExport(it)
	case "delete":
		if err := it.Defer(true); err != nil {
			return err
		}
		if err := d.Chat.Delete(it.UserID()); err != nil {
			return err
		}
		d.Replies.InfoReply(it, "**已刪除您的聊天歷史紀錄！**")
		return nil
	default:
		return fmt.Errorf("unknown chat subcommand %q", sub)
	}
}

func (d *Deps) chatSend(ctx context.Context, it *gateway.Interaction, opts gateway.Options) error {
	cfg := d.Config.Commands.Chat
	message := opts.String("message", "")
	profile := cfg.Model(opts.String("model", ""))

	if err := it.Defer(false); err != nil {
		return err
	}

	answer, err := d.Chat.AppendTurn(ctx, it.UserID(), message, d.ChatPrompt, cfg.ContextLimit, completeWith(d.Models, profile))
	if err != nil {
		return aiFailure(err)
	}

	label := profile.Label
	if label == "" {
		label = profile.Name
	}

	embed := d.chatEmbed(it.Caller().Username, message, answer)
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name:  "　",
		Value: fmt.Sprintf("-# 使用 %s 模型", label),
	})
	return respondEmbeds(it, false, embed)
}

func (d *Deps) chatEdit(it *gateway.Interaction) error {
	transcript, err := d.Chat.Get(it.UserID())
	if err != nil {
		return err
	}
	last, _, ok := lo.FindLastIndexOf(transcript, func(m history.Message) bool {
		return m.Role == history.RoleAssistant
	})
	if !ok {
		return apperr.NotFoundf("找不到最近的 AI 回應！")
	}

	return it.ShowModal(chatEditModal, "編輯最近的回應", &discordgo.TextInput{
		CustomID: "newResponse",
		Label:    "編輯 AI 的回應內容",
		Style:    discordgo.TextInputParagraph,
		Value:    clip(last.Content, maxTextInput),
		Required: true,
	})
}

func (d *Deps) chatExport(it *gateway.Interaction) error {
	if err := it.Defer(true); err != nil {
		return err
	}

	path, err := d.Chat.Export(it.UserID())
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open transcript: %w", err)
	}
	defer f.Close()

	d.Replies.InfoReply(it, "**已匯出您的聊天歷史紀錄！**", &discordgo.File{
		Name:        fmt.Sprintf("chat_%s.json", it.UserID()),
		ContentType: "application/json",
		Reader:      f,
	})
	return nil
}

func (d *Deps) handleChatPromptModal(_ context.Context, it *gateway.Interaction) error {
	if err := d.Chat.EditSystemPrompt(it.UserID(), it.ModalValue("systemPrompt")); err != nil {
		return err
	}
	d.Replies.InfoReply(it, "**系統提示詞已更新！**")
	return nil
}

func (d *Deps) handleChatEditModal(_ context.Context, it *gateway.Interaction) error {
	content := it.ModalValue("newResponse")
	prev, err := d.Chat.EditLastAssistantTurn(it.UserID(), content)
	if err != nil {
		return err
	}
	if prev == "" {
		prev = "找不到先前的用戶訊息"
	}

	username := it.Caller().Username
	embed := d.chatEmbed(username, prev, content)
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name:  "　",
		Value: fmt.Sprintf("-# 已被 %s 編輯", username),
	})
	return respondEmbeds(it, false, embed)
}

func (d *Deps) chatEmbed(username, message, answer string) *discordgo.MessageEmbed {
	bot := d.Config.About.Name
	embed := d.embed(fmt.Sprintf("%s ┃ 與%s聊天", d.Config.Commands.Chat.Emoji, bot))
	embed.Fields = []*discordgo.MessageEmbedField{
		{Name: fmt.Sprintf("%s 的訊息", username), Value: truncateField(orNone(message))},
		{Name: fmt.Sprintf("%s的回應", bot), Value: truncateField(orNone(answer))},
	}
	return embed
}

// completeWith binds a model profile for the history store
func completeWith(c Completer, profile config.ModelConfig) history.CompleteFunc {
	return func(ctx context.Context, messages []history.Message) (string, error) {
		resp, err := c.Complete(ctx, profile, messages)
		if err != nil {
			return "", err
		}
		return resp.Content, nil
	}
}

// aiFailure keeps classified errors and reports model failures as external
func aiFailure(err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.Externalf(err, "無法完成操作，原因：AI 服務暫時無法回應，請稍後再試")
}

func clip(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
