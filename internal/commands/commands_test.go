package commands

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"miyako-bot/config"
	"miyako-bot/internal/apperr"
	"miyako-bot/internal/command"
	"miyako-bot/internal/gateway"
	"miyako-bot/internal/gateway/gatewaytest"
	"miyako-bot/internal/history"
	"miyako-bot/internal/hitokoto"
	"miyako-bot/internal/llm"
	"miyako-bot/internal/logsink"
	"miyako-bot/internal/mcstatus"
	"miyako-bot/internal/panel"
	"miyako-bot/internal/reply"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeCompleter struct {
	mu       sync.Mutex
	answer   string
	err      error
	requests [][]history.Message
}

func (f *fakeCompleter) Complete(_ context.Context, profile config.ModelConfig, messages []history.Message) (llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, messages)
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Content: f.answer, Model: profile.Name}, nil
}

type fakeQuotes struct {
	quote *hitokoto.Quote
	err   error
}

func (f fakeQuotes) Random(context.Context) (*hitokoto.Quote, error) {
	return f.quote, f.err
}

func testConfig() *config.Config {
	return &config.Config{
		Embed: config.EmbedConfig{Color: 0xF5A9B8, ErrorColor: 0xE74C3C, SuccessEmoji: "✅", ErrorEmoji: "❌", Ephemeral: true},
		About: config.AboutConfig{Name: "Miyako", Introduce: "你好，我是 Miyako。", Provider: "42", Repository: "https://example.com/miyako"},
		Commands: config.CommandsConfig{
			Announce: config.EmojiConfig{Emoji: "📢"},
			Purge:    config.PurgeConfig{Emoji: "🗑️", MaxAmount: 100, AgeCutoff: 14 * 24 * time.Hour, Pace: time.Millisecond},
			Ping:     config.EmojiConfig{Emoji: "🏓"},
			About:    config.AboutCmdConfig{Emoji: "📖"},
			Hitokoto: config.EmojiConfig{Emoji: "💬"},
			Chat: config.ChatConfig{
				Emoji:        "🌸",
				ContextLimit: 10,
				DefaultModel: "gpt-4o-mini",
				Models:       []config.ModelConfig{{Name: "gpt-4o-mini", Label: "GPT-4o mini"}},
			},
			Consult: config.ConsultConfig{Emoji: "🏝️", BotNickname: "小島", Description: "有問題都可以問我", Model: "gpt-4o-mini", ContextLimit: 5},
			Music: config.MusicConfig{
				Emoji:        "🎧",
				QueuePreview: 5,
				ProgressBar:  config.ProgressBarConfig{Length: 10, Indicator: "🔘", LeftChar: "▬", RightChar: "▬"},
				Buttons:      config.ButtonBarConfig{Play: "🎵", Repeat: "🔁", Pause: "⏸️", Resume: "▶️", Skip: "⏭️"},
			},
			IPInfo:    config.EmojiConfig{Emoji: "🌐"},
			Minecraft: config.MinecraftConfig{Emoji: "⛏️", Presets: []config.ServerPreset{{Name: "生存服", Address: "mc.example.com"}}},
			Timestamp: config.TimestampConfig{Emoji: "🕒", DefaultOffset: 8},
			Stream:    config.StreamConfig{Emoji: "🍘", UserLogin: "miyako", UserAvatar: "https://example.com/a.png", Messages: []string{"開台囉！"}},
		},
	}
}

func setupTestDeps(t *testing.T) (*Deps, *gatewaytest.Fake) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	cfg := testConfig()
	fake := gatewaytest.NewFake()

	chatStore, err := history.NewStore(t.TempDir(), history.NewCounter(0), logger)
	require.NoError(t, err)
	consultStore, err := history.NewStore(t.TempDir(), history.NewCounter(0), logger)
	require.NoError(t, err)

	musicPanels := panel.NewManager("music", fake, nil, logger, time.Hour)
	consultPanels := panel.NewManager("consult", fake, nil, logger, time.Hour)
	t.Cleanup(musicPanels.Shutdown)
	t.Cleanup(consultPanels.Shutdown)

	d := &Deps{
		Config:        cfg,
		Replies:       reply.NewFormatter(cfg.Embed, cfg.About, logger),
		Sink:          logsink.Nop{},
		Logger:        logger,
		Chat:          chatStore,
		Consult:       consultStore,
		ChatPrompt:    "你是 Miyako。",
		ConsultPrompt: "你是小島。",
		Models:        &fakeCompleter{answer: "你好！"},
		Quotes:        fakeQuotes{quote: &hitokoto.Quote{Text: "人生就像一盒巧克力", From: "阿甘正傳"}},
		Player:        newFakePlayer(),
		Tracks:        &fakeResolver{},
		MusicPanels:   musicPanels,
		ConsultPanels: consultPanels,
		Now:           func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
	}
	return d, fake
}

func stringOpt(name, value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionString, Value: value}
}

func intOpt(name string, value int) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionInteger, Value: float64(value)}
}

func subOpt(name string, options ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionSubCommand, Options: options}
}

func asAdmin(i *discordgo.Interaction) *discordgo.Interaction {
	i.Member.Permissions = discordgo.PermissionAdministrator
	return i
}

func lastResponseEmbed(t *testing.T, fake *gatewaytest.Fake) *discordgo.MessageEmbed {
	t.Helper()
	resp := fake.LastResponse()
	require.NotNil(t, resp)
	require.NotNil(t, resp.Data)
	require.NotEmpty(t, resp.Data.Embeds)
	return resp.Data.Embeds[0]
}

func lastEditEmbed(t *testing.T, fake *gatewaytest.Fake) *discordgo.MessageEmbed {
	t.Helper()
	edit := fake.LastEdit()
	require.NotNil(t, edit)
	require.NotNil(t, edit.Embeds)
	require.NotEmpty(t, *edit.Embeds)
	return (*edit.Embeds)[0]
}

func TestAllBuildsRegistry(t *testing.T) {
	d, _ := setupTestDeps(t)

	registry, err := command.NewRegistry(All(d)...)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"about", "announce", "chat", "consult", "hitokoto", "ipinfo",
		"minecraft", "music", "ping", "purge", "stream", "timestamp",
	}, registry.Names())

	for _, id := range []string{musicPlayButton, musicRepeatButton, musicPauseButton, musicSkipButton, consultStartButton} {
		_, ok := registry.Lookup(gateway.ButtonClick, id)
		assert.True(t, ok, "button %s", id)
	}
	for _, id := range []string{musicPlayModal, consultModal, chatPromptModal, chatEditModal, timestampModal} {
		_, ok := registry.Lookup(gateway.ModalSubmit, id)
		assert.True(t, ok, "modal %s", id)
	}
}

func TestAdminCommandsRejectMembers(t *testing.T) {
	d, fake := setupTestDeps(t)

	handlers := map[string]command.Handler{
		"announce": d.handleAnnounce,
		"purge":    d.handlePurge,
		"stream":   d.handleStream,
		"consult":  d.handleConsult,
	}
	for name, h := range handlers {
		t.Run(name, func(t *testing.T) {
			err := h(context.Background(), gateway.NewInteraction(fake, gatewaytest.NewSlash(name)))
			assert.Equal(t, apperr.Permission, apperr.KindOf(err))
		})
	}

	responses, edits, _ := fake.Snapshot()
	assert.Zero(t, responses+edits, "rejected commands must not reply themselves")
}

func TestAnnounce(t *testing.T) {
	d, fake := setupTestDeps(t)
	fake.Messages["channel"] = []*discordgo.Message{{
		ID:          "1234567890123456789",
		Content:     "明天晚上八點維護",
		Attachments: []*discordgo.MessageAttachment{{URL: "https://cdn.example.com/notice.png"}},
	}}
	fake.GuildList = []*discordgo.Guild{{ID: "guild", Roles: []*discordgo.Role{{ID: "role-1", Name: "公告通知"}}}}

	it := gateway.NewInteraction(fake, asAdmin(gatewaytest.NewSlash("announce",
		stringOpt("message_id", "1234567890123456789"),
		&discordgo.ApplicationCommandInteractionDataOption{Name: "channel", Type: discordgo.ApplicationCommandOptionChannel, Value: "news"},
		&discordgo.ApplicationCommandInteractionDataOption{Name: "role", Type: discordgo.ApplicationCommandOptionRole, Value: "role-1"},
	)))
	require.NoError(t, d.handleAnnounce(context.Background(), it))

	require.Len(t, fake.Sent, 1)
	sent := fake.Sent["msg-1"]
	assert.Equal(t, "<@&role-1>", sent.Content)
	assert.Equal(t, []string{"role-1"}, sent.AllowedMentions.Roles)
	assert.Equal(t, "📢 ┃ 公告", sent.Embeds[0].Title)
	assert.Equal(t, "明天晚上八點維護", sent.Embeds[0].Description)
	assert.Equal(t, "https://cdn.example.com/notice.png", sent.Embeds[0].Image.URL)

	resp := fake.LastResponse()
	assert.Equal(t, "公告已發送到 channel-news 並提及 公告通知！", resp.Data.Content)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, resp.Data.Flags)
}

func TestAnnounceMissingMessage(t *testing.T) {
	d, fake := setupTestDeps(t)

	tests := []struct {
		name      string
		messageID string
		kind      apperr.Kind
	}{
		{name: "not a snowflake", messageID: "hello", kind: apperr.UserInput},
		{name: "unknown message", messageID: "1234567890123456789", kind: apperr.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := gateway.NewInteraction(fake, asAdmin(gatewaytest.NewSlash("announce",
				stringOpt("message_id", tt.messageID),
				&discordgo.ApplicationCommandInteractionDataOption{Name: "channel", Type: discordgo.ApplicationCommandOptionChannel, Value: "news"},
			)))
			err := d.handleAnnounce(context.Background(), it)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
			assert.Contains(t, err.Error(), "無法找到該訊息 ID")
		})
	}
	assert.Empty(t, fake.Sent)
}

func TestPing(t *testing.T) {
	d, fake := setupTestDeps(t)
	fake.Latency = 42 * time.Millisecond

	require.NoError(t, d.handlePing(context.Background(), gateway.NewInteraction(fake, gatewaytest.NewSlash("ping"))))

	embed := lastResponseEmbed(t, fake)
	assert.Equal(t, "🏓 ┃ Pong!", embed.Title)
	assert.Equal(t, "機器人延遲：42ms", embed.Description)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, fake.LastResponse().Data.Flags)
}

func TestAbout(t *testing.T) {
	d, fake := setupTestDeps(t)
	fake.GuildList = []*discordgo.Guild{
		{ID: "g1", Name: "小島", MemberCount: 30},
		{ID: "g2", Name: "測試伺服器", MemberCount: 12},
	}

	descriptor := d.about(func() []string { return []string{"about", "ping"} })
	it := gateway.NewInteraction(fake, gatewaytest.NewSlash("about", &discordgo.ApplicationCommandInteractionDataOption{
		Name: "show_guild_ids", Type: discordgo.ApplicationCommandOptionBoolean, Value: true,
	}))
	require.NoError(t, descriptor.Handler(context.Background(), it))

	embed := lastResponseEmbed(t, fake)
	assert.Equal(t, "📖 ┃ 關於Miyako", embed.Title)
	assert.Equal(t, "<@42>", embed.Fields[0].Value)
	assert.Equal(t, "[前往 GitHub 儲存庫](https://example.com/miyako)", embed.Fields[1].Value)
	assert.Equal(t, "共有 2 條指令", embed.Fields[2].Name)
	assert.Equal(t, "`about` | `ping`", embed.Fields[2].Value)
	assert.Equal(t, "在 2 個伺服器服務 42 位成員", embed.Fields[3].Name)
	assert.Equal(t, "- 小島（ID: g1）\n- 測試伺服器（ID: g2）", embed.Fields[3].Value)
}

func TestAboutWithoutGuilds(t *testing.T) {
	d, fake := setupTestDeps(t)

	descriptor := d.about(func() []string { return nil })
	require.NoError(t, descriptor.Handler(context.Background(), gateway.NewInteraction(fake, gatewaytest.NewSlash("about"))))

	embed := lastResponseEmbed(t, fake)
	assert.Equal(t, "在 0 個伺服器服務 0 位成員", embed.Fields[3].Name)
	assert.Equal(t, "無", embed.Fields[3].Value)
}

func TestHitokoto(t *testing.T) {
	d, fake := setupTestDeps(t)

	require.NoError(t, d.handleHitokoto(context.Background(), gateway.NewInteraction(fake, gatewaytest.NewSlash("hitokoto"))))
	embed := lastResponseEmbed(t, fake)
	assert.Equal(t, "人生就像一盒巧克力", embed.Description)
	assert.Equal(t, "阿甘正傳", embed.Fields[0].Value)

	d.Quotes = fakeQuotes{err: errors.New("connection refused")}
	err := d.handleHitokoto(context.Background(), gateway.NewInteraction(fake, gatewaytest.NewSlash("hitokoto")))
	assert.Equal(t, apperr.External, apperr.KindOf(err))
}

func TestMinecraftServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/status/java/mc.example.com":
			w.Write([]byte(`{
				"online": true,
				"ip_address": "203.0.113.7",
				"version": {"name_clean": "1.21.1", "protocol": 767},
				"players": {"online": 2, "max": 20, "list": [{"name_clean": "Miya_ko"}, {"name_clean": "Steve"}]},
				"motd": {"clean": "歡迎來到小島"}
			}`))
		default:
			w.Write([]byte(`{"online": false}`))
		}
	}))
	defer server.Close()

	d, fake := setupTestDeps(t)
	d.Servers = mcstatus.NewClient(server.URL, time.Second, zaptest.NewLogger(t))

	it := gateway.NewInteraction(fake, gatewaytest.NewSlash("minecraft", subOpt("server", stringOpt("preset", "mc.example.com"))))
	require.NoError(t, d.handleMinecraft(context.Background(), it))

	embed := lastResponseEmbed(t, fake)
	assert.Equal(t, "⛏️ ┃ 伺服器狀態 - mc.example.com", embed.Title)
	assert.Equal(t, server.URL+"/v2/icon/mc.example.com", embed.Thumbnail.URL)
	assert.Equal(t, "2 / 20", embed.Fields[0].Value)
	assert.Equal(t, "767", embed.Fields[2].Value)
	assert.True(t, strings.HasPrefix(embed.Fields[3].Value, `Miya\_ko、Steve`))
	assert.Equal(t, "||203.0.113.7||", embed.Fields[4].Value)

	tests := []struct {
		name    string
		address string
		kind    apperr.Kind
	}{
		{name: "missing", address: "", kind: apperr.UserInput},
		{name: "invalid", address: "not a host", kind: apperr.UserInput},
		{name: "offline", address: "down.example.com", kind: apperr.External},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := gateway.NewInteraction(fake, gatewaytest.NewSlash("minecraft", subOpt("server", stringOpt("address", tt.address))))
			err := d.handleMinecraft(context.Background(), it)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}
}

func TestMinecraftSkin(t *testing.T) {
	d, fake := setupTestDeps(t)

	it := gateway.NewInteraction(fake, gatewaytest.NewSlash("minecraft", subOpt("skin", stringOpt("player", "Notch"))))
	require.NoError(t, d.handleMinecraft(context.Background(), it))

	resp := fake.LastResponse()
	embed := resp.Data.Embeds[0]
	assert.Equal(t, "⛏️ ┃ 玩家外觀 - Notch", embed.Title)
	assert.Equal(t, mcstatus.SkinRenderURL("Notch"), embed.Image.URL)

	row := resp.Data.Components[0].(discordgo.ActionsRow)
	button := row.Components[0].(discordgo.Button)
	assert.Equal(t, discordgo.LinkButton, button.Style)
	assert.Equal(t, mcstatus.SkinDownloadURL("Notch"), button.URL)

	bad := gateway.NewInteraction(fake, gatewaytest.NewSlash("minecraft", subOpt("skin", stringOpt("player", "../etc"))))
	assert.Equal(t, apperr.UserInput, apperr.KindOf(d.handleMinecraft(context.Background(), bad)))
}

func TestStream(t *testing.T) {
	d, fake := setupTestDeps(t)

	it := gateway.NewInteraction(fake, asAdmin(gatewaytest.NewSlash("stream", stringOpt("title", "深夜雜談"))))
	require.NoError(t, d.handleStream(context.Background(), it))

	require.Len(t, fake.Sent, 1)
	sent := fake.Sent["msg-1"]
	assert.Equal(t, "@everyone 開台囉！", sent.Content)
	embed := sent.Embeds[0]
	assert.Equal(t, "深夜雜談", embed.Title)
	assert.Equal(t, "https://www.twitch.tv/miyako", embed.URL)
	assert.True(t, strings.HasPrefix(embed.Image.URL, "https://static-cdn.jtvnw.net/previews-ttv/live_user_miyako-1280x720.jpg?r="))

	assert.Equal(t, "✅ ┃ 操作成功", lastEditEmbed(t, fake).Title)
}

func TestConsultPanelAndAnswer(t *testing.T) {
	d, fake := setupTestDeps(t)
	ctx := context.Background()

	require.NoError(t, d.handleConsult(ctx, gateway.NewInteraction(fake, asAdmin(gatewaytest.NewSlash("consult")))))

	require.Len(t, fake.Sent, 1)
	panelMsg := fake.Sent["msg-1"]
	assert.Equal(t, "🏝️ ┃ 與「小島」諮詢", panelMsg.Embeds[0].Title)
	button := panelMsg.Components[0].(discordgo.ActionsRow).Components[0].(discordgo.Button)
	assert.Equal(t, consultStartButton, button.CustomID)
	assert.False(t, d.ConsultPanels.Refreshing("guild"))

	require.NoError(t, d.handleConsultStart(ctx, gateway.NewInteraction(fake, gatewaytest.NewButton(consultStartButton))))
	assert.Equal(t, discordgo.InteractionResponseModal, fake.LastResponse().Type)
	assert.Equal(t, consultModal, fake.LastResponse().Data.CustomID)

	modal := gateway.NewInteraction(fake, gatewaytest.NewModal(consultModal, map[string]string{"message": "我可以蓋生怪塔嗎？"}))
	require.NoError(t, d.handleConsultModal(ctx, modal))

	embed := lastEditEmbed(t, fake)
	assert.Equal(t, "我可以蓋生怪塔嗎？", embed.Fields[0].Value)
	assert.Equal(t, "你好！", embed.Fields[1].Value)
	assert.Contains(t, embed.Footer.Text, "耗時 0 秒")

	transcript, err := d.Consult.Get("user")
	require.NoError(t, err)
	assert.Len(t, transcript, 2)

	chatTranscript, err := d.Chat.Get("user")
	require.NoError(t, err)
	assert.Empty(t, chatTranscript, "consult keeps its own transcripts")
}

func TestConsultSessionLimit(t *testing.T) {
	d, fake := setupTestDeps(t)
	store, err := history.NewStore(t.TempDir(), history.NewCounter(1), zaptest.NewLogger(t))
	require.NoError(t, err)
	d.Consult = store

	submit := func() error {
		modal := gateway.NewInteraction(fake, gatewaytest.NewModal(consultModal, map[string]string{"message": "在嗎？"}))
		return d.handleConsultModal(context.Background(), modal)
	}

	require.NoError(t, submit())
	err = submit()
	assert.Equal(t, apperr.SessionLimit, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "(1 次)")
}
