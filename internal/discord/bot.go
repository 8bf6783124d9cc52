package discord

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"miyako-bot/config"
	"miyako-bot/internal/command"
	"miyako-bot/internal/gateway"
	"miyako-bot/internal/hitokoto"
	"miyako-bot/internal/logsink"
	"miyako-bot/internal/modules"
	"miyako-bot/internal/panel"

	"github.com/bwmarrin/discordgo"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Intents the bot needs: commands, message content for keywords and
// loggers, members for greetings and voice states for music
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentMessageContent |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildVoiceStates

// maxActivityLength is the platform limit for a status text
const maxActivityLength = 128

// QuoteSource supplies presence texts
type QuoteSource interface {
	Random(ctx context.Context) (*hitokoto.Quote, error)
}

type statusUpdater interface {
	UpdateStatusComplex(usd discordgo.UpdateStatusData) error
}

// Options carries the components the bot wires together
type Options struct {
	Registry *command.Registry
	Router   *command.Router
	Modules  *modules.Set
	Sink     *logsink.Sink
	Quotes   QuoteSource
	Panels   []*panel.Manager
	// OnStop runs after the session is closed, in order
	OnStop []func()
}

// Bot owns the Discord session lifecycle
type Bot struct {
	session *discordgo.Session
	gw      gateway.Session
	status  statusUpdater
	config  *config.Config
	logger  *zap.Logger
	opts    Options

	sink logsink.Logger
	cron *cron.Cron

	readyOnce sync.Once
	cancel    context.CancelFunc
}

// NewSession creates an unopened session with the bot's intents
func NewSession(cfg config.DiscordConfig) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	session.Identify.Intents = Intents
	session.StateEnabled = true
	return session, nil
}

// NewBot creates a bot over session
func NewBot(session *discordgo.Session, cfg *config.Config, logger *zap.Logger, opts Options) *Bot {
	b := &Bot{
		session: session,
		gw:      gateway.FromSession(session),
		status:  session,
		config:  cfg,
		logger:  logger,
		opts:    opts,
		sink:    logsink.Nop{},
		cron:    cron.New(cron.WithLocation(time.UTC)),
	}
	if opts.Sink != nil {
		b.sink = opts.Sink
	}
	return b
}

// Start registers the handlers and opens the session
func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info("Starting Discord bot")

	ctx, b.cancel = context.WithCancel(ctx)

	if b.opts.Sink != nil {
		go b.opts.Sink.Run(ctx)
	}

	b.session.AddHandler(b.opts.Router.HandleInteraction)
	if b.opts.Modules != nil {
		for _, h := range b.opts.Modules.Handlers(ctx) {
			b.session.AddHandler(h)
		}
	}
	b.session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		b.readyOnce.Do(func() { go b.onReady(ctx, r) })
	})

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}

	if b.config.Presence.Enabled {
		if _, err := b.cron.AddFunc(b.config.Presence.Schedule, func() { b.refreshPresence(ctx) }); err != nil {
			b.logger.Warn("Invalid presence schedule, rotation disabled",
				zap.String("schedule", b.config.Presence.Schedule),
				zap.Error(err),
			)
		}
		b.cron.Start()
	}

	return nil
}

// Stop closes the session and releases everything the bot owns
func (b *Bot) Stop() error {
	b.logger.Info("Stopping Discord bot")

	<-b.cron.Stop().Done()
	for _, p := range b.opts.Panels {
		p.Shutdown()
	}

	err := b.session.Close()
	for _, fn := range b.opts.OnStop {
		fn()
	}
	if b.cancel != nil {
		b.cancel()
	}
	if err != nil {
		return fmt.Errorf("failed to close Discord session: %w", err)
	}
	return nil
}

func (b *Bot) onReady(ctx context.Context, r *discordgo.Ready) {
	tag := r.User.Username
	b.sink.SendLog(ctx, fmt.Sprintf("✅ 機器人已啟動！以「%s」身分登入！在 %d 個伺服器提供服務！", tag, len(r.Guilds)), logsink.Info, nil)

	for _, p := range b.opts.Panels {
		if n, err := p.CleanupStale(ctx); err != nil {
			b.logger.Warn("Failed to clean up stale panels", zap.Error(err))
		} else if n > 0 {
			b.logger.Info("Removed stale panels", zap.Int("count", n))
		}
	}

	b.publish(ctx, r.User.ID)

	if b.config.Presence.Enabled {
		b.refreshPresence(ctx)
	}
}

// publish overwrites the application's command list
func (b *Bot) publish(ctx context.Context, fallbackAppID string) {
	appID := b.config.Discord.ClientID
	if appID == "" {
		appID = fallbackAppID
	}

	n, err := b.opts.Registry.Publish(b.gw, appID, b.config.Discord.GuildID)
	if err != nil {
		b.sink.SendLog(ctx, "❌ 註冊指令時發生錯誤：", logsink.Error, err)
		return
	}
	b.logger.Info("Commands published", zap.Int("count", n), zap.String("guild", b.config.Discord.GuildID))
	b.sink.SendLog(ctx, fmt.Sprintf("✅ 指令註冊完成！共 %d 條指令", n), logsink.Info, nil)
}

// refreshPresence sets the status text to a fresh quote, or the fallback
func (b *Bot) refreshPresence(ctx context.Context) {
	text := b.presenceText(ctx)
	if text == "" {
		return
	}

	err := b.status.UpdateStatusComplex(discordgo.UpdateStatusData{
		Activities: []*discordgo.Activity{{Name: text, Type: activityType(b.config.Presence.Type)}},
		Status:     string(discordgo.StatusOnline),
	})
	if err != nil {
		b.logger.Warn("Failed to update presence", zap.Error(err))
		return
	}
	b.sink.SendLog(ctx, fmt.Sprintf("✅ 已設定活動狀態：%s %s", b.config.Presence.Type, text), logsink.Info, nil)
}

func (b *Bot) presenceText(ctx context.Context) string {
	if b.opts.Quotes != nil {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		q, err := b.opts.Quotes.Random(ctx)
		if err == nil && q.Text != "" {
			return truncate(q.Text, maxActivityLength)
		}
		if err != nil {
			b.sink.SendLog(ctx, "❌ 無法獲取 Hitokoto API 資料：", logsink.Error, err)
		}
	}
	return truncate(b.config.Presence.Fallback, maxActivityLength)
}

func activityType(name string) discordgo.ActivityType {
	switch strings.ToLower(name) {
	case "listening":
		return discordgo.ActivityTypeListening
	case "watching":
		return discordgo.ActivityTypeWatching
	case "competing":
		return discordgo.ActivityTypeCompeting
	default:
		return discordgo.ActivityTypeGame
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
