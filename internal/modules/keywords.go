package modules

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"miyako-bot/config"
	"miyako-bot/internal/gateway"
	"miyako-bot/internal/logsink"

	"github.com/bwmarrin/discordgo"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type triggerGroup struct {
	name      string
	keywords  []string // lower case
	responses []string
}

// Keywords answers messages that contain a configured keyword
type Keywords struct {
	session gateway.Session
	sink    logsink.Logger
	logger  *zap.Logger

	delay     time.Duration
	cooldown  time.Duration
	whitelist bool
	channels  map[string]bool
	groups    []triggerGroup
	logHits   bool

	mu       sync.Mutex
	limiters map[string]*rate.Limiter // channel id -> cooldown

	pick func([]string) string
}

// NewKeywords builds the responder. Groups are matched in name order.
func NewKeywords(cfg config.KeywordsConfig, session gateway.Session, sink logsink.Logger, logger *zap.Logger) *Keywords {
	names := lo.Keys(cfg.Triggers)
	slices.Sort(names)

	groups := lo.FilterMap(names, func(name string, _ int) (triggerGroup, bool) {
		g := cfg.Triggers[name]
		keywords := lo.Compact(lo.Map(g.Keywords, func(k string, _ int) string {
			return strings.ToLower(strings.TrimSpace(k))
		}))
		if len(keywords) == 0 || len(g.Responses) == 0 {
			logger.Warn("Skipping keyword group without keywords or responses", zap.String("group", name))
			return triggerGroup{}, false
		}
		return triggerGroup{name: name, keywords: keywords, responses: g.Responses}, true
	})

	return &Keywords{
		session:   session,
		sink:      sink,
		logger:    logger,
		delay:     cfg.Delay,
		cooldown:  cfg.Cooldown,
		whitelist: cfg.Whitelist,
		channels:  lo.SliceToMap(cfg.Channels, func(id string) (string, bool) { return id, true }),
		groups:    groups,
		logHits:   cfg.LogTriggers,
		limiters:  make(map[string]*rate.Limiter),
		pick:      lo.Sample[string],
	}
}

// Match returns the first group with a keyword contained in content
func (k *Keywords) Match(content string) (group, keyword string, ok bool) {
	lower := strings.ToLower(content)
	for _, g := range k.groups {
		if kw, found := lo.Find(g.keywords, func(kw string) bool { return strings.Contains(lower, kw) }); found {
			return g.name, kw, true
		}
	}
	return "", "", false
}

func (k *Keywords) allowedChannel(channelID string) bool {
	listed := k.channels[channelID]
	if k.whitelist {
		return listed
	}
	return !listed
}

// cooled reports whether the channel may trigger again and consumes the slot
func (k *Keywords) cooled(channelID string) bool {
	if k.cooldown <= 0 {
		return true
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.limiters[channelID]
	if !ok {
		l = rate.NewLimiter(rate.Every(k.cooldown), 1)
		k.limiters[channelID] = l
	}
	return l.Allow()
}

// OnMessage replies to a matching message
func (k *Keywords) OnMessage(ctx context.Context, m *discordgo.Message) {
	if m.Author == nil || m.Author.Bot || m.Content == "" {
		return
	}
	if !k.allowedChannel(m.ChannelID) {
		return
	}

	name, keyword, ok := k.Match(m.Content)
	if !ok || !k.cooled(m.ChannelID) {
		return
	}

	var response string
	for _, g := range k.groups {
		if g.name == name {
			response = k.pick(g.responses)
			break
		}
	}

	if k.delay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(k.delay):
		}
	}

	channel := channelName(k.session, m.ChannelID)
	if _, err := k.session.ChannelMessageSendComplex(m.ChannelID, &discordgo.MessageSend{Content: response}); err != nil {
		k.sink.SendLog(ctx, fmt.Sprintf("❌ 關鍵字回應失敗 (頻道: %s)", channel), logsink.Error, err)
		return
	}

	if k.logHits {
		k.sink.SendLog(ctx, fmt.Sprintf("🔍 %s 在「#%s」觸發關鍵字組「%s」: \n 關鍵字內容: %s \n 回應的內容: %s",
			userTag(m.Author), channel, name, keyword, response), logsink.Info, nil)
	}
}
