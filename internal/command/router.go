package command

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"miyako-bot/internal/apperr"
	"miyako-bot/internal/gateway"
	"miyako-bot/internal/logsink"
	"miyako-bot/internal/models"
	"miyako-bot/internal/reply"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	genericFailure  = "執行指令時發生錯誤"
	sessionGuidance = "-# 此限制會在工作階段結束後自動重置。"
)

// Router is the single entry point for inbound interactions
type Router struct {
	registry *Registry
	session  gateway.Session
	replies  *reply.Formatter
	sink     logsink.Logger
	db       *gorm.DB
	logger   *zap.Logger
	timeout  time.Duration

	handled atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

// Stats is a snapshot of router counters
type Stats struct {
	Handled int64
	Failed  int64
	Dropped int64
}

// NewRouter creates a router. db may be nil to skip the audit log.
func NewRouter(registry *Registry, session gateway.Session, replies *reply.Formatter, sink logsink.Logger, db *gorm.DB, logger *zap.Logger, timeout time.Duration) *Router {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Router{
		registry: registry,
		session:  session,
		replies:  replies,
		sink:     sink,
		db:       db,
		logger:   logger,
		timeout:  timeout,
	}
}

// HandleInteraction is registered with the discordgo session. Each
// interaction is handled on its own goroutine.
func (r *Router) HandleInteraction(_ *discordgo.Session, ic *discordgo.InteractionCreate) {
	it := gateway.NewInteraction(r.session, ic.Interaction)
	go r.Dispatch(context.Background(), it)
}

// Dispatch routes one interaction and reports any failure
func (r *Router) Dispatch(ctx context.Context, it *gateway.Interaction) {
	kind := it.Kind()
	key := it.Key()

	handler, ok := r.registry.Lookup(kind, key)
	if !ok {
		// Stale command or component from an earlier deployment
		r.dropped.Add(1)
		r.logger.Debug("Dropping unrouted interaction",
			zap.String("kind", kind.String()),
			zap.String("key", key),
		)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	r.sink.SendLog(ctx, r.describe(it, kind, key), logsink.Info, nil)

	start := time.Now()
	err := r.invoke(ctx, handler, it)
	elapsed := time.Since(start)

	r.handled.Add(1)
	r.audit(it, kind, key, err, elapsed)

	if err != nil {
		r.failed.Add(1)
		r.fail(ctx, it, key, err)
	}
}

// invoke runs the handler and converts a panic into an unexpected error
func (r *Router) invoke(ctx context.Context, h Handler, it *gateway.Interaction) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Handler panicked",
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()),
			)
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return h(ctx, it)
}

func (r *Router) fail(ctx context.Context, it *gateway.Interaction, key string, err error) {
	kind := apperr.KindOf(err)

	message := genericFailure
	if e, ok := apperr.As(err); ok && kind != apperr.Unexpected {
		message = e.Message
	}
	message = fmt.Sprintf("**%s**", message)
	if kind == apperr.SessionLimit {
		message += "\n" + sessionGuidance
	}

	if kind.Logged() {
		r.sink.SendLog(ctx, fmt.Sprintf("❌ 在執行 %s 時發生錯誤：", key), logsink.Error, err)
	} else {
		r.logger.Debug("Handler rejected interaction",
			zap.String("key", key),
			zap.String("kind", kind.String()),
			zap.Error(err),
		)
	}

	r.replies.ErrorReply(it, message)
}

func (r *Router) describe(it *gateway.Interaction, kind gateway.Kind, key string) string {
	user := it.Caller().Username
	if kind == gateway.SlashCommand {
		return fmt.Sprintf("💾 %s 執行了指令：/%s", user, key)
	}
	return fmt.Sprintf("🎧 %s 執行了互動：%s", user, key)
}

func (r *Router) audit(it *gateway.Interaction, kind gateway.Kind, key string, err error, elapsed time.Duration) {
	if r.db == nil {
		return
	}

	outcome := "ok"
	if err != nil {
		outcome = apperr.KindOf(err).String()
	}

	entry := models.CommandLog{
		Command:    key,
		Kind:       kind.String(),
		UserID:     it.UserID(),
		GuildID:    it.GuildID,
		Outcome:    outcome,
		DurationMs: elapsed.Milliseconds(),
	}
	if err := r.db.Create(&entry).Error; err != nil {
		r.logger.Warn("Failed to store command log", zap.Error(err))
	}
}

// Stats returns the router counters
func (r *Router) Stats() Stats {
	return Stats{
		Handled: r.handled.Load(),
		Failed:  r.failed.Load(),
		Dropped: r.dropped.Load(),
	}
}
