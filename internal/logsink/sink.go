// Package logsink mirrors operational log lines to a Discord channel.
package logsink

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Level is the severity shown in a log line
type Level string

const (
	Info  Level = "INFO"
	Warn  Level = "WARN"
	Error Level = "ERROR"
)

// maxMessageLength is Discord's content limit
const maxMessageLength = 2000

// Logger is what handlers and modules depend on
type Logger interface {
	SendLog(ctx context.Context, message string, level Level, err error)
}

// Sender delivers a message to a channel
type Sender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend) (*discordgo.Message, error)
}

// Sink queues log lines and delivers them from a single worker.
// SendLog never blocks: lines are dropped when the queue is full.
type Sink struct {
	sender    Sender
	channelID string
	location  *time.Location
	queue     chan string
	logger    *zap.Logger
	now       func() time.Time

	sent    atomic.Int64
	dropped atomic.Int64
}

// NewSink creates a sink for channelID with timestamps in UTC+offset hours.
// An empty channelID keeps only the zap mirror.
func NewSink(sender Sender, channelID string, utcOffset, queueSize int, logger *zap.Logger) *Sink {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Sink{
		sender:    sender,
		channelID: channelID,
		location:  time.FixedZone(fmt.Sprintf("UTC%+d", utcOffset), utcOffset*3600),
		queue:     make(chan string, queueSize),
		logger:    logger,
		now:       time.Now,
	}
}

// SendLog formats and enqueues a line
func (s *Sink) SendLog(ctx context.Context, message string, level Level, err error) {
	line := s.Format(s.now(), message, level, err)

	fields := []zap.Field{zap.String("level", string(level))}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	switch level {
	case Error:
		s.logger.Error(message, fields...)
	case Warn:
		s.logger.Warn(message, fields...)
	default:
		s.logger.Info(message, fields...)
	}

	if s.channelID == "" || s.sender == nil {
		return
	}

	select {
	case s.queue <- line:
	default:
		s.dropped.Add(1)
	}
}

// Format renders one log line
func (s *Sink) Format(t time.Time, message string, level Level, err error) string {
	line := fmt.Sprintf("[%s] [%s] %s", t.In(s.location).Format("2006-01-02 15:04:05"), level, message)
	if err != nil {
		line += "\n```" + err.Error() + "```"
	}
	return truncate(line, maxMessageLength)
}

// Run delivers queued lines until ctx is cancelled
func (s *Sink) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case line := <-s.queue:
			_, err := s.sender.ChannelMessageSendComplex(s.channelID, &discordgo.MessageSend{
				Content:         line,
				AllowedMentions: &discordgo.MessageAllowedMentions{},
			})
			if err != nil {
				s.dropped.Add(1)
				s.logger.Debug("Failed to deliver log line", zap.Error(err))
				continue
			}
			s.sent.Add(1)
		}
	}
}

// Stats returns how many lines were delivered and dropped
func (s *Sink) Stats() (sent, dropped int64) {
	return s.sent.Load(), s.dropped.Load()
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

// Nop discards every line
type Nop struct{}

func (Nop) SendLog(context.Context, string, Level, error) {}
