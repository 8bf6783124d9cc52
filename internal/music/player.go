package music

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"miyako-bot/config"

	"go.uber.org/zap"
)

// ErrNothingPlaying is returned by controls when the guild has no track
var ErrNothingPlaying = errors.New("nothing playing")

// VoiceConn is a joined voice channel
type VoiceConn interface {
	Speaking(on bool) error
	Send(ctx context.Context, frame []byte) error
	Disconnect() error
}

// VoiceJoiner joins voice channels
type VoiceJoiner interface {
	JoinVoice(guildID, channelID string) (VoiceConn, error)
}

// State is a snapshot of a guild's playback
type State struct {
	Current  *Track
	Upcoming []*Track
	Paused   bool
	Repeat   bool
	Elapsed  time.Duration
}

// Playing reports whether a track is loaded
func (s State) Playing() bool {
	return s.Current != nil
}

type session struct {
	guildID   string
	channelID string
	conn      VoiceConn
	ctx       context.Context
	cancel    context.CancelFunc

	// guarded by Player.mu
	queue   Queue
	paused  bool
	skipped bool
	running bool
	idle    *time.Timer

	frames atomic.Int64
	skip   chan struct{}
	resume chan struct{}
}

// Player owns one playback session per guild
type Player struct {
	cfg      config.MusicConfig
	joiner   VoiceJoiner
	streamer Streamer
	logger   *zap.Logger

	mu       sync.Mutex
	sessions map[string]*session
	onChange func(guildID string)
}

func NewPlayer(cfg config.MusicConfig, joiner VoiceJoiner, streamer Streamer, logger *zap.Logger) *Player {
	return &Player{
		cfg:      cfg,
		joiner:   joiner,
		streamer: streamer,
		logger:   logger,
		sessions: make(map[string]*session),
	}
}

// OnChange registers a callback run when a guild's track changes or its
// session ends
func (p *Player) OnChange(fn func(guildID string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = fn
}

func (p *Player) notify(guildID string) {
	p.mu.Lock()
	fn := p.onChange
	p.mu.Unlock()
	if fn != nil {
		fn(guildID)
	}
}

// Play queues t for the guild, joining channelID when the bot is not yet
// connected. It returns the queue position; 0 plays next.
func (p *Player) Play(ctx context.Context, guildID, channelID string, t *Track) (int, error) {
	p.mu.Lock()
	s, ok := p.sessions[guildID]
	p.mu.Unlock()

	if !ok {
		conn, err := p.joiner.JoinVoice(guildID, channelID)
		if err != nil {
			return 0, fmt.Errorf("failed to join voice channel: %w", err)
		}

		p.mu.Lock()
		if existing, raced := p.sessions[guildID]; raced {
			p.mu.Unlock()
			_ = conn.Disconnect()
			s = existing
		} else {
			sctx, cancel := context.WithCancel(context.Background())
			s = &session{
				guildID:   guildID,
				channelID: channelID,
				conn:      conn,
				ctx:       sctx,
				cancel:    cancel,
				skip:      make(chan struct{}, 1),
				resume:    make(chan struct{}, 1),
			}
			p.sessions[guildID] = s
			p.mu.Unlock()
			p.logger.Info("Joined voice channel", zap.String("guild", guildID), zap.String("channel", channelID))
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sessions[guildID] != s {
		return 0, fmt.Errorf("voice session for %s closed while queueing", guildID)
	}
	if s.idle != nil {
		s.idle.Stop()
		s.idle = nil
	}

	pos := s.queue.Add(t)
	if !s.running {
		s.running = true
		go p.run(s)
	}
	return pos, nil
}

func (p *Player) run(s *session) {
	for {
		t := p.next(s)
		if t == nil {
			p.notify(s.guildID)
			return
		}

		p.notify(s.guildID)

		err := p.stream(s, t)
		if s.ctx.Err() != nil {
			return
		}
		if err != nil {
			p.logger.Warn("Track playback failed",
				zap.String("guild", s.guildID),
				zap.String("url", t.URL),
				zap.Error(err),
			)
			p.mu.Lock()
			s.skipped = true
			p.mu.Unlock()
		}
	}
}

// next advances the queue and clears the skip state of the track that just
// ended. The skip signal is drained under the same lock so a Skip aimed at
// the new track is kept. A nil track ends the run loop and arms the idle
// timer.
func (p *Player) next(s *session) *Track {
	p.mu.Lock()
	defer p.mu.Unlock()

	t := s.queue.Advance(s.skipped)
	s.skipped = false
	select {
	case <-s.skip:
	default:
	}
	s.frames.Store(0)

	if t == nil {
		s.running = false
		s.paused = false
		if p.sessions[s.guildID] == s && p.cfg.IdleTimeout > 0 {
			s.idle = time.AfterFunc(p.cfg.IdleTimeout, func() { p.leaveIfIdle(s) })
		}
	}
	return t
}

func (p *Player) stream(s *session, t *Track) error {
	src, err := p.streamer.Open(s.ctx, t)
	if err != nil {
		return err
	}
	defer src.Close()

	if err := s.conn.Speaking(true); err != nil {
		p.logger.Debug("Failed to set speaking", zap.Error(err))
	}
	defer s.conn.Speaking(false)

	for {
		select {
		case <-s.skip:
			return nil
		default:
		}

		if p.isPaused(s) {
			select {
			case <-s.resume:
			case <-s.skip:
				return nil
			case <-s.ctx.Done():
				return s.ctx.Err()
			}
			continue
		}

		frame, err := src.NextFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := s.conn.Send(s.ctx, frame); err != nil {
			return err
		}
		s.frames.Add(1)
	}
}

func (p *Player) isPaused(s *session) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return s.paused
}

func (p *Player) active(guildID string) (*session, error) {
	s, ok := p.sessions[guildID]
	if !ok || s.queue.Current() == nil {
		return nil, ErrNothingPlaying
	}
	return s, nil
}

// TogglePause pauses or resumes and returns the new paused state
func (p *Player) TogglePause(guildID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, err := p.active(guildID)
	if err != nil {
		return false, err
	}
	s.paused = !s.paused
	if !s.paused {
		select {
		case s.resume <- struct{}{}:
		default:
		}
	}
	return s.paused, nil
}

// ToggleRepeat switches single-track repeat and returns the new state
func (p *Player) ToggleRepeat(guildID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, err := p.active(guildID)
	if err != nil {
		return false, err
	}
	s.queue.SetRepeat(!s.queue.Repeat())
	return s.queue.Repeat(), nil
}

// Skip ends the current track
func (p *Player) Skip(guildID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, err := p.active(guildID)
	if err != nil {
		return err
	}
	s.skipped = true
	s.paused = false
	select {
	case s.skip <- struct{}{}:
	default:
	}
	return nil
}

// Snapshot returns the guild's playback state
func (p *Player) Snapshot(guildID string) (State, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.sessions[guildID]
	if !ok {
		return State{}, false
	}
	return State{
		Current:  s.queue.Current(),
		Upcoming: s.queue.Upcoming(),
		Paused:   s.paused,
		Repeat:   s.queue.Repeat(),
		Elapsed:  time.Duration(s.frames.Load()) * frameDuration,
	}, true
}

// Connected reports whether the guild has a voice session
func (p *Player) Connected(guildID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.sessions[guildID]
	return ok
}

func (p *Player) leaveIfIdle(s *session) {
	p.mu.Lock()
	idle := p.sessions[s.guildID] == s && !s.running
	p.mu.Unlock()
	if idle {
		p.logger.Info("Leaving idle voice channel", zap.String("guild", s.guildID))
		p.Leave(s.guildID)
	}
}

// Leave stops playback and disconnects from the guild's voice channel
func (p *Player) Leave(guildID string) {
	p.mu.Lock()
	s, ok := p.sessions[guildID]
	if ok {
		delete(p.sessions, guildID)
		if s.idle != nil {
			s.idle.Stop()
		}
		s.queue.Clear()
	}
	p.mu.Unlock()
	if !ok {
		return
	}

	s.cancel()
	if err := s.conn.Disconnect(); err != nil {
		p.logger.Warn("Failed to disconnect voice", zap.String("guild", guildID), zap.Error(err))
	}
	p.notify(guildID)
}

// Sessions returns the number of connected guilds
func (p *Player) Sessions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// Shutdown leaves every voice channel
func (p *Player) Shutdown() {
	p.mu.Lock()
	guilds := make([]string, 0, len(p.sessions))
	for id := range p.sessions {
		guilds = append(guilds, id)
	}
	p.mu.Unlock()

	for _, id := range guilds {
		p.Leave(id)
	}
}
