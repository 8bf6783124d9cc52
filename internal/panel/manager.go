// Package panel keeps at most one live control panel message per guild and
// refreshes it on a timer while its activity is running.
package panel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"miyako-bot/internal/models"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxFailures is how many consecutive failed edits drop a panel
const maxFailures = 2

// View is the rendered content of a panel
type View struct {
	Embeds     []*discordgo.MessageEmbed
	Components []discordgo.MessageComponent
}

// RenderFunc renders the panel and reports whether its activity is ongoing
type RenderFunc func() (View, bool)

// Messenger sends, edits and deletes channel messages
type Messenger interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend) (*discordgo.Message, error)
	ChannelMessageEditComplex(edit *discordgo.MessageEdit) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string) error
}

type entry struct {
	channelID string
	messageID string
	render    RenderFunc
	failures  int
}

type refresh struct {
	cancel context.CancelFunc
}

// Manager owns the panels of one kind (music, consult) across guilds
type Manager struct {
	kind      string
	messenger Messenger
	db        *gorm.DB
	logger    *zap.Logger
	interval  time.Duration

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	entries map[string]*entry
	timers  map[string]*refresh
}

// NewManager creates a panel manager. db may be nil to skip persistence.
func NewManager(kind string, messenger Messenger, db *gorm.DB, logger *zap.Logger, interval time.Duration) *Manager {
	return &Manager{
		kind:      kind,
		messenger: messenger,
		db:        db,
		logger:    logger.With(zap.String("panel", kind)),
		interval:  interval,
		locks:     make(map[string]*sync.Mutex),
		entries:   make(map[string]*entry),
		timers:    make(map[string]*refresh),
	}
}

// guildLock serializes panel operations for one guild
func (m *Manager) guildLock(guildID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[guildID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[guildID] = l
	}
	return l
}

// CreatePanel replaces the guild's panel with a freshly rendered one in
// channelID and returns the new message id. The previous panel's timer is
// stopped and its message deleted before the new one is sent.
func (m *Manager) CreatePanel(ctx context.Context, guildID, channelID string, render RenderFunc) (string, error) {
	lock := m.guildLock(guildID)
	lock.Lock()
	defer lock.Unlock()

	m.teardown(guildID)

	view, active := render()
	msg, err := m.messenger.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds:     view.Embeds,
		Components: view.Components,
	})
	if err != nil {
		return "", fmt.Errorf("failed to send %s panel: %w", m.kind, err)
	}

	m.mu.Lock()
	m.entries[guildID] = &entry{channelID: channelID, messageID: msg.ID, render: render}
	m.mu.Unlock()

	m.persist(guildID, channelID, msg.ID)

	if active {
		m.startPanelRefresh(guildID)
	}

	m.logger.Debug("Panel created",
		zap.String("guild", guildID),
		zap.String("message", msg.ID),
		zap.Bool("active", active),
	)
	return msg.ID, nil
}

// UpdatePanel re-renders the guild's panel in place. A nil render reuses
// the last one. Without a panel this is a no-op.
func (m *Manager) UpdatePanel(ctx context.Context, guildID string, render RenderFunc) error {
	lock := m.guildLock(guildID)
	lock.Lock()
	defer lock.Unlock()

	// A refresh tick that was superseded while waiting for the lock
	if ctx.Err() != nil {
		return nil
	}

	m.mu.Lock()
	e, ok := m.entries[guildID]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	if render != nil {
		e.render = render
	}

	view, active := e.render()
	embeds, components := view.Embeds, view.Components
	if embeds == nil {
		embeds = []*discordgo.MessageEmbed{}
	}
	if components == nil {
		components = []discordgo.MessageComponent{}
	}

	_, err := m.messenger.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:         e.messageID,
		Channel:    e.channelID,
		Embeds:     &embeds,
		Components: &components,
	})
	if err != nil {
		m.StopRefresh(guildID)
		e.failures++
		if e.failures >= maxFailures {
			m.forget(guildID)
		}
		return fmt.Errorf("failed to edit %s panel: %w", m.kind, err)
	}
	e.failures = 0

	if !active {
		m.StopRefresh(guildID)
	} else if !m.Refreshing(guildID) {
		m.startPanelRefresh(guildID)
	}
	return nil
}

// StartRefresh runs update every interval until stopped. A running refresh
// for the guild is cancelled first.
func (m *Manager) StartRefresh(guildID string, update func(ctx context.Context), interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &refresh{cancel: cancel}

	m.mu.Lock()
	if old, ok := m.timers[guildID]; ok {
		old.cancel()
	}
	m.timers[guildID] = r
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				update(ctx)
			}
		}
	}()
}

// StopRefresh cancels the guild's refresh timer if any
func (m *Manager) StopRefresh(guildID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.timers[guildID]; ok {
		r.cancel()
		delete(m.timers, guildID)
	}
}

// Refreshing reports whether the guild has a running refresh timer
func (m *Manager) Refreshing(guildID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.timers[guildID]
	return ok
}

// ActiveRefreshes returns the number of running refresh timers
func (m *Manager) ActiveRefreshes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// MessageID returns the guild's panel message id
func (m *Manager) MessageID(guildID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[guildID]
	if !ok {
		return "", false
	}
	return e.messageID, true
}

// Remove deletes the guild's panel and stops its refresh
func (m *Manager) Remove(ctx context.Context, guildID string) {
	lock := m.guildLock(guildID)
	lock.Lock()
	defer lock.Unlock()
	m.teardown(guildID)
}

// Shutdown stops every refresh timer
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for guildID, r := range m.timers {
		r.cancel()
		delete(m.timers, guildID)
	}
}

func (m *Manager) startPanelRefresh(guildID string) {
	m.StartRefresh(guildID, func(ctx context.Context) {
		if err := m.UpdatePanel(ctx, guildID, nil); err != nil {
			m.logger.Warn("Panel refresh failed", zap.String("guild", guildID), zap.Error(err))
		}
	}, m.interval)
}

// teardown must be called with the guild lock held
func (m *Manager) teardown(guildID string) {
	m.StopRefresh(guildID)

	m.mu.Lock()
	e, ok := m.entries[guildID]
	m.mu.Unlock()
	if !ok {
		return
	}

	if err := m.messenger.ChannelMessageDelete(e.channelID, e.messageID); err != nil {
		m.logger.Warn("Failed to delete old panel",
			zap.String("guild", guildID),
			zap.String("message", e.messageID),
			zap.Error(err),
		)
	}
	m.forget(guildID)
}

func (m *Manager) forget(guildID string) {
	m.mu.Lock()
	delete(m.entries, guildID)
	m.mu.Unlock()

	if m.db == nil {
		return
	}
	if err := m.db.Where("kind = ? AND guild_id = ?", m.kind, guildID).Delete(&models.PanelRecord{}).Error; err != nil {
		m.logger.Warn("Failed to delete panel record", zap.Error(err))
	}
}

func (m *Manager) persist(guildID, channelID, messageID string) {
	if m.db == nil {
		return
	}
	var rec models.PanelRecord
	err := m.db.Where(models.PanelRecord{Kind: m.kind, GuildID: guildID}).
		Assign(models.PanelRecord{ChannelID: channelID, MessageID: messageID}).
		FirstOrCreate(&rec).Error
	if err != nil {
		m.logger.Warn("Failed to store panel record", zap.Error(err))
	}
}

// CleanupStale deletes panel messages left behind by a previous process
func (m *Manager) CleanupStale(ctx context.Context) (int, error) {
	if m.db == nil {
		return 0, nil
	}

	var records []models.PanelRecord
	if err := m.db.WithContext(ctx).Where("kind = ?", m.kind).Find(&records).Error; err != nil {
		return 0, fmt.Errorf("failed to load panel records: %w", err)
	}

	removed := 0
	for _, rec := range records {
		m.mu.Lock()
		_, live := m.entries[rec.GuildID]
		m.mu.Unlock()
		if live {
			continue
		}

		if err := m.messenger.ChannelMessageDelete(rec.ChannelID, rec.MessageID); err != nil {
			m.logger.Debug("Stale panel already gone", zap.String("message", rec.MessageID), zap.Error(err))
		}
		if err := m.db.WithContext(ctx).Delete(&rec).Error; err != nil {
			return removed, fmt.Errorf("failed to delete panel record: %w", err)
		}
		removed++
	}
	return removed, nil
}
