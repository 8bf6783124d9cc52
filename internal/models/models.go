package models

import (
	"time"

	"gorm.io/gorm"
)

// PanelRecord tracks a live panel message so it can be cleaned up after a restart
type PanelRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Kind      string `gorm:"uniqueIndex:idx_panel_kind_guild;not null"` // "music", "consult"
	GuildID   string `gorm:"uniqueIndex:idx_panel_kind_guild;not null"`
	ChannelID string `gorm:"not null"`
	MessageID string `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CommandLog records every dispatched interaction
type CommandLog struct {
	ID         uint   `gorm:"primaryKey"`
	Command    string `gorm:"index;not null"` // command name or custom id
	Kind       string // slash, button, modal
	UserID     string `gorm:"index"`
	GuildID    string `gorm:"index"`
	Outcome    string // ok or the error kind
	DurationMs int64
	CreatedAt  time.Time
}

// InitDB initializes the database and creates tables
func InitDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&PanelRecord{},
		&CommandLog{},
	)
}
