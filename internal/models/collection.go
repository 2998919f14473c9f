package models

import "time"

// CollectionEntry records that a user owns a game, on which consoles, and
// optionally with a GameDetails row.
type CollectionEntry struct {
	ID        uint `gorm:"primaryKey"`
	UserID    uint `gorm:"not null;uniqueIndex:idx_collection_user_game"`
	GameID    uint `gorm:"not null;uniqueIndex:idx_collection_user_game;index"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Game        Game         `gorm:"foreignKey:GameID;constraint:OnDelete:CASCADE;"`
	User        User         `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;"`
	Consoles    []*Console   `gorm:"many2many:collection_entry_consoles;constraint:OnDelete:CASCADE;"`
	GameDetails *GameDetails `gorm:"foreignKey:CollectionEntryID;constraint:OnDelete:CASCADE;"`
}
