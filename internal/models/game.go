package models

import "time"

// Game is an entry of the shared game catalogue.
type Game struct {
	ID          uint   `gorm:"primaryKey"`
	Name        string `gorm:"size:255;uniqueIndex;not null"`
	CoverArt    string `gorm:"size:2048"`
	CreatedByID *uint  `gorm:"index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Consoles []*Console `gorm:"many2many:game_consoles;constraint:OnDelete:CASCADE;"`
}
