package models

import "time"

// Console is a platform a game can be owned or wanted on (e.g. "Switch", "PS5").
type Console struct {
	ID        uint      `gorm:"primaryKey"`
	Name      string    `gorm:"size:100;uniqueIndex;not null"`
	CreatedAt time.Time
}
