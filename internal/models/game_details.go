package models

import "time"

// OwnershipStatus describes how a collected game is held.
type OwnershipStatus string

const (
	OwnershipOwned    OwnershipStatus = "owned"
	OwnershipDigital  OwnershipStatus = "digital"
	OwnershipBorrowed OwnershipStatus = "borrowed"
	OwnershipLent     OwnershipStatus = "lent"
	OwnershipSold     OwnershipStatus = "sold"
)

// GameDetails is the one-to-one metadata of a collection entry.
type GameDetails struct {
	ID                uint            `gorm:"primaryKey"`
	CollectionEntryID uint            `gorm:"not null;uniqueIndex"`
	OwnershipStatus   OwnershipStatus `gorm:"type:varchar(20);not null;default:'owned'"`

	// Condition flags for physical copies.
	HasBox    bool `gorm:"not null;default:false"`
	HasManual bool `gorm:"not null;default:false"`
	HasGame   bool `gorm:"not null"`

	Notes             string `gorm:"size:2000"`
	CompletionPercent int    `gorm:"not null;default:0"`
	Review            string `gorm:"size:5000"`
	ReviewHasSpoilers bool   `gorm:"not null;default:false"`
	Price             *float64
	Rating            *int `gorm:"index"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
