package models

import "gorm.io/gorm"

// User represents a user account.
type User struct {
	gorm.Model
	Username     string `gorm:"size:32;uniqueIndex;not null"`
	Email        string `gorm:"size:255;uniqueIndex;not null"`
	PasswordHash string `gorm:"size:255;not null"`
	IsAdmin      bool   `gorm:"not null;default:false"`
	AvatarURL    string `gorm:"size:1024"`
	Bio          string `gorm:"size:500"`

	// TokenVersion is embedded in refresh tokens; bumping it revokes them all.
	TokenVersion int `gorm:"not null;default:0"`
}
