package models

import "time"

// WishlistEntry is a game a user wants but does not own yet.
type WishlistEntry struct {
	ID        uint `gorm:"primaryKey"`
	UserID    uint `gorm:"not null;uniqueIndex:idx_wishlist_user_game"`
	GameID    uint `gorm:"not null;uniqueIndex:idx_wishlist_user_game;index"`
	CreatedAt time.Time

	Game     Game       `gorm:"foreignKey:GameID;constraint:OnDelete:CASCADE;"`
	User     User       `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;"`
	Consoles []*Console `gorm:"many2many:wishlist_entry_consoles;constraint:OnDelete:CASCADE;"`
}
