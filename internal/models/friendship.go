package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

var ErrSelfFriendship = errors.New("a user cannot befriend themselves")

// FriendRequest is a pending, directed request from one user to another.
// The primary key is a composite of (FromUserID, ToUserID) to ensure uniqueness.
type FriendRequest struct {
	FromUserID uint `gorm:"primaryKey"`
	ToUserID   uint `gorm:"primaryKey;index"`
	CreatedAt  time.Time

	FromUser User `gorm:"foreignKey:FromUserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	ToUser   User `gorm:"foreignKey:ToUserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

// Friendship is the symmetric relation between two users, stored once per
// pair with UserOneID < UserTwoID.
type Friendship struct {
	UserOneID uint `gorm:"primaryKey"`
	UserTwoID uint `gorm:"primaryKey;index"`
	CreatedAt time.Time

	UserOne User `gorm:"foreignKey:UserOneID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	UserTwo User `gorm:"foreignKey:UserTwoID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

// OrderedPair returns the two ids lowest first.
func OrderedPair(a, b uint) (uint, uint) {
	if a > b {
		return b, a
	}
	return a, b
}

// NewFriendship builds a friendship with the pair already ordered.
func NewFriendship(a, b uint) Friendship {
	one, two := OrderedPair(a, b)
	return Friendship{UserOneID: one, UserTwoID: two}
}

// Other returns the member of the pair that is not userID.
func (f Friendship) Other(userID uint) uint {
	if f.UserOneID == userID {
		return f.UserTwoID
	}
	return f.UserOneID
}

// BeforeSave orders the pair and rejects self-friendship.
func (f *Friendship) BeforeSave(tx *gorm.DB) error {
	if f.UserOneID == f.UserTwoID {
		return ErrSelfFriendship
	}
	f.UserOneID, f.UserTwoID = OrderedPair(f.UserOneID, f.UserTwoID)
	return nil
}
