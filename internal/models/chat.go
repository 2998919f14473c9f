package models

import (
	"time"

	"gorm.io/gorm"
)

// ChatThread is the single conversation between a pair of friends.
type ChatThread struct {
	ID            uint `gorm:"primaryKey"`
	UserOneID     uint `gorm:"not null;uniqueIndex:idx_chat_thread_pair"`
	UserTwoID     uint `gorm:"not null;uniqueIndex:idx_chat_thread_pair;index"`
	LastMessageAt *time.Time
	CreatedAt     time.Time

	Messages []ChatMessage `gorm:"foreignKey:ThreadID;constraint:OnDelete:CASCADE;"`
}

// BeforeSave keeps the pair ordered like Friendship.
func (t *ChatThread) BeforeSave(tx *gorm.DB) error {
	if t.UserOneID == t.UserTwoID {
		return ErrSelfFriendship
	}
	t.UserOneID, t.UserTwoID = OrderedPair(t.UserOneID, t.UserTwoID)
	return nil
}

// Other returns the member of the thread that is not userID.
func (t ChatThread) Other(userID uint) uint {
	if t.UserOneID == userID {
		return t.UserTwoID
	}
	return t.UserOneID
}

// ChatMessage is one message of a thread.
type ChatMessage struct {
	ID        uint      `gorm:"primaryKey"`
	ThreadID  uint      `gorm:"not null;index:idx_chat_message_thread_created"`
	SenderID  uint      `gorm:"not null"`
	Text      string    `gorm:"size:2000;not null"`
	CreatedAt time.Time `gorm:"index:idx_chat_message_thread_created"`

	Sender User `gorm:"foreignKey:SenderID;constraint:OnDelete:CASCADE;"`
}
