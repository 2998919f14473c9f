package models

// All lists every model in migration order.
func All() []any {
	return []any{
		&User{},
		&Console{},
		&Game{},
		&WishlistEntry{},
		&CollectionEntry{},
		&GameDetails{},
		&FriendRequest{},
		&Friendship{},
		&ChatThread{},
		&ChatMessage{},
	}
}
