package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFriendshipBeforeSaveOrdersPair(t *testing.T) {
	f := &Friendship{UserOneID: 9, UserTwoID: 3}
	assert.NoError(t, f.BeforeSave(nil))
	assert.Equal(t, uint(3), f.UserOneID)
	assert.Equal(t, uint(9), f.UserTwoID)
	assert.Equal(t, uint(9), f.Other(3))
	assert.Equal(t, uint(3), f.Other(9))
}

func TestFriendshipRejectsSelf(t *testing.T) {
	f := &Friendship{UserOneID: 4, UserTwoID: 4}
	assert.ErrorIs(t, f.BeforeSave(nil), ErrSelfFriendship)

	th := &ChatThread{UserOneID: 4, UserTwoID: 4}
	assert.ErrorIs(t, th.BeforeSave(nil), ErrSelfFriendship)
}

func TestNewFriendshipAndThreadOrdering(t *testing.T) {
	f := NewFriendship(10, 2)
	assert.Equal(t, uint(2), f.UserOneID)
	assert.Equal(t, uint(10), f.UserTwoID)

	th := &ChatThread{UserOneID: 10, UserTwoID: 2}
	assert.NoError(t, th.BeforeSave(nil))
	assert.Equal(t, uint(2), th.UserOneID)
	assert.Equal(t, uint(2), th.Other(10))
}
