package utils

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisKeyParser(t *testing.T) {
	p := &RedisKeyParser{delimiter: "_"}
	validUserId := "valid-user-id"
	validItemId := "valid-item-id"
	expectedKey := "valid-user-id_valid-item-id"

	invalidUserId := "invalid_user_id"
	invalidItemId := "invalid_item_id"

	assert.True(t, p.ValidateId(validUserId))
	assert.True(t, p.ValidateId(validItemId))
	assert.False(t, p.ValidateId(invalidItemId))
	assert.False(t, p.ValidateId(invalidUserId))

	k, err := p.EncodeItemKey(validUserId, validItemId)
	assert.Equal(t, k, expectedKey)
	assert.Nil(t, err)

	_, err = p.EncodeItemKey(invalidUserId, invalidItemId)
	assert.NotNil(t, err)

	uId, iId, err := p.DecodeItemKey(expectedKey)
	assert.Nil(t, err)
	assert.Equal(t, uId, validUserId)
	assert.Equal(t, iId, validItemId)
}

func testStatusStore(t *testing.T, r StatusStore) {
	ctx := context.Background()
	userId := "user-id"
	wrongId := "wrong-id"
	readItems := []string{"comment:read1", "like:p:read2"}
	unreadItems := []string{"comment:unread1", "comment:unread2", "comment:unread3"}
	require.Nil(t, r.SetItemsReadStatus(ctx, readItems, userId, true))
	require.Nil(t, r.SetItemsReadStatus(ctx, unreadItems, userId, false))

	status, err := r.GetItemsReadStatus(ctx, readItems, userId)
	assert.Nil(t, err)
	assert.Equal(t, []bool{true, true}, status)

	status, err = r.GetItemsReadStatus(ctx, unreadItems, userId)
	assert.Nil(t, err)
	assert.Equal(t, []bool{false, false, false}, status)

	status, err = r.GetItemsReadStatus(ctx, readItems, wrongId)
	assert.Nil(t, err)
	assert.Equal(t, []bool{false, false}, status)

	// Unread again.
	require.Nil(t, r.SetItemsReadStatus(ctx, readItems[:1], userId, false))
	status, err = r.GetItemsReadStatus(ctx, readItems, userId)
	assert.Nil(t, err)
	assert.Equal(t, []bool{false, true}, status)
}

func TestMemoryStatusStore(t *testing.T) {
	testStatusStore(t, NewMemoryStatusStore())
}

func TestRedisStatusStore(t *testing.T) {
	if !IsRedisConfigured() {
		t.Skip("redis is not configured, set REDIS_HOST")
	}
	r, err := GetRedisStatusStore(context.Background())
	require.Nil(t, err)
	testStatusStore(t, r)
}
