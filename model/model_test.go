package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostCloneSharesNoSlices(t *testing.T) {
	avatar := "https://cdn/a.png"
	p := Post{
		Id:      "p1",
		Images:  pq.StringArray{"a.png"},
		LikedBy: []Liker{{UserID: "u1", Username: "juan"}},
		Author:  User{Id: "u1", AvatarUrl: &avatar},
	}
	c := p.Clone()
	assert.Empty(t, cmp.Diff(p, c))

	c.Images[0] = "b.png"
	c.LikedBy[0].Username = "pedro"
	*c.Author.AvatarUrl = "changed"
	assert.Equal(t, "a.png", p.Images[0])
	assert.Equal(t, "juan", p.LikedBy[0].Username)
	assert.Equal(t, "https://cdn/a.png", avatar)

	empty := Post{}.Clone()
	assert.Nil(t, empty.Images)
	assert.Nil(t, empty.LikedBy)
}

func TestAuthSessionExpired(t *testing.T) {
	now := time.Date(2021, 9, 1, 8, 0, 0, 0, time.UTC)
	s := &AuthSession{ExpiresAt: now.Add(time.Minute)}

	assert.False(t, s.Expired(now, 0))
	assert.True(t, s.Expired(now, 2*time.Minute))
	assert.True(t, s.Expired(now.Add(time.Hour), 0))
	assert.False(t, (&AuthSession{}).Expired(now, time.Hour))
}

func TestSignal(t *testing.T) {
	s, err := NewSignal(SignalTypeNotification, Notification{Id: "comment:c1", Kind: NotificationKindComment})
	require.Nil(t, err)

	data, err := json.Marshal(s)
	require.Nil(t, err)

	var decoded Signal
	require.Nil(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, SignalTypeNotification, decoded.SignalType)

	var n Notification
	require.Nil(t, json.Unmarshal(decoded.SignalPayload, &n))
	assert.Equal(t, "comment:c1", n.Id)

	assert.NotNil(t, json.Unmarshal([]byte(`{"signalType":"UNKNOWN"}`), &decoded))
	assert.NotNil(t, json.Unmarshal([]byte(`{"signalType":1}`), &decoded))
}

func TestNotificationIds(t *testing.T) {
	assert.Equal(t, "like:p1:u1", LikeNotificationId("p1", "u1"))
	assert.Equal(t, "comment:c1", CommentNotificationId("c1"))
}
