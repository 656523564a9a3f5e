package store

import (
	"context"
	"testing"
	"time"

	"github.com/it35lab/campusfeed/backend"
	"github.com/it35lab/campusfeed/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedClock returns the same instant for every call so ordering falls back
// to insertion order.
func fixedClock() time.Time {
	return time.Date(2021, 9, 1, 8, 0, 0, 0, time.UTC)
}

func seedUsers(t *testing.T, m *MemoryStore, ids ...string) {
	for _, id := range ids {
		require.Nil(t, m.CreateUser(context.Background(), &model.User{Id: id, Username: id + "_name", Email: id + "@nbsc.edu.ph"}))
	}
}

func TestMemoryStoreUsers(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	seedUsers(t, m, "u1")

	u, err := m.GetUser(ctx, "u1")
	require.Nil(t, err)
	assert.Equal(t, "u1_name", u.Username)

	_, err = m.GetUser(ctx, "missing")
	assert.True(t, backend.IsCode(err, backend.CodeNoRows))

	err = m.CreateUser(ctx, &model.User{Id: "u2", Username: "u1_name"})
	assert.True(t, backend.IsCode(err, backend.CodeUniqueViolation))

	u.FirstName = "Juan"
	require.Nil(t, m.UpdateUser(ctx, u))
	u, err = m.GetUser(ctx, "u1")
	require.Nil(t, err)
	assert.Equal(t, "Juan", u.FirstName)

	err = m.UpdateUser(ctx, &model.User{Id: "missing"})
	assert.True(t, backend.IsCode(err, backend.CodeNoRows))
}

func TestMemoryStorePostsNewestFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	m.Clock = fixedClock
	seedUsers(t, m, "u1")

	for _, content := range []string{"first", "second", "third"} {
		require.Nil(t, m.CreatePost(ctx, &model.Post{AuthorID: "u1", Content: content}))
	}

	posts, err := m.ListPosts(ctx)
	require.Nil(t, err)
	require.Len(t, posts, 3)
	assert.Equal(t, "third", posts[0].Content)
	assert.Equal(t, "second", posts[1].Content)
	assert.Equal(t, "first", posts[2].Content)
	assert.Equal(t, "u1_name", posts[0].Author.Username)

	err = m.CreatePost(ctx, &model.Post{AuthorID: "ghost", Content: "x"})
	assert.True(t, backend.IsCode(err, backend.CodeInvalidReference))
}

func TestMemoryStoreOnlyAuthorEditsPost(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	seedUsers(t, m, "author", "other")

	post := &model.Post{AuthorID: "author", Content: "hello", Images: []string{"a.png"}}
	require.Nil(t, m.CreatePost(ctx, post))
	require.Nil(t, m.CreateLike(ctx, post.Id, "other"))
	require.Nil(t, m.CreateComment(ctx, &model.Comment{PostID: post.Id, AuthorID: "other", Content: "hi"}))

	err := m.UpdatePost(ctx, post.Id, "other", "hacked", nil)
	assert.True(t, backend.IsCode(err, backend.CodeForbidden))
	err = m.DeletePost(ctx, post.Id, "other")
	assert.True(t, backend.IsCode(err, backend.CodeForbidden))

	require.Nil(t, m.UpdatePost(ctx, post.Id, "author", "edited", []string{}))
	got, err := m.GetPost(ctx, post.Id)
	require.Nil(t, err)
	assert.Equal(t, "edited", got.Content)
	assert.Empty(t, got.Images)

	require.Nil(t, m.DeletePost(ctx, post.Id, "author"))
	_, err = m.GetPost(ctx, post.Id)
	assert.True(t, backend.IsCode(err, backend.CodeNoRows))
	count, err := m.LikeCount(ctx, post.Id)
	require.Nil(t, err)
	assert.Equal(t, int64(0), count)
	count, err = m.CommentCount(ctx, post.Id)
	require.Nil(t, err)
	assert.Equal(t, int64(0), count)
}

func TestMemoryStoreLikes(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	seedUsers(t, m, "u1", "u2", "u3")

	post := &model.Post{AuthorID: "u1", Content: "hello"}
	require.Nil(t, m.CreatePost(ctx, post))

	require.Nil(t, m.CreateLike(ctx, post.Id, "u3"))
	require.Nil(t, m.CreateLike(ctx, post.Id, "u2"))
	err := m.CreateLike(ctx, post.Id, "u2")
	assert.True(t, backend.IsCode(err, backend.CodeUniqueViolation))

	count, err := m.LikeCount(ctx, post.Id)
	require.Nil(t, err)
	assert.Equal(t, int64(2), count)

	likers, err := m.LikedUsers(ctx, post.Id)
	require.Nil(t, err)
	assert.Equal(t, []model.Liker{
		{UserID: "u3", Username: "u3_name"},
		{UserID: "u2", Username: "u2_name"},
	}, likers)

	require.Nil(t, m.DeleteLike(ctx, post.Id, "u3"))
	// Deleting a missing like is not an error.
	require.Nil(t, m.DeleteLike(ctx, post.Id, "u3"))
	count, err = m.LikeCount(ctx, post.Id)
	require.Nil(t, err)
	assert.Equal(t, int64(1), count)

	err = m.CreateLike(ctx, "missing", "u2")
	assert.True(t, backend.IsCode(err, backend.CodeInvalidReference))
}

func TestMemoryStoreComments(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	seedUsers(t, m, "u1", "u2")

	p1 := &model.Post{AuthorID: "u1", Content: "one"}
	p2 := &model.Post{AuthorID: "u1", Content: "two"}
	require.Nil(t, m.CreatePost(ctx, p1))
	require.Nil(t, m.CreatePost(ctx, p2))

	root := &model.Comment{PostID: p1.Id, AuthorID: "u2", Content: "root"}
	require.Nil(t, m.CreateComment(ctx, root))
	reply := &model.Comment{PostID: p1.Id, AuthorID: "u1", Content: "reply", ParentCommentID: &root.Id}
	require.Nil(t, m.CreateComment(ctx, reply))

	// Parent on another post.
	err := m.CreateComment(ctx, &model.Comment{PostID: p2.Id, AuthorID: "u2", Content: "x", ParentCommentID: &root.Id})
	assert.True(t, backend.IsCode(err, backend.CodeInvalidReference))

	missing := "missing"
	err = m.CreateComment(ctx, &model.Comment{PostID: p1.Id, AuthorID: "u2", Content: "x", ParentCommentID: &missing})
	assert.True(t, backend.IsCode(err, backend.CodeInvalidReference))

	comments, err := m.ListComments(ctx, p1.Id)
	require.Nil(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "root", comments[0].Content)
	assert.Equal(t, "reply", comments[1].Content)
	assert.Equal(t, "u1_name", comments[1].Author.Username)

	count, err := m.CommentCount(ctx, p1.Id)
	require.Nil(t, err)
	assert.Equal(t, int64(2), count)
	count, err = m.CommentCount(ctx, p2.Id)
	require.Nil(t, err)
	assert.Equal(t, int64(0), count)
}

func TestMemoryStoreActivity(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	seedUsers(t, m, "u1", "u2", "u3")

	post := &model.Post{AuthorID: "u1", Content: "my post"}
	require.Nil(t, m.CreatePost(ctx, post))
	other := &model.Post{AuthorID: "u3", Content: "their post"}
	require.Nil(t, m.CreatePost(ctx, other))

	require.Nil(t, m.CreateLike(ctx, post.Id, "u1"))
	require.Nil(t, m.CreateLike(ctx, post.Id, "u2"))
	require.Nil(t, m.CreateLike(ctx, post.Id, "u3"))

	mine := &model.Comment{PostID: other.Id, AuthorID: "u1", Content: "nice"}
	require.Nil(t, m.CreateComment(ctx, mine))
	require.Nil(t, m.CreateComment(ctx, &model.Comment{PostID: other.Id, AuthorID: "u3", Content: "thanks", ParentCommentID: &mine.Id}))
	require.Nil(t, m.CreateComment(ctx, &model.Comment{PostID: post.Id, AuthorID: "u2", Content: "cool"}))
	require.Nil(t, m.CreateComment(ctx, &model.Comment{PostID: post.Id, AuthorID: "u1", Content: "own"}))

	likes, err := m.LikeActivity(ctx, "u1", time.Time{}, 10)
	require.Nil(t, err)
	require.Len(t, likes, 2)
	assert.Equal(t, "u3", likes[0].ActorID)
	assert.Equal(t, "u2", likes[1].ActorID)
	assert.Equal(t, model.LikeNotificationId(post.Id, "u3"), likes[0].Id)
	assert.Equal(t, "my post", likes[0].Excerpt)

	likes, err = m.LikeActivity(ctx, "u1", time.Time{}, 1)
	require.Nil(t, err)
	assert.Len(t, likes, 1)

	comments, err := m.CommentActivity(ctx, "u1", time.Time{}, 10)
	require.Nil(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, model.NotificationKindComment, comments[0].Kind)
	assert.Equal(t, "cool", comments[0].Excerpt)
	assert.Equal(t, model.NotificationKindReply, comments[1].Kind)
	assert.Equal(t, "thanks", comments[1].Excerpt)
	assert.Equal(t, "u3_name", comments[1].ActorName)

	comments, err = m.CommentActivity(ctx, "u1", time.Now().Add(time.Hour), 10)
	require.Nil(t, err)
	assert.Empty(t, comments)
}

func TestMemoryStoreCanceledContext(t *testing.T) {
	m := NewMemoryStore()
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	_, err := m.ListPosts(ctx)
	assert.True(t, backend.IsCode(err, backend.CodeTimeout))
}
