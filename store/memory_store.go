package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/it35lab/campusfeed/backend"
	"github.com/it35lab/campusfeed/model"
	"github.com/lib/pq"
)

// MemoryStore keeps every table in process memory. It follows the same
// contract as Store and backs the dev server and unit tests.
type MemoryStore struct {
	mu sync.RWMutex

	users    map[string]model.User
	posts    map[string]model.Post
	likes    map[likeKey]model.Like
	comments map[string]model.Comment

	// Monotonic insertion order, breaks ties between equal timestamps.
	seq      int64
	order    map[string]int64
	likeSeqs map[likeKey]int64

	// Clock is used for all timestamps, tests may override it.
	Clock func() time.Time
}

type likeKey struct {
	postID string
	userID string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]model.User),
		posts:    make(map[string]model.Post),
		likes:    make(map[likeKey]model.Like),
		comments: make(map[string]model.Comment),
		order:    make(map[string]int64),
		likeSeqs: make(map[likeKey]int64),
		Clock:    time.Now,
	}
}

func (m *MemoryStore) next() int64 {
	m.seq++
	return m.seq
}

func (m *MemoryStore) CreateUser(ctx context.Context, user *model.User) error {
	if err := ctx.Err(); err != nil {
		return translateError(err, "create user")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[user.Id]; ok {
		return backend.NewError(backend.CodeUniqueViolation, "user already exists: "+user.Id, nil)
	}
	for _, u := range m.users {
		if u.Username == user.Username {
			return backend.NewError(backend.CodeUniqueViolation, "username already taken: "+user.Username, nil)
		}
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = m.Clock()
	}
	m.users[user.Id] = *user
	return nil
}

func (m *MemoryStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, translateError(err, "get user")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, backend.NewError(backend.CodeNoRows, "user not found: "+id, nil)
	}
	return &u, nil
}

func (m *MemoryStore) UpdateUser(ctx context.Context, user *model.User) error {
	if err := ctx.Err(); err != nil {
		return translateError(err, "update user")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.users[user.Id]
	if !ok {
		return backend.NewError(backend.CodeNoRows, "user not found: "+user.Id, nil)
	}
	for id, u := range m.users {
		if id != user.Id && u.Username == user.Username {
			return backend.NewError(backend.CodeUniqueViolation, "username already taken: "+user.Username, nil)
		}
	}
	user.UpdatedAt = m.Clock()
	existing.Email = user.Email
	existing.Username = user.Username
	existing.FirstName = user.FirstName
	existing.LastName = user.LastName
	existing.AvatarUrl = user.AvatarUrl
	existing.UpdatedAt = user.UpdatedAt
	m.users[user.Id] = existing
	return nil
}

func (m *MemoryStore) withAuthor(p model.Post) model.Post {
	p = p.Clone()
	if u, ok := m.users[p.AuthorID]; ok {
		p.Author = u
	}
	return p
}

func (m *MemoryStore) ListPosts(ctx context.Context) ([]model.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, translateError(err, "list posts")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	posts := make([]model.Post, 0, len(m.posts))
	for _, p := range m.posts {
		posts = append(posts, m.withAuthor(p))
	}
	sort.SliceStable(posts, func(i, j int) bool {
		if !posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].CreatedAt.After(posts[j].CreatedAt)
		}
		return m.order[posts[i].Id] > m.order[posts[j].Id]
	})
	return posts, nil
}

func (m *MemoryStore) GetPost(ctx context.Context, id string) (*model.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, translateError(err, "get post")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.posts[id]
	if !ok {
		return nil, backend.NewError(backend.CodeNoRows, "post not found: "+id, nil)
	}
	p = m.withAuthor(p)
	return &p, nil
}

func (m *MemoryStore) CreatePost(ctx context.Context, post *model.Post) error {
	if err := ctx.Err(); err != nil {
		return translateError(err, "create post")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[post.AuthorID]; !ok {
		return backend.NewError(backend.CodeInvalidReference, "author not found: "+post.AuthorID, nil)
	}
	if post.Id == "" {
		post.Id = uuid.New().String()
	}
	now := m.Clock()
	post.CreatedAt = now
	post.UpdatedAt = now
	m.posts[post.Id] = post.Clone()
	m.order[post.Id] = m.next()
	return nil
}

func (m *MemoryStore) ownedPost(postID, authorID string) (model.Post, error) {
	p, ok := m.posts[postID]
	if !ok {
		return p, backend.NewError(backend.CodeNoRows, "post not found: "+postID, nil)
	}
	if p.AuthorID != authorID {
		return p, backend.NewError(backend.CodeForbidden, "post "+postID+" is not owned by "+authorID, nil)
	}
	return p, nil
}

func (m *MemoryStore) UpdatePost(ctx context.Context, postID, authorID, content string, images []string) error {
	if err := ctx.Err(); err != nil {
		return translateError(err, "update post")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.ownedPost(postID, authorID)
	if err != nil {
		return err
	}
	p.Content = content
	p.Images = append(pq.StringArray{}, images...)
	p.UpdatedAt = m.Clock()
	m.posts[postID] = p
	return nil
}

func (m *MemoryStore) DeletePost(ctx context.Context, postID, authorID string) error {
	if err := ctx.Err(); err != nil {
		return translateError(err, "delete post")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.ownedPost(postID, authorID); err != nil {
		return err
	}
	for k := range m.likes {
		if k.postID == postID {
			delete(m.likes, k)
			delete(m.likeSeqs, k)
		}
	}
	for id, c := range m.comments {
		if c.PostID == postID {
			delete(m.comments, id)
			delete(m.order, id)
		}
	}
	delete(m.posts, postID)
	delete(m.order, postID)
	return nil
}

func (m *MemoryStore) CreateLike(ctx context.Context, postID, userID string) error {
	if err := ctx.Err(); err != nil {
		return translateError(err, "create like")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.posts[postID]; !ok {
		return backend.NewError(backend.CodeInvalidReference, "post not found: "+postID, nil)
	}
	k := likeKey{postID: postID, userID: userID}
	if _, ok := m.likes[k]; ok {
		return backend.NewError(backend.CodeUniqueViolation, "post already liked", nil)
	}
	m.likes[k] = model.Like{PostID: postID, UserID: userID, CreatedAt: m.Clock()}
	m.likeSeqs[k] = m.next()
	return nil
}

func (m *MemoryStore) DeleteLike(ctx context.Context, postID, userID string) error {
	if err := ctx.Err(); err != nil {
		return translateError(err, "delete like")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	k := likeKey{postID: postID, userID: userID}
	delete(m.likes, k)
	delete(m.likeSeqs, k)
	return nil
}

func (m *MemoryStore) LikeCount(ctx context.Context, postID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, translateError(err, "like count")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for k := range m.likes {
		if k.postID == postID {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) CommentCount(ctx context.Context, postID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, translateError(err, "comment count")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, c := range m.comments {
		if c.PostID == postID {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) LikedUsers(ctx context.Context, postID string) ([]model.Liker, error) {
	if err := ctx.Err(); err != nil {
		return nil, translateError(err, "liked users")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []likeKey
	for k := range m.likes {
		if k.postID == postID {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return m.likeSeqs[keys[i]] < m.likeSeqs[keys[j]] })

	likers := []model.Liker{}
	for _, k := range keys {
		likers = append(likers, model.Liker{UserID: k.userID, Username: m.users[k.userID].Username})
	}
	return likers, nil
}

func (m *MemoryStore) sortedComments(filter func(model.Comment) bool) []model.Comment {
	var comments []model.Comment
	for _, c := range m.comments {
		if filter(c) {
			c.Author = m.users[c.AuthorID]
			comments = append(comments, c)
		}
	}
	sort.Slice(comments, func(i, j int) bool { return m.order[comments[i].Id] < m.order[comments[j].Id] })
	return comments
}

func (m *MemoryStore) ListComments(ctx context.Context, postID string) ([]model.Comment, error) {
	if err := ctx.Err(); err != nil {
		return nil, translateError(err, "list comments")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.sortedComments(func(c model.Comment) bool { return c.PostID == postID }), nil
}

func (m *MemoryStore) CreateComment(ctx context.Context, comment *model.Comment) error {
	if err := ctx.Err(); err != nil {
		return translateError(err, "create comment")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.posts[comment.PostID]; !ok {
		return backend.NewError(backend.CodeInvalidReference, "post not found: "+comment.PostID, nil)
	}
	if comment.ParentCommentID != nil {
		parent, ok := m.comments[*comment.ParentCommentID]
		if !ok {
			return backend.NewError(backend.CodeInvalidReference, "parent comment not found", nil)
		}
		if parent.PostID != comment.PostID {
			return backend.NewError(backend.CodeInvalidReference, "parent comment belongs to another post", nil)
		}
	}
	if comment.Id == "" {
		comment.Id = uuid.New().String()
	}
	comment.CreatedAt = m.Clock()
	stored := *comment
	stored.Author = model.User{}
	m.comments[comment.Id] = stored
	m.order[comment.Id] = m.next()
	return nil
}

func (m *MemoryStore) LikeActivity(ctx context.Context, authorID string, since time.Time, limit int) ([]model.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, translateError(err, "like activity")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []likeKey
	for k, l := range m.likes {
		p := m.posts[k.postID]
		if p.AuthorID == authorID && k.userID != authorID && l.CreatedAt.After(since) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return m.likeSeqs[keys[i]] > m.likeSeqs[keys[j]] })
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	notifications := make([]model.Notification, 0, len(keys))
	for _, k := range keys {
		actor := m.users[k.userID]
		notifications = append(notifications, model.Notification{
			Id:             model.LikeNotificationId(k.postID, k.userID),
			Kind:           model.NotificationKindLike,
			ActorID:        k.userID,
			ActorName:      actor.Username,
			ActorAvatarUrl: actor.AvatarUrl,
			PostID:         k.postID,
			Excerpt:        m.posts[k.postID].Content,
			CreatedAt:      m.likes[k].CreatedAt,
		})
	}
	return notifications, nil
}

func (m *MemoryStore) CommentActivity(ctx context.Context, authorID string, since time.Time, limit int) ([]model.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, translateError(err, "comment activity")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	isReplyToAuthor := func(c model.Comment) bool {
		if c.ParentCommentID == nil {
			return false
		}
		parent, ok := m.comments[*c.ParentCommentID]
		return ok && parent.AuthorID == authorID
	}
	comments := m.sortedComments(func(c model.Comment) bool {
		if c.AuthorID == authorID || !c.CreatedAt.After(since) {
			return false
		}
		return m.posts[c.PostID].AuthorID == authorID || isReplyToAuthor(c)
	})

	notifications := make([]model.Notification, 0, len(comments))
	for i := len(comments) - 1; i >= 0; i-- {
		c := comments[i]
		kind := model.NotificationKindComment
		if isReplyToAuthor(c) {
			kind = model.NotificationKindReply
		}
		commentID := c.Id
		notifications = append(notifications, model.Notification{
			Id:             model.CommentNotificationId(c.Id),
			Kind:           kind,
			ActorID:        c.AuthorID,
			ActorName:      c.Author.Username,
			ActorAvatarUrl: c.Author.AvatarUrl,
			PostID:         c.PostID,
			CommentID:      &commentID,
			Excerpt:        c.Content,
			CreatedAt:      c.CreatedAt,
		})
		if limit > 0 && len(notifications) >= limit {
			break
		}
	}
	return notifications, nil
}
