// Package feed holds the posts one viewer sees, annotated with like and
// comment metadata scoped to that viewer, and applies the viewer's actions.
// Local state is only mutated after the backend write it depends on has
// succeeded.
package feed

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/it35lab/campusfeed/backend"
	"github.com/it35lab/campusfeed/eventbus"
	"github.com/it35lab/campusfeed/file_store"
	"github.com/it35lab/campusfeed/model"
	"github.com/it35lab/campusfeed/utils"
	Logger "github.com/it35lab/campusfeed/utils/log"
	"github.com/sirupsen/logrus"
)

const (
	// Posts resolved in parallel during a fetch.
	fetchConcurrency = 8
)

// Store is the table and remote procedure contract the aggregator needs,
// implemented by store.Store and store.MemoryStore.
type Store interface {
	ListPosts(ctx context.Context) ([]model.Post, error)
	GetPost(ctx context.Context, id string) (*model.Post, error)
	CreatePost(ctx context.Context, post *model.Post) error
	UpdatePost(ctx context.Context, postID, authorID, content string, images []string) error
	DeletePost(ctx context.Context, postID, authorID string) error

	CreateLike(ctx context.Context, postID, userID string) error
	DeleteLike(ctx context.Context, postID, userID string) error
	LikeCount(ctx context.Context, postID string) (int64, error)
	CommentCount(ctx context.Context, postID string) (int64, error)
	LikedUsers(ctx context.Context, postID string) ([]model.Liker, error)

	ListComments(ctx context.Context, postID string) ([]model.Comment, error)
	CreateComment(ctx context.Context, comment *model.Comment) error
}

// Viewer reports who is acting, implemented by session.Manager.
type Viewer interface {
	CurrentUser() *model.AuthUser
}

// Notifier pushes a notification to a user's live connections.
type Notifier interface {
	Notify(userID string, notification model.Notification)
}

type Config struct {
	// Upper bound of each backend call.
	Timeout         time.Duration
	PostImageBucket string
}

type Aggregator struct {
	store   Store
	viewer  Viewer
	objects file_store.ObjectStore
	config  Config
	log     *logrus.Entry

	publisher message.Publisher
	notifier  Notifier
	clock     func() time.Time

	mu sync.Mutex
	// newest first
	posts []model.Post
	// flat comments and their tree per post id, only for fetched posts
	comments map[string][]model.Comment
	trees    map[string][]*model.CommentNode
	// post id -> comment id being replied to
	replyTargets map[string]string
}

func NewAggregator(store Store, viewer Viewer, objects file_store.ObjectStore, config Config) *Aggregator {
	return &Aggregator{
		store:        store,
		viewer:       viewer,
		objects:      objects,
		config:       config,
		log:          Logger.Log.WithField("component", "feed_aggregator"),
		clock:        time.Now,
		comments:     make(map[string][]model.Comment),
		trees:        make(map[string][]*model.CommentNode),
		replyTargets: make(map[string]string),
	}
}

// SetPublisher enables activity events on eventbus.TopicActivity.
func (a *Aggregator) SetPublisher(p message.Publisher) {
	a.publisher = p
}

func (a *Aggregator) SetNotifier(n Notifier) {
	a.notifier = n
}

// FetchPosts reloads all posts newest first. Like count, comment count,
// liker list and liked-by-viewer are resolved per post by independent
// lookups, so they may lag behind concurrent writers.
func (a *Aggregator) FetchPosts(ctx context.Context) ([]model.Post, error) {
	ctx, cancel := backend.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	viewerID := a.viewerID()
	posts, err := a.store.ListPosts(ctx)
	if err != nil {
		return nil, a.fail("fetch_posts", "", err, "Failed to load posts.")
	}

	var wg sync.WaitGroup
	errs := make([]error, len(posts))
	sem := make(chan struct{}, fetchConcurrency)
	for i := range posts {
		wg.Add(1)
		sem <- struct{}{}
		go func(p *model.Post, errp *error) {
			defer wg.Done()
			defer func() { <-sem }()
			*errp = a.resolve(ctx, p, viewerID)
		}(&posts[i], &errs[i])
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, a.fail("fetch_posts", "", err, "Failed to load posts.")
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.posts = posts
	return a.snapshotLocked(), nil
}

func (a *Aggregator) resolve(ctx context.Context, p *model.Post, viewerID string) error {
	likeCount, err := a.store.LikeCount(ctx, p.Id)
	if err != nil {
		return err
	}
	commentCount, err := a.store.CommentCount(ctx, p.Id)
	if err != nil {
		return err
	}
	likers, err := a.store.LikedUsers(ctx, p.Id)
	if err != nil {
		return err
	}
	p.LikeCount = likeCount
	p.CommentCount = commentCount
	p.LikedBy = likers
	p.LikedByUser = containsLiker(likers, viewerID)
	return nil
}

// lookupPost returns the loaded post, or loads and resolves it from the
// store when no fetch has brought it in yet. A loaded post is not added to
// local state, see adoptLocked.
func (a *Aggregator) lookupPost(ctx context.Context, postID string) (model.Post, error) {
	if p, ok := a.Post(postID); ok {
		return p, nil
	}
	fetched, err := a.store.GetPost(ctx, postID)
	if err != nil {
		return model.Post{}, err
	}
	if err := a.resolve(ctx, fetched, a.viewerID()); err != nil {
		return model.Post{}, err
	}
	return *fetched, nil
}

// adoptLocked returns the index of post in local state, inserting it first
// when it is missing.
func (a *Aggregator) adoptLocked(post model.Post) int {
	if i := a.indexLocked(post.Id); i >= 0 {
		return i
	}
	a.insertLocked(post.Clone())
	return a.indexLocked(post.Id)
}

// insertLocked keeps posts newest first.
func (a *Aggregator) insertLocked(p model.Post) {
	i := 0
	for i < len(a.posts) && !a.posts[i].CreatedAt.Before(p.CreatedAt) {
		i++
	}
	a.posts = append(a.posts, model.Post{})
	copy(a.posts[i+1:], a.posts[i:])
	a.posts[i] = p
}

// Posts returns a copy of the current posts.
func (a *Aggregator) Posts() []model.Post {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// Post returns a copy of one loaded post.
func (a *Aggregator) Post(postID string) (model.Post, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if i := a.indexLocked(postID); i >= 0 {
		return a.posts[i].Clone(), true
	}
	return model.Post{}, false
}

// CanModify reports whether the viewer authored postID. It only gates the
// UI, the store enforces ownership on its own.
func (a *Aggregator) CanModify(postID string) bool {
	viewerID := a.viewerID()
	if viewerID == "" {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	i := a.indexLocked(postID)
	return i >= 0 && a.posts[i].AuthorID == viewerID
}

func (a *Aggregator) snapshotLocked() []model.Post {
	posts := make([]model.Post, 0, len(a.posts))
	for _, p := range a.posts {
		posts = append(posts, p.Clone())
	}
	return posts
}

func (a *Aggregator) indexLocked(postID string) int {
	for i := range a.posts {
		if a.posts[i].Id == postID {
			return i
		}
	}
	return -1
}

func (a *Aggregator) viewerID() string {
	if a.viewer == nil {
		return ""
	}
	if u := a.viewer.CurrentUser(); u != nil {
		return u.Id
	}
	return ""
}

// requireViewer returns the signed in user or an identity error.
func (a *Aggregator) requireViewer() (*model.AuthUser, error) {
	if a.viewer != nil {
		if u := a.viewer.CurrentUser(); u != nil {
			return u, nil
		}
	}
	return nil, utils.NewUserError(utils.IdentityError, "Please sign in to continue.", nil)
}

// fail logs err, reports it on the bus and returns its user facing form.
func (a *Aggregator) fail(operation string, postID string, err error, message string) error {
	ue := backend.ToUserError(err, message)
	a.log.WithFields(logrus.Fields{
		"operation": operation,
		"post_id":   postID,
		"code":      backend.CodeOf(err),
	}).Errorln(ue.Message, err)
	a.publish(model.ActivityEvent{Kind: model.ActivityFailure, PostID: postID, Operation: operation})
	return ue
}

func (a *Aggregator) publish(event model.ActivityEvent) {
	if a.publisher == nil {
		return
	}
	if event.ActorID == "" {
		event.ActorID = a.viewerID()
	}
	event.CreatedAt = a.clock()
	if err := eventbus.PublishJSON(a.publisher, eventbus.TopicActivity, event); err != nil {
		a.log.Warnln("cannot publish activity", err)
	}
}

func (a *Aggregator) notify(recipientID string, actor *model.AuthUser, n model.Notification) {
	if a.notifier == nil || recipientID == "" || recipientID == actor.Id {
		return
	}
	n.ActorID = actor.Id
	n.ActorName = displayName(actor)
	n.CreatedAt = a.clock()
	a.notifier.Notify(recipientID, n)
}

func displayName(u *model.AuthUser) string {
	if name := strings.TrimSpace(u.Metadata["username"]); name != "" {
		return name
	}
	return utils.EmailLocalPart(u.Email, u.Id)
}

func containsLiker(likers []model.Liker, userID string) bool {
	if userID == "" {
		return false
	}
	for _, l := range likers {
		if l.UserID == userID {
			return true
		}
	}
	return false
}
