// Package notification aggregates activity on the viewer's content (likes,
// comments and replies by other users) and pushes it live to the author's
// open connections.
package notification

import (
	"context"
	"sort"
	"time"

	"github.com/it35lab/campusfeed/backend"
	"github.com/it35lab/campusfeed/model"
	"github.com/it35lab/campusfeed/utils"
	Logger "github.com/it35lab/campusfeed/utils/log"
	"github.com/sirupsen/logrus"
)

const (
	DefaultLimit = 50

	MessageLoadFailed = "Failed to load notifications."
	MessageMarkFailed = "Failed to update notifications."
)

// Store is the activity query side of the tables, implemented by
// store.Store and store.MemoryStore. Both calls return newest first.
type Store interface {
	LikeActivity(ctx context.Context, authorID string, since time.Time, limit int) ([]model.Notification, error)
	CommentActivity(ctx context.Context, authorID string, since time.Time, limit int) ([]model.Notification, error)
}

type Viewer interface {
	CurrentUser() *model.AuthUser
}

type Config struct {
	Timeout time.Duration
	// Used when List is called without a limit.
	Limit int
}

type Aggregator struct {
	store  Store
	status utils.StatusStore
	viewer Viewer
	config Config
	log    *logrus.Entry
}

func NewAggregator(store Store, status utils.StatusStore, viewer Viewer, config Config) *Aggregator {
	if config.Limit <= 0 {
		config.Limit = DefaultLimit
	}
	return &Aggregator{
		store:  store,
		status: status,
		viewer: viewer,
		config: config,
		log:    Logger.Log.WithField("component", "notification_aggregator"),
	}
}

// List returns activity after since, newest first, at most limit entries,
// each annotated with the viewer's read status.
func (a *Aggregator) List(ctx context.Context, since time.Time, limit int) ([]model.Notification, error) {
	viewer, err := a.requireViewer()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = a.config.Limit
	}

	ctx, cancel := backend.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	likes, err := a.store.LikeActivity(ctx, viewer.Id, since, limit)
	if err != nil {
		return nil, a.fail(viewer.Id, err, MessageLoadFailed)
	}
	comments, err := a.store.CommentActivity(ctx, viewer.Id, since, limit)
	if err != nil {
		return nil, a.fail(viewer.Id, err, MessageLoadFailed)
	}

	notifications := mergeNewestFirst(likes, comments)
	if len(notifications) > limit {
		notifications = notifications[:limit]
	}
	if len(notifications) == 0 {
		return notifications, nil
	}

	ids := make([]string, 0, len(notifications))
	for _, n := range notifications {
		ids = append(ids, n.Id)
	}
	read, err := a.status.GetItemsReadStatus(ctx, ids, viewer.Id)
	if err != nil {
		// Still worth showing, everything just looks unread.
		a.log.WithField("user_id", viewer.Id).Warnln("cannot load read status", err)
		return notifications, nil
	}
	for i := range notifications {
		notifications[i].Read = read[i]
	}
	return notifications, nil
}

// MarkRead sets the read status of notifications for the viewer.
func (a *Aggregator) MarkRead(ctx context.Context, ids []string, read bool) error {
	viewer, err := a.requireViewer()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	ctx, cancel := backend.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	if err := a.status.SetItemsReadStatus(ctx, ids, viewer.Id, read); err != nil {
		return a.fail(viewer.Id, err, MessageMarkFailed)
	}
	return nil
}

// mergeNewestFirst merges two newest-first lists. Equal timestamps keep
// likes before comments.
func mergeNewestFirst(likes, comments []model.Notification) []model.Notification {
	merged := make([]model.Notification, 0, len(likes)+len(comments))
	merged = append(merged, likes...)
	merged = append(merged, comments...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})
	return merged
}

func (a *Aggregator) fail(userID string, err error, message string) error {
	ue := backend.ToUserError(err, message)
	a.log.WithFields(logrus.Fields{
		"user_id": userID,
		"code":    backend.CodeOf(err),
	}).Errorln(ue.Message, err)
	return ue
}

func (a *Aggregator) requireViewer() (*model.AuthUser, error) {
	if a.viewer != nil {
		if u := a.viewer.CurrentUser(); u != nil {
			return u, nil
		}
	}
	return nil, utils.NewUserError(utils.IdentityError, "Please sign in to continue.", nil)
}
