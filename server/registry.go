package server

import (
	"context"
	"sync"
	"time"

	"github.com/it35lab/campusfeed/app_config"
	"github.com/it35lab/campusfeed/auth"
	"github.com/it35lab/campusfeed/eventbus"
	"github.com/it35lab/campusfeed/feed"
	"github.com/it35lab/campusfeed/file_store"
	"github.com/it35lab/campusfeed/notification"
	"github.com/it35lab/campusfeed/profile"
	"github.com/it35lab/campusfeed/session"
	"github.com/it35lab/campusfeed/utils"
	Logger "github.com/it35lab/campusfeed/utils/log"
)

// Store is every table operation the per-client components need,
// implemented by store.Store and store.MemoryStore.
type Store interface {
	feed.Store
	profile.Store
	notification.Store
}

// Deps are the process wide backends shared by all clients.
type Deps struct {
	Provider auth.Provider
	Sessions auth.SessionStore
	Bus      eventbus.Bus
	Store    Store
	Objects  file_store.ObjectStore
	Status   utils.StatusStore
	Signals  *notification.SignalChannels
	Config   app_config.ServerAppConfig
}

// Client bundles the components of one browser or device.
type Client struct {
	Key           string
	Auth          *auth.Client
	Session       *session.Manager
	Feed          *feed.Aggregator
	Profile       *profile.Service
	Notifications *notification.Aggregator

	lastSeen time.Time
	// Open subscriptions, a pinned client is never swept.
	pins int
}

// Registry creates clients on first use and drops them once idle.
type Registry struct {
	deps Deps

	mu      sync.Mutex
	clients map[string]*Client
	clock   func() time.Time
}

func NewRegistry(deps Deps) *Registry {
	return &Registry{
		deps:    deps,
		clients: make(map[string]*Client),
		clock:   time.Now,
	}
}

// Get returns the client of key, creating it when missing.
func (r *Registry) Get(key string) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(key)
}

func (r *Registry) getLocked(key string) *Client {
	c, ok := r.clients[key]
	if !ok {
		c = r.newClient(key)
		r.clients[key] = c
	}
	c.lastSeen = r.clock()
	return c
}

// Pin returns the client of key and keeps it out of Sweep until the
// returned release is called.
func (r *Registry) Pin(key string) (*Client, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.getLocked(key)
	c.pins++
	var once sync.Once
	release := func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			c.pins--
			c.lastSeen = r.clock()
		})
	}
	return c, release
}

func (r *Registry) newClient(key string) *Client {
	cfg := r.deps.Config
	authClient := auth.NewClient(key, r.deps.Provider, r.deps.Sessions, r.deps.Bus, cfg.SessionRefreshMargin())
	manager := session.NewManager(authClient, cfg.BackendTimeout())

	aggregator := feed.NewAggregator(r.deps.Store, manager, r.deps.Objects, feed.Config{
		Timeout:         cfg.BackendTimeout(),
		PostImageBucket: cfg.POST_IMAGE_BUCKET,
	})
	aggregator.SetPublisher(r.deps.Bus)
	if r.deps.Signals != nil {
		aggregator.SetNotifier(r.deps.Signals)
	}

	return &Client{
		Key:     key,
		Auth:    authClient,
		Session: manager,
		Feed:    aggregator,
		Profile: profile.NewService(r.deps.Store, authClient, manager, r.deps.Objects, profile.Config{
			Timeout:        cfg.BackendTimeout(),
			AvatarBucket:   cfg.AVATAR_BUCKET,
			EmailDomain:    cfg.REGISTRATION_EMAIL_DOMAIN,
			MaxAvatarBytes: cfg.MAX_AVATAR_BYTES,
		}),
		Notifications: notification.NewAggregator(r.deps.Store, r.deps.Status, manager, notification.Config{
			Timeout: cfg.BackendTimeout(),
			Limit:   cfg.NOTIFICATION_LIMIT,
		}),
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Sweep closes and drops clients idle for longer than the configured TTL.
// Clients with an open subscription are kept.
// The persisted session survives, the client is rebuilt on its next request.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	deadline := r.clock().Add(-r.deps.Config.ClientIdleTtl())
	dropped := 0
	for key, c := range r.clients {
		if c.pins == 0 && c.lastSeen.Before(deadline) {
			c.Session.Close()
			delete(r.clients, key)
			dropped++
		}
	}
	return dropped
}

// Close closes every client.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, c := range r.clients {
		c.Session.Close()
		delete(r.clients, key)
	}
}

// RegistrySweeper is an engine module that sweeps the registry
// periodically.
type RegistrySweeper struct {
	Registry *Registry
	Interval time.Duration
}

func (s *RegistrySweeper) RunModule(ctx context.Context) error {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.Registry.Sweep(); n > 0 {
				Logger.Log.Infof("dropped %d idle clients", n)
			}
		}
	}
}

func (s *RegistrySweeper) Name() string {
	return "registry_sweeper"
}
