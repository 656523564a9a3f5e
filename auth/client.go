package auth

import (
	"context"
	"encoding/json"
	"time"

	"github.com/it35lab/campusfeed/backend"
	"github.com/it35lab/campusfeed/eventbus"
	"github.com/it35lab/campusfeed/model"
	Logger "github.com/it35lab/campusfeed/utils/log"
	"github.com/pkg/errors"
)

// Client is the auth surface seen by one client (browser or device). It
// persists that client's session and publishes every change of it on the
// client's auth state topic.
type Client struct {
	key      string
	provider Provider
	sessions SessionStore
	bus      eventbus.Bus

	// Sessions expiring within this margin are refreshed on read.
	refreshMargin time.Duration
	clock         func() time.Time
}

func NewClient(clientKey string, provider Provider, sessions SessionStore, bus eventbus.Bus, refreshMargin time.Duration) *Client {
	return &Client{
		key:           clientKey,
		provider:      provider,
		sessions:      sessions,
		bus:           bus,
		refreshMargin: refreshMargin,
		clock:         time.Now,
	}
}

func (c *Client) Key() string {
	return c.key
}

// GetSession returns the persisted session, refreshing it first when it is
// about to expire. It returns nil and no error when there is no session.
func (c *Client) GetSession(ctx context.Context) (*model.AuthSession, error) {
	session, err := c.sessions.Load(ctx, c.key)
	if err != nil || session == nil {
		return nil, err
	}
	if !session.Expired(c.clock(), c.refreshMargin) {
		return session, nil
	}

	refreshed, err := c.provider.Refresh(ctx, session)
	if err != nil {
		if backend.IsCode(err, backend.CodeSessionExpired) {
			c.clear(ctx)
		}
		return nil, err
	}
	if err := c.sessions.Save(ctx, c.key, refreshed); err != nil {
		return nil, err
	}
	c.publish(model.AuthEvent{Kind: model.AuthEventTokenRefreshed, Session: refreshed})
	return refreshed, nil
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*model.AuthSession, error) {
	session, err := c.provider.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := c.sessions.Save(ctx, c.key, session); err != nil {
		return nil, err
	}
	c.publish(model.AuthEvent{Kind: model.AuthEventSignedIn, Session: session})
	return session, nil
}

// SignUp creates an identity. It does not sign the client in.
func (c *Client) SignUp(ctx context.Context, input SignUpInput) (*model.AuthUser, error) {
	return c.provider.SignUp(ctx, input)
}

// SignOut revokes the session at the provider. The local session is dropped
// and SIGNED_OUT is published even when the provider call fails.
func (c *Client) SignOut(ctx context.Context) error {
	session, err := c.sessions.Load(ctx, c.key)
	if err == nil && session != nil {
		err = c.provider.SignOut(ctx, session.AccessToken)
	}
	c.clear(ctx)
	return err
}

// VerifyPassword checks email and password without touching the client's
// session.
func (c *Client) VerifyPassword(ctx context.Context, email, password string) error {
	_, err := c.provider.SignIn(ctx, email, password)
	return err
}

// OnAuthStateChange delivers auth events of this client until ctx is done,
// then closes the returned channel.
func (c *Client) OnAuthStateChange(ctx context.Context) (<-chan model.AuthEvent, error) {
	messages, err := c.bus.Subscribe(ctx, eventbus.AuthStateTopic(c.key))
	if err != nil {
		return nil, errors.Wrap(err, "subscribe auth state")
	}

	events := make(chan model.AuthEvent)
	go func() {
		defer close(events)
		for msg := range messages {
			msg.Ack()
			var event model.AuthEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				Logger.Log.WithField("client", c.key).Errorln("drop malformed auth event", err)
				continue
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

func (c *Client) clear(ctx context.Context) {
	if err := c.sessions.Delete(ctx, c.key); err != nil {
		Logger.Log.WithField("client", c.key).Errorln("cannot delete persisted session", err)
	}
	c.publish(model.AuthEvent{Kind: model.AuthEventSignedOut})
}

func (c *Client) publish(event model.AuthEvent) {
	if err := eventbus.PublishJSON(c.bus, eventbus.AuthStateTopic(c.key), event); err != nil {
		Logger.Log.WithField("client", c.key).Errorln("cannot publish auth event", err)
	}
}
