// Package session owns "who is logged in right now" for one client. A
// Manager reconciles its initial session probe with the auth state
// notifications of the client and mediates sign in and sign out.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/it35lab/campusfeed/backend"
	"github.com/it35lab/campusfeed/model"
	"github.com/it35lab/campusfeed/utils"
	Logger "github.com/it35lab/campusfeed/utils/log"
	"github.com/sirupsen/logrus"
)

// AuthBackend is the auth surface a Manager drives, implemented by
// auth.Client.
type AuthBackend interface {
	GetSession(ctx context.Context) (*model.AuthSession, error)
	SignInWithPassword(ctx context.Context, email, password string) (*model.AuthSession, error)
	SignOut(ctx context.Context) error
	OnAuthStateChange(ctx context.Context) (<-chan model.AuthEvent, error)
}

type Status string

const (
	StatusUninitialized Status = "UNINITIALIZED"
	StatusAnonymous     Status = "ANONYMOUS"
	StatusAuthenticated Status = "AUTHENTICATED"
	StatusTransitioning Status = "TRANSITIONING"
)

// State is a snapshot of a Manager. User is nil iff Session is nil.
type State struct {
	User        *model.AuthUser    `json:"user"`
	Session     *model.AuthSession `json:"session"`
	Loading     bool               `json:"loading"`
	Initialized bool               `json:"initialized"`
}

func (s State) Status() Status {
	switch {
	case !s.Initialized:
		return StatusUninitialized
	case s.Loading:
		return StatusTransitioning
	case s.User == nil:
		return StatusAnonymous
	default:
		return StatusAuthenticated
	}
}

func (s State) clone() State {
	if s.Session != nil {
		session := s.Session.Clone()
		s.Session = &session
		s.User = &session.User
	}
	return s
}

type Manager struct {
	backend AuthBackend
	timeout time.Duration
	log     *logrus.Entry

	mu    sync.Mutex
	state State
	// Set once Close is called, every late completion is dropped.
	closed bool
	// Set by the first notification or local sign in/out. From then on the
	// initial probe result is stale.
	superseded bool
	watchers   map[int]chan State
	nextWatch  int

	ctx       context.Context
	cancel    context.CancelFunc
	ready     chan struct{}
	readyOnce sync.Once
}

// NewManager subscribes to auth notifications and starts the initial
// session probe. Every backend call is bounded by timeout.
func NewManager(authBackend AuthBackend, timeout time.Duration) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		backend:  authBackend,
		timeout:  timeout,
		log:      Logger.Log.WithField("component", "session_manager"),
		state:    State{Loading: true},
		watchers: make(map[int]chan State),
		ctx:      ctx,
		cancel:   cancel,
		ready:    make(chan struct{}),
	}

	events, err := authBackend.OnAuthStateChange(ctx)
	if err != nil {
		m.log.Errorln("cannot subscribe to auth state changes", err)
	} else {
		go m.listen(events)
	}
	go m.probe()
	return m
}

func (m *Manager) probe() {
	defer m.readyOnce.Do(func() { close(m.ready) })
	defer m.recoverPanic("probe")

	ctx, cancel := backend.WithTimeout(m.ctx, m.timeout)
	defer cancel()
	session, err := m.backend.GetSession(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if m.superseded {
		m.log.Debugln("drop initial session probe, a newer auth state exists")
		if !m.state.Initialized {
			m.state.Initialized = true
			m.broadcast()
		}
		return
	}
	if err != nil {
		m.log.Warnln("session probe failed, continue as anonymous", err)
		session = nil
	}
	m.setSession(session)
	m.state.Loading = false
	m.state.Initialized = true
	m.broadcast()
}

func (m *Manager) listen(events <-chan model.AuthEvent) {
	defer m.recoverPanic("listener")
	for {
		select {
		case <-m.ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			m.apply(event)
		}
	}
}

func (m *Manager) apply(event model.AuthEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	switch event.Kind {
	case model.AuthEventSignedIn, model.AuthEventTokenRefreshed:
		m.setSession(event.Session)
	case model.AuthEventSignedOut:
		m.setSession(nil)
	default:
		m.log.Warnln("ignore unknown auth event", event.Kind)
		return
	}
	m.superseded = true
	m.state.Loading = false
	m.state.Initialized = true
	m.broadcast()
}

// SignIn authenticates with email and password. The returned error is a
// *utils.UserError, the state is left as it was on failure.
func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	wasLoading, ok := m.begin()
	if !ok {
		return utils.NewUserError(utils.TransientError, utils.GenericFailureMessage, nil)
	}

	ctx, cancel := backend.WithTimeout(ctx, m.timeout)
	defer cancel()
	session, err := m.backend.SignInWithPassword(ctx, email, password)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	if err != nil {
		m.state.Loading = wasLoading
		m.broadcast()
		ue := backend.ToUserError(err, "Failed to sign in.")
		m.log.WithField("email", email).Warnln("sign in failed", err)
		return ue
	}
	m.superseded = true
	m.state.Loading = false
	m.state.Initialized = true
	m.setSession(session)
	m.broadcast()
	return nil
}

// SignOut revokes the session. Credentials are dropped locally whether or
// not the backend call succeeds, a failure is only logged.
func (m *Manager) SignOut(ctx context.Context) {
	if _, ok := m.begin(); !ok {
		return
	}

	ctx, cancel := backend.WithTimeout(ctx, m.timeout)
	defer cancel()
	err := m.backend.SignOut(ctx)
	if err != nil {
		m.log.Warnln("remote sign out failed, clear local session anyway", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.superseded = true
	m.setSession(nil)
	m.state.Loading = false
	m.state.Initialized = true
	m.broadcast()
}

// begin marks an operation in flight and returns the previous loading flag,
// ok is false when the manager is closed.
func (m *Manager) begin() (wasLoading bool, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, false
	}
	wasLoading = m.state.Loading
	m.state.Loading = true
	m.broadcast()
	return wasLoading, true
}

// setSession must be called with m.mu held.
func (m *Manager) setSession(session *model.AuthSession) {
	if session == nil {
		m.state.Session = nil
		m.state.User = nil
		return
	}
	s := session.Clone()
	m.state.Session = &s
	m.state.User = &s.User
}

func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// CurrentUser returns the signed in user, nil when anonymous.
func (m *Manager) CurrentUser() *model.AuthUser {
	return m.Snapshot().User
}

// Ready is closed once the initial probe has resolved, whether its result
// was applied or not.
func (m *Manager) Ready() <-chan struct{} {
	return m.ready
}

// Watch delivers the current state and every later change until ctx is
// done or the manager is closed. A slow reader only sees the latest state.
func (m *Manager) Watch(ctx context.Context) <-chan State {
	ch := make(chan State, 1)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		close(ch)
		return ch
	}
	id := m.nextWatch
	m.nextWatch++
	m.watchers[id] = ch
	ch <- m.state.clone()

	go func() {
		select {
		case <-ctx.Done():
		case <-m.ctx.Done():
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.watchers[id]; ok {
			delete(m.watchers, id)
			close(ch)
		}
	}()
	return ch
}

// broadcast must be called with m.mu held.
func (m *Manager) broadcast() {
	for _, ch := range m.watchers {
		s := m.state.clone()
		select {
		case ch <- s:
		default:
			// Replace the undelivered state.
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}
}

// Close unsubscribes from auth notifications. Late probe or backend
// completions no longer change the state.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.cancel()
	for id, ch := range m.watchers {
		delete(m.watchers, id)
		close(ch)
	}
}

func (m *Manager) recoverPanic(where string) {
	if r := recover(); r != nil {
		m.log.Errorf("recovered from panic in %s: %v", where, r)
	}
}
