package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/it35lab/campusfeed/backend"
	"github.com/it35lab/campusfeed/model"
	"github.com/it35lab/campusfeed/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimeout = time.Second

type fakeAuth struct {
	mu sync.Mutex

	session   *model.AuthSession
	probeErr  error
	signInErr error
	// GetSession blocks until release is closed when set.
	release    chan struct{}
	signOutErr error
	signOuts   int

	out chan model.AuthEvent
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{out: make(chan model.AuthEvent)}
}

func (f *fakeAuth) GetSession(ctx context.Context) (*model.AuthSession, error) {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session, f.probeErr
}

func (f *fakeAuth) SignInWithPassword(ctx context.Context, email, password string) (*model.AuthSession, error) {
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	return testSession("B"), nil
}

func (f *fakeAuth) SignOut(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOuts++
	return f.signOutErr
}

func (f *fakeAuth) OnAuthStateChange(ctx context.Context) (<-chan model.AuthEvent, error) {
	return f.out, nil
}

func (f *fakeAuth) emit(t *testing.T, event model.AuthEvent) {
	select {
	case f.out <- event:
	case <-time.After(testTimeout):
		t.Fatal("auth event not consumed")
	}
}

func testSession(name string) *model.AuthSession {
	return &model.AuthSession{
		AccessToken: "token-" + name,
		User:        model.AuthUser{Id: "user-" + name, Email: name + "@nbsc.edu.ph"},
	}
}

func waitReady(t *testing.T, m *Manager) {
	select {
	case <-m.Ready():
	case <-time.After(testTimeout):
		t.Fatal("probe did not resolve")
	}
}

func assertConsistent(t *testing.T, s State) {
	assert.Equal(t, s.User == nil, s.Session == nil)
}

func TestProbeWithSession(t *testing.T) {
	f := newFakeAuth()
	f.session = testSession("A")
	m := NewManager(f, testTimeout)
	defer m.Close()

	waitReady(t, m)
	s := m.Snapshot()
	assertConsistent(t, s)
	assert.Equal(t, StatusAuthenticated, s.Status())
	assert.Equal(t, "user-A", m.CurrentUser().Id)
	assert.False(t, s.Loading)
}

func TestProbeWithoutSession(t *testing.T) {
	m := NewManager(newFakeAuth(), testTimeout)
	defer m.Close()

	waitReady(t, m)
	s := m.Snapshot()
	assertConsistent(t, s)
	assert.Equal(t, StatusAnonymous, s.Status())
	assert.True(t, s.Initialized)
}

func TestProbeFailureDegradesToAnonymous(t *testing.T) {
	f := newFakeAuth()
	f.session = testSession("A")
	f.probeErr = errors.New("network down")
	m := NewManager(f, testTimeout)
	defer m.Close()

	waitReady(t, m)
	s := m.Snapshot()
	assertConsistent(t, s)
	assert.Equal(t, StatusAnonymous, s.Status())
	assert.True(t, s.Initialized)
	assert.False(t, s.Loading)
}

func TestProbeTimeoutDegradesToAnonymous(t *testing.T) {
	f := newFakeAuth()
	f.release = make(chan struct{})
	m := NewManager(f, 10*time.Millisecond)
	defer m.Close()

	waitReady(t, m)
	assert.Equal(t, StatusAnonymous, m.Snapshot().Status())
}

func TestStartsUninitialized(t *testing.T) {
	f := newFakeAuth()
	f.release = make(chan struct{})
	m := NewManager(f, testTimeout)
	defer m.Close()

	s := m.Snapshot()
	assert.Equal(t, StatusUninitialized, s.Status())
	assert.True(t, s.Loading)
	close(f.release)
	waitReady(t, m)
}

func TestNotificationsReplaceSession(t *testing.T) {
	f := newFakeAuth()
	m := NewManager(f, testTimeout)
	defer m.Close()
	waitReady(t, m)

	f.emit(t, model.AuthEvent{Kind: model.AuthEventSignedIn, Session: testSession("A")})
	require.Eventually(t, func() bool { return m.Snapshot().Status() == StatusAuthenticated }, testTimeout, time.Millisecond)

	refreshed := testSession("A")
	refreshed.AccessToken = "token-A2"
	f.emit(t, model.AuthEvent{Kind: model.AuthEventTokenRefreshed, Session: refreshed})
	require.Eventually(t, func() bool {
		s := m.Snapshot()
		return s.Session != nil && s.Session.AccessToken == "token-A2"
	}, testTimeout, time.Millisecond)

	f.emit(t, model.AuthEvent{Kind: model.AuthEventSignedOut})
	require.Eventually(t, func() bool { return m.Snapshot().Status() == StatusAnonymous }, testTimeout, time.Millisecond)
	assertConsistent(t, m.Snapshot())
}

func TestSignOutPropagatesOnBackendError(t *testing.T) {
	f := newFakeAuth()
	f.session = testSession("A")
	f.signOutErr = errors.New("remote sign out failed")
	m := NewManager(f, testTimeout)
	defer m.Close()
	waitReady(t, m)
	require.Equal(t, StatusAuthenticated, m.Snapshot().Status())

	m.SignOut(context.Background())

	s := m.Snapshot()
	assert.Nil(t, s.User)
	assert.Nil(t, s.Session)
	assert.False(t, s.Loading)
	assert.Equal(t, StatusAnonymous, s.Status())
	assert.Equal(t, 1, f.signOuts)
}

func TestNotificationOverridesStaleProbe(t *testing.T) {
	f := newFakeAuth()
	f.session = testSession("A")
	f.release = make(chan struct{})
	m := NewManager(f, testTimeout)
	defer m.Close()

	f.emit(t, model.AuthEvent{Kind: model.AuthEventSignedOut})
	require.Eventually(t, func() bool { return m.Snapshot().Initialized }, testTimeout, time.Millisecond)

	// The probe now resolves with session A, which is stale.
	close(f.release)
	waitReady(t, m)

	s := m.Snapshot()
	assertConsistent(t, s)
	assert.Equal(t, StatusAnonymous, s.Status())
	assert.False(t, s.Loading)
}

func TestLateProbeAfterCloseIsDropped(t *testing.T) {
	f := newFakeAuth()
	f.session = testSession("A")
	f.release = make(chan struct{})
	m := NewManager(f, testTimeout)

	m.Close()
	close(f.release)
	waitReady(t, m)

	s := m.Snapshot()
	assert.Nil(t, s.User)
	assert.False(t, s.Initialized)
}

func TestSignIn(t *testing.T) {
	f := newFakeAuth()
	m := NewManager(f, testTimeout)
	defer m.Close()
	waitReady(t, m)

	require.Nil(t, m.SignIn(context.Background(), "B@nbsc.edu.ph", "secret1"))
	s := m.Snapshot()
	assert.Equal(t, StatusAuthenticated, s.Status())
	assert.Equal(t, "user-B", s.User.Id)
}

func TestSignInInvalidCredentials(t *testing.T) {
	f := newFakeAuth()
	f.signInErr = backend.NewError(backend.CodeInvalidCredentials, "bad password", nil)
	m := NewManager(f, testTimeout)
	defer m.Close()
	waitReady(t, m)

	err := m.SignIn(context.Background(), "B@nbsc.edu.ph", "wrong")
	require.NotNil(t, err)
	assert.Equal(t, utils.IdentityError, utils.KindOf(err))
	assert.Equal(t, backend.MessageInvalidCredentials, utils.UserMessage(err))

	s := m.Snapshot()
	assert.Equal(t, StatusAnonymous, s.Status())
	assert.False(t, s.Loading)
}

func TestWatch(t *testing.T) {
	f := newFakeAuth()
	m := NewManager(f, testTimeout)
	defer m.Close()
	waitReady(t, m)

	ctx, cancel := context.WithCancel(context.Background())
	states := m.Watch(ctx)
	first := <-states
	assert.Equal(t, StatusAnonymous, first.Status())

	f.emit(t, model.AuthEvent{Kind: model.AuthEventSignedIn, Session: testSession("A")})
	require.Eventually(t, func() bool {
		select {
		case s := <-states:
			return s.Status() == StatusAuthenticated
		default:
			return false
		}
	}, testTimeout, time.Millisecond)

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-states:
			return !ok
		default:
			return false
		}
	}, testTimeout, time.Millisecond)
}

func TestSnapshotIsACopy(t *testing.T) {
	f := newFakeAuth()
	f.session = testSession("A")
	m := NewManager(f, testTimeout)
	defer m.Close()
	waitReady(t, m)

	s := m.Snapshot()
	s.User.Id = "mutated"
	s.Session.AccessToken = "mutated"
	assert.Equal(t, "user-A", m.CurrentUser().Id)
	assert.Equal(t, "token-A", m.Snapshot().Session.AccessToken)
}

func TestSnapshotCopiesMetadata(t *testing.T) {
	f := newFakeAuth()
	session := testSession("A")
	session.User.Metadata = map[string]string{"username": "juan"}
	f.session = session
	m := NewManager(f, testTimeout)
	defer m.Close()
	waitReady(t, m)

	// The backend's copy is not shared either.
	session.User.Metadata["username"] = "changed"
	assert.Equal(t, "juan", m.CurrentUser().Metadata["username"])

	s := m.Snapshot()
	s.User.Metadata["username"] = "mutated"
	assert.Equal(t, "juan", m.CurrentUser().Metadata["username"])
	assert.Equal(t, "juan", m.Snapshot().Session.User.Metadata["username"])
}

func TestSignOutBeforeProbeResolves(t *testing.T) {
	f := newFakeAuth()
	f.session = testSession("A")
	f.release = make(chan struct{})
	m := NewManager(f, testTimeout)
	defer m.Close()

	m.SignOut(context.Background())
	s := m.Snapshot()
	assert.True(t, s.Initialized)
	assert.Equal(t, StatusAnonymous, s.Status())

	close(f.release)
	waitReady(t, m)
	s = m.Snapshot()
	assert.True(t, s.Initialized)
	assert.False(t, s.Loading)
	assert.Nil(t, s.User)
	assert.Equal(t, StatusAnonymous, s.Status())
	assertConsistent(t, s)
}
