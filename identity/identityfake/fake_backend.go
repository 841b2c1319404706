package identityfake

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/jrsteele09/fixit-auth/identity"
	"github.com/jrsteele09/fixit-auth/internal/errors"
	"github.com/jrsteele09/fixit-auth/session"
)

var _ identity.Backend = (*FakeBackend)(nil)

// ErrInvalidGrant is returned for unknown or already used codes.
var ErrInvalidGrant = errors.Wrapf(errors.ErrInvalidToken, "invalid_grant")

// FakeBackend is an in-memory identity backend. Codes are single use, like a real one.
type FakeBackend struct {
	lock sync.RWMutex

	codes   map[string]*session.Session // code -> session it yields
	tokens  map[string]string           // access token -> user id
	current *session.Session

	exchangeCalls   map[string]int
	lastState       string
	setSessionCalls int
	getSessionCalls int
	signOutCalls    int
	signOutScopes   []identity.SignOutScope

	listeners map[int]func(identity.Event)
	nextID    int

	// AuthURLErr fails AuthorizationURL when set.
	AuthURLErr error
	// ExchangeGate, when set, blocks every exchange until it is closed or receives.
	ExchangeGate chan struct{}
	// OnGetSession overrides GetSession. call counts from 1.
	OnGetSession func(call int) (*session.Session, error)
}

func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		codes:         make(map[string]*session.Session),
		tokens:        make(map[string]string),
		exchangeCalls: make(map[string]int),
		listeners:     make(map[int]func(identity.Event)),
	}
}

// AddCode registers a code that exchanges into sess exactly once.
func (f *FakeBackend) AddCode(code string, sess *session.Session) {
	f.lock.Lock()
	defer f.lock.Unlock()
	c := *sess
	f.codes[code] = &c
}

// AddToken registers an access token that SetSession accepts for userID.
func (f *FakeBackend) AddToken(accessToken, userID string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.tokens[accessToken] = userID
}

// SetCurrent replaces the backend session without emitting an event.
func (f *FakeBackend) SetCurrent(sess *session.Session) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.current = sess
}

// Emit delivers ev to every listener, as if the backend had observed it itself.
func (f *FakeBackend) Emit(ev identity.Event) {
	f.lock.Lock()
	if ev.Kind == identity.EventSignedOut {
		f.current = nil
	} else if ev.Session != nil {
		c := *ev.Session
		f.current = &c
	}
	f.lock.Unlock()
	f.emit(ev)
}

func (f *FakeBackend) ExchangeCalls(code string) int {
	f.lock.RLock()
	defer f.lock.RUnlock()
	return f.exchangeCalls[code]
}

// LastExchangeState returns the state passed with the most recent code exchange.
func (f *FakeBackend) LastExchangeState() string {
	f.lock.RLock()
	defer f.lock.RUnlock()
	return f.lastState
}

func (f *FakeBackend) TotalExchangeCalls() int {
	f.lock.RLock()
	defer f.lock.RUnlock()
	total := 0
	for _, n := range f.exchangeCalls {
		total += n
	}
	return total
}

func (f *FakeBackend) SetSessionCalls() int {
	f.lock.RLock()
	defer f.lock.RUnlock()
	return f.setSessionCalls
}

func (f *FakeBackend) GetSessionCalls() int {
	f.lock.RLock()
	defer f.lock.RUnlock()
	return f.getSessionCalls
}

func (f *FakeBackend) SignOutCalls() int {
	f.lock.RLock()
	defer f.lock.RUnlock()
	return f.signOutCalls
}

func (f *FakeBackend) SignOutScopes() []identity.SignOutScope {
	f.lock.RLock()
	defer f.lock.RUnlock()
	return append([]identity.SignOutScope(nil), f.signOutScopes...)
}

func (f *FakeBackend) AuthorizationURL(_ context.Context, provider, redirectURL string) (string, error) {
	if f.AuthURLErr != nil {
		return "", f.AuthURLErr
	}
	q := url.Values{}
	q.Set("provider", provider)
	q.Set("redirect_to", redirectURL)
	return "https://identity.fake/authorize?" + q.Encode(), nil
}

func (f *FakeBackend) GetSession(_ context.Context) (*session.Session, error) {
	f.lock.Lock()
	f.getSessionCalls++
	call := f.getSessionCalls
	hook := f.OnGetSession
	current := f.current
	f.lock.Unlock()

	if hook != nil {
		return hook(call)
	}
	if current == nil {
		return nil, nil
	}
	c := *current
	return &c, nil
}

func (f *FakeBackend) ExchangeCodeForSession(ctx context.Context, code, state string) (*session.Session, error) {
	f.lock.Lock()
	f.exchangeCalls[code]++
	f.lastState = state
	gate := f.ExchangeGate
	f.lock.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.lock.Lock()
	sess, ok := f.codes[code]
	if !ok {
		f.lock.Unlock()
		return nil, ErrInvalidGrant
	}
	delete(f.codes, code)
	f.current = sess
	c := *sess
	f.lock.Unlock()

	f.emit(identity.Event{Kind: identity.EventSignedIn, Session: &c})
	return &c, nil
}

func (f *FakeBackend) SetSession(_ context.Context, accessToken, refreshToken string) (*session.Session, error) {
	f.lock.Lock()
	f.setSessionCalls++
	userID, ok := f.tokens[accessToken]
	if !ok {
		f.lock.Unlock()
		return nil, errors.Wrapf(errors.ErrInvalidToken, "unknown access token")
	}
	sess := &session.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		UserID:       userID,
		ExpiresAt:    time.Now().Add(time.Hour).Truncate(time.Second),
	}
	f.current = sess
	c := *sess
	f.lock.Unlock()

	f.emit(identity.Event{Kind: identity.EventSignedIn, Session: &c})
	return &c, nil
}

func (f *FakeBackend) SignOut(_ context.Context, scope identity.SignOutScope) error {
	f.lock.Lock()
	f.signOutCalls++
	f.signOutScopes = append(f.signOutScopes, scope)
	if f.current == nil {
		f.lock.Unlock()
		return errors.ErrAuthSessionMissing
	}
	f.current = nil
	f.lock.Unlock()

	f.emit(identity.Event{Kind: identity.EventSignedOut})
	return nil
}

func (f *FakeBackend) OnSessionChange(listener func(identity.Event)) func() {
	f.lock.Lock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = listener
	f.lock.Unlock()

	return func() {
		f.lock.Lock()
		defer f.lock.Unlock()
		delete(f.listeners, id)
	}
}

func (f *FakeBackend) emit(ev identity.Event) {
	f.lock.RLock()
	listeners := make([]func(identity.Event), 0, len(f.listeners))
	for id := 0; id < f.nextID; id++ {
		if l, ok := f.listeners[id]; ok {
			listeners = append(listeners, l)
		}
	}
	f.lock.RUnlock()

	for _, l := range listeners {
		l(ev)
	}
}
