package identity

import (
	"context"

	"github.com/jrsteele09/fixit-auth/session"
)

//go:generate mockgen -source=backend.go -destination=identitymock/mock_backend.go -package=identitymock

// SignOutScope selects which sessions a sign-out ends.
type SignOutScope string

const (
	// ScopeGlobal ends every session of the user at the identity backend.
	ScopeGlobal SignOutScope = "global"
	// ScopeLocal only forgets the session held by this client.
	ScopeLocal SignOutScope = "local"
)

// EventKind describes a session change observed by the backend client.
type EventKind string

const (
	EventSignedIn       EventKind = "SIGNED_IN"
	EventSignedOut      EventKind = "SIGNED_OUT"
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
)

// Event is delivered to OnSessionChange listeners. Session is nil for EventSignedOut.
type Event struct {
	Kind    EventKind
	Session *session.Session
}

// Backend is the identity backend as consumed by the reconciliation core.
// Token validation and refresh policy live behind it.
type Backend interface {
	// AuthorizationURL starts a federated sign-in with the given provider and
	// returns the URL of the authorization surface.
	AuthorizationURL(ctx context.Context, provider, redirectURL string) (string, error)

	// GetSession returns the session currently held by the backend client, or nil.
	GetSession(ctx context.Context) (*session.Session, error)

	// ExchangeCodeForSession trades a one-time authorization code for a session.
	// state is the callback's state parameter and may be empty.
	ExchangeCodeForSession(ctx context.Context, code, state string) (*session.Session, error)

	// SetSession installs an access/refresh token pair as the active session.
	SetSession(ctx context.Context, accessToken, refreshToken string) (*session.Session, error)

	// SignOut ends the session. It returns errors.ErrAuthSessionMissing when there is none.
	SignOut(ctx context.Context, scope SignOutScope) error

	// OnSessionChange registers a listener and returns its unsubscribe function.
	OnSessionChange(listener func(Event)) (unsubscribe func())
}
