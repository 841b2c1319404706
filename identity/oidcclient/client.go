package oidcclient

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/fixit-auth/flowstate"
	"github.com/jrsteele09/fixit-auth/identity"
	"github.com/jrsteele09/fixit-auth/internal/config"
	"github.com/jrsteele09/fixit-auth/internal/errors"
	"github.com/jrsteele09/fixit-auth/internal/httpclient"
	"github.com/jrsteele09/fixit-auth/internal/logging"
	"github.com/jrsteele09/fixit-auth/session"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

const (
	// expiryLeeway refreshes a session slightly before the access token lapses.
	expiryLeeway = 10 * time.Second
	// flowTTL bounds how long a pending PKCE verifier is kept.
	flowTTL = 30 * time.Minute
)

// Storage persists what the client must remember across restarts.
type Storage interface {
	LoadSession() (*session.Session, error)
	SaveSession(sess *session.Session) error
	DeleteSession() error
	flowstate.Repo
}

// Client is an identity.Backend for any OIDC issuer supporting the
// authorization code flow with PKCE.
type Client struct {
	oauth         oauth2.Config
	revocationURL string
	httpClient    *http.Client
	storage       Storage
	nowTime       func() time.Time
	log           zerolog.Logger

	mu sync.Mutex // serialises session reads that may refresh and session writes

	listenersMu sync.RWMutex
	listeners   map[int]func(identity.Event)
	nextID      int
}

var _ identity.Backend = (*Client)(nil)

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(cl *Client) {
		cl.nowTime = nowFunc
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(cl *Client) {
		cl.log = l
	}
}

// New discovers the issuer's endpoints and returns a ready client.
func New(ctx context.Context, cfg config.IdentityConfig, storage Storage, options ...Option) (*Client, error) {
	if cfg == nil || cfg.GetIdentityBaseURL() == "" {
		return nil, errors.Wrapf(errors.ErrConfiguration, "[oidcclient.New] identity base url is required")
	}
	if cfg.GetIdentityClientID() == "" {
		return nil, errors.Wrapf(errors.ErrConfiguration, "[oidcclient.New] identity client id is required")
	}
	if storage == nil {
		return nil, errors.New("[oidcclient.New] storage is required")
	}

	c := &Client{
		storage:   storage,
		nowTime:   time.Now,
		log:       logging.Component("oidcclient"),
		listeners: make(map[int]func(identity.Event)),
	}
	for _, opt := range options {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = httpclient.New(cfg.GetIdentityHTTPTimeout(), httpclient.WithMaxRetries(cfg.GetIdentityMaxRetries()))
	}

	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, c.httpClient), cfg.GetIdentityBaseURL())
	if err != nil {
		return nil, errors.Wrapf(errors.Join(errors.ErrConfiguration, err), "[oidcclient.New] discovery")
	}

	var claims struct {
		RevocationEndpoint string `json:"revocation_endpoint"`
	}
	if err := provider.Claims(&claims); err != nil {
		return nil, errors.Wrapf(err, "[oidcclient.New] discovery claims")
	}
	c.revocationURL = claims.RevocationEndpoint

	endpoint := provider.Endpoint()
	endpoint.AuthStyle = oauth2.AuthStyleInParams // public client, no secret
	c.oauth = oauth2.Config{
		ClientID: cfg.GetIdentityClientID(),
		Endpoint: endpoint,
		Scopes:   cfg.GetIdentityScopes(),
	}
	return c, nil
}

func (c *Client) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// tokenContext is httpContext for token endpoint requests, which redeem
// single-use grants and get exactly one attempt.
func (c *Client) tokenContext(ctx context.Context) context.Context {
	return httpclient.SingleAttempt(c.httpContext(ctx))
}

func (c *Client) configFor(redirectURL string) *oauth2.Config {
	conf := c.oauth
	conf.RedirectURL = redirectURL
	return &conf
}

// OnSessionChange registers listener for session events.
func (c *Client) OnSessionChange(listener func(identity.Event)) func() {
	c.listenersMu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = listener
	c.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.listenersMu.Lock()
			defer c.listenersMu.Unlock()
			delete(c.listeners, id)
		})
	}
}

// emit must be called without c.mu held; listeners may call back into the client.
func (c *Client) emit(ev identity.Event) {
	c.listenersMu.RLock()
	listeners := make([]func(identity.Event), 0, len(c.listeners))
	for id := 0; id < c.nextID; id++ {
		if l, ok := c.listeners[id]; ok {
			listeners = append(listeners, l)
		}
	}
	c.listenersMu.RUnlock()

	for _, l := range listeners {
		l(ev)
	}
}
