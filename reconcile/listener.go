package reconcile

import (
	"context"
	"sync"

	"github.com/jrsteele09/fixit-auth/callback"
	"github.com/jrsteele09/fixit-auth/deeplink"
	"github.com/jrsteele09/fixit-auth/exchange"
	"github.com/jrsteele09/fixit-auth/identity"
	"github.com/jrsteele09/fixit-auth/internal/errors"
	"github.com/jrsteele09/fixit-auth/internal/logging"
	"github.com/jrsteele09/fixit-auth/session"
	"github.com/rs/zerolog"
)

const defaultLinkBuffer = 8

// Listener handles redirects that arrive outside an active attempt, such as a
// cold start from a callback link, and mirrors backend sign-outs into the store.
// It shares the Exchanger with the Orchestrator so a code is exchanged once
// whichever path sees it first.
type Listener struct {
	source    deeplink.Source
	backend   identity.Backend
	exchanger *exchange.Exchanger
	store     *session.Store
	buffer    int
	log       zerolog.Logger
}

type ListenerOption func(*Listener)

func WithListenerLogger(l zerolog.Logger) ListenerOption {
	return func(li *Listener) {
		li.log = l
	}
}

// WithLinkBuffer sets how many undelivered redirects are held.
func WithLinkBuffer(n int) ListenerOption {
	return func(li *Listener) {
		li.buffer = n
	}
}

func NewListener(source deeplink.Source, backend identity.Backend, exchanger *exchange.Exchanger, store *session.Store, options ...ListenerOption) (*Listener, error) {
	if source == nil || backend == nil || exchanger == nil || store == nil {
		return nil, errors.New("[reconcile.NewListener] source, backend, exchanger and store are required")
	}
	l := &Listener{
		source:    source,
		backend:   backend,
		exchanger: exchanger,
		store:     store,
		buffer:    defaultLinkBuffer,
		log:       logging.Component("listener"),
	}
	for _, opt := range options {
		opt(l)
	}
	return l, nil
}

// Subscription is a running Listener. Close releases it.
type Subscription struct {
	links       *deeplink.Subscription
	unsubscribe func()
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	once        sync.Once

	mu      sync.Mutex
	pending []identity.Event
	wake    chan struct{}
}

// Start subscribes to redirects and backend events until ctx ends or the
// subscription is closed.
func (l *Listener) Start(ctx context.Context) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		links:  l.source.Subscribe(l.buffer),
		cancel: cancel,
		wake:   make(chan struct{}, 1),
	}
	// Backend events can fire from inside store listeners, so they are queued
	// and handled on the listener goroutine.
	sub.unsubscribe = l.backend.OnSessionChange(sub.enqueue)

	sub.wg.Add(1)
	go func() {
		defer sub.wg.Done()
		l.loop(ctx, sub)
	}()
	return sub
}

// Close unsubscribes from both sources and waits for in-progress work.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.unsubscribe()
		s.links.Close()
		s.cancel()
		s.wg.Wait()
	})
}

func (s *Subscription) enqueue(ev identity.Event) {
	s.mu.Lock()
	s.pending = append(s.pending, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) drain() []identity.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.pending
	s.pending = nil
	return events
}

func (l *Listener) loop(ctx context.Context, sub *Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-sub.links.C:
			if !ok {
				return
			}
			if _, err := l.HandleURL(ctx, raw); err != nil && !errors.Is(err, errors.ErrCredentialNotFound) {
				l.log.Warn().Err(err).Msg("redirect could not be settled")
			}
		case <-sub.wake:
			for _, ev := range sub.drain() {
				l.handleEvent(ctx, ev)
			}
		}
	}
}

// HandleURL parses a redirect and exchanges its credential. A nil session
// with a nil error means the code had already been settled elsewhere.
func (l *Listener) HandleURL(ctx context.Context, raw string) (*session.Session, error) {
	cred, err := callback.Parse(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "[Listener.HandleURL] parse")
	}

	res, err := l.exchanger.Exchange(ctx, cred)
	if err != nil {
		return nil, errors.Wrapf(err, "[Listener.HandleURL]")
	}
	if res.AlreadySettled {
		return nil, nil
	}
	if _, _, err := l.store.Commit(ctx, res.Session); err != nil {
		return nil, errors.Wrapf(err, "[Listener.HandleURL] commit")
	}
	l.log.Info().Str("user_id", res.Session.UserID).Msg("session established from redirect")
	return res.Session, nil
}

// Resume restores the session on startup or after a page reload. A
// credential in initialURL is settled first; otherwise the backend's current
// session, if any, is adopted.
func (l *Listener) Resume(ctx context.Context, initialURL string) (*session.Session, error) {
	if initialURL != "" {
		sess, err := l.HandleURL(ctx, initialURL)
		switch {
		case err == nil && sess != nil:
			return sess, nil
		case err != nil && !errors.Is(err, errors.ErrCredentialNotFound):
			return nil, err
		}
	}

	sess, err := l.backend.GetSession(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "[Listener.Resume] get session")
	}
	if sess == nil {
		return nil, nil
	}
	if _, _, err := l.store.Commit(ctx, sess); err != nil {
		return nil, errors.Wrapf(err, "[Listener.Resume] commit")
	}
	return sess, nil
}

func (l *Listener) handleEvent(ctx context.Context, ev identity.Event) {
	switch ev.Kind {
	case identity.EventSignedOut:
		if _, _, err := l.store.Clear(ctx); err != nil {
			l.log.Warn().Err(err).Msg("failed to clear store after sign-out")
		}
	case identity.EventTokenRefreshed:
		// Only a refresh of the session already held is mirrored; new sign-ins
		// are committed by whichever path settled them.
		current := l.store.Current()
		if current == nil || ev.Session == nil || current.UserID != ev.Session.UserID {
			return
		}
		if _, _, err := l.store.Commit(ctx, ev.Session); err != nil {
			l.log.Warn().Err(err).Msg("failed to commit refreshed session")
		}
	}
}
