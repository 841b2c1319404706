package session

import (
	"context"
	"sync"

	"github.com/jrsteele09/fixit-auth/internal/errors"
	"github.com/jrsteele09/fixit-auth/internal/logging"
	"github.com/rs/zerolog"
)

// Snapshot is an immutable view of the store. Version increases by one for
// every committed change, so a larger version is always a fresher snapshot.
type Snapshot struct {
	Session *Session
	Version uint64
}

// Listener receives the snapshot produced by a committed change.
type Listener func(Snapshot)

type mutation struct {
	session *Session // nil clears
	reply   chan mutationResult
}

type mutationResult struct {
	snapshot Snapshot
	changed  bool
	err      error
}

// Store holds the current session. Every mutation goes through a single
// writer goroutine: the snapshot is swapped under the lock, the lock is
// released, and only then are subscribers notified. Listeners run on the
// writer goroutine and must not call Commit or Clear synchronously.
type Store struct {
	mu        sync.RWMutex
	current   Snapshot
	listeners map[uint64]Listener
	order     []uint64
	nextID    uint64

	writes chan mutation
	done   chan struct{}
	closed sync.Once
	wg     sync.WaitGroup
	log    zerolog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

func WithLogger(l zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.log = l
	}
}

// NewStore starts the writer goroutine. Close must be called to stop it.
func NewStore(options ...StoreOption) *Store {
	s := &Store{
		listeners: make(map[uint64]Listener),
		writes:    make(chan mutation),
		done:      make(chan struct{}),
		log:       logging.Component("session.store"),
	}
	for _, opt := range options {
		opt(s)
	}

	s.wg.Add(1)
	go s.run()
	return s
}

// Snapshot returns the current session and version.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Session: s.current.Session.clone(), Version: s.current.Version}
}

// Current returns the current session, or nil.
func (s *Store) Current() *Session {
	return s.Snapshot().Session
}

// Commit replaces the current session. It reports whether anything changed:
// committing a session equal to the current one is not a change.
func (s *Store) Commit(ctx context.Context, sess *Session) (Snapshot, bool, error) {
	if err := sess.Validate(); err != nil {
		return Snapshot{}, false, errors.Wrapf(err, "[Store.Commit]")
	}
	return s.submit(ctx, sess.clone())
}

// Clear drops the current session. Clearing an empty store is not a change.
func (s *Store) Clear(ctx context.Context) (Snapshot, bool, error) {
	return s.submit(ctx, nil)
}

// Subscribe registers l for every committed change and returns its unsubscribe function.
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.order = append(s.order, id)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.listeners, id)
			for i, v := range s.order {
				if v == id {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Close stops the writer goroutine and waits for it to exit.
func (s *Store) Close() {
	s.closed.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
}

func (s *Store) submit(ctx context.Context, sess *Session) (Snapshot, bool, error) {
	m := mutation{session: sess, reply: make(chan mutationResult, 1)}
	select {
	case s.writes <- m:
	case <-s.done:
		return Snapshot{}, false, errors.ErrStoreClosed
	case <-ctx.Done():
		return Snapshot{}, false, ctx.Err()
	}

	// The writer always answers once it has accepted a mutation.
	r := <-m.reply
	return r.snapshot, r.changed, r.err
}

func (s *Store) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case m := <-s.writes:
			snap, changed, listeners := s.swap(m.session)
			if changed {
				for _, l := range listeners {
					l(Snapshot{Session: snap.Session.clone(), Version: snap.Version})
				}
			}
			m.reply <- mutationResult{snapshot: snap, changed: changed}
		}
	}
}

func (s *Store) swap(sess *Session) (Snapshot, bool, []Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.Session.Equal(sess) {
		return Snapshot{Session: s.current.Session.clone(), Version: s.current.Version}, false, nil
	}

	s.current = Snapshot{Session: sess, Version: s.current.Version + 1}
	s.log.Debug().Uint64("version", s.current.Version).Bool("signed_in", sess != nil).Msg("session snapshot swapped")

	listeners := make([]Listener, 0, len(s.order))
	for _, id := range s.order {
		listeners = append(listeners, s.listeners[id])
	}
	return Snapshot{Session: sess.clone(), Version: s.current.Version}, true, listeners
}
