package poller

import (
	"context"
	"time"

	"github.com/jrsteele09/fixit-auth/identity"
	"github.com/jrsteele09/fixit-auth/internal/config"
	"github.com/jrsteele09/fixit-auth/internal/errors"
	"github.com/jrsteele09/fixit-auth/internal/logging"
	"github.com/jrsteele09/fixit-auth/session"
	"github.com/rs/zerolog"
)

// SnapshotSource is the part of the session store the poller watches.
type SnapshotSource interface {
	Snapshot() session.Snapshot
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Result of a poll. Superseded is set when another path committed a fresher
// session while polling; Session is then the store's session.
type Result struct {
	Session    *session.Session
	Attempts   int
	Superseded bool
}

// Poller re-checks the backend for a session that materialised without the
// app seeing the callback.
type Poller struct {
	backend     identity.Backend
	store       SnapshotSource
	interval    time.Duration
	maxAttempts int
	sleep       SleepFunc
	log         zerolog.Logger
}

type Option func(*Poller)

func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		p.interval = d
	}
}

func WithMaxAttempts(n int) Option {
	return func(p *Poller) {
		p.maxAttempts = n
	}
}

// WithConfig takes interval and attempt bound from configuration.
func WithConfig(cfg config.PollConfig) Option {
	return func(p *Poller) {
		p.interval = cfg.GetPollInterval()
		p.maxAttempts = cfg.GetPollMaxAttempts()
	}
}

// WithSleep replaces the timer (primarily for testing)
func WithSleep(sleep SleepFunc) Option {
	return func(p *Poller) {
		p.sleep = sleep
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(p *Poller) {
		p.log = l
	}
}

func New(backend identity.Backend, store SnapshotSource, options ...Option) (*Poller, error) {
	if backend == nil {
		return nil, errors.New("[poller.New] backend is required")
	}
	if store == nil {
		return nil, errors.New("[poller.New] store is required")
	}
	p := &Poller{
		backend:     backend,
		store:       store,
		interval:    config.DefaultPollInterval,
		maxAttempts: config.DefaultPollMaxAttempts,
		sleep:       timerSleep,
		log:         logging.Component("poller"),
	}
	for _, opt := range options {
		opt(p)
	}
	if p.maxAttempts <= 0 || p.interval <= 0 {
		return nil, errors.Wrapf(errors.ErrConfiguration, "[poller.New] invalid bounds %d x %s", p.maxAttempts, p.interval)
	}
	return p, nil
}

// Poll runs at most maxAttempts sleep-then-check cycles. Before each cycle it
// looks at the store: a session committed at a version above baseline ends
// the poll at once. A backend error counts as a failed attempt.
func (p *Poller) Poll(ctx context.Context, baseline uint64) (Result, error) {
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if snap := p.store.Snapshot(); snap.Version > baseline && snap.Session != nil {
			p.log.Debug().Int("attempt", attempt).Uint64("version", snap.Version).Msg("session committed elsewhere, polling stopped")
			return Result{Session: snap.Session, Attempts: attempt - 1, Superseded: true}, nil
		}

		if err := p.sleep(ctx, p.interval); err != nil {
			return Result{Attempts: attempt - 1}, errors.Wrapf(errors.Join(errors.ErrAttemptAborted, err), "[Poller.Poll] cancelled")
		}

		sess, err := p.backend.GetSession(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return Result{Attempts: attempt}, errors.Wrapf(errors.Join(errors.ErrAttemptAborted, ctx.Err()), "[Poller.Poll] cancelled")
			}
			p.log.Warn().Err(err).Int("attempt", attempt).Msg("session check failed")
			continue
		}
		if sess != nil {
			p.log.Debug().Int("attempt", attempt).Msg("session found")
			return Result{Session: sess, Attempts: attempt}, nil
		}
	}
	return Result{Attempts: p.maxAttempts}, errors.Wrapf(errors.ErrPollTimeout, "[Poller.Poll] no session after %d attempts", p.maxAttempts)
}

func timerSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
