package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/fixit-auth/callback"
	"github.com/jrsteele09/fixit-auth/exchange"
	"github.com/jrsteele09/fixit-auth/identity"
	"github.com/jrsteele09/fixit-auth/internal/config"
	"github.com/jrsteele09/fixit-auth/internal/errors"
	"github.com/jrsteele09/fixit-auth/internal/logging"
	"github.com/jrsteele09/fixit-auth/launcher"
	"github.com/jrsteele09/fixit-auth/poller"
	"github.com/jrsteele09/fixit-auth/redirect"
	"github.com/jrsteele09/fixit-auth/session"
	"github.com/rs/zerolog"
)

// Orchestrator runs sign-in attempts, one at a time, and commits the resulting
// session into the store.
type Orchestrator struct {
	redirectCfg config.RedirectConfig
	strategy    launcher.LaunchStrategy
	backend     identity.Backend
	exchanger   *exchange.Exchanger
	poller      *poller.Poller
	store       *session.Store

	nowTime      func() time.Time
	onTransition func(Attempt)
	log          zerolog.Logger

	mu      sync.Mutex
	current *Attempt
	running bool
}

type Option func(*Orchestrator)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(o *Orchestrator) {
		o.nowTime = nowFunc
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.log = l
	}
}

// WithTransitionHook calls fn with a copy of the attempt after every state change.
func WithTransitionHook(fn func(Attempt)) Option {
	return func(o *Orchestrator) {
		o.onTransition = fn
	}
}

func New(cfg config.RedirectConfig, strategy launcher.LaunchStrategy, backend identity.Backend, exchanger *exchange.Exchanger, p *poller.Poller, store *session.Store, options ...Option) (*Orchestrator, error) {
	switch {
	case cfg == nil:
		return nil, errors.Wrapf(errors.ErrConfiguration, "[reconcile.New] redirect config is required")
	case strategy == nil:
		return nil, errors.Wrapf(errors.ErrConfiguration, "[reconcile.New] launch strategy is required")
	case backend == nil, exchanger == nil, p == nil, store == nil:
		return nil, errors.New("[reconcile.New] backend, exchanger, poller and store are required")
	}

	o := &Orchestrator{
		redirectCfg: cfg,
		strategy:    strategy,
		backend:     backend,
		exchanger:   exchanger,
		poller:      p,
		store:       store,
		nowTime:     time.Now,
		log:         logging.Component("reconcile"),
	}
	for _, opt := range options {
		opt(o)
	}
	return o, nil
}

// Current returns a copy of the latest attempt, if any.
func (o *Orchestrator) Current() (Attempt, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return Attempt{}, false
	}
	return *o.current, true
}

// Start runs one sign-in attempt with the given federated provider. It returns
// errors.ErrAttemptInFlight at once while another attempt is running; the
// caller should wait for that one instead.
func (o *Orchestrator) Start(ctx context.Context, provider string) (Result, error) {
	a, err := o.begin(provider)
	if err != nil {
		return Result{State: StateFailed, Err: err}, err
	}

	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	res := o.run(ctx, a)
	res.AttemptID = a.ID
	return res, res.Err
}

func (o *Orchestrator) begin(provider string) (*Attempt, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	// running covers the window where a new attempt is still Idle.
	if o.running || (o.current != nil && !o.current.State.Terminal()) {
		return nil, errors.Wrapf(errors.ErrAttemptInFlight, "[Orchestrator.Start] attempt %s is %s", o.current.ID, o.current.State)
	}
	o.running = true
	o.current = &Attempt{
		ID:        uuid.NewString(),
		Provider:  provider,
		Platform:  o.strategy.Platform(),
		State:     StateIdle,
		StartedAt: o.nowTime(),
	}
	return o.current, nil
}

func (o *Orchestrator) run(ctx context.Context, a *Attempt) Result {
	o.transition(a, StateResolving)
	redirectURL, err := redirect.Resolve(a.Platform, o.redirectCfg)
	if err != nil {
		return o.fail(ctx, a, errors.ErrConfiguration, err)
	}
	o.mu.Lock()
	a.RedirectURL = redirectURL
	o.mu.Unlock()

	authURL, err := o.backend.AuthorizationURL(ctx, a.Provider, redirectURL)
	if err != nil {
		return o.fail(ctx, a, errors.ErrConfiguration, err)
	}

	o.transition(a, StateLaunching)
	if a.Platform == redirect.PlatformNative {
		o.transition(a, StateAwaitingCallback)
	}
	outcome, err := o.strategy.Launch(ctx, authURL, redirectURL)
	if err != nil {
		return o.fail(ctx, a, errors.ErrConfiguration, err)
	}

	switch outcome.Kind {
	case launcher.OutcomeDeferred:
		o.transition(a, StateBrowserDeferred)
		return Result{State: StateBrowserDeferred}
	case launcher.OutcomeCancel:
		return o.fail(ctx, a, errors.ErrUserCancelled, nil)
	case launcher.OutcomeDismiss:
		return o.poll(ctx, a)
	case launcher.OutcomeSuccess:
		return o.parse(ctx, a, outcome.URL)
	}
	return o.fail(ctx, a, errors.ErrConfiguration, errors.Wrapf(errors.ErrUnsupported, "launch outcome %s", outcome.Kind))
}

func (o *Orchestrator) parse(ctx context.Context, a *Attempt, raw string) Result {
	o.transition(a, StateParsing)
	cred, err := callback.Parse(raw)
	if err != nil {
		var pe *callback.ProviderError
		if errors.As(err, &pe) {
			return o.fail(ctx, a, errors.ErrExchange, err)
		}
		o.log.Debug().Err(err).Str("attempt_id", a.ID).Msg("no credential in callback, falling back to polling")
		return o.poll(ctx, a)
	}

	o.transition(a, StateExchanging)
	res, err := o.exchanger.Exchange(ctx, cred)
	if err != nil {
		return o.fail(ctx, a, errors.ErrExchange, err)
	}
	return o.verify(ctx, a, res.Session)
}

func (o *Orchestrator) poll(ctx context.Context, a *Attempt) Result {
	o.transition(a, StatePolling)
	res, err := o.poller.Poll(ctx, o.store.Snapshot().Version)
	if err != nil {
		return o.fail(ctx, a, errors.ErrPollTimeout, err)
	}
	return o.verify(ctx, a, res.Session)
}

// verify confirms a session exists and commits it. A nil sess means the code
// was settled by another path, so the backend is asked for the session.
func (o *Orchestrator) verify(ctx context.Context, a *Attempt, sess *session.Session) Result {
	o.transition(a, StateVerifying)
	if sess == nil {
		current, err := o.backend.GetSession(ctx)
		if err != nil {
			return o.fail(ctx, a, errors.ErrVerification, err)
		}
		sess = current
	}
	if err := sess.Validate(); err != nil {
		return o.fail(ctx, a, errors.ErrVerification, err)
	}

	if _, _, err := o.store.Commit(ctx, sess); err != nil {
		return o.fail(ctx, a, errors.ErrVerification, err)
	}

	o.transition(a, StateSucceeded)
	o.log.Info().Str("attempt_id", a.ID).Str("user_id", sess.UserID).Msg("sign-in succeeded")
	return Result{State: StateSucceeded, Session: sess}
}

// fail settles the attempt. kind is the settlement kind unless the context
// ended, or cause already carries a more specific kind.
func (o *Orchestrator) fail(ctx context.Context, a *Attempt, kind, cause error) Result {
	err := settlementError(ctx, kind, cause)
	o.transition(a, StateFailed)

	if errors.Is(err, errors.ErrUserCancelled) {
		o.log.Info().Str("attempt_id", a.ID).Msg("sign-in cancelled by user")
	} else {
		o.log.Warn().Err(err).Str("attempt_id", a.ID).Msg("sign-in failed")
	}
	return Result{State: StateFailed, Err: err}
}

var settlementKinds = []error{
	errors.ErrAttemptAborted,
	errors.ErrConfiguration,
	errors.ErrExchange,
	errors.ErrPollTimeout,
	errors.ErrUserCancelled,
	errors.ErrVerification,
}

func settlementError(ctx context.Context, kind, cause error) error {
	if cause == nil {
		return kind
	}
	if errors.Is(cause, errors.ErrAttemptAborted) {
		return cause
	}
	if ctx.Err() != nil {
		// cause is kept as text only so the result carries one kind.
		return errors.Wrapf(errors.Join(errors.ErrAttemptAborted, ctx.Err()), "%v", cause)
	}
	for _, k := range settlementKinds {
		if errors.Is(cause, k) {
			return cause
		}
	}
	return errors.Join(kind, cause)
}

func (o *Orchestrator) transition(a *Attempt, state State) {
	o.mu.Lock()
	from := a.State
	a.State = state
	snapshot := *a
	o.mu.Unlock()

	o.log.Debug().Str("attempt_id", a.ID).Stringer("from", from).Stringer("to", state).Msg("attempt transition")
	if o.onTransition != nil {
		o.onTransition(snapshot)
	}
}

// SignOut ends the session. Without a session in the store or at the backend
// it only clears local state and never calls the backend. A backend that
// reports no session counts as signed out.
func (o *Orchestrator) SignOut(ctx context.Context, scope identity.SignOutScope) error {
	if o.store.Current() == nil {
		sess, err := o.backend.GetSession(ctx)
		if err == nil && sess == nil {
			if _, _, err := o.store.Clear(ctx); err != nil {
				return errors.Wrapf(err, "[Orchestrator.SignOut] clear store")
			}
			o.log.Debug().Msg("no session to sign out")
			return nil
		}
	}

	backendErr := o.backend.SignOut(ctx, scope)
	if errors.Is(backendErr, errors.ErrAuthSessionMissing) {
		backendErr = nil
	}
	// Local state is cleared even when the backend call fails.
	_, _, clearErr := o.store.Clear(ctx)

	if backendErr != nil {
		o.log.Warn().Err(backendErr).Str("scope", string(scope)).Msg("backend sign-out failed")
		return errors.Wrapf(errors.Join(backendErr, clearErr), "[Orchestrator.SignOut]")
	}
	if clearErr != nil {
		return errors.Wrapf(clearErr, "[Orchestrator.SignOut] clear store")
	}
	o.log.Info().Str("scope", string(scope)).Msg("signed out")
	return nil
}
