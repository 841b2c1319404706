package exchange

import (
	"context"
	"time"

	"github.com/jrsteele09/fixit-auth/callback"
	"github.com/jrsteele09/fixit-auth/identity"
	"github.com/jrsteele09/fixit-auth/internal/config"
	"github.com/jrsteele09/fixit-auth/internal/errors"
	"github.com/jrsteele09/fixit-auth/internal/logging"
	"github.com/jrsteele09/fixit-auth/session"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Result of an exchange. AlreadySettled is set when the code had been claimed
// by an earlier exchange; Session is nil in that case.
type Result struct {
	Session        *session.Session
	AlreadySettled bool
}

// Exchanger turns callback credentials into sessions. One Exchanger is shared
// by every path that can observe a callback so a code is exchanged at most once.
type Exchanger struct {
	backend   identity.Backend
	ledger    Ledger
	retention time.Duration
	inflight  singleflight.Group
	nowTime   func() time.Time
	log       zerolog.Logger
}

type Option func(*Exchanger)

func WithLedger(l Ledger) Option {
	return func(e *Exchanger) {
		e.ledger = l
	}
}

// WithLedgerRetention sets how old a claim must be before Cleanup prunes it.
func WithLedgerRetention(d time.Duration) Option {
	return func(e *Exchanger) {
		e.retention = d
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(e *Exchanger) {
		e.nowTime = nowFunc
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Exchanger) {
		e.log = l
	}
}

func New(backend identity.Backend, options ...Option) (*Exchanger, error) {
	if backend == nil {
		return nil, errors.New("[exchange.New] backend is required")
	}
	e := &Exchanger{
		backend:   backend,
		ledger:    NewInMemoryLedger(),
		retention: config.DefaultCodeLedgerRetention,
		nowTime:   time.Now,
		log:       logging.Component("exchange"),
	}
	for _, opt := range options {
		opt(e)
	}
	return e, nil
}

// Exchange installs the session described by cred.
func (e *Exchanger) Exchange(ctx context.Context, cred callback.Credential) (Result, error) {
	switch cred.Kind {
	case callback.AuthorizationCodeKind:
		return e.exchangeCode(ctx, cred.Code, cred.State)
	case callback.TokenPairKind:
		return e.installTokens(ctx, cred.AccessToken, cred.RefreshToken)
	}
	return Result{}, errors.Wrapf(errors.ErrExchange, "[Exchanger.Exchange] unknown credential kind %s", cred.Kind)
}

func (e *Exchanger) exchangeCode(ctx context.Context, code, state string) (Result, error) {
	if code == "" {
		return Result{}, errors.Wrapf(errors.ErrExchange, "[Exchanger.exchangeCode] empty code")
	}

	// Concurrent observers of the same code share one in-flight call; later
	// observers find the code in the ledger.
	digest := CodeDigest(code)
	v, err, shared := e.inflight.Do(digest, func() (any, error) {
		first, err := e.ledger.Claim(digest, e.nowTime())
		if err != nil {
			// Without a recorded claim the code is not redeemed.
			return Result{}, errors.Wrapf(errors.Join(errors.ErrExchange, err), "[Exchanger.exchangeCode] claim code")
		}
		if !first {
			return Result{AlreadySettled: true}, nil
		}
		sess, err := e.backend.ExchangeCodeForSession(ctx, code, state)
		if err != nil {
			return Result{}, errors.Wrapf(errors.Join(errors.ErrExchange, err), "[Exchanger.exchangeCode] backend rejected code")
		}
		return Result{Session: sess}, nil
	})
	if err != nil {
		e.log.Warn().Err(err).Msg("authorization code exchange failed")
		return Result{}, err
	}

	res := v.(Result)
	if res.AlreadySettled {
		e.log.Debug().Msg("authorization code already settled, skipping exchange")
	}
	if shared {
		e.log.Debug().Msg("joined in-flight exchange for authorization code")
	}
	return res, nil
}

func (e *Exchanger) installTokens(ctx context.Context, access, refresh string) (Result, error) {
	if access == "" || refresh == "" {
		return Result{}, errors.Wrapf(errors.ErrExchange, "[Exchanger.installTokens] incomplete token pair")
	}
	sess, err := e.backend.SetSession(ctx, access, refresh)
	if err != nil {
		e.log.Warn().Err(err).Msg("token pair rejected")
		return Result{}, errors.Wrapf(errors.Join(errors.ErrExchange, err), "[Exchanger.installTokens] backend rejected tokens")
	}
	return Result{Session: sess}, nil
}

// Cleanup prunes claims older than the retention period.
func (e *Exchanger) Cleanup() {
	if err := e.ledger.Prune(e.nowTime().Add(-e.retention)); err != nil {
		e.log.Warn().Err(err).Msg("failed to prune code ledger")
	}
}
