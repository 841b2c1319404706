package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/jrsteele09/fixit-auth/deeplink"
	"github.com/jrsteele09/fixit-auth/exchange"
	"github.com/jrsteele09/fixit-auth/identity"
	"github.com/jrsteele09/fixit-auth/identity/oidcclient"
	"github.com/jrsteele09/fixit-auth/internal/config"
	"github.com/jrsteele09/fixit-auth/internal/errors"
	"github.com/jrsteele09/fixit-auth/internal/storage"
	"github.com/jrsteele09/fixit-auth/launcher"
	"github.com/jrsteele09/fixit-auth/poller"
	"github.com/jrsteele09/fixit-auth/reconcile"
	"github.com/jrsteele09/fixit-auth/redirect"
	"github.com/jrsteele09/fixit-auth/session"
	"github.com/rs/zerolog/log"
)

const (
	cmdSignIn  = "signin"
	cmdSignOut = "signout"
	cmdStatus  = "status"

	defaultProvider = "google"
)

// app wires the reconciliation core for the command line.
type app struct {
	db             *storage.DB
	store          *session.Store
	hub            *deeplink.Hub
	exchanger      *exchange.Exchanger
	orchestrator   *reconcile.Orchestrator
	listener       *reconcile.Listener
	subscription   *reconcile.Subscription
	callbackServer *deeplink.Server
	waitBound      time.Duration
	out            io.Writer
}

func newApp(ctx context.Context, c config.Config, initialURL string, in io.Reader, out io.Writer) (*app, error) {
	platform, err := redirect.ParsePlatform(c.GetPlatform())
	if err != nil {
		return nil, err
	}

	db, err := storage.Open(filepath.Join(c.GetDataFolder(), "auth.db"))
	if err != nil {
		return nil, err
	}
	a := &app{
		db:        db,
		store:     session.NewStore(),
		hub:       deeplink.NewHub(initialURL),
		waitBound: c.GetPollInterval() * time.Duration(c.GetPollMaxAttempts()),
		out:       out,
	}
	a.callbackServer = deeplink.NewServer(c.GetCallbackPath(), a.hub)

	if err := a.wire(ctx, c, platform, in); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, c config.Config, platform redirect.PlatformClass, in io.Reader) error {
	backend, err := oidcclient.New(ctx, c, a.db)
	if err != nil {
		return err
	}

	// Claims live in the same bbolt file so a code stays redeemed across restarts.
	a.exchanger, err = exchange.New(backend,
		exchange.WithLedger(a.db),
		exchange.WithLedgerRetention(c.GetCodeLedgerRetention()),
	)
	if err != nil {
		return err
	}
	p, err := poller.New(backend, a.store, poller.WithConfig(c))
	if err != nil {
		return err
	}

	strategy, err := launcher.ForPlatform(platform, c, newPrintNavigator(a.out), newTerminalSurface(a.hub, in, a.out))
	if err != nil {
		return err
	}
	a.orchestrator, err = reconcile.New(c, strategy, backend, a.exchanger, p, a.store)
	if err != nil {
		return err
	}
	a.listener, err = reconcile.NewListener(a.hub, backend, a.exchanger, a.store)
	if err != nil {
		return err
	}

	a.store.Subscribe(func(s session.Snapshot) {
		if s.Session == nil {
			log.Info().Uint64("version", s.Version).Msg("session cleared")
			return
		}
		log.Info().Uint64("version", s.Version).Str("user_id", s.Session.UserID).Msg("session changed")
	})
	a.subscription = a.listener.Start(ctx)
	return nil
}

func (a *app) Close() {
	if a.subscription != nil {
		a.subscription.Close()
	}
	a.store.Close()
	if err := a.db.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close storage")
	}
}

func (a *app) resume(ctx context.Context) (*session.Session, error) {
	return a.listener.Resume(ctx, a.hub.InitialURL())
}

// sweepLedger prunes claims past retention until ctx ends.
func (a *app) sweepLedger(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.exchanger.Cleanup()
		}
	}
}

func (a *app) dispatch(ctx context.Context, command string, args []string) error {
	switch command {
	case cmdSignIn:
		provider := defaultProvider
		if len(args) > 0 {
			provider = args[0]
		}
		return a.signIn(ctx, provider)
	case cmdSignOut:
		scope := identity.ScopeLocal
		if len(args) > 0 && args[0] == string(identity.ScopeGlobal) {
			scope = identity.ScopeGlobal
		}
		if err := a.orchestrator.SignOut(ctx, scope); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Signed out.")
		return nil
	case cmdStatus:
		a.printStatus()
		return nil
	}
	return fmt.Errorf("unknown command %q", command)
}

func (a *app) signIn(ctx context.Context, provider string) error {
	baseline := a.store.Snapshot().Version
	res, err := a.orchestrator.Start(ctx, provider)
	switch {
	case errors.Is(err, errors.ErrUserCancelled):
		fmt.Fprintln(a.out, "Sign-in cancelled.")
		return nil
	case err != nil:
		return err
	case res.State == reconcile.StateBrowserDeferred:
		// The browser redirect lands on the callback server; the listener settles it.
		return a.awaitSession(ctx, baseline)
	}
	a.printStatus()
	return nil
}

// awaitSession waits for a session committed after baseline.
func (a *app) awaitSession(ctx context.Context, baseline uint64) error {
	changed := make(chan struct{}, 1)
	unsubscribe := a.store.Subscribe(func(s session.Snapshot) {
		if s.Session == nil {
			return
		}
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	if snap := a.store.Snapshot(); snap.Version != baseline && snap.Session != nil {
		a.printStatus()
		return nil
	}
	fmt.Fprintln(a.out, "Waiting for the browser to return...")
	select {
	case <-changed:
		a.printStatus()
		return nil
	case <-time.After(a.waitBound):
		return errors.Wrapf(errors.ErrPollTimeout, "no redirect within %s", a.waitBound)
	case <-ctx.Done():
		return errors.Join(errors.ErrAttemptAborted, ctx.Err())
	}
}

func (a *app) printStatus() {
	s := a.store.Current()
	if s == nil {
		fmt.Fprintln(a.out, "Not signed in.")
		return
	}
	if s.ExpiresAt.IsZero() {
		fmt.Fprintf(a.out, "Signed in as %s.\n", s.UserID)
		return
	}
	fmt.Fprintf(a.out, "Signed in as %s, access token expires %s.\n", s.UserID, s.ExpiresAt.Local().Format(time.RFC1123))
}
