package launcher

import (
	"context"
	"fmt"

	"github.com/jrsteele09/fixit-auth/internal/config"
	"github.com/jrsteele09/fixit-auth/internal/errors"
	"github.com/jrsteele09/fixit-auth/redirect"
)

// OutcomeKind is the terminal result of an authorization surface.
type OutcomeKind int

const (
	// OutcomeSuccess means the surface observed a navigation to the redirect URL.
	OutcomeSuccess OutcomeKind = iota + 1
	// OutcomeCancel means the user explicitly cancelled.
	OutcomeCancel
	// OutcomeDismiss means the surface closed without a result; the redirect
	// may still have completed outside the app.
	OutcomeDismiss
	// OutcomeDeferred means control was handed to full-page navigation.
	OutcomeDeferred
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeCancel:
		return "cancel"
	case OutcomeDismiss:
		return "dismiss"
	case OutcomeDeferred:
		return "deferred"
	}
	return fmt.Sprintf("outcome(%d)", int(k))
}

// Outcome is what a launch produced. URL is only set for OutcomeSuccess.
type Outcome struct {
	Kind OutcomeKind
	URL  string
}

func Success(url string) Outcome { return Outcome{Kind: OutcomeSuccess, URL: url} }
func Cancel() Outcome            { return Outcome{Kind: OutcomeCancel} }
func Dismiss() Outcome           { return Outcome{Kind: OutcomeDismiss} }
func Deferred() Outcome          { return Outcome{Kind: OutcomeDeferred} }

// LaunchStrategy opens the authorization surface for one platform class.
// It is chosen once when the orchestrator is built.
type LaunchStrategy interface {
	Platform() redirect.PlatformClass
	Launch(ctx context.Context, authURL, redirectURL string) (Outcome, error)
}

// ForPlatform builds the strategy for the configured platform. Only the
// collaborator the platform needs has to be non-nil.
func ForPlatform(platform redirect.PlatformClass, cfg config.RedirectConfig, navigator Navigator, surface AuthSurface) (LaunchStrategy, error) {
	switch platform {
	case redirect.PlatformBrowser:
		if navigator == nil {
			return nil, errors.Wrapf(errors.ErrConfiguration, "[launcher.ForPlatform] browser platform needs a navigator")
		}
		return NewBrowserStrategy(navigator), nil
	case redirect.PlatformNative:
		if surface == nil {
			return nil, errors.Wrapf(errors.ErrConfiguration, "[launcher.ForPlatform] native platform needs an auth surface")
		}
		cancelIsDismiss := cfg != nil && cfg.GetCancelIsDismiss()
		return NewNativeStrategy(surface, WithCancelIsDismiss(cancelIsDismiss)), nil
	}
	return nil, errors.Wrapf(errors.ErrConfiguration, "[launcher.ForPlatform] unsupported platform %s", platform)
}
