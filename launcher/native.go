package launcher

import (
	"context"

	"github.com/jrsteele09/fixit-auth/internal/errors"
	"github.com/jrsteele09/fixit-auth/redirect"
)

// AuthSurface is the OS-level authorization session (ASWebAuthenticationSession,
// Custom Tabs, or a desktop stand-in). OpenAuthSession blocks until the user
// finishes with it.
type AuthSurface interface {
	OpenAuthSession(ctx context.Context, authURL, redirectURL string) (Outcome, error)
}

// NativeStrategy suspends the caller on the auth surface until it reports an outcome.
// There is no timeout here: the surface is bounded by user interaction only.
type NativeStrategy struct {
	surface         AuthSurface
	cancelIsDismiss bool
}

var _ LaunchStrategy = (*NativeStrategy)(nil)

type NativeOption func(*NativeStrategy)

// WithCancelIsDismiss reports cancels as dismissals, for platforms where the
// surface cannot distinguish the two.
func WithCancelIsDismiss(v bool) NativeOption {
	return func(n *NativeStrategy) {
		n.cancelIsDismiss = v
	}
}

func NewNativeStrategy(surface AuthSurface, options ...NativeOption) *NativeStrategy {
	n := &NativeStrategy{surface: surface}
	for _, opt := range options {
		opt(n)
	}
	return n
}

func (n *NativeStrategy) Platform() redirect.PlatformClass {
	return redirect.PlatformNative
}

func (n *NativeStrategy) Launch(ctx context.Context, authURL, redirectURL string) (Outcome, error) {
	outcome, err := n.surface.OpenAuthSession(ctx, authURL, redirectURL)
	if err != nil {
		return Outcome{}, errors.Wrapf(err, "[NativeStrategy.Launch] open auth session")
	}

	switch outcome.Kind {
	case OutcomeSuccess, OutcomeDismiss:
		return outcome, nil
	case OutcomeCancel:
		if n.cancelIsDismiss {
			return Dismiss(), nil
		}
		return outcome, nil
	}
	return Outcome{}, errors.Wrapf(errors.ErrUnsupported, "[NativeStrategy.Launch] surface returned %s", outcome.Kind)
}
