package launcher

import (
	"context"

	"github.com/jrsteele09/fixit-auth/internal/errors"
	"github.com/jrsteele09/fixit-auth/redirect"
)

// Navigator replaces the current page with the given URL.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, url string) error

func (f NavigatorFunc) Navigate(ctx context.Context, url string) error {
	return f(ctx, url)
}

// BrowserStrategy hands control to full-page navigation and returns at once.
// The flow resumes when the page is loaded again at the callback path.
type BrowserStrategy struct {
	navigator Navigator
}

var _ LaunchStrategy = (*BrowserStrategy)(nil)

func NewBrowserStrategy(navigator Navigator) *BrowserStrategy {
	return &BrowserStrategy{navigator: navigator}
}

func (b *BrowserStrategy) Platform() redirect.PlatformClass {
	return redirect.PlatformBrowser
}

func (b *BrowserStrategy) Launch(ctx context.Context, authURL, _ string) (Outcome, error) {
	if err := b.navigator.Navigate(ctx, authURL); err != nil {
		return Outcome{}, errors.Wrapf(err, "[BrowserStrategy.Launch] navigate")
	}
	return Deferred(), nil
}
