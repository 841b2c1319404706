package redirect

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/jrsteele09/fixit-auth/internal/config"
	"github.com/jrsteele09/fixit-auth/internal/errors"
)

// PlatformClass selects how the authorization surface is hosted.
type PlatformClass int

const (
	// PlatformNative opens an OS auth surface and receives the callback as a deep link.
	PlatformNative PlatformClass = iota
	// PlatformBrowser navigates the whole page away and comes back to the callback path.
	PlatformBrowser
)

func (p PlatformClass) String() string {
	switch p {
	case PlatformNative:
		return "native"
	case PlatformBrowser:
		return "browser"
	}
	return fmt.Sprintf("platform(%d)", int(p))
}

// ParsePlatform maps the configured platform name onto a PlatformClass.
func ParsePlatform(name string) (PlatformClass, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "native", "ios", "android":
		return PlatformNative, nil
	case "browser", "web":
		return PlatformBrowser, nil
	}
	return 0, errors.Wrapf(errors.ErrConfiguration, "unknown platform %q", name)
}

// RFC 3986 scheme syntax
var schemePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.\-]*$`)

// Resolve computes the callback URL for the platform. It never touches the network.
func Resolve(platform PlatformClass, cfg config.RedirectConfig) (string, error) {
	if cfg == nil {
		return "", errors.Wrapf(errors.ErrConfiguration, "[redirect.Resolve] no configuration")
	}
	path := strings.Trim(cfg.GetCallbackPath(), "/")
	if path == "" {
		return "", errors.Wrapf(errors.ErrConfiguration, "[redirect.Resolve] empty callback path")
	}

	switch platform {
	case PlatformBrowser:
		origin, err := browserOrigin(cfg.GetBrowserOrigin())
		if err != nil {
			return "", err
		}
		return origin + "/" + path, nil
	case PlatformNative:
		scheme := strings.TrimSuffix(strings.TrimSpace(cfg.GetNativeScheme()), "://")
		if scheme == "" {
			return "", errors.Wrapf(errors.ErrConfiguration, "[redirect.Resolve] native scheme not configured")
		}
		if !schemePattern.MatchString(scheme) {
			return "", errors.Wrapf(errors.ErrConfiguration, "[redirect.Resolve] invalid native scheme %q", scheme)
		}
		return strings.ToLower(scheme) + "://" + path, nil
	}
	return "", errors.Wrapf(errors.ErrConfiguration, "[redirect.Resolve] unsupported platform %s", platform)
}

func browserOrigin(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.Wrapf(errors.ErrConfiguration, "[redirect.Resolve] browser origin not available")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.Wrapf(errors.ErrConfiguration, "[redirect.Resolve] browser origin %q: %v", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", errors.Wrapf(errors.ErrConfiguration, "[redirect.Resolve] browser origin %q is not an http(s) origin", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}
