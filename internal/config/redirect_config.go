package config

type RedirectConfig interface {
	GetPlatform() string
	GetNativeScheme() string
	GetBrowserOrigin() string
	GetCallbackPath() string
	GetCallbackListenAddr() string
	GetCancelIsDismiss() bool
}

var _ RedirectConfig = EnvVars{}

func (e EnvVars) GetPlatform() string {
	return e.Platform
}

func (e EnvVars) GetNativeScheme() string {
	return e.NativeScheme
}

// GetBrowserOrigin returns the origin the app is served from, e.g. "https://app.fixit.example".
func (e EnvVars) GetBrowserOrigin() string {
	return e.BrowserOrigin
}

func (e EnvVars) GetCallbackPath() string {
	if e.CallbackPath == "" {
		return "auth/callback"
	}
	return e.CallbackPath
}

func (e EnvVars) GetCallbackListenAddr() string {
	return e.CallbackListenAddr
}

// GetCancelIsDismiss is true on platforms whose auth surface cannot tell a
// user cancel apart from the surface being dismissed by the system.
func (e EnvVars) GetCancelIsDismiss() bool {
	return e.CancelIsDismiss
}
