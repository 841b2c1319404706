package config_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/fixit-auth/internal/config"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	t.Setenv("NATIVE_SCHEME", "fixit")
	t.Setenv("IDENTITY_BASE_URL", "https://id.fixit.example")

	c, err := config.New()
	require.NoError(t, err)

	require.Equal(t, "DEV", c.GetEnv())
	require.Equal(t, "native", c.GetPlatform())
	require.Equal(t, "fixit", c.GetNativeScheme())
	require.Equal(t, "auth/callback", c.GetCallbackPath())
	require.Equal(t, "https://id.fixit.example", c.GetIdentityBaseURL())
	require.Equal(t, []string{"openid", "email", "profile", "offline_access"}, c.GetIdentityScopes())
	require.Equal(t, time.Second, c.GetPollInterval())
	require.Equal(t, 20, c.GetPollMaxAttempts())
	require.Equal(t, 30*24*time.Hour, c.GetCodeLedgerRetention())
	require.False(t, c.GetCancelIsDismiss())
}

func TestNew_Overrides(t *testing.T) {
	t.Setenv("ENV", "prod")
	t.Setenv("PLATFORM", "browser")
	t.Setenv("BROWSER_ORIGIN", "https://app.fixit.example")
	t.Setenv("POLL_INTERVAL", "250ms")
	t.Setenv("POLL_MAX_ATTEMPTS", "5")
	t.Setenv("CANCEL_IS_DISMISS", "true")

	c, err := config.New()
	require.NoError(t, err)

	require.Equal(t, "PROD", c.GetEnv())
	require.Equal(t, "browser", c.GetPlatform())
	require.Equal(t, "https://app.fixit.example", c.GetBrowserOrigin())
	require.Equal(t, 250*time.Millisecond, c.GetPollInterval())
	require.Equal(t, 5, c.GetPollMaxAttempts())
	require.True(t, c.GetCancelIsDismiss())
}

func TestNew_InvalidDuration(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "soon")

	_, err := config.New()
	require.Error(t, err)
}

func TestEnvVars_ZeroValueFallbacks(t *testing.T) {
	var e config.EnvVars

	require.Equal(t, config.DefaultPollInterval, e.GetPollInterval())
	require.Equal(t, config.DefaultPollMaxAttempts, e.GetPollMaxAttempts())
	require.Equal(t, "auth/callback", e.GetCallbackPath())
	require.Equal(t, 30*time.Second, e.GetIdentityHTTPTimeout())
}
