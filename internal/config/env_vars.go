package config

import (
	"strings"
	"time"
)

// EnvVars is the raw environment. Defaults live in the struct tags; getters also
// fall back for the values a hand-built EnvVars leaves zero.
type EnvVars struct {
	AppName  string `env:"APP_NAME" envDefault:"FixIt Auth"`
	Env      string `env:"ENV" envDefault:"DEV"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Platform           string `env:"PLATFORM" envDefault:"native"`
	NativeScheme       string `env:"NATIVE_SCHEME"`
	BrowserOrigin      string `env:"BROWSER_ORIGIN"`
	CallbackPath       string `env:"CALLBACK_PATH" envDefault:"auth/callback"`
	CallbackListenAddr string `env:"CALLBACK_LISTEN_ADDR" envDefault:"127.0.0.1:8765"`
	CancelIsDismiss    bool   `env:"CANCEL_IS_DISMISS" envDefault:"false"`

	IdentityBaseURL     string        `env:"IDENTITY_BASE_URL"`
	IdentityClientID    string        `env:"IDENTITY_CLIENT_ID"`
	IdentityScopes      []string      `env:"IDENTITY_SCOPES" envSeparator:"," envDefault:"openid,email,profile,offline_access"`
	IdentityHTTPTimeout time.Duration `env:"IDENTITY_HTTP_TIMEOUT" envDefault:"30s"`
	IdentityMaxRetries  int           `env:"IDENTITY_MAX_RETRIES" envDefault:"3"`

	PollInterval        time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
	PollMaxAttempts     int           `env:"POLL_MAX_ATTEMPTS" envDefault:"20"`
	CodeLedgerRetention time.Duration `env:"CODE_LEDGER_RETENTION" envDefault:"720h"`

	DataFolder string `env:"DATA_FOLDER" envDefault:"./data"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetEnv() string {
	if e.Env == "" {
		return "DEV"
	}
	return strings.ToUpper(e.Env)
}

func (e EnvVars) GetLogLevel() string {
	return e.LogLevel
}

func (e EnvVars) GetDataFolder() string {
	if e.DataFolder == "" {
		return "./data"
	}
	return e.DataFolder
}
