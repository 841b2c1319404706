package config

import "time"

const (
	DefaultPollInterval        = 1 * time.Second
	DefaultPollMaxAttempts     = 20
	// DefaultCodeLedgerRetention is far beyond any issuer's code lifetime.
	DefaultCodeLedgerRetention = 30 * 24 * time.Hour
)

type PollConfig interface {
	GetPollInterval() time.Duration
	GetPollMaxAttempts() int
	GetCodeLedgerRetention() time.Duration
}

type StorageConfig interface {
	GetDataFolder() string
}

var _ PollConfig = EnvVars{}
var _ StorageConfig = EnvVars{}

func (e EnvVars) GetPollInterval() time.Duration {
	if e.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return e.PollInterval
}

func (e EnvVars) GetPollMaxAttempts() int {
	if e.PollMaxAttempts <= 0 {
		return DefaultPollMaxAttempts
	}
	return e.PollMaxAttempts
}

// GetCodeLedgerRetention is how long a redeemed authorization code is remembered.
func (e EnvVars) GetCodeLedgerRetention() time.Duration {
	if e.CodeLedgerRetention <= 0 {
		return DefaultCodeLedgerRetention
	}
	return e.CodeLedgerRetention
}
