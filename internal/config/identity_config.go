package config

import "time"

type IdentityConfig interface {
	GetIdentityBaseURL() string
	GetIdentityClientID() string
	GetIdentityScopes() []string
	GetIdentityHTTPTimeout() time.Duration
	GetIdentityMaxRetries() int
}

var _ IdentityConfig = EnvVars{}

// GetIdentityBaseURL is the issuer URL of the identity backend; discovery is done against it.
func (e EnvVars) GetIdentityBaseURL() string {
	return e.IdentityBaseURL
}

func (e EnvVars) GetIdentityClientID() string {
	return e.IdentityClientID
}

func (e EnvVars) GetIdentityScopes() []string {
	return e.IdentityScopes
}

func (e EnvVars) GetIdentityHTTPTimeout() time.Duration {
	if e.IdentityHTTPTimeout <= 0 {
		return 30 * time.Second
	}
	return e.IdentityHTTPTimeout
}

func (e EnvVars) GetIdentityMaxRetries() int {
	return e.IdentityMaxRetries
}
