package reconcile

import (
	"time"

	"github.com/jrsteele09/fixit-auth/redirect"
	"github.com/jrsteele09/fixit-auth/session"
)

// State of a sign-in attempt.
type State int

const (
	StateIdle State = iota
	StateResolving
	StateLaunching
	StateAwaitingCallback
	StateBrowserDeferred
	StateParsing
	StateExchanging
	StatePolling
	StateVerifying
	StateSucceeded
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:             "Idle",
	StateResolving:        "Resolving",
	StateLaunching:        "Launching",
	StateAwaitingCallback: "AwaitingCallback",
	StateBrowserDeferred:  "BrowserDeferred",
	StateParsing:          "Parsing",
	StateExchanging:       "Exchanging",
	StatePolling:          "Polling",
	StateVerifying:        "Verifying",
	StateSucceeded:        "Succeeded",
	StateFailed:           "Failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "Unknown"
}

// Terminal reports whether a new attempt may start from s. BrowserDeferred is
// terminal: the page navigates away and resumption happens on reload.
func (s State) Terminal() bool {
	switch s {
	case StateIdle, StateBrowserDeferred, StateSucceeded, StateFailed:
		return true
	}
	return false
}

// Settled reports whether s is a final outcome.
func (s State) Settled() bool {
	return s == StateSucceeded || s == StateFailed
}

// Attempt is one run of the sign-in state machine.
type Attempt struct {
	ID          string
	Provider    string
	Platform    redirect.PlatformClass
	RedirectURL string
	State       State
	StartedAt   time.Time
}

// Result of an attempt. Err is nil only for StateSucceeded and StateBrowserDeferred
// and otherwise wraps exactly one settlement kind from internal/errors.
type Result struct {
	AttemptID string
	State     State
	Session   *session.Session
	Err       error
}
