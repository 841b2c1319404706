package flowstate

import "time"

// Flow is a pending federated sign-in: the PKCE verifier has to survive until
// the callback arrives, which may be after a cold start.
type Flow struct {
	State        string
	CodeVerifier string
	RedirectURL  string
	Provider     string
	CreatedAt    time.Time
}

type Repo interface {
	Upsert(flow *Flow) error
	Get(state string) (*Flow, error)
	// Latest returns the most recently created pending flow.
	Latest() (*Flow, error)
	Delete(state string) error
	// DeleteExpired removes flows created before cutoff.
	DeleteExpired(cutoff time.Time) error
}
