package flowstate

import (
	"sync"
	"time"

	"github.com/jrsteele09/fixit-auth/internal/errors"
)

var ErrFlowNotFound = errors.Wrapf(errors.ErrNotFound, "flow")

// InMemoryRepo is a thread-safe in-memory implementation of the Repo interface
type InMemoryRepo struct {
	mu    sync.RWMutex
	flows map[string]*Flow
}

var _ Repo = (*InMemoryRepo)(nil)

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		flows: make(map[string]*Flow),
	}
}

// Upsert stores or updates a flow
func (r *InMemoryRepo) Upsert(flow *Flow) error {
	if flow == nil {
		return errors.New("flow cannot be nil")
	}
	if flow.State == "" {
		return errors.New("state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Store a copy to prevent external modifications
	c := *flow
	r.flows[flow.State] = &c
	return nil
}

func (r *InMemoryRepo) Get(state string) (*Flow, error) {
	if state == "" {
		return nil, errors.New("state cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	flow, exists := r.flows[state]
	if !exists {
		return nil, ErrFlowNotFound
	}
	c := *flow
	return &c, nil
}

func (r *InMemoryRepo) Latest() (*Flow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *Flow
	for _, flow := range r.flows {
		if latest == nil || flow.CreatedAt.After(latest.CreatedAt) {
			latest = flow
		}
	}
	if latest == nil {
		return nil, ErrFlowNotFound
	}
	c := *latest
	return &c, nil
}

func (r *InMemoryRepo) Delete(state string) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.flows, state)
	return nil
}

func (r *InMemoryRepo) DeleteExpired(cutoff time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for state, flow := range r.flows {
		if flow.CreatedAt.Before(cutoff) {
			delete(r.flows, state)
		}
	}
	return nil
}
