package storage

import (
	"sync"

	"github.com/jrsteele09/fixit-auth/exchange"
	"github.com/jrsteele09/fixit-auth/flowstate"
	"github.com/jrsteele09/fixit-auth/session"
)

// Memory keeps the backend session, flows and code ledger in process memory.
// Everything is lost on restart, so it is meant for tests.
type Memory struct {
	*flowstate.InMemoryRepo
	*exchange.InMemoryLedger

	mu      sync.RWMutex
	session *session.Session
}

func NewMemory() *Memory {
	return &Memory{
		InMemoryRepo:   flowstate.NewInMemoryRepo(),
		InMemoryLedger: exchange.NewInMemoryLedger(),
	}
}

func (m *Memory) LoadSession() (*session.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return nil, nil
	}
	c := *m.session
	return &c, nil
}

func (m *Memory) SaveSession(sess *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *sess
	m.session = &c
	return nil
}

func (m *Memory) DeleteSession() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}
