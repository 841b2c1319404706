package exchange

import (
	"encoding/hex"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Ledger remembers which authorization codes have been claimed for exchange.
// Codes are stored as BLAKE2b digests so raw codes never linger. A claimed
// digest can never be claimed again; only Prune removes it.
type Ledger interface {
	// Claim records digest and reports true if this caller is the first to claim it.
	Claim(digest string, at time.Time) (bool, error)
	Claimed(digest string) (bool, error)
	// Prune drops digests claimed before cutoff.
	Prune(cutoff time.Time) error
}

// CodeDigest is the ledger key for an authorization code.
func CodeDigest(code string) string {
	sum := blake2b.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// InMemoryLedger is a process-wide ledger. Claims are lost on restart; the
// app uses the bbolt-backed ledger in internal/storage.
type InMemoryLedger struct {
	claimed map[string]time.Time
	mu      sync.Mutex
}

var _ Ledger = (*InMemoryLedger)(nil)

func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{claimed: make(map[string]time.Time)}
}

func (l *InMemoryLedger) Claim(digest string, at time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.claimed[digest]; exists {
		return false, nil
	}
	l.claimed[digest] = at
	return true, nil
}

func (l *InMemoryLedger) Claimed(digest string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, exists := l.claimed[digest]
	return exists, nil
}

func (l *InMemoryLedger) Prune(cutoff time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for digest, at := range l.claimed {
		if at.Before(cutoff) {
			delete(l.claimed, digest)
		}
	}
	return nil
}

// Len returns the number of remembered codes.
func (l *InMemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.claimed)
}
