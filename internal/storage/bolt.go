package storage

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/jrsteele09/fixit-auth/exchange"
	"github.com/jrsteele09/fixit-auth/flowstate"
	"github.com/jrsteele09/fixit-auth/session"
	bolt "go.etcd.io/bbolt"
)

const (
	dirPerm     = fs.FileMode(0o700)
	filePerm    = fs.FileMode(0o600)
	openTimeout = 5 * time.Second
)

var (
	authBucket   = []byte("auth")
	sessionKey   = []byte("session")
	flowsBucket  = []byte("pkce_flows")
	ledgerBucket = []byte("code_ledger")
)

// DB persists the backend session, pending PKCE flows and the ledger of
// redeemed authorization codes in a bbolt file so all survive a restart.
type DB struct {
	db *bolt.DB
}

var (
	_ flowstate.Repo  = (*DB)(nil)
	_ exchange.Ledger = (*DB)(nil)
)

// Open opens (or creates) the database at path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	db, err := bolt.Open(path, filePerm, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening storage db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{authBucket, flowsBucket, ledgerBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing storage db: %w", err)
	}

	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// LoadSession returns the persisted session, or nil when signed out.
func (d *DB) LoadSession() (*session.Session, error) {
	var sess *session.Session
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(authBucket).Get(sessionKey)
		if v == nil {
			return nil
		}
		sess = &session.Session{}
		return json.Unmarshal(v, sess)
	})
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	return sess, nil
}

func (d *DB) SaveSession(sess *session.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(authBucket).Put(sessionKey, data)
	})
}

func (d *DB) DeleteSession() error {
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(authBucket).Delete(sessionKey)
	})
}

func (d *DB) Upsert(flow *flowstate.Flow) error {
	if flow == nil || flow.State == "" {
		return fmt.Errorf("flow state cannot be empty")
	}
	data, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("encoding flow: %w", err)
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(flowsBucket).Put([]byte(flow.State), data)
	})
}

func (d *DB) Get(state string) (*flowstate.Flow, error) {
	var flow *flowstate.Flow
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(flowsBucket).Get([]byte(state))
		if v == nil {
			return flowstate.ErrFlowNotFound
		}
		flow = &flowstate.Flow{}
		return json.Unmarshal(v, flow)
	})
	return flow, err
}

func (d *DB) Latest() (*flowstate.Flow, error) {
	var latest *flowstate.Flow
	err := d.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(flowsBucket).ForEach(func(_, v []byte) error {
			var flow flowstate.Flow
			if err := json.Unmarshal(v, &flow); err != nil {
				return err
			}
			if latest == nil || flow.CreatedAt.After(latest.CreatedAt) {
				latest = &flow
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("scanning flows: %w", err)
	}
	if latest == nil {
		return nil, flowstate.ErrFlowNotFound
	}
	return latest, nil
}

func (d *DB) Delete(state string) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(flowsBucket).Delete([]byte(state))
	})
}

func (d *DB) DeleteExpired(cutoff time.Time) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(flowsBucket)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var flow flowstate.Flow
			if err := json.Unmarshal(v, &flow); err != nil {
				return err
			}
			if flow.CreatedAt.Before(cutoff) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Claim records a code digest with its claim time. It reports false for a
// digest already present, however old.
func (d *DB) Claim(digest string, at time.Time) (bool, error) {
	stamp, err := at.UTC().MarshalBinary()
	if err != nil {
		return false, fmt.Errorf("encoding claim time: %w", err)
	}
	first := false
	err = d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(ledgerBucket)
		if b.Get([]byte(digest)) != nil {
			return nil
		}
		first = true
		return b.Put([]byte(digest), stamp)
	})
	if err != nil {
		return false, fmt.Errorf("claiming code: %w", err)
	}
	return first, nil
}

func (d *DB) Claimed(digest string) (bool, error) {
	claimed := false
	err := d.db.View(func(tx *bolt.Tx) error {
		claimed = tx.Bucket(ledgerBucket).Get([]byte(digest)) != nil
		return nil
	})
	return claimed, err
}

// Prune removes digests claimed before cutoff.
func (d *DB) Prune(cutoff time.Time) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(ledgerBucket)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var at time.Time
			if err := at.UnmarshalBinary(v); err != nil {
				return fmt.Errorf("decoding claim time: %w", err)
			}
			if at.Before(cutoff) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}
