package storage_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/fixit-auth/exchange"
	"github.com/jrsteele09/fixit-auth/flowstate"
	"github.com/jrsteele09/fixit-auth/internal/storage"
	"github.com/jrsteele09/fixit-auth/session"
	"github.com/stretchr/testify/require"
)

type sessionStorage interface {
	LoadSession() (*session.Session, error)
	SaveSession(*session.Session) error
	DeleteSession() error
	flowstate.Repo
	exchange.Ledger
}

func openBolt(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "nested", "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestStorage(t *testing.T) {
	backends := map[string]func(t *testing.T) sessionStorage{
		"bolt":   func(t *testing.T) sessionStorage { return openBolt(t) },
		"memory": func(t *testing.T) sessionStorage { return storage.NewMemory() },
	}

	for name, open := range backends {
		t.Run(name+" session", func(t *testing.T) {
			s := open(t)

			got, err := s.LoadSession()
			require.NoError(t, err)
			require.Nil(t, got)

			want := &session.Session{
				AccessToken:  "a1",
				RefreshToken: "r1",
				UserID:       "u1",
				ExpiresAt:    time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
			}
			require.NoError(t, s.SaveSession(want))

			got, err = s.LoadSession()
			require.NoError(t, err)
			require.True(t, want.Equal(got))

			require.NoError(t, s.DeleteSession())
			got, err = s.LoadSession()
			require.NoError(t, err)
			require.Nil(t, got)
		})

		t.Run(name+" flows", func(t *testing.T) {
			s := open(t)
			t0 := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

			require.NoError(t, s.Upsert(&flowstate.Flow{State: "s1", CodeVerifier: "v1", CreatedAt: t0}))
			require.NoError(t, s.Upsert(&flowstate.Flow{State: "s2", CodeVerifier: "v2", CreatedAt: t0.Add(time.Minute)}))

			latest, err := s.Latest()
			require.NoError(t, err)
			require.Equal(t, "v2", latest.CodeVerifier)

			require.NoError(t, s.DeleteExpired(t0.Add(time.Second)))
			_, err = s.Get("s1")
			require.ErrorIs(t, err, flowstate.ErrFlowNotFound)

			require.NoError(t, s.Delete("s2"))
			_, err = s.Latest()
			require.ErrorIs(t, err, flowstate.ErrFlowNotFound)
		})

		t.Run(name+" code ledger", func(t *testing.T) {
			s := open(t)
			t0 := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
			d1, d2 := exchange.CodeDigest("C1"), exchange.CodeDigest("C2")

			first, err := s.Claim(d1, t0)
			require.NoError(t, err)
			require.True(t, first)

			first, err = s.Claim(d1, t0.Add(time.Hour))
			require.NoError(t, err)
			require.False(t, first, "a claimed code is never claimable again")

			first, err = s.Claim(d2, t0.Add(time.Hour))
			require.NoError(t, err)
			require.True(t, first)

			require.NoError(t, s.Prune(t0.Add(time.Minute)))
			claimed, err := s.Claimed(d1)
			require.NoError(t, err)
			require.False(t, claimed)
			claimed, err = s.Claimed(d2)
			require.NoError(t, err)
			require.True(t, claimed)
		})
	}
}

func TestBolt_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.db")

	db, err := storage.Open(path)
	require.NoError(t, err)
	require.NoError(t, db.SaveSession(&session.Session{AccessToken: "a1", UserID: "u1"}))
	require.NoError(t, db.Upsert(&flowstate.Flow{State: "s1", CodeVerifier: "v1", CreatedAt: time.Now()}))
	first, err := db.Claim(exchange.CodeDigest("C1"), time.Now())
	require.NoError(t, err)
	require.True(t, first)
	require.NoError(t, db.Close())

	db, err = storage.Open(path)
	require.NoError(t, err)
	defer db.Close()

	sess, err := db.LoadSession()
	require.NoError(t, err)
	require.Equal(t, "u1", sess.UserID)

	flow, err := db.Get("s1")
	require.NoError(t, err)
	require.Equal(t, "v1", flow.CodeVerifier)

	first, err = db.Claim(exchange.CodeDigest("C1"), time.Now())
	require.NoError(t, err)
	require.False(t, first, "claims survive a restart")
}
