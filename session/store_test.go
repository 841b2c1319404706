package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/fixit-auth/internal/errors"
	"github.com/jrsteele09/fixit-auth/session"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *session.Store {
	t.Helper()
	s := session.NewStore()
	t.Cleanup(s.Close)
	return s
}

func testSession(user, access string) *session.Session {
	return &session.Session{
		AccessToken:  access,
		RefreshToken: "refresh-" + access,
		UserID:       user,
		ExpiresAt:    time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestSession_Validate(t *testing.T) {
	require.NoError(t, testSession("u1", "a1").Validate())

	var nilSession *session.Session
	require.ErrorIs(t, nilSession.Validate(), errors.ErrInvalidSession)
	require.ErrorIs(t, (&session.Session{UserID: "u1"}).Validate(), errors.ErrInvalidSession)
	require.ErrorIs(t, (&session.Session{AccessToken: "a1", UserID: "  "}).Validate(), errors.ErrInvalidSession)
}

func TestSession_Expired(t *testing.T) {
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &session.Session{AccessToken: "a", UserID: "u", ExpiresAt: now.Add(time.Minute)}

	require.False(t, s.Expired(now, 0))
	require.True(t, s.Expired(now, time.Minute))
	require.False(t, (&session.Session{}).Expired(now, time.Hour))
}

func TestStore_CommitNotifiesOnce(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	first := testSession("u1", "a1")
	_, _, err := s.Commit(ctx, first)
	require.NoError(t, err)

	var got []session.Snapshot
	unsubscribe := s.Subscribe(func(snap session.Snapshot) {
		got = append(got, snap)
	})
	defer unsubscribe()

	second := testSession("u1", "a2")
	snap, changed, err := s.Commit(ctx, second)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, uint64(2), snap.Version)

	require.Len(t, got, 1)
	require.True(t, got[0].Session.Equal(second))
	require.Equal(t, uint64(2), got[0].Version)

	current := s.Current()
	require.True(t, current.Equal(second))
	require.False(t, current.Equal(first))
}

func TestStore_CommitSameSessionIsNotAChange(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	notifications := 0
	s.Subscribe(func(session.Snapshot) { notifications++ })

	_, changed, err := s.Commit(ctx, testSession("u1", "a1"))
	require.NoError(t, err)
	require.True(t, changed)

	snap, changed, err := s.Commit(ctx, testSession("u1", "a1"))
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, uint64(1), snap.Version)
	require.Equal(t, 1, notifications)
}

func TestStore_CommitRejectsInvalidSession(t *testing.T) {
	s := newStore(t)

	_, _, err := s.Commit(context.Background(), &session.Session{AccessToken: "a1"})
	require.ErrorIs(t, err, errors.ErrInvalidSession)
	require.Equal(t, uint64(0), s.Snapshot().Version)
}

func TestStore_Clear(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, changed, err := s.Clear(ctx)
	require.NoError(t, err)
	require.False(t, changed, "clearing an empty store is not a change")

	_, _, err = s.Commit(ctx, testSession("u1", "a1"))
	require.NoError(t, err)

	var got []session.Snapshot
	s.Subscribe(func(snap session.Snapshot) { got = append(got, snap) })

	snap, changed, err := s.Clear(ctx)
	require.NoError(t, err)
	require.True(t, changed)
	require.Nil(t, snap.Session)
	require.Nil(t, s.Current())
	require.Len(t, got, 1)
	require.Nil(t, got[0].Session)
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	s := newStore(t)
	_, _, err := s.Commit(context.Background(), testSession("u1", "a1"))
	require.NoError(t, err)

	snap := s.Snapshot()
	snap.Session.AccessToken = "tampered"

	require.Equal(t, "a1", s.Current().AccessToken)
}

func TestStore_Unsubscribe(t *testing.T) {
	s := newStore(t)

	calls := 0
	unsubscribe := s.Subscribe(func(session.Snapshot) { calls++ })
	unsubscribe()
	unsubscribe()

	_, _, err := s.Commit(context.Background(), testSession("u1", "a1"))
	require.NoError(t, err)
	require.Zero(t, calls)
}

func TestStore_ConcurrentWritersSerialise(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	var mu sync.Mutex
	var versions []uint64
	s.Subscribe(func(snap session.Snapshot) {
		mu.Lock()
		versions = append(versions, snap.Version)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := s.Commit(ctx, testSession("u1", string(rune('a'+i))))
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	require.Len(t, versions, 20)
	for i, v := range versions {
		require.Equal(t, uint64(i+1), v)
	}
	require.Equal(t, uint64(20), s.Snapshot().Version)
}

func TestStore_Closed(t *testing.T) {
	s := session.NewStore()
	s.Close()
	s.Close()

	_, _, err := s.Commit(context.Background(), testSession("u1", "a1"))
	require.ErrorIs(t, err, errors.ErrStoreClosed)
}
