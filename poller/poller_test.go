package poller_test

import (
	"context"
	"testing"
	"time"

	"github.com/jrsteele09/fixit-auth/identity/identityfake"
	"github.com/jrsteele09/fixit-auth/internal/config"
	"github.com/jrsteele09/fixit-auth/internal/errors"
	"github.com/jrsteele09/fixit-auth/poller"
	"github.com/jrsteele09/fixit-auth/session"
	"github.com/stretchr/testify/require"
)

type pollFixture struct {
	backend *identityfake.FakeBackend
	store   *session.Store
	sleeps  []time.Duration
	poller  *poller.Poller
}

func setupPoller(t *testing.T, options ...poller.Option) *pollFixture {
	t.Helper()
	f := &pollFixture{
		backend: identityfake.NewFakeBackend(),
		store:   session.NewStore(),
	}
	t.Cleanup(f.store.Close)

	options = append([]poller.Option{
		poller.WithConfig(config.EnvVars{}),
		poller.WithSleep(func(ctx context.Context, d time.Duration) error {
			f.sleeps = append(f.sleeps, d)
			return ctx.Err()
		}),
	}, options...)

	p, err := poller.New(f.backend, f.store, options...)
	require.NoError(t, err)
	f.poller = p
	return f
}

func testSession(access string) *session.Session {
	return &session.Session{AccessToken: access, RefreshToken: "r", UserID: "user-1"}
}

func TestPoll_TimesOutAfterExactlyTwentyAttempts(t *testing.T) {
	f := setupPoller(t)

	res, err := f.poller.Poll(context.Background(), 0)
	require.ErrorIs(t, err, errors.ErrPollTimeout)
	require.Equal(t, 20, res.Attempts)
	require.Equal(t, 20, f.backend.GetSessionCalls())
	require.Len(t, f.sleeps, 20)
	for _, d := range f.sleeps {
		require.Equal(t, time.Second, d)
	}
}

func TestPoll_ReturnsFirstSession(t *testing.T) {
	f := setupPoller(t)
	f.backend.OnGetSession = func(call int) (*session.Session, error) {
		if call < 5 {
			return nil, nil
		}
		return testSession("a1"), nil
	}

	res, err := f.poller.Poll(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 5, res.Attempts)
	require.False(t, res.Superseded)
	require.Equal(t, "a1", res.Session.AccessToken)
	require.Equal(t, 5, f.backend.GetSessionCalls())
}

func TestPoll_BackendErrorsCountAsAttempts(t *testing.T) {
	f := setupPoller(t, poller.WithMaxAttempts(3))
	f.backend.OnGetSession = func(int) (*session.Session, error) {
		return nil, errors.New("network down")
	}

	res, err := f.poller.Poll(context.Background(), 0)
	require.ErrorIs(t, err, errors.ErrPollTimeout)
	require.Equal(t, 3, res.Attempts)
}

func TestPoll_AbortsWhenStoreHasFresherSession(t *testing.T) {
	f := setupPoller(t)
	ctx := context.Background()
	baseline := f.store.Snapshot().Version

	f.backend.OnGetSession = func(call int) (*session.Session, error) {
		if call == 3 {
			// another path commits while we are polling
			_, _, err := f.store.Commit(ctx, testSession("from-listener"))
			require.NoError(t, err)
		}
		return nil, nil
	}

	res, err := f.poller.Poll(ctx, baseline)
	require.NoError(t, err)
	require.True(t, res.Superseded)
	require.Equal(t, "from-listener", res.Session.AccessToken)
	require.Equal(t, 3, f.backend.GetSessionCalls())
	require.Len(t, f.sleeps, 3)
}

func TestPoll_IgnoresSessionAtBaseline(t *testing.T) {
	f := setupPoller(t, poller.WithMaxAttempts(2))
	ctx := context.Background()

	_, _, err := f.store.Commit(ctx, testSession("old"))
	require.NoError(t, err)

	_, err = f.poller.Poll(ctx, f.store.Snapshot().Version)
	require.ErrorIs(t, err, errors.ErrPollTimeout)
}

func TestPoll_Cancelled(t *testing.T) {
	f := setupPoller(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.poller.Poll(ctx, 0)
	require.ErrorIs(t, err, errors.ErrAttemptAborted)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, f.backend.GetSessionCalls())
}

func TestPoll_RealTimer(t *testing.T) {
	backend := identityfake.NewFakeBackend()
	store := session.NewStore()
	t.Cleanup(store.Close)

	p, err := poller.New(backend, store, poller.WithInterval(5*time.Millisecond), poller.WithMaxAttempts(3))
	require.NoError(t, err)

	start := time.Now()
	_, err = p.Poll(context.Background(), 0)
	require.ErrorIs(t, err, errors.ErrPollTimeout)
	require.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestNew_Validation(t *testing.T) {
	store := session.NewStore()
	t.Cleanup(store.Close)

	_, err := poller.New(nil, store)
	require.Error(t, err)

	_, err = poller.New(identityfake.NewFakeBackend(), nil)
	require.Error(t, err)

	_, err = poller.New(identityfake.NewFakeBackend(), store, poller.WithMaxAttempts(0))
	require.ErrorIs(t, err, errors.ErrConfiguration)
}
