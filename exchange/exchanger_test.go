package exchange_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/fixit-auth/callback"
	"github.com/jrsteele09/fixit-auth/exchange"
	"github.com/jrsteele09/fixit-auth/identity/identityfake"
	"github.com/jrsteele09/fixit-auth/identity/identitymock"
	"github.com/jrsteele09/fixit-auth/internal/errors"
	"github.com/jrsteele09/fixit-auth/internal/storage"
	"github.com/jrsteele09/fixit-auth/session"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func testSession() *session.Session {
	return &session.Session{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		UserID:       "user-1",
		ExpiresAt:    time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestExchange_AuthorizationCodeOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := identitymock.NewMockBackend(ctrl)
	backend.EXPECT().ExchangeCodeForSession(gomock.Any(), "ABC123", "").Return(testSession(), nil).Times(1)

	e, err := exchange.New(backend)
	require.NoError(t, err)

	res, err := e.Exchange(context.Background(), callback.AuthorizationCode("ABC123"))
	require.NoError(t, err)
	require.False(t, res.AlreadySettled)
	require.Equal(t, "user-1", res.Session.UserID)

	res, err = e.Exchange(context.Background(), callback.AuthorizationCode("ABC123"))
	require.NoError(t, err, "a repeated code is already settled, not an error")
	require.True(t, res.AlreadySettled)
	require.Nil(t, res.Session)
}

func TestExchange_RejectedCodeIsStillConsumed(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := identitymock.NewMockBackend(ctrl)
	backend.EXPECT().ExchangeCodeForSession(gomock.Any(), "expired", "").Return(nil, errors.New("invalid_grant")).Times(1)

	e, err := exchange.New(backend)
	require.NoError(t, err)

	_, err = e.Exchange(context.Background(), callback.AuthorizationCode("expired"))
	require.ErrorIs(t, err, errors.ErrExchange)
	require.ErrorContains(t, err, "invalid_grant")

	res, err := e.Exchange(context.Background(), callback.AuthorizationCode("expired"))
	require.NoError(t, err)
	require.True(t, res.AlreadySettled)
}

func TestExchange_ConcurrentObserversShareOneCall(t *testing.T) {
	backend := identityfake.NewFakeBackend()
	backend.AddCode("C1", testSession())
	backend.ExchangeGate = make(chan struct{})

	e, err := exchange.New(backend)
	require.NoError(t, err)

	const observers = 8
	results := make([]exchange.Result, observers)
	errs := make([]error, observers)

	var wg sync.WaitGroup
	for i := 0; i < observers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.Exchange(context.Background(), callback.AuthorizationCode("C1"))
		}(i)
	}

	require.Eventually(t, func() bool { return backend.ExchangeCalls("C1") == 1 }, time.Second, time.Millisecond)
	close(backend.ExchangeGate)
	wg.Wait()

	require.Equal(t, 1, backend.ExchangeCalls("C1"))
	for i := 0; i < observers; i++ {
		require.NoError(t, errs[i])
		if !results[i].AlreadySettled {
			require.Equal(t, "user-1", results[i].Session.UserID)
		}
	}
}

func TestExchange_TokenPair(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := identitymock.NewMockBackend(ctrl)
	backend.EXPECT().SetSession(gomock.Any(), "T1", "T2").Return(testSession(), nil)
	backend.EXPECT().ExchangeCodeForSession(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	e, err := exchange.New(backend)
	require.NoError(t, err)

	res, err := e.Exchange(context.Background(), callback.TokenPair("T1", "T2"))
	require.NoError(t, err)
	require.Equal(t, "access-1", res.Session.AccessToken)
}

func TestExchange_TokenPairRejected(t *testing.T) {
	backend := identityfake.NewFakeBackend()
	e, err := exchange.New(backend)
	require.NoError(t, err)

	_, err = e.Exchange(context.Background(), callback.TokenPair("revoked", "T2"))
	require.ErrorIs(t, err, errors.ErrExchange)
	require.ErrorIs(t, err, errors.ErrInvalidToken)
}

func TestExchange_InvalidCredential(t *testing.T) {
	e, err := exchange.New(identityfake.NewFakeBackend())
	require.NoError(t, err)

	_, err = e.Exchange(context.Background(), callback.Credential{})
	require.ErrorIs(t, err, errors.ErrExchange)

	_, err = e.Exchange(context.Background(), callback.AuthorizationCode(""))
	require.ErrorIs(t, err, errors.ErrExchange)

	_, err = e.Exchange(context.Background(), callback.TokenPair("T1", ""))
	require.ErrorIs(t, err, errors.ErrExchange)
}

func TestNew_RequiresBackend(t *testing.T) {
	_, err := exchange.New(nil)
	require.Error(t, err)
}

func TestExchange_CodeStaysSettledAfterCleanup(t *testing.T) {
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	backend := identityfake.NewFakeBackend()
	backend.AddCode("C1", testSession())

	ledger := exchange.NewInMemoryLedger()
	e, err := exchange.New(backend,
		exchange.WithLedger(ledger),
		exchange.WithLedgerRetention(24*time.Hour),
		exchange.WithNowTime(clock),
	)
	require.NoError(t, err)

	_, err = e.Exchange(context.Background(), callback.AuthorizationCode("C1"))
	require.NoError(t, err)

	now = now.Add(11 * time.Minute)
	e.Cleanup()
	require.Equal(t, 1, ledger.Len())

	res, err := e.Exchange(context.Background(), callback.AuthorizationCode("C1"))
	require.NoError(t, err)
	require.True(t, res.AlreadySettled)
	require.Equal(t, 1, backend.ExchangeCalls("C1"))

	// Only claims past retention are pruned.
	now = now.Add(25 * time.Hour)
	e.Cleanup()
	require.Zero(t, ledger.Len())
}

func TestExchange_CodeStaysSettledAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.db")
	backend := identityfake.NewFakeBackend()
	backend.AddCode("C1", testSession())

	db, err := storage.Open(path)
	require.NoError(t, err)
	e, err := exchange.New(backend, exchange.WithLedger(db))
	require.NoError(t, err)
	_, err = e.Exchange(context.Background(), callback.AuthorizationCode("C1"))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = storage.Open(path)
	require.NoError(t, err)
	defer db.Close()
	e, err = exchange.New(backend, exchange.WithLedger(db))
	require.NoError(t, err)

	res, err := e.Exchange(context.Background(), callback.AuthorizationCode("C1"))
	require.NoError(t, err)
	require.True(t, res.AlreadySettled)
	require.Equal(t, 1, backend.ExchangeCalls("C1"))
}

func TestExchange_PassesCallbackState(t *testing.T) {
	backend := identityfake.NewFakeBackend()
	backend.AddCode("C1", testSession())

	e, err := exchange.New(backend)
	require.NoError(t, err)

	cred := callback.AuthorizationCode("C1")
	cred.State = "flow-1"
	_, err = e.Exchange(context.Background(), cred)
	require.NoError(t, err)
	require.Equal(t, "flow-1", backend.LastExchangeState())
}

type brokenLedger struct{}

func (brokenLedger) Claim(string, time.Time) (bool, error) { return false, errors.New("disk full") }
func (brokenLedger) Claimed(string) (bool, error)          { return false, errors.New("disk full") }
func (brokenLedger) Prune(time.Time) error                 { return errors.New("disk full") }

func TestExchange_UnrecordedClaimIsNotRedeemed(t *testing.T) {
	backend := identityfake.NewFakeBackend()
	backend.AddCode("C1", testSession())

	e, err := exchange.New(backend, exchange.WithLedger(brokenLedger{}))
	require.NoError(t, err)

	_, err = e.Exchange(context.Background(), callback.AuthorizationCode("C1"))
	require.ErrorIs(t, err, errors.ErrExchange)
	require.Zero(t, backend.ExchangeCalls("C1"))
}

func TestInMemoryLedger_Claim(t *testing.T) {
	ledger := exchange.NewInMemoryLedger()
	t0 := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	d1, d2 := exchange.CodeDigest("C1"), exchange.CodeDigest("C2")
	require.NotEqual(t, d1, d2)

	first, err := ledger.Claim(d1, t0)
	require.NoError(t, err)
	require.True(t, first)

	first, err = ledger.Claim(d1, t0.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, first)

	first, err = ledger.Claim(d2, t0.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, first)

	require.NoError(t, ledger.Prune(t0.Add(time.Minute)))
	claimed, err := ledger.Claimed(d1)
	require.NoError(t, err)
	require.False(t, claimed)
	claimed, err = ledger.Claimed(d2)
	require.NoError(t, err)
	require.True(t, claimed)
}
