package flowstate_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/fixit-auth/flowstate"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRepo(t *testing.T) {
	r := flowstate.NewInMemoryRepo()
	t0 := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := r.Latest()
	require.ErrorIs(t, err, flowstate.ErrFlowNotFound)

	require.NoError(t, r.Upsert(&flowstate.Flow{State: "s1", CodeVerifier: "v1", CreatedAt: t0}))
	require.NoError(t, r.Upsert(&flowstate.Flow{State: "s2", CodeVerifier: "v2", CreatedAt: t0.Add(time.Minute)}))
	require.Error(t, r.Upsert(&flowstate.Flow{}))
	require.Error(t, r.Upsert(nil))

	f, err := r.Get("s1")
	require.NoError(t, err)
	require.Equal(t, "v1", f.CodeVerifier)

	f.CodeVerifier = "tampered"
	f, err = r.Get("s1")
	require.NoError(t, err)
	require.Equal(t, "v1", f.CodeVerifier)

	latest, err := r.Latest()
	require.NoError(t, err)
	require.Equal(t, "s2", latest.State)

	require.NoError(t, r.DeleteExpired(t0.Add(30*time.Second)))
	_, err = r.Get("s1")
	require.ErrorIs(t, err, flowstate.ErrFlowNotFound)

	require.NoError(t, r.Delete("s2"))
	_, err = r.Latest()
	require.ErrorIs(t, err, flowstate.ErrFlowNotFound)
}
