package httpclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/fixit-auth/internal/httpclient"
	"github.com/stretchr/testify/require"
)

func TestNew_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := httpclient.New(time.Second, httpclient.WithRetryWait(time.Millisecond, 2*time.Millisecond))
	resp, err := c.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, int32(3), calls.Load())
}

func TestNew_DoesNotRetryClientErrors(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusTooManyRequests} {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(status)
		}))

		c := httpclient.New(time.Second, httpclient.WithRetryWait(time.Millisecond, 2*time.Millisecond))
		resp, err := c.Get(srv.URL)
		require.NoError(t, err)
		resp.Body.Close()
		srv.Close()

		require.Equal(t, status, resp.StatusCode)
		require.Equal(t, int32(1), calls.Load())
	}
}

func TestSingleAttempt_TokenRedemptionNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := httpclient.New(time.Second, httpclient.WithRetryWait(time.Millisecond, 2*time.Millisecond))
	form := url.Values{"grant_type": {"authorization_code"}, "code": {"C1"}}
	ctx := httpclient.SingleAttempt(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, srv.URL+"/token", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	require.Equal(t, int32(1), calls.Load())
}
