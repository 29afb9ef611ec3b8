package authcache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenServer(t *testing.T, calls *int32, delay time.Duration) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(calls, 1)
		if delay > 0 {
			time.Sleep(delay)
		}

		var req tokenRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "client_credentials", req.GrantType)

		json.NewEncoder(w).Encode(tokenResponse{
			AccessToken: fmt.Sprintf("token-%d", n),
			TokenType:   "Bearer",
			ExpiresIn:   86400,
		})
	}))
}

func TestTokenCachedAcrossLookups(t *testing.T) {
	var calls int32
	srv := tokenServer(t, &calls, 0)
	defer srv.Close()

	cache := New(10, time.Minute)
	creds := Credentials{ClientID: "id", ClientSecret: "secret", Audience: "https://tenant/api/v2/"}

	first, err := cache.Token(context.Background(), srv.URL, creds)
	require.NoError(t, err)

	second, err := cache.Token(context.Background(), srv.URL, creds)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, 1, cache.Len())
}

func TestTokenSingleFlight(t *testing.T) {
	var calls int32
	srv := tokenServer(t, &calls, 100*time.Millisecond)
	defer srv.Close()

	cache := New(10, time.Minute)
	creds := Credentials{ClientID: "id", ClientSecret: "secret"}

	var wg sync.WaitGroup
	tokens := make([]string, 5)
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = cache.Token(context.Background(), srv.URL, creds)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, tok := range tokens {
		assert.Equal(t, tokens[0], tok)
	}
}

func TestTokenWinnerCancellationDoesNotFailOthers(t *testing.T) {
	var calls int32
	srv := tokenServer(t, &calls, 150*time.Millisecond)
	defer srv.Close()

	cache := New(10, time.Minute)
	creds := Credentials{ClientID: "id", ClientSecret: "secret"}

	ctx, cancel := context.WithCancel(context.Background())
	winner := make(chan error, 1)
	go func() {
		_, err := cache.Token(ctx, srv.URL, creds)
		winner <- err
	}()

	// Let the winner start the acquisition, join it, then cancel the
	// winner mid-flight.
	time.Sleep(30 * time.Millisecond)
	var joined string
	joinedErr := make(chan error, 1)
	go func() {
		var err error
		joined, err = cache.Token(context.Background(), srv.URL, creds)
		joinedErr <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	require.NoError(t, <-joinedErr)
	assert.Equal(t, "token-1", joined)
	<-winner
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, 1, cache.Len())
}

func TestTokenExpiryTriggersReacquisition(t *testing.T) {
	var calls int32
	srv := tokenServer(t, &calls, 0)
	defer srv.Close()

	cache := New(10, 50*time.Millisecond)
	creds := Credentials{ClientID: "id", ClientSecret: "secret"}

	_, err := cache.Token(context.Background(), srv.URL, creds)
	require.NoError(t, err)

	time.Sleep(120 * time.Millisecond)

	_, err = cache.Token(context.Background(), srv.URL, creds)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFailedAcquisitionNotCached(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: "token-ok"})
	}))
	defer srv.Close()

	cache := New(10, time.Minute)
	creds := Credentials{ClientID: "id", ClientSecret: "bad"}

	_, err := cache.Token(context.Background(), srv.URL, creds)
	require.Error(t, err)

	var acqErr *AcquisitionError
	require.ErrorAs(t, err, &acqErr)
	assert.Equal(t, http.StatusUnauthorized, acqErr.StatusCode)
	assert.Zero(t, cache.Len())

	tok, err := cache.Token(context.Background(), srv.URL, creds)
	require.NoError(t, err)
	assert.Equal(t, "token-ok", tok)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestMalformedTokenResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token_type":"Bearer"}`))
	}))
	defer srv.Close()

	cache := New(10, time.Minute)
	_, err := cache.Token(context.Background(), srv.URL, Credentials{})

	var acqErr *AcquisitionError
	require.ErrorAs(t, err, &acqErr)
	assert.Zero(t, cache.Len())
}

func TestCapacityEviction(t *testing.T) {
	var calls int32
	srv := tokenServer(t, &calls, 0)
	defer srv.Close()

	cache := New(2, time.Minute)
	for i := 0; i < 3; i++ {
		_, err := cache.Token(context.Background(), fmt.Sprintf("%s/%d", srv.URL, i), Credentials{})
		require.NoError(t, err)
	}

	assert.Equal(t, 2, cache.Len())

	// The oldest key was evicted, so looking it up again re-acquires.
	_, err := cache.Token(context.Background(), srv.URL+"/0", Credentials{})
	require.NoError(t, err)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}
