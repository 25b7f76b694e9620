package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func keyGenerator() *rapid.Generator[string] {
	return rapid.StringMatching(`[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}`)
}

// =============================================================================
// Property: requests within the burst succeed, the next one fails
// =============================================================================

func testLimiter_BurstThenDeny(t *rapid.T) {
	burst := rapid.IntRange(1, 50).Draw(t, "burst")
	l := New(Config{RPS: 0.001, Burst: burst, CleanupInterval: time.Hour})
	defer l.Stop()

	key := keyGenerator().Draw(t, "key")
	for i := 0; i < burst; i++ {
		if !l.Allow(key) {
			t.Fatalf("request %d of burst %d denied", i+1, burst)
		}
	}
	if l.Allow(key) {
		t.Fatalf("request past burst %d allowed", burst)
	}
}

func TestLimiter_BurstThenDeny(t *testing.T) {
	rapid.Check(t, testLimiter_BurstThenDeny)
}

// =============================================================================
// Property: keys do not share buckets
// =============================================================================

func testLimiter_KeysIndependent(t *rapid.T) {
	l := New(Config{RPS: 0.001, Burst: 1, CleanupInterval: time.Hour})
	defer l.Stop()

	a := keyGenerator().Draw(t, "a")
	b := keyGenerator().Filter(func(s string) bool { return s != a }).Draw(t, "b")

	if !l.Allow(a) {
		t.Fatal("first request for a denied")
	}
	if l.Allow(a) {
		t.Fatal("second request for a allowed")
	}
	if !l.Allow(b) {
		t.Fatal("exhausting a denied b")
	}
}

func TestLimiter_KeysIndependent(t *testing.T) {
	rapid.Check(t, testLimiter_KeysIndependent)
}

func TestLimiter_CleanupDropsIdle(t *testing.T) {
	l := New(Config{RPS: 10, Burst: 10, CleanupInterval: time.Minute})
	defer l.Stop()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	l.Allow("old")
	now = now.Add(2 * time.Minute)
	l.Allow("fresh")

	l.Cleanup()
	require.Equal(t, 1, l.Len())
}

func TestLimiter_StopTwice(t *testing.T) {
	l := New(DefaultConfig)
	l.Stop()
	l.Stop()
}

func TestLimiter_ConcurrentAllow(t *testing.T) {
	l := New(Config{RPS: 0.001, Burst: 25, CleanupInterval: time.Hour})
	defer l.Stop()

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared") {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 25, allowed.Load())
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.1.2.3:55123"
	require.Equal(t, "10.1.2.3", ClientIP(r))

	r.RemoteAddr = "pipe"
	require.Equal(t, "pipe", ClientIP(r))
}

func TestMiddleware_Returns429(t *testing.T) {
	l := New(Config{RPS: 0.001, Burst: 2, CleanupInterval: time.Hour})
	defer l.Stop()

	var served int
	h := Middleware(l, ClientIP)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served++
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/Home/BuscarClientes", nil))
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests {
			require.Equal(t, "1", rec.Header().Get("Retry-After"))
			require.Contains(t, rec.Body.String(), `"success":false`)
		}
	}
	require.Equal(t, []int{200, 200, 429}, codes)
	require.Equal(t, 2, served)
}

func TestMiddleware_EmptyKeyPasses(t *testing.T) {
	l := New(Config{RPS: 0.001, Burst: 1, CleanupInterval: time.Hour})
	defer l.Stop()

	h := Middleware(l, func(*http.Request) string { return "" })(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	require.Zero(t, l.Len())
}
