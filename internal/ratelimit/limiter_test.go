package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClockedStore() (*MemoryStore, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	store := NewMemoryStore()
	store.now = clock.Now
	return store, clock
}

func newLimitedRouter(l *Limiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(l.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func hit(r http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = ip + ":12345"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareBlocksSixthRequestUntilWindowResets(t *testing.T) {
	store, clock := newClockedStore()
	router := newLimitedRouter(NewLimiter(store, time.Minute, 5, nil))

	for i := 1; i <= 5; i++ {
		rec := hit(router, "10.0.0.1")
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
		assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := hit(router, "10.0.0.1")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"Too many requests from this IP, please try again later."}`, rec.Body.String())
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// other clients keep their own window
	require.Equal(t, http.StatusOK, hit(router, "10.0.0.2").Code)

	clock.Advance(time.Minute)
	rec = hit(router, "10.0.0.1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestMemoryStoreConcurrentIncrements(t *testing.T) {
	store := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = store.Incr(context.Background(), "k", time.Minute)
		}()
	}
	wg.Wait()
	count, _, err := store.Incr(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(51), count)
}

func TestMemoryStoreSweepEvictsExpiredWindows(t *testing.T) {
	store, clock := newClockedStore()
	ctx := context.Background()
	_, _, _ = store.Incr(ctx, "old", time.Second)
	clock.Advance(500 * time.Millisecond)
	_, _, _ = store.Incr(ctx, "fresh", time.Second)
	clock.Advance(600 * time.Millisecond)

	assert.Equal(t, 1, store.sweep())
	store.mu.Lock()
	_, kept := store.entries["fresh"]
	store.mu.Unlock()
	assert.True(t, kept)
}

type failingStore struct{}

func (failingStore) Incr(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("connection refused")
}

func TestMiddlewareFailsOpenWhenStoreErrors(t *testing.T) {
	router := newLimitedRouter(NewLimiter(failingStore{}, time.Minute, 1, nil))
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, hit(router, "10.0.0.3").Code)
	}
}
