package ratelimit

import (
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(rl *RateLimiter) *fiber.App {
	app := fiber.New()
	app.Use(rl.Middleware())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })
	return app
}

func TestMiddleware_RejectsAfterLimit(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 2})
	defer rl.Stop()
	app := newApp(rl)

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}

func TestMiddleware_SessionsHaveSeparateBuckets(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 1})
	defer rl.Stop()
	app := newApp(rl)

	for _, session := range []string{"a", "b"} {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Session-ID", session)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode, session)
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Session-ID", "a")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}

func TestAllow_Refills(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 60})
	defer rl.Stop()

	var mu sync.Mutex
	now := time.Unix(1000, 0)
	rl.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	for i := 0; i < 60; i++ {
		require.True(t, rl.allow("k"))
	}
	assert.False(t, rl.allow("k"))

	mu.Lock()
	now = now.Add(2 * time.Second)
	mu.Unlock()

	assert.True(t, rl.allow("k"))
	assert.True(t, rl.allow("k"))
	assert.False(t, rl.allow("k"))
}

func TestEvictIdle(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 10, CleanupInterval: time.Minute})
	defer rl.Stop()

	start := time.Unix(1000, 0)
	rl.now = func() time.Time { return start }
	rl.allow("stale")

	rl.now = func() time.Time { return start.Add(3 * time.Minute) }
	rl.allow("fresh")
	rl.evictIdle()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.buckets, "stale")
	assert.Contains(t, rl.buckets, "fresh")
}

func TestStop_WaitsForCleanup(t *testing.T) {
	rl := New(Config{})
	rl.Stop()
	rl.Stop()

	select {
	case <-rl.done:
	default:
		t.Fatal("cleanup goroutine still running after Stop")
	}
}
