package api

import (
	"net/http"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/table-engine/internal/config"
	"github.com/ignite/table-engine/internal/pkg/httputil"
)

func TestRateLimit(t *testing.T) {
	mini := miniredis.RunT(t)

	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Redis.Enabled = true
		cfg.Redis.Addr = mini.Addr()
		cfg.Redis.RatePerMinute = 2
	})
	s.redisClient = redis.NewClient(&redis.Options{Addr: mini.Addr()})
	s.router = SetupRoutes(s)
	s.handler = s.router

	for i := 0; i < 2; i++ {
		rec := postIntake(t, s, "/webhook/v1/intake/acme?sync=true", nil)
		require.Equal(t, http.StatusOK, rec.Code, "request %d within the window", i+1)
	}

	rec := postIntake(t, s, "/webhook/v1/intake/acme?sync=true", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	var resp httputil.ErrorResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "rate_limited", resp.ErrorCode)
}

func TestRateLimitFailsOpen(t *testing.T) {
	mini := miniredis.RunT(t)
	addr := mini.Addr()

	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Redis.Enabled = true
		cfg.Redis.RatePerMinute = 1
	})
	s.redisClient = redis.NewClient(&redis.Options{Addr: addr})
	s.router = SetupRoutes(s)
	s.handler = s.router

	mini.Close()

	rec := postIntake(t, s, "/webhook/v1/intake/acme?sync=true", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "limiter outage does not block intake")
}
