package api

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ignite/table-engine/internal/pkg/httputil"
	"github.com/ignite/table-engine/internal/pkg/logger"
)

// rateLimit is a fixed-window per-IP limiter backed by redis. Windows
// are one minute wide; the first hit in a window sets the expiry. When
// redis itself is unreachable the request is let through, an outage of
// the limiter must not take the intake surface down with it.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		window := time.Now().Unix() / 60
		key := s.cfg.Redis.KeyPrefix + ":" + ip + ":" + strconv.FormatInt(window, 10)

		count, err := s.redisClient.Incr(r.Context(), key).Result()
		if err != nil {
			logger.Warn("rate limiter unavailable", "error", err.Error())
			next.ServeHTTP(w, r)
			return
		}
		if count == 1 {
			s.redisClient.Expire(r.Context(), key, time.Minute)
		}
		if count > int64(s.cfg.Redis.RatePerMinute) {
			w.Header().Set("Retry-After", "60")
			httputil.Error(w, http.StatusTooManyRequests, "rate_limited",
				"too many requests from this address", "retry after the current window expires")
			return
		}
		next.ServeHTTP(w, r)
	})
}
