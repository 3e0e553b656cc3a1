package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ignite/table-engine/internal/pkg/httputil"
)

// HealthStatus represents the overall health of the system.
type HealthStatus struct {
	Status  string                    `json:"status"` // "healthy", "degraded"
	Version string                    `json:"version"`
	Uptime  string                    `json:"uptime"`
	Checks  map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck represents the health of a single component.
type ComponentCheck struct {
	Status  string `json:"status"` // "up", "down", "not_configured"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

const healthVersion = "1.0.0"

// handleHealth reports the service uptime and the state of optional
// backends. The service stays "healthy" with backends unconfigured;
// a configured backend that is down degrades it.
//
//	GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]ComponentCheck{
		"redis": s.checkRedis(r.Context()),
	}

	status := "healthy"
	for _, check := range checks {
		if check.Status == "down" {
			status = "degraded"
		}
	}

	httputil.OK(w, HealthStatus{
		Status:  status,
		Version: healthVersion,
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
		Checks:  checks,
	})
}

func (s *Server) checkRedis(ctx context.Context) ComponentCheck {
	if s.redisClient == nil {
		return ComponentCheck{Status: "not_configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	if err := s.redisClient.Ping(ctx).Err(); err != nil {
		return ComponentCheck{Status: "down", Message: err.Error()}
	}
	return ComponentCheck{
		Status:  "up",
		Latency: fmt.Sprintf("%dms", time.Since(start).Milliseconds()),
	}
}
