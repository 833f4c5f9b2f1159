package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

// HealthChecker probes one dependency. A failing optional checker marks the
// service degraded but keeps it ready.
type HealthChecker interface {
	Name() string
	Optional() bool
	Check(ctx context.Context) error
}

type probe struct {
	name     string
	optional bool
	fn       func(ctx context.Context) error
}

func (p probe) Name() string                    { return p.name }
func (p probe) Optional() bool                  { return p.optional }
func (p probe) Check(ctx context.Context) error { return p.fn(ctx) }

// NewChecker returns a checker whose failure fails readiness.
func NewChecker(name string, fn func(ctx context.Context) error) HealthChecker {
	return probe{name: name, fn: fn}
}

// NewOptionalChecker is for best-effort dependencies such as the proposal
// cache.
func NewOptionalChecker(name string, fn func(ctx context.Context) error) HealthChecker {
	return probe{name: name, optional: true, fn: fn}
}

const (
	statusReady    = "ready"
	statusDegraded = "degraded"
	statusNotReady = "not_ready"
)

// HealthHandler serves /healthz and /readyz.
type HealthHandler struct {
	checkers []HealthChecker
	version  string
	started  time.Time
	timeout  time.Duration
}

func NewHealthHandler(version string, checkers ...HealthChecker) *HealthHandler {
	return &HealthHandler{checkers: checkers, version: version, started: time.Now(), timeout: 5 * time.Second}
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

type ReadinessResponse struct {
	Status     string                    `json:"status"`
	Components map[string]ComponentCheck `json:"components,omitempty"`
}

type ComponentCheck struct {
	Status   string `json:"status"`
	Optional bool   `json:"optional,omitempty"`
	Latency  string `json:"latency,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status:  "alive",
		Version: h.version,
		Uptime:  time.Since(h.started).Truncate(time.Second).String(),
	})
}

// Readiness answers 503 only when a required checker fails.
func (h *HealthHandler) Readiness(c *gin.Context) {
	if len(h.checkers) == 0 {
		c.JSON(http.StatusOK, ReadinessResponse{Status: statusReady})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	resp := ReadinessResponse{Status: statusReady, Components: h.probeAll(ctx)}
	for _, cc := range resp.Components {
		if cc.Status == "healthy" {
			continue
		}
		if !cc.Optional {
			resp.Status = statusNotReady
			break
		}
		resp.Status = statusDegraded
	}

	code := http.StatusOK
	if resp.Status == statusNotReady {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}

func (h *HealthHandler) probeAll(ctx context.Context) map[string]ComponentCheck {
	var (
		mu  sync.Mutex
		g   errgroup.Group
		out = make(map[string]ComponentCheck, len(h.checkers))
	)
	for _, hc := range h.checkers {
		hc := hc
		g.Go(func() error {
			start := time.Now()
			err := hc.Check(ctx)
			cc := ComponentCheck{
				Status:   "healthy",
				Optional: hc.Optional(),
				Latency:  time.Since(start).Truncate(time.Microsecond).String(),
			}
			if err != nil {
				cc.Status, cc.Error = "unhealthy", err.Error()
			}
			mu.Lock()
			out[hc.Name()] = cc
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
