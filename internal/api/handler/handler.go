// Package handler provides HTTP handlers for the notifier's ops API.
// Handlers talk to the scheduler and pipeline through small interfaces so
// they can be served from cmd/notifier and tested with fakes.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/seevents/event-notifier/internal/api/respond"
	"github.com/seevents/event-notifier/internal/cache"
	"github.com/seevents/event-notifier/internal/notifications"
)

// Version is reported at / and in the swagger document.
const Version = "1.0.0"

// Pinger checks database connectivity.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// Scheduler is the part of notifications.Scheduler the API uses.
type Scheduler interface {
	Trigger() bool
	Status() notifications.SchedulerStatus
}

// Previewer resolves one event's audience without dispatching.
type Previewer interface {
	Preview(ctx context.Context, eventID int64) (*notifications.Preview, error)
}

// LedgerReader looks up whether an event was notified.
type LedgerReader interface {
	Lookup(ctx context.Context, eventID int64) (*notifications.LedgerEntry, error)
}

// Deps are the collaborators the handlers need.
type Deps struct {
	DB        Pinger
	Scheduler Scheduler
	Previewer Previewer
	Ledger    LedgerReader
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	deps   Deps
	cache  *cache.Cache
	logger *slog.Logger
}

// New creates a Handler with shared dependencies.
func New(deps Deps, c *cache.Cache, logger *slog.Logger) *Handler {
	return &Handler{deps: deps, cache: c, logger: logger}
}

// Root serves API info at /.
// @Summary API root info
// @Description Returns service name, version, status, and docs location.
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"name":    "Event Start Notifier",
		"version": Version,
		"status":  "running",
		"docs":    "/docs",
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Description Returns basic health status and timestamp.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
// @Summary Database health check
// @Description Verifies Postgres connectivity.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/db [get]
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.DB.HealthCheck(r.Context()); err != nil {
		h.logger.Warn("Database health check failed", "error", err)
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]any{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckScheduler reports the scan loop state and the last cycle.
// @Summary Scheduler health check
// @Description Returns whether a cycle is running, when the next one is due, and the last cycle's counters. Unhealthy when the last cycle failed.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/scheduler [get]
func (h *Handler) HealthCheckScheduler(w http.ResponseWriter, r *http.Request) {
	st := h.deps.Scheduler.Status()
	body := map[string]any{
		"status":    "healthy",
		"scheduler": st,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if st.Last != nil {
		body["last_cycle"] = cycleView(st.Last)
	}

	status := http.StatusOK
	if st.LastError != "" {
		body["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}
	respond.WriteJSONObject(w, status, body)
}

// HealthCheckCache returns cache statistics.
// @Summary Cache health check
// @Description Returns in-memory cache statistics (active keys, expired keys).
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/cache [get]
func (h *Handler) HealthCheckCache(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"cache":     h.cache.Stats(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type cycleSummary struct {
	CycleID      string   `json:"cycle_id"`
	StartedAt    string   `json:"started_at"`
	DurationMS   int64    `json:"duration_ms"`
	EventsFound  int      `json:"events_found"`
	Sent         int      `json:"sent"`
	Skipped      int      `json:"skipped"`
	NoAudience   int      `json:"no_audience"`
	NoTokens     int      `json:"no_tokens"`
	Failed       int      `json:"failed"`
	TokensSent   int      `json:"tokens_sent"`
	TokensFailed int      `json:"tokens_failed"`
	Errors       []string `json:"errors,omitempty"`
}

func cycleView(r *notifications.CycleResult) cycleSummary {
	return cycleSummary{
		CycleID:      r.CycleID,
		StartedAt:    r.StartedAt.UTC().Format(time.RFC3339),
		DurationMS:   r.Duration.Milliseconds(),
		EventsFound:  r.EventsFound,
		Sent:         r.Sent,
		Skipped:      r.Skipped,
		NoAudience:   r.NoAudience,
		NoTokens:     r.NoTokens,
		Failed:       r.Failed,
		TokensSent:   r.TokensSent,
		TokensFailed: r.TokensFailed,
		Errors:       r.Errors,
	}
}
