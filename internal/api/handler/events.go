package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seevents/event-notifier/internal/api/respond"
	"github.com/seevents/event-notifier/internal/cache"
	"github.com/seevents/event-notifier/internal/notifications"
)

// Cache key prefixes. cmd/notifier drops the ledger prefix after a cycle
// that sent anything.
const (
	AudienceCachePrefix = "audience:"
	LedgerCachePrefix   = "ledger:"
)

// TriggerScan requests an immediate notification cycle.
// @Summary Trigger a scan
// @Description Queues one extra cycle on the scheduler. Never runs concurrently with a scheduled cycle; requests made while one is already pending are coalesced.
// @Tags scheduler
// @Produce json
// @Success 202 {object} map[string]interface{}
// @Router /api/v1/scan [post]
func (h *Handler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	queued := h.deps.Scheduler.Trigger()
	h.logger.Info("Scan requested via API", "queued", queued)
	respond.WriteJSONObject(w, http.StatusAccepted, map[string]any{
		"queued":    queued,
		"coalesced": !queued,
		"running":   h.deps.Scheduler.Status().Running,
	})
}

type audienceEvent struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	CommunityID *int64 `json:"community_id"`
	Active      bool   `json:"active"`
	Deleted     bool   `json:"deleted"`
}

type audienceMember struct {
	UserID   string   `json:"user_id"`
	HasToken bool     `json:"has_token"`
	Reasons  []string `json:"reasons"`
}

type audienceResponse struct {
	Event      audienceEvent              `json:"event"`
	Eligible   bool                       `json:"eligible"`
	InWindow   bool                       `json:"in_window"`
	Audience   int                        `json:"audience"`
	Tokens     int                        `json:"tokens"`
	Notified   bool                       `json:"notified"`
	Ledger     *notifications.LedgerEntry `json:"ledger,omitempty"`
	Recipients []audienceMember           `json:"recipients"`
}

// GetAudience previews who would be notified for an event.
// @Summary Preview an event's audience
// @Description Resolves the deduplicated audience (going, category preference, community) and counts usable push tokens. Never dispatches and never writes the ledger.
// @Tags events
// @Produce json
// @Param eventID path int true "Event ID"
// @Success 200 {object} map[string]interface{}
// @Success 304 "Not modified"
// @Failure 400 {object} respond.ErrorResponse
// @Failure 404 {object} respond.ErrorResponse
// @Failure 500 {object} respond.ErrorResponse
// @Router /api/v1/events/{eventID}/audience [get]
func (h *Handler) GetAudience(w http.ResponseWriter, r *http.Request) {
	eventID, ok := parseEventID(w, r)
	if !ok {
		return
	}

	cacheKey := fmt.Sprintf("%s%d", AudienceCachePrefix, eventID)
	ttl := cache.TTLAudience
	if h.serveCached(w, r, cacheKey, ttl) {
		return
	}

	pv, err := h.deps.Previewer.Preview(r.Context(), eventID)
	if errors.Is(err, notifications.ErrEventNotFound) {
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("Event %d not found", eventID))
		return
	}
	if err != nil {
		h.logger.Error("Audience preview failed", "event_id", eventID, "error", err)
		respond.WriteErrorDetail(w, http.StatusInternalServerError, "PREVIEW_FAILED", "Failed to resolve audience", err.Error())
		return
	}

	resp := audienceResponse{
		Event: audienceEvent{
			ID:          pv.Event.ID,
			Name:        pv.Event.Name,
			Category:    pv.Event.Category,
			StartTime:   pv.Event.StartTime.UTC().Format(time.RFC3339),
			EndTime:     pv.Event.EndTime.UTC().Format(time.RFC3339),
			CommunityID: pv.Event.CommunityID,
			Active:      pv.Event.Active,
			Deleted:     pv.Event.Deleted,
		},
		Eligible:   pv.Eligible,
		InWindow:   pv.InWindow,
		Audience:   len(pv.Recipients),
		Tokens:     pv.Tokens,
		Notified:   pv.Ledger != nil,
		Ledger:     pv.Ledger,
		Recipients: make([]audienceMember, 0, len(pv.Recipients)),
	}
	for _, rc := range pv.Recipients {
		resp.Recipients = append(resp.Recipients, audienceMember{
			UserID:   rc.ID,
			HasToken: rc.PushToken != "",
			Reasons:  rc.Reasons.Names(),
		})
	}

	h.writeCached(w, cacheKey, resp, ttl)
}

// GetLedgerEntry reports whether an event's start notification went out.
// @Summary Look up the notification ledger
// @Description Returns the ledger entry for an event, or notified=false when the event has not been notified.
// @Tags events
// @Produce json
// @Param eventID path int true "Event ID"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Failure 500 {object} respond.ErrorResponse
// @Router /api/v1/ledger/{eventID} [get]
func (h *Handler) GetLedgerEntry(w http.ResponseWriter, r *http.Request) {
	eventID, ok := parseEventID(w, r)
	if !ok {
		return
	}

	cacheKey := fmt.Sprintf("%s%d", LedgerCachePrefix, eventID)
	ttl := cache.TTLLedger
	if h.serveCached(w, r, cacheKey, ttl) {
		return
	}

	entry, err := h.deps.Ledger.Lookup(r.Context(), eventID)
	if err != nil {
		h.logger.Error("Ledger lookup failed", "event_id", eventID, "error", err)
		respond.WriteErrorDetail(w, http.StatusInternalServerError, "LEDGER_FAILED", "Failed to read ledger", err.Error())
		return
	}

	h.writeCached(w, cacheKey, map[string]any{
		"event_id": eventID,
		"notified": entry != nil,
		"entry":    entry,
	}, ttl)
}

func (h *Handler) serveCached(w http.ResponseWriter, r *http.Request, key string, ttl time.Duration) bool {
	data, etag, ok := h.cache.Get(key)
	if !ok {
		return false
	}
	if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
		respond.WriteNotModified(w, etag)
		return true
	}
	respond.WriteJSON(w, data, etag, ttl, true)
	return true
}

func (h *Handler) writeCached(w http.ResponseWriter, key string, v any, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "ENCODE_FAILED", "Failed to encode response")
		return
	}
	etag := h.cache.Set(key, data, ttl)
	respond.WriteJSON(w, data, etag, ttl, false)
}

func parseEventID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "eventID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_EVENT_ID", "eventID must be a positive integer")
		return 0, false
	}
	return id, true
}
