package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/jamstermayne/conference-party-microservice-sub017/internal/graph"
	"github.com/jamstermayne/conference-party-microservice-sub017/internal/identity"
	"github.com/jamstermayne/conference-party-microservice-sub017/internal/match"
	"github.com/jamstermayne/conference-party-microservice-sub017/internal/meeting"
	"github.com/jamstermayne/conference-party-microservice-sub017/internal/scan"
	"github.com/jamstermayne/conference-party-microservice-sub017/internal/storage"
)

// Handler holds dependencies for HTTP handlers and sequences calls into the
// engine components. Transport concerns beyond this (auth, CORS, rate
// limiting) belong to the surrounding gateway.
type Handler struct {
	dedup      *scan.Deduplicator
	aggregator *graph.Aggregator
	matcher    *match.Engine
	scheduler  *meeting.Scheduler
	directory  identity.Directory
	hotspots   *graph.HotspotTracker
	logger     *zap.Logger

	matchLimit   int
	retryBudget  int
	retryBackoff time.Duration
}

// Options tunes boundary behavior.
type Options struct {
	DefaultMatchLimit int
	RetryAttempts     int
	RetryBaseBackoff  time.Duration
}

// NewHandler creates a new API handler.
func NewHandler(
	dedup *scan.Deduplicator,
	aggregator *graph.Aggregator,
	matcher *match.Engine,
	scheduler *meeting.Scheduler,
	directory identity.Directory,
	hotspots *graph.HotspotTracker,
	opts Options,
	logger *zap.Logger,
) *Handler {
	if opts.DefaultMatchLimit <= 0 {
		opts.DefaultMatchLimit = 10
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	if opts.RetryBaseBackoff <= 0 {
		opts.RetryBaseBackoff = 50 * time.Millisecond
	}
	return &Handler{
		dedup:        dedup,
		aggregator:   aggregator,
		matcher:      matcher,
		scheduler:    scheduler,
		directory:    directory,
		hotspots:     hotspots,
		logger:       logger,
		matchLimit:   opts.DefaultMatchLimit,
		retryBudget:  opts.RetryAttempts,
		retryBackoff: opts.RetryBaseBackoff,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		r.Post("/scans", h.processScan)
		r.Post("/webhooks/scan", h.scanWebhook)
		r.Post("/ingest", h.ingestBatch)

		r.Get("/attendees/{actorID}/matches", h.calculateMatches)
		r.Post("/matches/calculate", h.calculateAll)

		r.Post("/meetings", h.scheduleMeeting)
		r.Get("/meetings/{meetingID}", h.getMeeting)
		r.Post("/meetings/{meetingID}/accept", h.meetingEvent(h.scheduler.Accept))
		r.Post("/meetings/{meetingID}/decline", h.meetingEvent(h.scheduler.Decline))
		r.Post("/meetings/{meetingID}/withdraw", h.meetingEvent(h.scheduler.Withdraw))
		r.Post("/meetings/{meetingID}/cancel", h.meetingEvent(h.scheduler.Cancel))
		r.Post("/meetings/{meetingID}/complete", h.meetingEvent(h.scheduler.Complete))

		r.Get("/hotspots", h.getHotspots)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}

type scanResponse struct {
	Accepted bool        `json:"accepted"`
	Reason   string      `json:"reason,omitempty"`
	Edge     *graph.Edge `json:"edge,omitempty"`
}

// ingestScan runs the dedup → aggregate pipeline for one scan. The scan id
// is released if the edge write fails, so a retried delivery can succeed.
func (h *Handler) ingestScan(r *http.Request, ev *scan.Event) (*scanResponse, error) {
	ctx := r.Context()
	var resp *scanResponse
	err := withRetry(ctx, h.retryBudget, h.retryBackoff, func() error {
		res, err := h.dedup.Ingest(ctx, ev)
		if err != nil {
			return err
		}
		if !res.Accepted {
			resp = &scanResponse{Accepted: false, Reason: res.Reason}
			return nil
		}
		edge, err := h.aggregator.Apply(ctx, ev)
		if err != nil {
			h.dedup.Release(ctx, ev.ScanID)
			return err
		}
		resp = &scanResponse{Accepted: true, Edge: edge}
		return nil
	})
	return resp, err
}

func (h *Handler) processScan(w http.ResponseWriter, r *http.Request) {
	var ev scan.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	resp, err := h.ingestScan(r, &ev)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, resp)
}

func (h *Handler) scanWebhook(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "unreadable payload")
		return
	}
	ev, err := scan.ParseWebhook(raw)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	resp, err := h.ingestScan(r, ev)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, resp)
}

// ingestItem is one element of a bulk ingest batch: an attendee profile or a
// scan event, tagged by type.
type ingestItem struct {
	Type     string             `json:"type"`
	Attendee *identity.Attendee `json:"attendee,omitempty"`
	Scan     *scan.Event        `json:"scan,omitempty"`
}

type ingestResponse struct {
	Count    int      `json:"count"`
	Rejected []string `json:"rejected"`
}

func (h *Handler) ingestBatch(w http.ResponseWriter, r *http.Request) {
	var items []ingestItem
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	ctx := r.Context()
	resp := ingestResponse{Rejected: []string{}}
	var accepted []*scan.Event

	reject := func(format string, args ...interface{}) {
		resp.Rejected = append(resp.Rejected, fmt.Sprintf(format, args...))
	}

	for i, item := range items {
		switch item.Type {
		case "attendee":
			if item.Attendee == nil || item.Attendee.ActorID == "" {
				reject("item %d: attendee requires actor_id", i)
				continue
			}
			if err := h.directory.Upsert(ctx, item.Attendee); err != nil {
				h.releaseAll(ctx, accepted)
				h.writeDomainError(w, err)
				return
			}
			resp.Count++
		case "scan":
			if item.Scan == nil {
				reject("item %d: missing scan body", i)
				continue
			}
			res, err := h.dedup.Ingest(ctx, item.Scan)
			if err != nil {
				if errors.Is(err, scan.ErrInvalidScan) {
					reject("item %d: %v", i, err)
					continue
				}
				h.releaseAll(ctx, accepted)
				h.writeDomainError(w, err)
				return
			}
			if !res.Accepted {
				reject("item %d: %s", i, res.Reason)
				continue
			}
			accepted = append(accepted, item.Scan)
		default:
			reject("item %d: unknown type %q", i, item.Type)
		}
	}

	// Edges for the whole batch commit atomically or not at all.
	if err := h.aggregator.ApplyBatch(ctx, accepted); err != nil {
		h.releaseAll(ctx, accepted)
		h.writeDomainError(w, err)
		return
	}
	resp.Count += len(accepted)
	writeData(w, http.StatusOK, resp)
}

func (h *Handler) releaseAll(ctx context.Context, events []*scan.Event) {
	for _, ev := range events {
		h.dedup.Release(ctx, ev.ScanID)
	}
}

func (h *Handler) calculateMatches(w http.ResponseWriter, r *http.Request) {
	actorID := chi.URLParam(r, "actorID")
	limit := h.matchLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_input", "limit must be a positive integer")
			return
		}
		limit = n
	}

	var scores []*match.Score
	err := withRetry(r.Context(), h.retryBudget, h.retryBackoff, func() error {
		var err error
		scores, err = h.matcher.Calculate(r.Context(), actorID, limit)
		return err
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]interface{}{
		"subject_id": actorID,
		"calculated": len(scores),
		"results":    scores,
	})
}

func (h *Handler) calculateAll(w http.ResponseWriter, r *http.Request) {
	var results []*match.ActorMatches
	err := withRetry(r.Context(), h.retryBudget, h.retryBackoff, func() error {
		var err error
		results, err = h.matcher.CalculateAll(r.Context(), h.matchLimit)
		return err
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]interface{}{
		"calculated": len(results),
		"results":    results,
	})
}

type scheduleRequest struct {
	RequesterID string       `json:"requester_id"`
	TargetID    string       `json:"target_id"`
	Slot        meeting.Slot `json:"proposed_slot"`
	Venue       string       `json:"venue,omitempty"`
}

func (h *Handler) scheduleMeeting(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	idemKey := r.Header.Get("Idempotency-Key")

	propose := func() error {
		m, err := h.scheduler.Propose(r.Context(), req.RequesterID, req.TargetID, req.Slot, req.Venue, idemKey)
		if err != nil {
			return err
		}
		writeData(w, http.StatusCreated, m)
		return nil
	}

	var err error
	if idemKey != "" {
		// Replays are safe only with a client-supplied idempotency key.
		err = withRetry(r.Context(), h.retryBudget, h.retryBackoff, propose)
	} else {
		err = propose()
	}
	if err != nil {
		h.writeDomainError(w, err)
	}
}

func (h *Handler) getMeeting(w http.ResponseWriter, r *http.Request) {
	m, err := h.scheduler.Get(r.Context(), chi.URLParam(r, "meetingID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, m)
}

type meetingEventRequest struct {
	ActorID string `json:"actor_id"`
}

type transitionFunc func(ctx context.Context, meetingID, actorID string) (*meeting.Meeting, error)

func (h *Handler) meetingEvent(fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req meetingEventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
			return
		}
		if req.ActorID == "" {
			writeError(w, http.StatusBadRequest, "invalid_input", "actor_id is required")
			return
		}
		m, err := fn(r.Context(), chi.URLParam(r, "meetingID"), req.ActorID)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		writeData(w, http.StatusOK, m)
	}
}

func (h *Handler) getHotspots(w http.ResponseWriter, r *http.Request) {
	if h.hotspots == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "hotspot tracking disabled")
		return
	}
	writeData(w, http.StatusOK, h.hotspots.Snapshot())
}

// writeDomainError maps engine error kinds onto the response envelope.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scan.ErrInvalidScan),
		errors.Is(err, scan.ErrSelfScan),
		errors.Is(err, meeting.ErrInvalidSlot),
		errors.Is(err, meeting.ErrInvalidParticipants):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, identity.ErrNotFound),
		errors.Is(err, meeting.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, meeting.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, meeting.ErrInvalidTransition):
		writeError(w, http.StatusUnprocessableEntity, "invalid_transition", err.Error())
	case errors.Is(err, storage.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
	default:
		h.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeData(w http.ResponseWriter, status int, v interface{}) {
	writeJSON(w, status, envelope{Success: true, Data: v})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, envelope{Success: false, Error: &apiError{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
