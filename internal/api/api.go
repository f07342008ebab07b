/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the management HTTP surface: content and schedule
// CRUD, playback status, log queries and the websocket event stream.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	ws "nhooyr.io/websocket"

	"github.com/friendsincode/vidar_signage/internal/catalog"
	"github.com/friendsincode/vidar_signage/internal/events"
	"github.com/friendsincode/vidar_signage/internal/logbuffer"
	"github.com/friendsincode/vidar_signage/internal/models"
	"github.com/friendsincode/vidar_signage/internal/player"
	"github.com/friendsincode/vidar_signage/internal/schedule"
	"github.com/friendsincode/vidar_signage/internal/telemetry"
	"github.com/friendsincode/vidar_signage/internal/version"
)

// EventStream is the subscription side of the event bus.
type EventStream interface {
	Subscribe(eventType events.EventType) events.Subscriber
	Unsubscribe(eventType events.EventType, sub events.Subscriber)
}

// API exposes HTTP handlers.
type API struct {
	catalog   *catalog.Catalog
	session   *player.Session
	bus       EventStream
	logBuffer *logbuffer.Buffer
	logger    zerolog.Logger
}

// New creates the API router wrapper.
func New(cat *catalog.Catalog, session *player.Session, bus EventStream, logBuf *logbuffer.Buffer, logger zerolog.Logger) *API {
	return &API{
		catalog:   cat,
		session:   session,
		bus:       bus,
		logBuffer: logBuf,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

type contentRequest struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Location string `json:"location"`
	Duration int    `json:"duration_seconds"`
	Hash     string `json:"hash"`
}

type durationRequest struct {
	Duration int `json:"duration_seconds"`
}

type playlistRequest struct {
	ContentIDs []string `json:"content_ids"`
}

type scheduleRequest struct {
	Name       string   `json:"name"`
	ContentIDs []string `json:"content_ids"`
	StartRule  string   `json:"start_rule"`
	EndRule    string   `json:"end_rule"`
	Enabled    bool     `json:"enabled"`
	Priority   int      `json:"priority"`
}

// Routes mounts API routes on the provided router.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)
		r.Get("/status", a.handleStatus)

		r.Route("/content", func(r chi.Router) {
			r.Get("/", a.handleContentList)
			r.Post("/", a.handleContentCreate)
			r.Route("/{contentID}", func(r chi.Router) {
				r.Get("/", a.handleContentGet)
				r.Delete("/", a.handleContentDelete)
				r.Patch("/duration", a.handleContentSetDuration)
			})
		})

		r.Route("/playlist", func(r chi.Router) {
			r.Get("/", a.handlePlaylistGet)
			r.Put("/", a.handlePlaylistSet)
		})

		r.Route("/schedules", func(r chi.Router) {
			r.Get("/", a.handleSchedulesList)
			r.Post("/", a.handleScheduleCreate)
			r.Route("/{scheduleID}", func(r chi.Router) {
				r.Put("/", a.handleScheduleUpdate)
				r.Delete("/", a.handleScheduleDelete)
			})
		})

		r.Route("/logs", func(r chi.Router) {
			r.Get("/", a.handleLogs)
			r.Get("/components", a.handleLogComponents)
			r.Get("/stats", a.handleLogStats)
			r.Delete("/", a.handleClearLogs)
		})

		r.Get("/events", a.handleEvents)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	state := a.session.Snapshot()

	resp := map[string]any{
		"state": state.State,
		"since": state.Since,
	}
	if state.ContentID != "" {
		if content, ok := a.catalog.Content(state.ContentID); ok {
			resp["now_playing"] = content
		} else {
			resp["now_playing"] = map[string]string{"content_id": state.ContentID}
		}
	}
	resp["content_count"] = len(a.catalog.ListContent())
	resp["schedule_count"] = len(a.catalog.ListSchedules())
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleContentList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.catalog.ListContent())
}

func (a *API) handleContentCreate(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Location == "" {
		writeError(w, http.StatusBadRequest, "location_required")
		return
	}

	content, err := a.catalog.AddContent(models.Content{
		Name:     req.Name,
		Kind:     models.ContentKind(req.Kind),
		Location: req.Location,
		Duration: req.Duration,
		Hash:     req.Hash,
	})
	if err != nil {
		a.logger.Warn().Err(err).Msg("content create rejected")
		writeError(w, http.StatusBadRequest, "invalid_content")
		return
	}
	writeJSON(w, http.StatusCreated, content)
}

func (a *API) handleContentGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "contentID")
	content, ok := a.catalog.Content(id)
	if !ok {
		writeError(w, http.StatusNotFound, "content_not_found")
		return
	}
	writeJSON(w, http.StatusOK, content)
}

func (a *API) handleContentDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "contentID")
	if err := a.catalog.RemoveContent(id); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "content_not_found")
			return
		}
		a.logger.Error().Err(err).Str("content_id", id).Msg("content delete failed")
		writeError(w, http.StatusInternalServerError, "delete_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (a *API) handleContentSetDuration(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "contentID")
	var req durationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if err := a.catalog.SetContentDuration(id, req.Duration); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "content_not_found")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_duration")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (a *API) handlePlaylistGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"content_ids": a.catalog.DefaultRotation(),
	})
}

func (a *API) handlePlaylistSet(w http.ResponseWriter, r *http.Request) {
	var req playlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	a.catalog.SetDefaultRotation(req.ContentIDs)
	writeJSON(w, http.StatusOK, map[string]any{
		"content_ids": a.catalog.DefaultRotation(),
	})
}

func (a *API) handleSchedulesList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.catalog.ListSchedules())
}

func (a *API) handleScheduleCreate(w http.ResponseWriter, r *http.Request) {
	a.upsertSchedule(w, r, "")
}

func (a *API) handleScheduleUpdate(w http.ResponseWriter, r *http.Request) {
	a.upsertSchedule(w, r, chi.URLParam(r, "scheduleID"))
}

func (a *API) upsertSchedule(w http.ResponseWriter, r *http.Request, id string) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	// No rules means always active while enabled; rule validation happens
	// in the catalog.
	s, err := a.catalog.UpsertSchedule(models.Schedule{
		ID:         id,
		Name:       req.Name,
		ContentIDs: req.ContentIDs,
		StartRule:  req.StartRule,
		EndRule:    req.EndRule,
		Enabled:    req.Enabled,
		Priority:   req.Priority,
	})
	if err != nil {
		if errors.Is(err, schedule.ErrInvalidRule) {
			writeError(w, http.StatusBadRequest, "invalid_rule")
			return
		}
		a.logger.Error().Err(err).Msg("schedule upsert failed")
		writeError(w, http.StatusInternalServerError, "upsert_failed")
		return
	}

	status := http.StatusOK
	if id == "" {
		status = http.StatusCreated
	}
	writeJSON(w, status, s)
}

func (a *API) handleScheduleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "scheduleID")
	if err := a.catalog.RemoveSchedule(id); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "schedule_not_found")
			return
		}
		a.logger.Error().Err(err).Str("schedule_id", id).Msg("schedule delete failed")
		writeError(w, http.StatusInternalServerError, "delete_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (a *API) handleLogs(w http.ResponseWriter, r *http.Request) {
	if a.logBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "log_buffer_unavailable")
		return
	}

	params := logbuffer.QueryParams{
		Level:      r.URL.Query().Get("level"),
		Component:  r.URL.Query().Get("component"),
		Search:     r.URL.Query().Get("search"),
		Descending: true, // Default to newest first
	}

	if since := r.URL.Query().Get("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			params.Since = t
		}
	}

	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			params.Limit = n
		}
	} else {
		params.Limit = 500
	}

	if order := r.URL.Query().Get("order"); order == "asc" {
		params.Descending = false
	}

	entries := a.logBuffer.Query(params)
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func (a *API) handleLogComponents(w http.ResponseWriter, r *http.Request) {
	if a.logBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "log_buffer_unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"components": a.logBuffer.Components(),
	})
}

func (a *API) handleLogStats(w http.ResponseWriter, r *http.Request) {
	if a.logBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "log_buffer_unavailable")
		return
	}
	writeJSON(w, http.StatusOK, a.logBuffer.Stats())
}

func (a *API) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	if a.logBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "log_buffer_unavailable")
		return
	}
	a.logBuffer.Clear()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.APIWebSocketConnections.Inc()
	defer telemetry.APIWebSocketConnections.Dec()

	eventTypes := parseEventTypes(r.URL.Query().Get("types"))
	if len(eventTypes) == 0 {
		eventTypes = events.All()
	}

	subscribers := make([]events.Subscriber, 0, len(eventTypes))
	for _, eventType := range eventTypes {
		subscribers = append(subscribers, a.bus.Subscribe(eventType))
	}
	defer func() {
		for i, eventType := range eventTypes {
			a.bus.Unsubscribe(eventType, subscribers[i])
		}
	}()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "context cancelled")
			return
		case <-ticker.C:
			if err := conn.Write(ctx, ws.MessageText, []byte(`{"type":"ping"}`)); err != nil {
				a.logger.Error().Err(err).Msg("websocket ping failed")
				conn.Close(ws.StatusInternalError, "write failed")
				return
			}
		default:
			sent := false
			for i, sub := range subscribers {
				select {
				case payload, ok := <-sub:
					if !ok {
						// Pruned by the bus for not keeping up; a
						// closed channel is always ready, so the
						// stream must end here rather than spin.
						a.logger.Warn().Str("event_type", string(eventTypes[i])).Msg("event subscription dropped, closing stream")
						conn.Close(ws.StatusTryAgainLater, "subscription dropped")
						return
					}
					if err := a.writeEvent(r, conn, eventTypes[i], payload); err != nil {
						a.logger.Error().Err(err).Msg("websocket write failed")
						conn.Close(ws.StatusInternalError, "write failed")
						return
					}
					sent = true
				default:
				}
			}
			if !sent {
				time.Sleep(100 * time.Millisecond)
			}
		}
	}
}

func (a *API) writeEvent(r *http.Request, conn *ws.Conn, eventType events.EventType, payload events.Payload) error {
	data := map[string]any{
		"type":    eventType,
		"payload": payload,
	}
	bytes, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return conn.Write(r.Context(), ws.MessageText, bytes)
}

func parseEventTypes(raw string) []events.EventType {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]events.EventType, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, events.EventType(part))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
