// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package api is the HTTP control interface of a runner.
//
//     GET  /status              {"status": "idle", "type": "func", "last": {...}}
//     GET  /filters/{type}      {"test/func/a.hjson": true, ...}
//     PUT  /filters/{type}      ["substring", ...]
//     POST /run                 {"type": "func", "parallel": false, "files": [...]}
//     GET  /history?limit=N     [{run}, ...]
//     GET  /history/{id}        {run}
//     GET  /log?from=N          websocket, replays from WAL index N then follows
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"

	"github.com/vdobler/tasty"
	"github.com/vdobler/tasty/history"
	"github.com/vdobler/tasty/logstream"
	"github.com/vdobler/tasty/runner"
)

// Handler serves the control API.
type Handler struct {
	runner  *runner.Runner
	history *history.Store
	stream  *logstream.Stream
	log     zerolog.Logger

	// ctx is the context of runs started through the API.
	ctx context.Context
}

// New returns a handler. History and stream may be nil.
func New(ctx context.Context, r *runner.Runner, h *history.Store, s *logstream.Stream) *Handler {
	return &Handler{
		runner:  r,
		history: h,
		stream:  s,
		log:     logger.With().Str("component", "api").Logger(),
		ctx:     ctx,
	}
}

// Router returns the routes of h.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/status", h.Status)
	r.Route("/filters/{type}", func(r chi.Router) {
		r.Get("/", h.GetFilters)
		r.Put("/", h.SetFilters)
	})
	r.Post("/run", h.Run)
	r.Get("/history", h.History)
	r.Get("/history/{id}", h.Record)
	r.Get("/log", h.Log)
	return r
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Str("request_id", middleware.GetReqID(r.Context())).
			Dur("duration", time.Since(start)).
			Msg("Request")
	})
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Error writes {"error": msg}.
func Error(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, map[string]string{"error": msg})
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Status runner.Status `json:"status"`
	Type   string        `json:"type"`
	Last   *history.Run  `json:"last,omitempty"`
}

// Status reports the runner status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, StatusResponse{
		Status: h.runner.Status(),
		Type:   string(h.runner.CurrentType()),
		Last:   h.runner.Last(),
	})
}

func (h *Handler) runType(w http.ResponseWriter, r *http.Request) (tasty.RunType, bool) {
	typ, err := tasty.ParseRunType(chi.URLParam(r, "type"))
	if err != nil {
		Error(w, http.StatusNotFound, err.Error())
		return "", false
	}
	return typ, true
}

// GetFilters reports which test files of a run type are selected.
func (h *Handler) GetFilters(w http.ResponseWriter, r *http.Request) {
	typ, ok := h.runType(w, r)
	if !ok {
		return
	}
	m, err := h.runner.Filter(typ)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, m)
}

// SetFilters replaces the filters of a run type.
func (h *Handler) SetFilters(w http.ResponseWriter, r *http.Request) {
	typ, ok := h.runType(w, r)
	if !ok {
		return
	}
	var filters []string
	if err := json.NewDecoder(r.Body).Decode(&filters); err != nil {
		Error(w, http.StatusBadRequest, "a list of filters is expected")
		return
	}
	h.runner.SetFilters(typ, filters)
	w.WriteHeader(http.StatusNoContent)
}

// RunRequest is the body of POST /run.
type RunRequest struct {
	Type     string   `json:"type"`
	Parallel bool     `json:"parallel"`
	Files    []string `json:"files,omitempty"`
}

// Run starts a run and answers with its record.
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			Error(w, http.StatusBadRequest, "a run request is expected")
			return
		}
	}
	run, done, err := h.runner.Start(h.ctx, req.Type, req.Parallel, req.Files)
	if err == runner.ErrBusy {
		Error(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	go func() {
		if err := <-done; err != nil {
			h.log.Warn().Err(err).Str("run", run.ID).Msg("Run ended with error")
		}
	}()
	JSON(w, http.StatusAccepted, run)
}

// History lists stored runs, newest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		JSON(w, http.StatusOK, []*history.Run{})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.history.List(limit)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []*history.Run{}
	}
	JSON(w, http.StatusOK, runs)
}

// Record returns one stored run.
func (h *Handler) Record(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		Error(w, http.StatusNotFound, history.ErrNotFound.Error())
		return
	}
	run, err := h.history.Get(chi.URLParam(r, "id"))
	if err == history.ErrNotFound {
		Error(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, run)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// Log streams the run log over a websocket. With ?from=N persisted
// entries from index N on are sent first.
func (h *Handler) Log(w http.ResponseWriter, r *http.Request) {
	if h.stream == nil {
		Error(w, http.StatusNotFound, "no run log")
		return
	}
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket upgrade error")
		return
	}
	defer c.Close()

	// Subscribing before replaying may deliver an entry twice but never
	// loses one.
	entries, cancel := h.stream.Subscribe(0)
	defer cancel()

	if from := r.URL.Query().Get("from"); from != "" {
		n, _ := strconv.ParseUint(from, 10, 64)
		var backlog [][]byte
		if err := h.stream.Replay(n, func(_ uint64, e []byte) {
			backlog = append(backlog, e)
		}); err != nil {
			h.log.Warn().Err(err).Msg("Cannot replay run log")
		}
		for _, e := range backlog {
			if err := c.WriteMessage(websocket.TextMessage, e); err != nil {
				h.log.Warn().Err(err).Msg("Websocket output error")
				return
			}
		}
	}

	// Reading detects a closed connection.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case e, ok := <-entries:
			if !ok {
				c.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.WriteMessage(websocket.TextMessage, e); err != nil {
				h.log.Warn().Err(err).Msg("Websocket output error")
				return
			}
		}
	}
}
