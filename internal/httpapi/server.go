// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package httpapi serves the bridge state, command entry and metrics over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/Thermoquad/otgw/internal/logger"
	"github.com/Thermoquad/otgw/internal/state"
	"github.com/Thermoquad/otgw/pkg/opentherm"
)

const (
	maxBodyBytes    = 4096
	shutdownTimeout = 5 * time.Second
)

// Gateway is the part of the connector the API drives.
type Gateway interface {
	SendCommand(cmd *opentherm.GatewayCommand) error
	IsConnected() bool
}

// Server exposes the bridge over HTTP.
type Server struct {
	gw      Gateway
	store   *state.Store
	stats   *opentherm.Statistics
	metrics http.Handler
	log     logger.Logger
	router  *mux.Router
}

// New builds the router. metrics may be nil to leave /metrics unrouted.
func New(gw Gateway, store *state.Store, stats *opentherm.Statistics, metrics http.Handler, log logger.Logger) *Server {
	s := &Server{
		gw:      gw,
		store:   store,
		stats:   stats,
		metrics: metrics,
		log:     log.With("component", "http"),
		router:  mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	// Routes stay on the root router: mux answers 404 rather than 405 for a
	// method mismatch inside a subrouter.
	r := s.router
	r.HandleFunc("/api/state", s.handleState).Methods(http.MethodGet)
	r.HandleFunc("/api/state/{channel}", s.handleChannel).Methods(http.MethodGet)
	r.HandleFunc("/api/items", s.handleItems).Methods(http.MethodGet)
	r.HandleFunc("/api/commands", s.handleCommands).Methods(http.MethodGet)
	r.HandleFunc("/api/command", s.handleCommand).Methods(http.MethodPost)
	r.HandleFunc("/api/stats", s.handleStats).Methods(http.MethodGet)

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

type entryJSON struct {
	ID         uint8     `json:"id"`
	Channel    string    `json:"channel"`
	Subject    string    `json:"subject"`
	Value      float64   `json:"value"`
	Text       string    `json:"text"`
	Unit       string    `json:"unit,omitempty"`
	Source     string    `json:"source"`
	Overridden bool      `json:"overridden"`
	Updated    time.Time `json:"updated"`
}

func toEntryJSON(e state.Entry) entryJSON {
	item := e.Value.Item
	return entryJSON{
		ID:         item.ID,
		Channel:    item.Channel,
		Subject:    item.Subject,
		Value:      e.Value.Number(),
		Text:       e.Value.String(),
		Unit:       item.Unit,
		Source:     e.Source.String(),
		Overridden: e.Overridden(),
		Updated:    e.Updated,
	}
}

type itemJSON struct {
	ID      uint8  `json:"id"`
	Channel string `json:"channel"`
	Subject string `json:"subject"`
	Type    string `json:"type"`
	Byte    string `json:"byte"`
	Bit     *int   `json:"bit,omitempty"`
	Unit    string `json:"unit,omitempty"`
}

type commandJSON struct {
	Code        string   `json:"code"`
	Description string   `json:"description"`
	Allowed     []string `json:"allowed,omitempty"`
}

type commandRequest struct {
	Code  string `json:"code"`
	Value string `json:"value"`
}

type commandAccepted struct {
	ID      string `json:"id"`
	Command string `json:"command"`
}

type errorJSON struct {
	Error string `json:"error"`
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	entries := s.store.Snapshot()
	out := make([]entryJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryJSON(e))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	channel := mux.Vars(r)["channel"]
	e, ok := s.store.Get(channel)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, errorJSON{Error: "no reading for " + channel})
		return
	}
	s.writeJSON(w, http.StatusOK, toEntryJSON(e))
}

func (s *Server) handleItems(w http.ResponseWriter, _ *http.Request) {
	var out []itemJSON
	for _, id := range opentherm.DataItemIDs() {
		items, _ := opentherm.LookupDataItems(id)
		for _, item := range items {
			j := itemJSON{
				ID:      item.ID,
				Channel: item.Channel,
				Subject: item.Subject,
				Type:    item.DataType.String(),
				Byte:    item.ByteType.String(),
				Unit:    item.Unit,
			}
			if item.DataType == opentherm.Flags {
				bit := item.BitPos
				j.Bit = &bit
			}
			out = append(out, j)
		}
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCommands(w http.ResponseWriter, _ *http.Request) {
	cmds := opentherm.Commands()
	out := make([]commandJSON, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, commandJSON{Code: c.Code, Description: c.Description, Allowed: c.Allowed})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorJSON{Error: "invalid request body: " + err.Error()})
		return
	}

	cmd, err := opentherm.ParseGatewayCommand(req.Code, req.Value)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorJSON{Error: err.Error()})
		return
	}
	if !s.gw.IsConnected() {
		s.writeJSON(w, http.StatusServiceUnavailable, errorJSON{Error: "not connected to gateway"})
		return
	}

	id := uuid.NewString()
	if err := s.gw.SendCommand(cmd); err != nil {
		s.log.Error("failed to send command", "request", id, "command", cmd.String(), "error", err)
		s.writeJSON(w, http.StatusBadGateway, errorJSON{Error: err.Error()})
		return
	}
	s.log.Info("http command", "request", id, "command", cmd.String())
	s.writeJSON(w, http.StatusAccepted, commandAccepted{ID: id, Command: cmd.String()})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	snap := s.stats.Snapshot()
	byType := make(map[string]uint64, len(snap.ByType))
	for t, n := range snap.ByType {
		byType[t.String()] = n
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"uptime":         opentherm.FormatUptime(snap.Elapsed),
		"lines":          snap.Lines,
		"messages":       snap.Messages,
		"malformed":      snap.Malformed,
		"dispatched":     snap.Dispatched,
		"unknown_ids":    snap.UnknownIDs,
		"responses":      snap.Responses,
		"gateway_errors": snap.GatewayErrors,
		"by_type":        byType,
		"message_rate":   snap.MessageRate,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	connected := s.gw.IsConnected()
	status := http.StatusOK
	if !connected {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, map[string]bool{"connected": connected})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("failed to write response", "error", err)
	}
}
