//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package api exposes the host over HTTP as thin pass-through endpoints.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"trpc.group/trpc-go/trpc-agent-bridge/bridge"
	"trpc.group/trpc-go/trpc-agent-bridge/config"
	"trpc.group/trpc-go/trpc-agent-bridge/host"
	"trpc.group/trpc-go/trpc-agent-bridge/log"
	"trpc.group/trpc-go/trpc-agent-bridge/usage"
)

// Server routes HTTP requests to a host.Host.
type Server struct {
	host   *host.Host
	router *mux.Router
}

// Option configures the Server.
type Option func(*options)

type options struct {
	allowedOrigins []string
}

// WithAllowedOrigins sets the CORS origins. The default allows any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(o *options) { o.allowedOrigins = origins }
}

// New creates a Server for h.
func New(h *host.Host, opts ...Option) *Server {
	o := &options{allowedOrigins: []string{"*"}}
	for _, opt := range opts {
		opt(o)
	}
	s := &Server{host: h, router: mux.NewRouter()}
	c := cors.New(cors.Options{
		AllowedOrigins: o.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Content-Length", "Content-Type"},
	})
	s.router.Use(c.Handler)
	s.registerRoutes()
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/run", s.handleRun).Methods(http.MethodPost)
	api.HandleFunc("/compare", s.handleCompare).Methods(http.MethodPost)
	api.HandleFunc("/reset", s.handleReset).Methods(http.MethodPost)
	api.HandleFunc("/configure/{strategy}", s.handleConfigureStrategy).Methods(http.MethodPost)
	api.HandleFunc("/config", s.handleGetConfig).Methods(http.MethodGet)
	api.HandleFunc("/config/{slot}", s.handlePutConfig).Methods(http.MethodPut)
	api.HandleFunc("/agents/{slot}", s.handleGetAgent).Methods(http.MethodGet)

	preflight := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
	api.PathPrefix("/").HandlerFunc(preflight).Methods(http.MethodOptions)
}

type runRequest struct {
	Agent   string `json:"agent"`
	Message string `json:"message"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Agent == "" {
		req.Agent = config.SlotA
	}
	res, err := s.host.Run(r.Context(), req.Agent, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if !decode(w, r, &req) {
		return
	}
	cmp, err := s.host.Compare(r.Context(), req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.host.Reset(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bridge.Ack{OK: true})
}

// handleConfigureStrategy forwards the body, shaped like the matching
// configure command, to the worker.
func (s *Server) handleConfigureStrategy(w http.ResponseWriter, r *http.Request) {
	kind, err := config.ParseStrategy(mux.Vars(r)["strategy"])
	if err != nil || kind == config.StrategyNone {
		writeJSON(w, http.StatusNotFound, errorBody{Error: fmt.Sprintf("unknown strategy %q", mux.Vars(r)["strategy"])})
		return
	}
	var cmd bridge.Command
	if !decode(w, r, &cmd) {
		return
	}
	var ids []string
	if len(cmd.AgentIDs) > 0 {
		if err := json.Unmarshal(cmd.AgentIDs, &ids); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "agent_ids must be a list"})
			return
		}
	}
	ctx := r.Context()
	switch kind {
	case config.StrategyTrimming:
		err = s.host.ConfigureTrimming(ctx, ids, cmd.Enable, cmd.TrimmingParams())
	case config.StrategySummarization:
		err = s.host.ConfigureSummarization(ctx, ids, cmd.Enable, cmd.SummarizationParams())
	default:
		err = s.host.ConfigureCompacting(ctx, ids, cmd.Enable, cmd.CompactingParams())
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bridge.Ack{OK: true})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.host.Config())
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	slot := mux.Vars(r)["slot"]
	cfg := config.Default()
	if !decode(w, r, &cfg) {
		return
	}
	saved, err := s.host.Configure(r.Context(), slot, cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

type agentView struct {
	AgentID    string                  `json:"agentId"`
	History    []bridge.HistoryMessage `json:"history"`
	TotalUsage usage.Usage             `json:"totalUsage"`
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	slot := mux.Vars(r)["slot"]
	total, err := s.host.Usage(slot)
	if err != nil {
		writeError(w, err)
		return
	}
	history := s.host.History(slot)
	if history == nil {
		history = []bridge.HistoryMessage{}
	}
	writeJSON(w, http.StatusOK, agentView{AgentID: slot, History: history, TotalUsage: total})
}

type errorBody struct {
	Error string `json:"error"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var remote *bridge.RemoteError
	switch {
	case errors.Is(err, host.ErrMessageRequired), errors.Is(err, config.ErrInvalidSlot):
		status = http.StatusBadRequest
	case errors.As(err, &remote), errors.Is(err, bridge.ErrWorkerExited):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		log.Errorf("api: %v", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("api: write response: %v", err)
	}
}
