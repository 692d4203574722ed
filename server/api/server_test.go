//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-agent-bridge/bridge"
	"trpc.group/trpc-go/trpc-agent-bridge/config"
	"trpc.group/trpc-go/trpc-agent-bridge/host"
	"trpc.group/trpc-go/trpc-agent-bridge/usage"
)

type fakeSender struct {
	mu   sync.Mutex
	cmds []bridge.Command
}

func (f *fakeSender) Send(_ context.Context, cmd bridge.Command) (json.RawMessage, error) {
	f.mu.Lock()
	f.cmds = append(f.cmds, cmd)
	f.mu.Unlock()
	if cmd.Type != bridge.CommandRun {
		return json.RawMessage(`{"ok":true}`), nil
	}
	if cmd.Message == "fail" {
		return nil, &bridge.RemoteError{Message: "model unavailable"}
	}
	return json.Marshal(bridge.RunResult{
		Response:    cmd.AgentID + ": " + cmd.Message,
		ToolResults: []string{},
		TokenUsage:  usage.Usage{UserInput: 1, AgentOutput: 2},
	})
}

func (f *fakeSender) last() bridge.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cmds[len(f.cmds)-1]
}

func newServer(t *testing.T) (*Server, *fakeSender) {
	t.Helper()
	s := &fakeSender{}
	h, err := host.New(s, config.NewStore(filepath.Join(t.TempDir(), "config.json")))
	require.NoError(t, err)
	t.Cleanup(h.Close)
	return New(h), s
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Run(t *testing.T) {
	srv, _ := newServer(t)

	rec := do(t, srv, http.MethodPost, "/api/run", `{"agent":"agentB","message":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var res map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "agentB", res["agentId"])
	assert.Equal(t, "agentB: hi", res["response"])

	rec = do(t, srv, http.MethodGet, "/api/agents/agentB", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"agentId":"agentB",
		"history":[{"role":"user","content":"hi"},{"role":"assistant","content":"agentB: hi"}],
		"totalUsage":{"userInput":1,"agentOutput":2,"tools":0,"memory":0,"rag":0,"basePrompt":0}}`,
		rec.Body.String())
}

func TestServer_Errors(t *testing.T) {
	srv, _ := newServer(t)
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{name: "bad json", method: http.MethodPost, path: "/api/run", body: `{`, status: http.StatusBadRequest},
		{name: "empty message", method: http.MethodPost, path: "/api/run", body: `{"message":""}`, status: http.StatusBadRequest},
		{name: "unknown slot", method: http.MethodPost, path: "/api/run", body: `{"agent":"agentC","message":"x"}`, status: http.StatusBadRequest},
		{name: "worker error", method: http.MethodPost, path: "/api/run", body: `{"message":"fail"}`, status: http.StatusBadGateway},
		{name: "unknown strategy", method: http.MethodPost, path: "/api/configure/forgetting", body: `{}`, status: http.StatusNotFound},
		{name: "agent ids not a list", method: http.MethodPost, path: "/api/configure/trimming", body: `{"agent_ids":"a"}`, status: http.StatusBadRequest},
		{name: "unknown agent", method: http.MethodGet, path: "/api/agents/agentC", status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestServer_Compare(t *testing.T) {
	srv, _ := newServer(t)
	rec := do(t, srv, http.MethodPost, "/api/compare", `{"message":"hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var cmp host.Comparison
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cmp))
	require.Len(t, cmp.Results, 2)
	assert.Equal(t, "agentA: hello", cmp.Results[0].Response)
	assert.Equal(t, "agentB: hello", cmp.Results[1].Response)
}

func TestServer_ResetAndConfigure(t *testing.T) {
	srv, s := newServer(t)

	rec := do(t, srv, http.MethodPost, "/api/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	assert.Equal(t, bridge.CommandReset, s.last().Type)

	rec = do(t, srv, http.MethodPost, "/api/configure/compacting",
		`{"agent_ids":["agentA"],"enable":true,"trigger":{"turns":4},"keep":2,"exclude_tools":["GetOrder"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	cmd := s.last()
	assert.Equal(t, bridge.CommandConfigureCompacting, cmd.Type)
	assert.True(t, cmd.Enable)
	p := cmd.CompactingParams()
	require.NotNil(t, p.TriggerTurns)
	assert.Equal(t, 4, *p.TriggerTurns)
	assert.Equal(t, 2, p.KeepTurns)
}

func TestServer_Config(t *testing.T) {
	srv, s := newServer(t)

	rec := do(t, srv, http.MethodPut, "/api/config/agentA",
		`{"memoryTrimming":true,"memorySummarization":true,"memoryMaxTurns":6,"memoryKeepRecentTurns":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var saved config.AgentConfiguration
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	assert.Equal(t, config.StrategySummarization, saved.Active())
	assert.False(t, saved.MemoryTrimming)
	assert.Equal(t, bridge.CommandConfigureSummarization, s.last().Type)

	rec = do(t, srv, http.MethodGet, "/api/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var file config.File
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &file))
	assert.True(t, file.AgentA.MemorySummarization)
	assert.Equal(t, config.StrategyNone, file.AgentB.Active())

	rec = do(t, srv, http.MethodPut, "/api/config/agentC", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Preflight(t *testing.T) {
	srv, _ := newServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/run", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Less(t, rec.Code, 300)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
