//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-agent-bridge/bridge"
	"trpc.group/trpc-go/trpc-agent-bridge/config"
	"trpc.group/trpc-go/trpc-agent-bridge/runner"
	"trpc.group/trpc-go/trpc-agent-bridge/session"
	"trpc.group/trpc-go/trpc-agent-bridge/session/inmemory"
	"trpc.group/trpc-go/trpc-agent-bridge/usage"
)

type fakeRunner struct {
	mu     sync.Mutex
	inputs []runner.Input
	out    *runner.Output
	err    error
}

func (f *fakeRunner) Run(_ context.Context, in runner.Input) (*runner.Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

type line struct {
	ID     *int64          `json:"id"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func serve(t *testing.T, w *Worker, input string) map[int64]line {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, w.Serve(context.Background(), strings.NewReader(input), &out))
	got := make(map[int64]line)
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var l line
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &l))
		if l.ID == nil {
			got[-1] = l
			continue
		}
		got[*l.ID] = l
	}
	return got
}

func TestWorker_Run(t *testing.T) {
	r := &fakeRunner{out: &runner.Output{
		Response: "Your order is in transit.",
		Usage:    usage.Usage{UserInput: 3, AgentOutput: 5},
		Trimmed:  true,
	}}
	w := New(inmemory.NewSessionService(), r)

	got := serve(t, w, `{"id":1,"type":"run","agent_id":"a","message":"where is 12345?",`+
		`"history":[{"role":"user","content":"hi"}],"config":{"model":"gpt-4o"}}`+"\n")

	require.Contains(t, got, int64(1))
	assert.Equal(t, "ok", got[1].Status)
	var res map[string]any
	require.NoError(t, json.Unmarshal(got[1].Result, &res))
	assert.Equal(t, "Your order is in transit.", res["response"])
	assert.Equal(t, []any{}, res["toolResults"])
	assert.Equal(t, true, res["contextTrimmed"])
	assert.NotContains(t, res, "contextCompacted")

	require.Len(t, r.inputs, 1)
	in := r.inputs[0]
	assert.Equal(t, "a", in.AgentID)
	assert.Equal(t, "where is 12345?", in.Message)
	assert.Equal(t, []runner.HistoryMessage{{Role: "user", Content: "hi"}}, in.History)
	require.NotNil(t, in.Config)
	assert.Equal(t, "gpt-4o", in.Config.Model)
}

func TestWorker_RunError(t *testing.T) {
	w := New(inmemory.NewSessionService(), &fakeRunner{err: errors.New("model unavailable")})
	got := serve(t, w, `{"id":4,"type":"run","agent_id":"a","message":"x"}`+"\n")
	assert.Equal(t, "error", got[4].Status)
	assert.Equal(t, "model unavailable", got[4].Error)
}

func TestWorker_Configure(t *testing.T) {
	sessions := inmemory.NewSessionService()
	w := New(sessions, &fakeRunner{})
	ctx := context.Background()

	got := serve(t, w, strings.Join([]string{
		`{"id":1,"type":"configure_trimming","agent_ids":["a"],"enable":true,"max_turns":6,"keep_last":3}`,
		`{"id":2,"type":"configure_compacting","agent_ids":["b"],"enable":true,` +
			`"trigger":{"turns":4},"keep":2,"exclude_tools":["GetOrder"],"clear_tool_inputs":true}`,
		`{"id":3,"type":"configure_summarization","agent_ids":"a","enable":true}`,
	}, "\n")+"\n")

	for _, id := range []int64{1, 2} {
		assert.Equal(t, "ok", got[id].Status)
		assert.JSONEq(t, `{"ok":true}`, string(got[id].Result))
	}
	assert.Equal(t, "error", got[3].Status)
	assert.Equal(t, "agent_ids must be a list", got[3].Error)

	a, err := sessions.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, config.StrategyTrimming, a.Strategy.Kind)
	require.NotNil(t, a.Strategy.Trimming)
	assert.Equal(t, session.TrimmingParams{MaxTurns: 6, KeepRecentTurns: 3}, *a.Strategy.Trimming)

	b, err := sessions.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, config.StrategyCompacting, b.Strategy.Kind)
	require.NotNil(t, b.Strategy.Compacting)
	require.NotNil(t, b.Strategy.Compacting.TriggerTurns)
	assert.Equal(t, 4, *b.Strategy.Compacting.TriggerTurns)
	assert.Equal(t, 2, b.Strategy.Compacting.KeepTurns)
	assert.True(t, b.Strategy.Compacting.ClearToolInputs)
}

func TestWorker_Reset(t *testing.T) {
	var hooked bool
	sessions := inmemory.NewSessionService(inmemory.WithResetHook(func(context.Context) error {
		hooked = true
		return nil
	}))
	_, err := sessions.Get(context.Background(), "a")
	require.NoError(t, err)

	got := serve(t, New(sessions, &fakeRunner{}), `{"id":9,"type":"reset"}`+"\n")
	assert.Equal(t, "ok", got[9].Status)
	assert.JSONEq(t, `{"ok":true}`, string(got[9].Result))
	assert.True(t, hooked)
	assert.Equal(t, 0, sessions.Len())
}

func TestWorker_Errors(t *testing.T) {
	w := New(inmemory.NewSessionService(), &fakeRunner{})
	got := serve(t, w, strings.Join([]string{
		`{"id":1,"type":"launch"}`,
		`{"id":2,"type":"run","message":42}`,
		`not json`,
		``,
	}, "\n")+"\n")

	assert.Equal(t, "error", got[1].Status)
	assert.Equal(t, "Unsupported command type: launch", got[1].Error)
	assert.Equal(t, "error", got[2].Status, "decode error keeps the id")
	assert.NotEmpty(t, got[2].Error)
	require.Contains(t, got, int64(-1), "undecodable line answers with a null id")
	assert.Equal(t, "error", got[-1].Status)
	assert.Len(t, got, 3)
}

func TestWorker_OversizedRequestIsAnsweredAndSkipped(t *testing.T) {
	r := &fakeRunner{out: &runner.Output{Response: "ok"}}
	w := New(inmemory.NewSessionService(), r, WithMaxLineSize(512))

	history := []bridge.HistoryMessage{{Role: "user", Content: strings.Repeat("h", 4096)}}
	big, err := json.Marshal(bridge.Request{ID: 1, Command: bridge.RunCommand("a", "hi", history, nil)})
	require.NoError(t, err)

	got := serve(t, w, string(big)+"\n"+
		strings.Repeat("x", 2048)+"\n"+
		`{"id":2,"type":"reset"}`+"\n")

	require.Contains(t, got, int64(1))
	assert.Equal(t, "error", got[1].Status)
	assert.Equal(t, "request exceeds 512 bytes", got[1].Error)
	require.Contains(t, got, int64(-1))
	assert.Equal(t, "error", got[-1].Status)
	assert.Equal(t, "ok", got[2].Status)
	assert.JSONEq(t, `{"ok":true}`, string(got[2].Result))
	assert.Empty(t, r.inputs)
}

func TestWorker_ConcurrentRequests(t *testing.T) {
	r := &fakeRunner{out: &runner.Output{Response: "ok"}}
	w := New(inmemory.NewSessionService(), r, WithPoolSize(4))

	var b strings.Builder
	for i := 1; i <= 20; i++ {
		cmd := bridge.Request{ID: int64(i), Command: bridge.RunCommand("a", "hi", nil, nil)}
		data, err := json.Marshal(cmd)
		require.NoError(t, err)
		b.Write(data)
		b.WriteByte('\n')
	}
	got := serve(t, w, b.String())
	assert.Len(t, got, 20)
	for i := int64(1); i <= 20; i++ {
		assert.Equal(t, "ok", got[i].Status)
	}
}

func TestAgentIDs(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []string
		wantErr error
	}{
		{name: "missing", raw: ``},
		{name: "null", raw: `null`},
		{name: "strings", raw: `["a"," b ",""]`, want: []string{"a", " b "}},
		{name: "mixed", raw: `["a",7,null]`, want: []string{"a", "7"}},
		{name: "string", raw: `"a"`, wantErr: ErrAgentIDsNotList},
		{name: "object", raw: `{"a":1}`, wantErr: ErrAgentIDsNotList},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := agentIDs(json.RawMessage(tt.raw))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
