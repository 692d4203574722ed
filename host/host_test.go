//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package host

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-agent-bridge/bridge"
	"trpc.group/trpc-go/trpc-agent-bridge/config"
	"trpc.group/trpc-go/trpc-agent-bridge/usage"
)

type fakeSender struct {
	mu   sync.Mutex
	cmds []bridge.Command
	// reply builds the result of a command; nil means {"ok":true}.
	reply func(cmd bridge.Command) (any, error)
}

func (f *fakeSender) Send(_ context.Context, cmd bridge.Command) (json.RawMessage, error) {
	f.mu.Lock()
	f.cmds = append(f.cmds, cmd)
	reply := f.reply
	f.mu.Unlock()
	var (
		v   any = bridge.Ack{OK: true}
		err error
	)
	if reply != nil {
		v, err = reply(cmd)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func (f *fakeSender) commands() []bridge.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bridge.Command(nil), f.cmds...)
}

func newHost(t *testing.T, s Sender) *Host {
	t.Helper()
	store := config.NewStore(filepath.Join(t.TempDir(), "config.json"))
	h, err := New(s, store)
	require.NoError(t, err)
	t.Cleanup(h.Close)
	return h
}

func echo(cmd bridge.Command) (any, error) {
	return bridge.RunResult{
		Response:    "re: " + cmd.Message,
		ToolResults: []string{},
		TokenUsage:  usage.Usage{UserInput: 2, AgentOutput: 3, BasePrompt: 10},
	}, nil
}

func TestHost_RunTracksHistoryAndUsage(t *testing.T) {
	s := &fakeSender{reply: echo}
	h := newHost(t, s)
	ctx := context.Background()

	res, err := h.Run(ctx, config.SlotA, "first")
	require.NoError(t, err)
	assert.Equal(t, config.SlotA, res.AgentID)
	assert.Equal(t, "re: first", res.Response)
	assert.Equal(t, usage.Usage{UserInput: 2, AgentOutput: 3, BasePrompt: 10}, res.TotalUsage)

	res, err = h.Run(ctx, config.SlotA, "second")
	require.NoError(t, err)
	assert.Equal(t, usage.Usage{UserInput: 4, AgentOutput: 6, BasePrompt: 10}, res.TotalUsage)

	cmds := s.commands()
	require.Len(t, cmds, 2)
	assert.Equal(t, bridge.CommandRun, cmds[1].Type)
	assert.Equal(t, config.SlotA, cmds[1].AgentID)
	require.NotNil(t, cmds[1].Config)
	assert.Equal(t, config.DefaultModel, cmds[1].Config.Model)
	assert.Equal(t, []bridge.HistoryMessage{
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "re: first"},
	}, cmds[1].History)

	b, err := h.Usage(config.SlotB)
	require.NoError(t, err)
	assert.True(t, b.IsZero())
	_, err = h.Usage("agentC")
	assert.ErrorIs(t, err, config.ErrInvalidSlot)
}

func TestHost_RunErrors(t *testing.T) {
	boom := errors.New("worker exited")
	h := newHost(t, &fakeSender{reply: func(bridge.Command) (any, error) { return nil, boom }})
	ctx := context.Background()

	_, err := h.Run(ctx, config.SlotA, "  ")
	assert.ErrorIs(t, err, ErrMessageRequired)
	_, err = h.Run(ctx, "agentC", "hi")
	assert.ErrorIs(t, err, config.ErrInvalidSlot)
	_, err = h.Run(ctx, config.SlotA, "hi")
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, h.History(config.SlotA))
}

func TestHost_NegativeDeltasClampTotals(t *testing.T) {
	calls := 0
	h := newHost(t, &fakeSender{reply: func(cmd bridge.Command) (any, error) {
		calls++
		u := usage.Usage{UserInput: 5, AgentOutput: 5, BasePrompt: 10}
		if calls == 2 {
			u = usage.Usage{UserInput: -20, AgentOutput: 1, BasePrompt: 8}
		}
		return bridge.RunResult{Response: "ok", TokenUsage: u}, nil
	}})
	ctx := context.Background()
	_, err := h.Run(ctx, config.SlotA, "one")
	require.NoError(t, err)
	res, err := h.Run(ctx, config.SlotA, "two")
	require.NoError(t, err)
	assert.Equal(t, usage.Usage{UserInput: 0, AgentOutput: 6, BasePrompt: 10}, res.TotalUsage)
}

func TestHost_Compare(t *testing.T) {
	s := &fakeSender{reply: func(cmd bridge.Command) (any, error) {
		if cmd.AgentID == config.SlotB {
			return nil, &bridge.RemoteError{Message: "model unavailable"}
		}
		return echo(cmd)
	}}
	h := newHost(t, s)

	cmp, err := h.Compare(context.Background(), "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, cmp.ID)
	require.Len(t, cmp.Results, 2)
	assert.Equal(t, config.SlotA, cmp.Results[0].AgentID)
	assert.Equal(t, "re: hello", cmp.Results[0].Response)
	assert.Empty(t, cmp.Results[0].Error)
	assert.Equal(t, config.SlotB, cmp.Results[1].AgentID)
	assert.Nil(t, cmp.Results[1].RunResult)
	assert.Contains(t, cmp.Results[1].Error, "model unavailable")

	data, err := json.Marshal(cmp.Results[1])
	require.NoError(t, err)
	assert.NotContains(t, string(data), "response")

	_, err = h.Compare(context.Background(), "")
	assert.ErrorIs(t, err, ErrMessageRequired)
}

func TestHost_Reset(t *testing.T) {
	s := &fakeSender{reply: func(cmd bridge.Command) (any, error) {
		if cmd.Type == bridge.CommandRun {
			return echo(cmd)
		}
		return bridge.Ack{OK: true}, nil
	}}
	h := newHost(t, s)
	ctx := context.Background()
	_, err := h.Run(ctx, config.SlotA, "hi")
	require.NoError(t, err)

	require.NoError(t, h.Reset(ctx))
	assert.Empty(t, h.History(config.SlotA))
	u, err := h.Usage(config.SlotA)
	require.NoError(t, err)
	assert.True(t, u.IsZero())
	cmds := s.commands()
	assert.Equal(t, bridge.CommandReset, cmds[len(cmds)-1].Type)
}

func TestHost_Configure(t *testing.T) {
	tests := []struct {
		name       string
		enable     config.Strategy
		wantEnable bridge.CommandType
	}{
		{name: "trimming", enable: config.StrategyTrimming, wantEnable: bridge.CommandConfigureTrimming},
		{name: "summarization", enable: config.StrategySummarization, wantEnable: bridge.CommandConfigureSummarization},
		{name: "compacting", enable: config.StrategyCompacting, wantEnable: bridge.CommandConfigureCompacting},
		{name: "none", enable: config.StrategyNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeSender{}
			h := newHost(t, s)
			cfg := config.Default()
			cfg.Enable(tt.enable)
			cfg.MemoryMaxTurns = 6
			cfg.MemoryKeepRecentTurns = 3

			saved, err := h.Configure(context.Background(), config.SlotB, cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.enable, saved.Active())
			stored, err := h.Config().Slot(config.SlotB)
			require.NoError(t, err)
			assert.Equal(t, saved, stored)

			cmds := s.commands()
			require.Len(t, cmds, 3)
			for i, cmd := range cmds {
				assert.JSONEq(t, `["agentB"]`, string(cmd.AgentIDs))
				last := i == len(cmds)-1
				if tt.enable != config.StrategyNone && last {
					assert.Equal(t, tt.wantEnable, cmd.Type)
					assert.True(t, cmd.Enable)
					continue
				}
				assert.False(t, cmd.Enable, "command %d should disable", i)
			}
			if tt.enable == config.StrategyTrimming {
				p := cmds[2].TrimmingParams()
				require.NotNil(t, p)
				assert.Equal(t, 6, p.MaxTurns)
				assert.Equal(t, 3, p.KeepRecentTurns)
			}
		})
	}
}

func TestHost_ConfigurePassThrough(t *testing.T) {
	s := &fakeSender{}
	h := newHost(t, s)
	ctx := context.Background()
	require.NoError(t, h.ConfigureTrimming(ctx, []string{"a"}, true, nil))
	require.NoError(t, h.ConfigureSummarization(ctx, []string{"a"}, false, nil))
	require.NoError(t, h.ConfigureCompacting(ctx, []string{"a"}, true, nil))
	cmds := s.commands()
	require.Len(t, cmds, 3)
	assert.Equal(t, bridge.CommandConfigureTrimming, cmds[0].Type)
	assert.Nil(t, cmds[0].TrimmingParams())
	assert.Equal(t, bridge.CommandConfigureSummarization, cmds[1].Type)
	assert.Equal(t, bridge.CommandConfigureCompacting, cmds[2].Type)
}
