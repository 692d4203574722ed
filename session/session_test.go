//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-agent-bridge/config"
	"trpc.group/trpc-go/trpc-agent-bridge/usage"
)

func conversation() []Turn {
	return []Turn{
		NewUserTurn("u1"),
		NewAssistantTurn("a1"),
		NewUserTurn("u2"),
		NewAssistantTurn("", ToolCall{ID: "c1", Name: "GetOrder", Input: `{"order_id":"1"}`, Result: "ok"}),
		NewAssistantTurn("a2"),
		{Role: RoleUser, Content: "Summarize the conversation we had so far.", Synthetic: SyntheticShadow},
		NewUserTurn("u3"),
	}
}

func TestUserAnchoredCount(t *testing.T) {
	assert.Equal(t, 3, UserAnchoredCount(conversation()))
	assert.Zero(t, UserAnchoredCount(nil))
}

func TestRecentBoundary(t *testing.T) {
	turns := conversation()
	tests := []struct {
		name string
		k    int
		want int
	}{
		{"last one", 1, 6},
		{"last two", 2, 2},
		{"all three", 3, 0},
		{"more than available", 10, 0},
		{"zero keeps nothing", 0, len(turns)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RecentBoundary(turns, tt.k))
		})
	}
}

func TestTurn_Usage(t *testing.T) {
	c := usage.NewClassifier()
	tests := []struct {
		name string
		turn Turn
		want usage.Usage
	}{
		{"user", NewUserTurn("12345"), usage.Usage{UserInput: 2}},
		{"assistant", NewAssistantTurn("1234"), usage.Usage{AgentOutput: 1}},
		{"summary", Turn{Role: RoleAssistant, Content: "12345678", Synthetic: SyntheticSummary}, usage.Usage{Memory: 2}},
		{"shadow", Turn{Role: RoleUser, Content: "12345678", Synthetic: SyntheticShadow}, usage.Usage{}},
		{"system", Turn{Role: RoleSystem, Content: "12345678"}, usage.Usage{}},
		{
			"retrieval tool",
			NewAssistantTurn("", ToolCall{Name: "SearchPolicy", Input: "1234", Result: "12345678"}),
			usage.Usage{Tools: 3, RAG: 3},
		},
		{
			"plain tool",
			NewAssistantTurn("ok", ToolCall{Name: "GetOrder", Input: "1234", Result: "1234"}),
			usage.Usage{AgentOutput: 1, Tools: 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.turn.Usage(c))
		})
	}
	assert.Equal(t, usage.Usage{UserInput: 2, AgentOutput: 2, Tools: 5}, TurnsUsage(conversation()[:5], c))
}

func TestCloneTurns_IsDeep(t *testing.T) {
	turns := conversation()
	cp := CloneTurns(turns)
	cp[3].ToolCalls[0].Result = "changed"
	assert.Equal(t, "ok", turns[3].ToolCalls[0].Result)
	assert.Nil(t, CloneTurns(nil))
}

func TestSession_Clone(t *testing.T) {
	s := New("a", time.Now())
	s.Turns = conversation()
	s.Strategy = Compacting(CompactingParams{ExcludeTools: []string{"GetOrder"}})
	s.Summary = &SummaryRecord{ShadowLine: "x", SummaryText: "y"}

	cp := s.Clone()
	cp.Strategy.Compacting.ExcludeTools[0] = "other"
	cp.Summary.SummaryText = "z"
	cp.Turns[0].Content = "changed"

	assert.Equal(t, "GetOrder", s.Strategy.Compacting.ExcludeTools[0])
	assert.Equal(t, "y", s.Summary.SummaryText)
	assert.Equal(t, "u1", s.Turns[0].Content)
	assert.Equal(t, 3, cp.UserTurns())
	assert.Nil(t, (*Session)(nil).Clone())
}

func TestStrategyVariants(t *testing.T) {
	tr := Trimming(TrimmingParams{MaxTurns: 2, KeepRecentTurns: 5})
	require.NoError(t, tr.Validate())
	assert.Equal(t, 2, tr.Trimming.KeepRecentTurns)

	su := Summarization(SummarizationParams{TriggerTurns: 1, KeepRecentTurns: 3})
	require.NoError(t, su.Validate())
	assert.Equal(t, 3, su.Summarization.TriggerTurns)

	zero := 0
	co := Compacting(CompactingParams{TriggerTurns: &zero, ExcludeTools: []string{" a ", ""}})
	require.NoError(t, co.Validate())
	require.NotNil(t, co.Compacting.TriggerTurns)
	assert.Equal(t, 0, *co.Compacting.TriggerTurns)
	assert.Equal(t, config.DefaultCompactingKeepTurns, co.Compacting.KeepTurns)
	assert.Equal(t, []string{"a"}, co.Compacting.ExcludeTools)

	require.NoError(t, NoStrategy().Validate())
	assert.Error(t, MemoryStrategy{Kind: config.StrategyNone, Trimming: &TrimmingParams{}}.Validate())
	assert.Error(t, MemoryStrategy{Kind: "pruning"}.Validate())
	assert.Error(t, MemoryStrategy{Kind: config.StrategyCompacting}.Validate())
}

func TestMemoryStrategy_Equal(t *testing.T) {
	seven := 7
	otherSeven := 7
	a := Compacting(CompactingParams{TriggerTurns: &seven, ExcludeTools: []string{"x"}})
	b := Compacting(CompactingParams{TriggerTurns: &otherSeven, ExcludeTools: []string{"x"}})
	assert.True(t, a.Equal(b))
	assert.True(t, a.Equal(a.Clone()))

	c := Compacting(CompactingParams{ExcludeTools: []string{"x"}})
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(NoStrategy()))
	assert.True(t, NoStrategy().Equal(NoStrategy()))
	assert.True(t, Trimming(TrimmingParams{}).Equal(Trimming(TrimmingParams{})))
}

func TestStrategyFromConfig(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, config.StrategyNone, StrategyFromConfig(cfg).Kind)

	cfg.Enable(config.StrategyTrimming)
	cfg.MemoryMaxTurns, cfg.MemoryKeepRecentTurns = 6, 3
	ms := StrategyFromConfig(cfg)
	assert.Equal(t, TrimmingParams{MaxTurns: 6, KeepRecentTurns: 3}, *ms.Trimming)

	cfg.Enable(config.StrategyCompacting)
	cfg.CompactingTriggerTurns = nil
	cfg.CompactingExcludeTools = config.ToolList{"SearchPolicy"}
	ms = StrategyFromConfig(cfg)
	assert.Nil(t, ms.Compacting.TriggerTurns)
	assert.Equal(t, []string{"SearchPolicy"}, ms.Compacting.ExcludeTools)

	cfg.MemoryTrimming = true
	cfg.MemorySummarization = true
	assert.Equal(t, config.StrategySummarization, StrategyFromConfig(cfg).Kind)
}
