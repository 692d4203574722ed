//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package config

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, StrategyNone, cfg.Active())
	assert.Equal(t, DefaultModel, cfg.Model)
	require.NotNil(t, cfg.CompactingTriggerTurns)
	assert.Equal(t, DefaultCompactingTriggerTurns, *cfg.CompactingTriggerTurns)
	assert.Equal(t, cfg, cfg.Normalize())
}

func TestEnable_IsExclusive(t *testing.T) {
	cfg := Default()
	for _, s := range []Strategy{StrategyTrimming, StrategySummarization, StrategyCompacting} {
		cfg.Enable(s)
		assert.Equal(t, s, cfg.Active())
		n := 0
		for _, on := range []bool{cfg.MemoryTrimming, cfg.MemorySummarization, cfg.MemoryCompacting} {
			if on {
				n++
			}
		}
		assert.Equal(t, 1, n, string(s))
	}
	cfg.Enable(StrategyNone)
	assert.Equal(t, StrategyNone, cfg.Active())
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		in    AgentConfiguration
		check func(t *testing.T, out AgentConfiguration)
	}{
		{
			name: "precedence resolves several toggles",
			in:   AgentConfiguration{MemoryTrimming: true, MemoryCompacting: true, MemorySummarization: true},
			check: func(t *testing.T, out AgentConfiguration) {
				assert.Equal(t, StrategySummarization, out.Active())
				assert.False(t, out.MemoryTrimming)
				assert.False(t, out.MemoryCompacting)
			},
		},
		{
			name: "trimming keep clamped to max",
			in:   AgentConfiguration{MemoryMaxTurns: 3, MemoryKeepRecentTurns: 10},
			check: func(t *testing.T, out AgentConfiguration) {
				assert.Equal(t, 3, out.MemoryMaxTurns)
				assert.Equal(t, 3, out.MemoryKeepRecentTurns)
			},
		},
		{
			name: "summarization trigger raised to keep",
			in:   AgentConfiguration{SummarizationTriggerTurns: 2, SummarizationKeepRecentTurns: 6},
			check: func(t *testing.T, out AgentConfiguration) {
				assert.Equal(t, 6, out.SummarizationTriggerTurns)
			},
		},
		{
			name: "zero compacting trigger kept",
			in:   AgentConfiguration{CompactingTriggerTurns: intPtr(0)},
			check: func(t *testing.T, out AgentConfiguration) {
				require.NotNil(t, out.CompactingTriggerTurns)
				assert.Equal(t, 0, *out.CompactingTriggerTurns)
			},
		},
		{
			name: "negative compacting trigger raised to zero",
			in:   AgentConfiguration{CompactingTriggerTurns: intPtr(-3)},
			check: func(t *testing.T, out AgentConfiguration) {
				require.NotNil(t, out.CompactingTriggerTurns)
				assert.Equal(t, 0, *out.CompactingTriggerTurns)
			},
		},
		{
			name: "missing compacting trigger stays disabled",
			in:   AgentConfiguration{},
			check: func(t *testing.T, out AgentConfiguration) {
				assert.Nil(t, out.CompactingTriggerTurns)
			},
		},
		{
			name: "defaults fill zero values",
			in:   AgentConfiguration{},
			check: func(t *testing.T, out AgentConfiguration) {
				assert.Equal(t, DefaultReasoningLevel, out.ReasoningLevel)
				assert.Equal(t, DefaultTrimmingMaxTurns, out.MemoryMaxTurns)
				assert.Equal(t, DefaultCompactingKeepTurns, out.CompactingKeepTurns)
				assert.NotNil(t, out.CompactingExcludeTools)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, tt.in.Normalize())
		})
	}
}

func TestNormalize_DoesNotAliasTrigger(t *testing.T) {
	in := AgentConfiguration{CompactingTriggerTurns: intPtr(5)}
	out := in.Normalize()
	*out.CompactingTriggerTurns = 9
	assert.Equal(t, 5, *in.CompactingTriggerTurns)
}

func TestToolList_Unmarshal(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want ToolList
	}{
		{"array", `["GetOrder", " SearchPolicy ", ""]`, ToolList{"GetOrder", "SearchPolicy"}},
		{"comma string", `"GetOrder, SearchPolicy,,"`, ToolList{"GetOrder", "SearchPolicy"}},
		{"null", `null`, ToolList{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var l ToolList
			require.NoError(t, json.Unmarshal([]byte(tt.in), &l))
			assert.Equal(t, tt.want, l)
		})
	}

	var l ToolList
	assert.Error(t, json.Unmarshal([]byte(`42`), &l))
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy(" Compacting ")
	require.NoError(t, err)
	assert.Equal(t, StrategyCompacting, s)

	s, err = ParseStrategy("none")
	require.NoError(t, err)
	assert.Equal(t, StrategyNone, s)

	_, err = ParseStrategy("pruning")
	assert.Error(t, err)
}
