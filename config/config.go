//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package config defines the per-agent configuration exchanged between the
// host and the worker, and the file the host persists it in.
package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Strategy names a memory-bounding strategy.
type Strategy string

// Memory strategies. At most one is active for an agent.
const (
	StrategyNone          Strategy = ""
	StrategyTrimming      Strategy = "trimming"
	StrategySummarization Strategy = "summarization"
	StrategyCompacting    Strategy = "compacting"
)

// Default configuration values.
const (
	DefaultModel          = "gpt-5"
	DefaultReasoningLevel = "medium"
	DefaultVerbosityLevel = "medium"

	DefaultTrimmingMaxTurns        = 9
	DefaultTrimmingKeepRecentTurns = 4

	DefaultSummarizationTriggerTurns    = 5
	DefaultSummarizationKeepRecentTurns = 3

	DefaultCompactingTriggerTurns = 4
	DefaultCompactingKeepTurns    = 2
)

// ParseStrategy maps a strategy name to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch s := Strategy(strings.ToLower(strings.TrimSpace(name))); s {
	case StrategyTrimming, StrategySummarization, StrategyCompacting:
		return s, nil
	case "none", StrategyNone:
		return StrategyNone, nil
	default:
		return StrategyNone, fmt.Errorf("unknown memory strategy %q", name)
	}
}

// AgentConfiguration is the full configuration of one agent.
type AgentConfiguration struct {
	Model          string `json:"model"`
	ReasoningLevel string `json:"reasoningLevel"`
	VerbosityLevel string `json:"verbosityLevel"`

	MemoryTrimming        bool `json:"memoryTrimming"`
	MemoryMaxTurns        int  `json:"memoryMaxTurns"`
	MemoryKeepRecentTurns int  `json:"memoryKeepRecentTurns"`

	MemorySummarization          bool `json:"memorySummarization"`
	SummarizationKeepRecentTurns int  `json:"summarizationKeepRecentTurns"`
	SummarizationTriggerTurns    int  `json:"summarizationTriggerTurns"`

	MemoryCompacting bool `json:"memoryCompacting"`
	// CompactingTriggerTurns is nil when compaction never triggers.
	CompactingTriggerTurns    *int     `json:"compactingTriggerTurns"`
	CompactingKeepTurns       int      `json:"compactingKeepTurns"`
	CompactingExcludeTools    ToolList `json:"compactingExcludeTools"`
	CompactingClearToolInputs bool     `json:"compactingClearToolInputs"`

	MemoryInjection bool `json:"memoryInjection"`
}

// Default returns the default configuration: no active strategy.
func Default() AgentConfiguration {
	trigger := DefaultCompactingTriggerTurns
	return AgentConfiguration{
		Model:                        DefaultModel,
		ReasoningLevel:               DefaultReasoningLevel,
		VerbosityLevel:               DefaultVerbosityLevel,
		MemoryMaxTurns:               DefaultTrimmingMaxTurns,
		MemoryKeepRecentTurns:        DefaultTrimmingKeepRecentTurns,
		SummarizationKeepRecentTurns: DefaultSummarizationKeepRecentTurns,
		SummarizationTriggerTurns:    DefaultSummarizationTriggerTurns,
		CompactingTriggerTurns:       &trigger,
		CompactingKeepTurns:          DefaultCompactingKeepTurns,
		CompactingExcludeTools:       ToolList{},
	}
}

// Active returns the active strategy. When several toggles are set the
// precedence is summarization, compacting, trimming.
func (c AgentConfiguration) Active() Strategy {
	switch {
	case c.MemorySummarization:
		return StrategySummarization
	case c.MemoryCompacting:
		return StrategyCompacting
	case c.MemoryTrimming:
		return StrategyTrimming
	default:
		return StrategyNone
	}
}

// Enable makes s the only active strategy. StrategyNone disables all three.
func (c *AgentConfiguration) Enable(s Strategy) {
	c.MemoryTrimming = s == StrategyTrimming
	c.MemorySummarization = s == StrategySummarization
	c.MemoryCompacting = s == StrategyCompacting
}

// Normalize fills unset values with defaults, enforces strategy exclusivity
// and the parameter constraints, and returns the result.
func (c AgentConfiguration) Normalize() AgentConfiguration {
	out := c
	if strings.TrimSpace(out.Model) == "" {
		out.Model = DefaultModel
	}
	if strings.TrimSpace(out.ReasoningLevel) == "" {
		out.ReasoningLevel = DefaultReasoningLevel
	}
	if strings.TrimSpace(out.VerbosityLevel) == "" {
		out.VerbosityLevel = DefaultVerbosityLevel
	}
	out.Enable(c.Active())

	out.MemoryMaxTurns = positiveOr(out.MemoryMaxTurns, DefaultTrimmingMaxTurns)
	out.MemoryKeepRecentTurns = min(
		positiveOr(out.MemoryKeepRecentTurns, DefaultTrimmingKeepRecentTurns),
		out.MemoryMaxTurns,
	)

	out.SummarizationKeepRecentTurns = positiveOr(out.SummarizationKeepRecentTurns, DefaultSummarizationKeepRecentTurns)
	out.SummarizationTriggerTurns = max(
		positiveOr(out.SummarizationTriggerTurns, DefaultSummarizationTriggerTurns),
		out.SummarizationKeepRecentTurns,
	)

	if out.CompactingTriggerTurns != nil {
		v := max(*out.CompactingTriggerTurns, 0)
		out.CompactingTriggerTurns = &v
	}
	out.CompactingKeepTurns = positiveOr(out.CompactingKeepTurns, DefaultCompactingKeepTurns)
	out.CompactingExcludeTools = NewToolList(out.CompactingExcludeTools...)
	return out
}

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// ToolList is a list of tool names. It decodes from either a JSON array or a
// comma-separated string.
type ToolList []string

// NewToolList trims names and drops blanks.
func NewToolList(names ...string) ToolList {
	out := make(ToolList, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *ToolList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = NewToolList(list...)
		return nil
	}
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("tool list must be an array or a comma-separated string: %w", err)
	}
	if s == nil {
		*l = ToolList{}
		return nil
	}
	*l = NewToolList(strings.Split(*s, ",")...)
	return nil
}
