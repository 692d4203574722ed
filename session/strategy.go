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
	"fmt"
	"slices"

	"trpc.group/trpc-go/trpc-agent-bridge/config"
)

// TrimmingParams configures the trimming strategy.
type TrimmingParams struct {
	MaxTurns        int `json:"maxTurns"`
	KeepRecentTurns int `json:"keepRecentTurns"`
}

// Normalize fills defaults and keeps KeepRecentTurns <= MaxTurns.
func (p TrimmingParams) Normalize() TrimmingParams {
	if p.MaxTurns <= 0 {
		p.MaxTurns = config.DefaultTrimmingMaxTurns
	}
	if p.KeepRecentTurns <= 0 {
		p.KeepRecentTurns = config.DefaultTrimmingKeepRecentTurns
	}
	p.KeepRecentTurns = min(p.KeepRecentTurns, p.MaxTurns)
	return p
}

// SummarizationParams configures the summarization strategy.
type SummarizationParams struct {
	TriggerTurns    int `json:"triggerTurns"`
	KeepRecentTurns int `json:"keepRecentTurns"`
}

// Normalize fills defaults and raises TriggerTurns to KeepRecentTurns when
// it is lower.
func (p SummarizationParams) Normalize() SummarizationParams {
	if p.KeepRecentTurns <= 0 {
		p.KeepRecentTurns = config.DefaultSummarizationKeepRecentTurns
	}
	if p.TriggerTurns <= 0 {
		p.TriggerTurns = config.DefaultSummarizationTriggerTurns
	}
	p.TriggerTurns = max(p.TriggerTurns, p.KeepRecentTurns)
	return p
}

// CompactingParams configures the compacting strategy.
type CompactingParams struct {
	// TriggerTurns is nil when compaction never triggers.
	TriggerTurns    *int     `json:"triggerTurns"`
	KeepTurns       int      `json:"keepTurns"`
	ExcludeTools    []string `json:"excludeTools"`
	ClearToolInputs bool     `json:"clearToolInputs"`
}

// Normalize fills defaults, raises a negative trigger to 0 and copies the
// trigger and slices. A trigger of 0 compacts once any user turn exists.
func (p CompactingParams) Normalize() CompactingParams {
	if p.TriggerTurns != nil {
		v := max(*p.TriggerTurns, 0)
		p.TriggerTurns = &v
	}
	if p.KeepTurns <= 0 {
		p.KeepTurns = config.DefaultCompactingKeepTurns
	}
	p.ExcludeTools = []string(config.NewToolList(p.ExcludeTools...))
	return p
}

// MemoryStrategy is the active memory strategy of a session: exactly one of
// None, Trimming, Summarization or Compacting. The parameter pointer that
// matches Kind is set and the others are nil.
type MemoryStrategy struct {
	Kind          config.Strategy      `json:"kind"`
	Trimming      *TrimmingParams      `json:"trimming,omitempty"`
	Summarization *SummarizationParams `json:"summarization,omitempty"`
	Compacting    *CompactingParams    `json:"compacting,omitempty"`
}

// NoStrategy returns the None variant.
func NoStrategy() MemoryStrategy {
	return MemoryStrategy{Kind: config.StrategyNone}
}

// Trimming returns the Trimming variant.
func Trimming(p TrimmingParams) MemoryStrategy {
	p = p.Normalize()
	return MemoryStrategy{Kind: config.StrategyTrimming, Trimming: &p}
}

// Summarization returns the Summarization variant.
func Summarization(p SummarizationParams) MemoryStrategy {
	p = p.Normalize()
	return MemoryStrategy{Kind: config.StrategySummarization, Summarization: &p}
}

// Compacting returns the Compacting variant.
func Compacting(p CompactingParams) MemoryStrategy {
	p = p.Normalize()
	return MemoryStrategy{Kind: config.StrategyCompacting, Compacting: &p}
}

// Validate checks that the variant is well formed.
func (m MemoryStrategy) Validate() error {
	var ok bool
	switch m.Kind {
	case config.StrategyNone:
		ok = m.Trimming == nil && m.Summarization == nil && m.Compacting == nil
	case config.StrategyTrimming:
		ok = m.Trimming != nil && m.Summarization == nil && m.Compacting == nil
	case config.StrategySummarization:
		ok = m.Summarization != nil && m.Trimming == nil && m.Compacting == nil
	case config.StrategyCompacting:
		ok = m.Compacting != nil && m.Trimming == nil && m.Summarization == nil
	default:
		return fmt.Errorf("session: unknown strategy %q", m.Kind)
	}
	if !ok {
		return fmt.Errorf("session: malformed %q strategy", m.Kind)
	}
	return nil
}

// Clone returns a deep copy.
func (m MemoryStrategy) Clone() MemoryStrategy {
	out := MemoryStrategy{Kind: m.Kind}
	if m.Trimming != nil {
		p := *m.Trimming
		out.Trimming = &p
	}
	if m.Summarization != nil {
		p := *m.Summarization
		out.Summarization = &p
	}
	if m.Compacting != nil {
		p := *m.Compacting
		if p.TriggerTurns != nil {
			v := *p.TriggerTurns
			p.TriggerTurns = &v
		}
		p.ExcludeTools = slices.Clone(p.ExcludeTools)
		out.Compacting = &p
	}
	return out
}

// Equal reports whether two variants carry the same kind and parameters.
func (m MemoryStrategy) Equal(o MemoryStrategy) bool {
	if m.Kind != o.Kind {
		return false
	}
	switch m.Kind {
	case config.StrategyTrimming:
		return m.Trimming != nil && o.Trimming != nil && *m.Trimming == *o.Trimming
	case config.StrategySummarization:
		return m.Summarization != nil && o.Summarization != nil && *m.Summarization == *o.Summarization
	case config.StrategyCompacting:
		a, b := m.Compacting, o.Compacting
		if a == nil || b == nil {
			return a == b
		}
		sameTrigger := (a.TriggerTurns == nil && b.TriggerTurns == nil) ||
			(a.TriggerTurns != nil && b.TriggerTurns != nil && *a.TriggerTurns == *b.TriggerTurns)
		return sameTrigger && a.KeepTurns == b.KeepTurns &&
			a.ClearToolInputs == b.ClearToolInputs && slices.Equal(a.ExcludeTools, b.ExcludeTools)
	default:
		return true
	}
}

// StrategyFromConfig derives the active variant from an agent configuration.
func StrategyFromConfig(cfg config.AgentConfiguration) MemoryStrategy {
	cfg = cfg.Normalize()
	switch cfg.Active() {
	case config.StrategySummarization:
		return Summarization(SummarizationParams{
			TriggerTurns:    cfg.SummarizationTriggerTurns,
			KeepRecentTurns: cfg.SummarizationKeepRecentTurns,
		})
	case config.StrategyCompacting:
		return Compacting(CompactingParams{
			TriggerTurns:    cfg.CompactingTriggerTurns,
			KeepTurns:       cfg.CompactingKeepTurns,
			ExcludeTools:    cfg.CompactingExcludeTools,
			ClearToolInputs: cfg.CompactingClearToolInputs,
		})
	case config.StrategyTrimming:
		return Trimming(TrimmingParams{
			MaxTurns:        cfg.MemoryMaxTurns,
			KeepRecentTurns: cfg.MemoryKeepRecentTurns,
		})
	default:
		return NoStrategy()
	}
}
