//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package session provides the conversation state the worker keeps per
// agent and the interface of the registry that owns it.
package session

import (
	"context"
	"errors"
	"time"

	"trpc.group/trpc-go/trpc-agent-bridge/config"
	"trpc.group/trpc-go/trpc-agent-bridge/usage"
)

// ErrAgentIDRequired is returned when an operation names no agent.
var ErrAgentIDRequired = errors.New("session: agent id is required")

// SummaryRecord is the output of the summarization strategy.
type SummaryRecord struct {
	ShadowLine  string `json:"shadow_line"`
	SummaryText string `json:"summary_text"`
}

// Session is the conversation state of one agent.
type Session struct {
	AgentID string
	// Turns is the active context, oldest first.
	Turns []Turn
	// Config is the configuration supplied with the latest run.
	Config   config.AgentConfiguration
	Strategy MemoryStrategy
	// Usage is the cumulative usage of every run, clamped at zero.
	Usage usage.Usage
	// Summary is the latest summary produced for the session.
	Summary   *SummaryRecord
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates an empty session with no active strategy.
func New(agentID string, now time.Time) *Session {
	return &Session{
		AgentID:   agentID,
		Config:    config.Default(),
		Strategy:  NoStrategy(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Turns = CloneTurns(s.Turns)
	out.Strategy = s.Strategy.Clone()
	out.Config.CompactingExcludeTools = append(config.ToolList(nil), s.Config.CompactingExcludeTools...)
	if s.Config.CompactingTriggerTurns != nil {
		v := *s.Config.CompactingTriggerTurns
		out.Config.CompactingTriggerTurns = &v
	}
	if s.Summary != nil {
		sum := *s.Summary
		out.Summary = &sum
	}
	return &out
}

// UserTurns returns the user-anchored turn count.
func (s *Session) UserTurns() int {
	return UserAnchoredCount(s.Turns)
}

// Service is the session registry. It exclusively owns every Session:
// callers only ever see copies, and mutate through Update.
type Service interface {
	// Get returns a snapshot of the agent's session, creating the session on
	// first reference.
	Get(ctx context.Context, agentID string) (*Session, error)

	// Update applies fn to the agent's session atomically. Changes are
	// discarded if fn returns an error.
	Update(ctx context.Context, agentID string, fn func(*Session) error) error

	// ConfigureTrimming enables or disables trimming for each agent. A nil
	// params keeps the agent's current trimming params, or the defaults.
	ConfigureTrimming(ctx context.Context, agentIDs []string, enable bool, params *TrimmingParams) error

	// ConfigureSummarization enables or disables summarization for each agent.
	ConfigureSummarization(ctx context.Context, agentIDs []string, enable bool, params *SummarizationParams) error

	// ConfigureCompacting enables or disables compacting for each agent.
	ConfigureCompacting(ctx context.Context, agentIDs []string, enable bool, params *CompactingParams) error

	// Reset drops every session and clears dependent in-memory stores.
	Reset(ctx context.Context) error

	// Close releases resources held by the service.
	Close() error
}
