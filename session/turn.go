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
	"trpc.group/trpc-go/trpc-agent-bridge/usage"
)

// Role is the author of a turn.
type Role string

// Turn roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Synthetic marks turns inserted by a memory strategy.
type Synthetic string

// Synthetic turn kinds.
const (
	// SyntheticNone is an ordinary turn.
	SyntheticNone Synthetic = ""
	// SyntheticShadow is the user-role instruction placed before a summary.
	SyntheticShadow Synthetic = "shadow"
	// SyntheticSummary is the assistant-role turn holding a summary.
	SyntheticSummary Synthetic = "summary"
)

// ToolCall is one tool invocation together with its result. A call and its
// result always live in the same record, so eviction treats them as a unit.
type ToolCall struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Input  string `json:"input"`
	Result string `json:"result"`
	// InputCompacted and ResultCompacted mark payloads already replaced by
	// a placeholder.
	InputCompacted  bool `json:"inputCompacted,omitempty"`
	ResultCompacted bool `json:"resultCompacted,omitempty"`
}

// Turn is one role-tagged unit of conversation content.
type Turn struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
	Synthetic Synthetic  `json:"synthetic,omitempty"`
}

// NewUserTurn creates a user turn.
func NewUserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// NewAssistantTurn creates an assistant turn.
func NewAssistantTurn(content string, calls ...ToolCall) Turn {
	return Turn{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// IsUserAnchored reports whether the turn was authored by the user. Synthetic
// shadow turns carry the user role but are not user-authored.
func (t Turn) IsUserAnchored() bool {
	return t.Role == RoleUser && t.Synthetic == SyntheticNone
}

// Clone returns a deep copy of the turn.
func (t Turn) Clone() Turn {
	out := t
	if t.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(t.ToolCalls))
		copy(out.ToolCalls, t.ToolCalls)
	}
	return out
}

// Usage returns the tokens the turn accounts for. User content counts as
// user input, assistant content as agent output and summary turns as
// memory. Shadow and system turns are fixed overhead and count nothing.
// Every tool call counts its input and result as tool usage.
func (t Turn) Usage(c *usage.Classifier) usage.Usage {
	var u usage.Usage
	switch {
	case t.Synthetic == SyntheticSummary:
		u.Memory = usage.Estimate(t.Content)
	case t.Synthetic == SyntheticShadow:
	case t.Role == RoleUser:
		u.UserInput = usage.Estimate(t.Content)
	case t.Role == RoleAssistant:
		u.AgentOutput = usage.Estimate(t.Content)
	}
	for _, call := range t.ToolCalls {
		u = u.Add(call.Usage(c))
	}
	return u
}

// Usage returns the tool usage of the call's input and result.
func (c ToolCall) Usage(cl *usage.Classifier) usage.Usage {
	return usage.ForTool(cl, c.Name, c.Input).Add(usage.ForTool(cl, c.Name, c.Result))
}

// TurnsUsage sums Usage over turns.
func TurnsUsage(turns []Turn, c *usage.Classifier) usage.Usage {
	var u usage.Usage
	for _, t := range turns {
		u = u.Add(t.Usage(c))
	}
	return u
}

// CloneTurns deep-copies a turn sequence.
func CloneTurns(turns []Turn) []Turn {
	if turns == nil {
		return nil
	}
	out := make([]Turn, len(turns))
	for i, t := range turns {
		out[i] = t.Clone()
	}
	return out
}

// UserAnchoredCount counts user-authored turns.
func UserAnchoredCount(turns []Turn) int {
	n := 0
	for _, t := range turns {
		if t.IsUserAnchored() {
			n++
		}
	}
	return n
}

// RecentBoundary returns the index of the k-th most recent user-authored
// turn, so turns[idx:] holds exactly the last k user-authored turns and the
// turns interleaved with them. It returns 0 when there are at most k
// user-authored turns, and len(turns) when k <= 0.
func RecentBoundary(turns []Turn, k int) int {
	if k <= 0 {
		return len(turns)
	}
	seen := 0
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].IsUserAnchored() {
			seen++
			if seen == k {
				return i
			}
		}
	}
	return 0
}
