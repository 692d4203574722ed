//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package strategy

import (
	"context"

	"trpc.group/trpc-go/trpc-agent-bridge/config"
	"trpc.group/trpc-go/trpc-agent-bridge/session"
	"trpc.group/trpc-go/trpc-agent-bridge/usage"
)

// Placeholders substituted for compacted tool payloads.
const (
	ResultPlaceholder = "[tool result compacted]"
	InputPlaceholder  = `{"compacted":true}`
)

// Compacting replaces the payloads of old tool calls with fixed
// placeholders once the conversation has more than TriggerTurns user turns.
// Tool name and call id are preserved so later turns can still refer to
// the call. Calls to excluded tools are never touched.
type Compacting struct {
	params     session.CompactingParams
	exclude    usage.NameSet
	classifier *usage.Classifier
}

// Kind implements Strategy.
func (c *Compacting) Kind() config.Strategy { return config.StrategyCompacting }

// Apply implements Strategy.
func (c *Compacting) Apply(_ context.Context, in Input) (*Result, error) {
	if c.params.TriggerTurns == nil || in.UserTurns <= *c.params.TriggerTurns {
		return unchanged(in), nil
	}
	turns := session.CloneTurns(in.Turns)
	boundary := session.RecentBoundary(turns, c.params.KeepTurns)

	var (
		delta   usage.Usage
		applied bool
	)
	for i := 0; i < boundary; i++ {
		for j := range turns[i].ToolCalls {
			call := &turns[i].ToolCalls[j]
			if c.exclude.Contains(call.Name) {
				continue
			}
			if !call.ResultCompacted {
				delta = delta.Add(c.replace(call.Name, &call.Result, ResultPlaceholder))
				call.ResultCompacted = true
				applied = true
			}
			if c.params.ClearToolInputs && !call.InputCompacted {
				delta = delta.Add(c.replace(call.Name, &call.Input, InputPlaceholder))
				call.InputCompacted = true
				applied = true
			}
		}
	}
	return &Result{Turns: turns, Delta: delta, Applied: applied}, nil
}

// replace swaps *payload for placeholder and returns the usage change. A
// payload no larger than the placeholder yields a zero change.
func (c *Compacting) replace(name string, payload *string, placeholder string) usage.Usage {
	before := usage.ForTool(c.classifier, name, *payload)
	after := usage.ForTool(c.classifier, name, placeholder)
	*payload = placeholder
	return usage.Usage{
		Tools: min(0, after.Tools-before.Tools),
		RAG:   min(0, after.RAG-before.RAG),
	}
}
