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

// Trimming drops everything older than the most recent KeepRecentTurns
// user turns once the conversation has more than MaxTurns user turns.
type Trimming struct {
	params     session.TrimmingParams
	classifier *usage.Classifier
}

// Kind implements Strategy.
func (t *Trimming) Kind() config.Strategy { return config.StrategyTrimming }

// Apply implements Strategy.
func (t *Trimming) Apply(_ context.Context, in Input) (*Result, error) {
	if in.UserTurns <= t.params.MaxTurns {
		return unchanged(in), nil
	}
	boundary := session.RecentBoundary(in.Turns, t.params.KeepRecentTurns)
	if boundary == 0 {
		return unchanged(in), nil
	}
	return &Result{
		Turns:   session.CloneTurns(in.Turns[boundary:]),
		Delta:   session.TurnsUsage(in.Turns[:boundary], t.classifier).Neg(),
		Applied: true,
	}, nil
}
