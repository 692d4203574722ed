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
	"errors"
	"fmt"
	"strings"

	"trpc.group/trpc-go/trpc-agent-bridge/config"
	"trpc.group/trpc-go/trpc-agent-bridge/session"
	"trpc.group/trpc-go/trpc-agent-bridge/usage"
)

// Summarization replaces everything older than the most recent
// KeepRecentTurns user turns with a shadow instruction and a summary once
// the conversation has more than TriggerTurns user turns.
//
// The delta charges the summary text to memory and removes every evicted
// turn from its own category. A summary evicted by a later summarization
// leaves memory, and the shadow line is never counted.
type Summarization struct {
	params     session.SummarizationParams
	summarizer Summarizer
	classifier *usage.Classifier
}

// Kind implements Strategy.
func (s *Summarization) Kind() config.Strategy { return config.StrategySummarization }

// Apply implements Strategy.
func (s *Summarization) Apply(ctx context.Context, in Input) (*Result, error) {
	if in.UserTurns <= s.params.TriggerTurns {
		return unchanged(in), nil
	}
	boundary := session.RecentBoundary(in.Turns, s.params.KeepRecentTurns)
	if boundary == 0 {
		return unchanged(in), nil
	}
	prefix := session.CloneTurns(in.Turns[:boundary])
	record, err := s.summarizer.Summarize(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("strategy: summarize %d turns: %w", len(prefix), err)
	}
	if record == nil || strings.TrimSpace(record.SummaryText) == "" {
		return nil, errors.New("strategy: summarizer returned an empty summary")
	}

	turns := make([]session.Turn, 0, len(in.Turns)-boundary+2)
	turns = append(turns,
		session.Turn{Role: session.RoleUser, Content: record.ShadowLine, Synthetic: session.SyntheticShadow},
		session.Turn{Role: session.RoleAssistant, Content: record.SummaryText, Synthetic: session.SyntheticSummary},
	)
	turns = append(turns, session.CloneTurns(in.Turns[boundary:])...)

	delta := session.TurnsUsage(prefix, s.classifier).Neg().
		Add(usage.Usage{Memory: usage.Estimate(record.SummaryText)})
	return &Result{
		Turns:   turns,
		Delta:   delta,
		Applied: true,
		Summary: record,
	}, nil
}
