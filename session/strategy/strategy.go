//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package strategy implements the memory strategies that keep a session's
// turn sequence within budget: trimming, summarization and compacting.
//
// A strategy is a pure transformation. It receives a snapshot of the turns,
// never modifies it, and returns the new sequence together with the signed
// token delta of what it removed.
package strategy

import (
	"context"
	"errors"
	"fmt"

	"trpc.group/trpc-go/trpc-agent-bridge/config"
	"trpc.group/trpc-go/trpc-agent-bridge/session"
	"trpc.group/trpc-go/trpc-agent-bridge/usage"
)

// ErrSummarizerRequired is returned when summarization is configured
// without a summarizer.
var ErrSummarizerRequired = errors.New("strategy: summarization requires a summarizer")

// Summarizer condenses a prefix of a conversation.
type Summarizer interface {
	Summarize(ctx context.Context, turns []session.Turn) (*session.SummaryRecord, error)
}

// Input is what a strategy operates on.
type Input struct {
	Turns []session.Turn
	// UserTurns is the user-anchored turn count of Turns.
	UserTurns int
}

// NewInput builds an Input and counts its user-anchored turns.
func NewInput(turns []session.Turn) Input {
	return Input{Turns: turns, UserTurns: session.UserAnchoredCount(turns)}
}

// Result is the outcome of applying a strategy.
type Result struct {
	Turns []session.Turn
	// Delta is the signed usage change caused by the strategy.
	Delta usage.Usage
	// Applied reports whether the strategy changed the sequence.
	Applied bool
	// Summary is set when summarization ran.
	Summary *session.SummaryRecord
}

func unchanged(in Input) *Result {
	return &Result{Turns: session.CloneTurns(in.Turns)}
}

// Strategy transforms a turn sequence before a model call.
type Strategy interface {
	Kind() config.Strategy
	Apply(ctx context.Context, in Input) (*Result, error)
}

// Option configures New.
type Option func(*options)

type options struct {
	summarizer Summarizer
	classifier *usage.Classifier
}

// WithSummarizer sets the summarizer used by summarization.
func WithSummarizer(s Summarizer) Option {
	return func(o *options) {
		o.summarizer = s
	}
}

// WithClassifier sets which tools count as retrieval.
func WithClassifier(c *usage.Classifier) Option {
	return func(o *options) {
		o.classifier = c
	}
}

// New builds the strategy selected by ms.
func New(ms session.MemoryStrategy, opts ...Option) (Strategy, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.classifier == nil {
		o.classifier = usage.NewClassifier()
	}
	if err := ms.Validate(); err != nil {
		return nil, err
	}
	switch ms.Kind {
	case config.StrategyTrimming:
		return &Trimming{params: ms.Trimming.Normalize(), classifier: o.classifier}, nil
	case config.StrategySummarization:
		if o.summarizer == nil {
			return nil, ErrSummarizerRequired
		}
		return &Summarization{
			params:     ms.Summarization.Normalize(),
			summarizer: o.summarizer,
			classifier: o.classifier,
		}, nil
	case config.StrategyCompacting:
		p := ms.Compacting.Normalize()
		return &Compacting{
			params:     p,
			exclude:    usage.NewNameSet(p.ExcludeTools...),
			classifier: o.classifier,
		}, nil
	case config.StrategyNone:
		return None{}, nil
	default:
		return nil, fmt.Errorf("strategy: unknown kind %q", ms.Kind)
	}
}

// None leaves the sequence untouched.
type None struct{}

// Kind implements Strategy.
func (None) Kind() config.Strategy { return config.StrategyNone }

// Apply implements Strategy.
func (None) Apply(_ context.Context, in Input) (*Result, error) {
	return unchanged(in), nil
}
