//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package runner executes one conversational run for an agent session: it
// shapes the session with the configured memory strategy, calls the model
// with the support tools, and commits the new turns and token usage.
package runner

import (
	"context"
	"errors"
	"strings"

	"trpc.group/trpc-go/trpc-agent-bridge/config"
	itelemetry "trpc.group/trpc-go/trpc-agent-bridge/internal/telemetry"
	"trpc.group/trpc-go/trpc-agent-bridge/log"
	"trpc.group/trpc-go/trpc-agent-bridge/model"
	"trpc.group/trpc-go/trpc-agent-bridge/session"
	"trpc.group/trpc-go/trpc-agent-bridge/session/strategy"
	"trpc.group/trpc-go/trpc-agent-bridge/telemetry/metric"
	"trpc.group/trpc-go/trpc-agent-bridge/telemetry/trace"
	"trpc.group/trpc-go/trpc-agent-bridge/tool"
	"trpc.group/trpc-go/trpc-agent-bridge/usage"
)

// EmptyResponse replaces a blank final answer.
const EmptyResponse = "(No response generated by agent.)"

// DefaultMaxToolIterations bounds the tool-call rounds of one run.
const DefaultMaxToolIterations = 8

var (
	// ErrMessageRequired is returned when a run carries no message.
	ErrMessageRequired = errors.New("runner: message is required")
	// ErrToolIterationsExceeded is returned when the model keeps calling
	// tools past the configured limit.
	ErrToolIterationsExceeded = errors.New("runner: tool iterations exceeded")
	// ErrSessionReset is returned when the session was reset while the run
	// was in flight. The run's turns are discarded.
	ErrSessionReset = errors.New("runner: session was reset during the run")
)

// SummaryStore persists the latest summary across sessions.
type SummaryStore interface {
	Save(ctx context.Context, rec session.SummaryRecord) error
	Load() (string, bool)
}

// HistoryMessage is one message of the history the caller keeps.
type HistoryMessage struct {
	Role    string
	Content string
}

// Input is one run request.
type Input struct {
	AgentID string
	Message string
	// History is the caller's view of the conversation. It seeds a session
	// that has no turns yet and always counts toward user input usage.
	History []HistoryMessage
	// Config overrides the session's configuration when set.
	Config *config.AgentConfiguration
}

// Output is the result of one run.
type Output struct {
	Response string
	// ToolResults lists each tool call as "name(k=v, ...) → output".
	ToolResults []string
	// Usage is this run's usage combined with the strategy's eviction delta.
	Usage      usage.Usage
	Summary    *session.SummaryRecord
	Trimmed    bool
	Summarized bool
	Compacted  bool
}

// Runner runs agents against a session service.
type Runner struct {
	sessions          session.Service
	model             model.Model
	tools             map[string]tool.Tool
	summarizer        strategy.Summarizer
	store             SummaryStore
	classifier        *usage.Classifier
	instructions      string
	maxToolIterations int
}

// Option configures a Runner.
type Option func(*Runner)

// WithTools sets the tools offered to the model.
func WithTools(tools ...tool.Tool) Option {
	return func(r *Runner) {
		r.tools = tool.Index(tools...)
	}
}

// WithSummarizer sets the summarizer used by the summarization strategy.
func WithSummarizer(s strategy.Summarizer) Option {
	return func(r *Runner) {
		r.summarizer = s
	}
}

// WithSummaryStore sets where summaries are saved and injected from.
func WithSummaryStore(s SummaryStore) Option {
	return func(r *Runner) {
		r.store = s
	}
}

// WithClassifier sets which tools count as retrieval.
func WithClassifier(c *usage.Classifier) Option {
	return func(r *Runner) {
		r.classifier = c
	}
}

// WithInstructions replaces the base system prompt.
func WithInstructions(text string) Option {
	return func(r *Runner) {
		r.instructions = text
	}
}

// WithMaxToolIterations bounds the tool-call rounds of one run.
func WithMaxToolIterations(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxToolIterations = n
		}
	}
}

// New creates a Runner.
func New(sessions session.Service, m model.Model, opts ...Option) *Runner {
	r := &Runner{
		sessions:          sessions,
		model:             m,
		tools:             map[string]tool.Tool{},
		instructions:      DefaultInstructions,
		maxToolIterations: DefaultMaxToolIterations,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.classifier == nil {
		r.classifier = usage.NewClassifier()
	}
	return r
}

// Run executes one run. Nothing is committed unless the whole run succeeds.
func (r *Runner) Run(ctx context.Context, in Input) (*Output, error) {
	if strings.TrimSpace(in.AgentID) == "" {
		return nil, session.ErrAgentIDRequired
	}
	if strings.TrimSpace(in.Message) == "" {
		return nil, ErrMessageRequired
	}
	ctx, span := trace.Tracer.Start(ctx, itelemetry.NewRunSpanName(in.AgentID))
	defer span.End()

	snap, err := r.sessions.Get(ctx, in.AgentID)
	if err != nil {
		return nil, err
	}
	cfg := snap.Config
	ms := snap.Strategy
	if in.Config != nil {
		cfg = in.Config.Normalize()
		if want := session.StrategyFromConfig(cfg); !want.Equal(ms) {
			log.Debugf("runner: %s strategy %s -> %s", in.AgentID, ms.Kind, want.Kind)
			ms = want
		}
	}

	turns := snap.Turns
	if len(turns) == 0 {
		turns = rehydrate(in.History)
	}
	turns = append(turns, session.NewUserTurn(in.Message))

	strat, err := strategy.New(ms,
		strategy.WithSummarizer(r.summarizer),
		strategy.WithClassifier(r.classifier),
	)
	if err != nil {
		return nil, err
	}
	shaped, err := strat.Apply(ctx, strategy.NewInput(turns))
	if err != nil {
		return nil, err
	}
	if shaped.Applied {
		metric.RecordStrategyApplied(ctx, string(strat.Kind()))
	}
	turns = shaped.Turns

	var stored string
	if cfg.MemoryInjection && r.store != nil {
		stored, _ = r.store.Load()
	}
	instr := buildInstructions(r.instructions, cfg.MemoryInjection, stored)

	loop, err := r.toolLoop(ctx, in.AgentID, cfg, instr.text, turns)
	if err != nil {
		return nil, err
	}
	turns = loop.turns

	runUsage := usage.Usage{
		UserInput:   usage.Estimate(userText(in.History, in.Message)),
		AgentOutput: usage.Estimate(loop.response),
		Memory:      instr.memory,
		BasePrompt:  instr.basePrompt,
	}
	for _, call := range loop.calls {
		runUsage = runUsage.Add(call.Usage(r.classifier))
	}
	total := runUsage.Add(shaped.Delta)
	metric.RecordTokens(ctx, total)

	if shaped.Summary != nil && r.store != nil {
		if err := r.store.Save(ctx, *shaped.Summary); err != nil {
			log.Errorf("runner: save summary for %s: %v", in.AgentID, err)
		}
	}

	err = r.sessions.Update(ctx, in.AgentID, func(s *session.Session) error {
		if !s.CreatedAt.Equal(snap.CreatedAt) {
			return ErrSessionReset
		}
		s.Turns = turns
		s.Config = cfg
		// A configure command committed mid-run wins over the run's strategy.
		if s.Strategy.Equal(snap.Strategy) {
			s.Strategy = ms
		}
		s.Usage = s.Usage.Add(total).Clamp()
		if shaped.Summary != nil {
			sum := *shaped.Summary
			s.Summary = &sum
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	kind := strat.Kind()
	return &Output{
		Response:    loop.response,
		ToolResults: loop.toolResults,
		Usage:       total,
		Summary:     shaped.Summary,
		Trimmed:     shaped.Applied && kind == config.StrategyTrimming,
		Summarized:  shaped.Applied && kind == config.StrategySummarization,
		Compacted:   shaped.Applied && kind == config.StrategyCompacting,
	}, nil
}

// rehydrate converts caller history into turns. Messages with a role other
// than user or assistant, or with no content, are skipped.
func rehydrate(history []HistoryMessage) []session.Turn {
	var turns []session.Turn
	for _, m := range history {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		switch session.Role(strings.ToLower(m.Role)) {
		case session.RoleUser:
			turns = append(turns, session.NewUserTurn(m.Content))
		case session.RoleAssistant:
			turns = append(turns, session.NewAssistantTurn(m.Content))
		}
	}
	return turns
}

// userText concatenates every user message of the history and the new
// message, so the estimate is rounded once.
func userText(history []HistoryMessage, message string) string {
	var b strings.Builder
	for _, m := range history {
		if session.Role(strings.ToLower(m.Role)) == session.RoleUser {
			b.WriteString(m.Content)
		}
	}
	b.WriteString(message)
	return b.String()
}
