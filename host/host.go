//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package host drives the worker from the caller side. It owns the two
// configured agents, their visible conversation history and their
// cumulative token usage, and runs both agents side by side over one
// transport.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"trpc.group/trpc-go/trpc-agent-bridge/bridge"
	"trpc.group/trpc-go/trpc-agent-bridge/config"
	"trpc.group/trpc-go/trpc-agent-bridge/log"
	"trpc.group/trpc-go/trpc-agent-bridge/session"
	"trpc.group/trpc-go/trpc-agent-bridge/usage"
)

// ErrMessageRequired is returned when a run has no message.
var ErrMessageRequired = errors.New("host: message is required")

// Sender sends one command to the worker. *bridge.Supervisor satisfies it.
type Sender interface {
	Send(ctx context.Context, cmd bridge.Command) (json.RawMessage, error)
}

// AgentResult is the outcome of one agent's run.
type AgentResult struct {
	AgentID string `json:"agentId"`
	*bridge.RunResult
	// TotalUsage is the agent's cumulative usage after this run.
	TotalUsage usage.Usage `json:"totalUsage"`
	Error      string      `json:"error,omitempty"`
}

// Comparison is the combined outcome of running every slot on one message.
type Comparison struct {
	ID      string         `json:"id"`
	Message string         `json:"message"`
	Results []*AgentResult `json:"results"`
}

// agent is the host-side state of one slot.
type agent struct {
	history []bridge.HistoryMessage
	usage   usage.Accumulator
}

// Option configures a Host.
type Option func(*options)

type options struct {
	poolSize int
}

// WithPoolSize sets how many agent runs may be in flight at once.
func WithPoolSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.poolSize = n
		}
	}
}

// Host is the caller-side run orchestrator.
type Host struct {
	sender Sender
	store  *config.Store
	pool   *ants.Pool

	mu     sync.Mutex
	agents map[string]*agent
	// generation changes on reset so runs started before it are not recorded.
	generation uint64
}

// New creates a Host.
func New(sender Sender, store *config.Store, opts ...Option) (*Host, error) {
	o := &options{poolSize: 2 * len(config.Slots)}
	for _, opt := range opts {
		opt(o)
	}
	pool, err := ants.NewPool(o.poolSize)
	if err != nil {
		return nil, fmt.Errorf("host: create run pool: %w", err)
	}
	h := &Host{
		sender: sender,
		store:  store,
		pool:   pool,
		agents: make(map[string]*agent, len(config.Slots)),
	}
	for _, slot := range config.Slots {
		h.agents[slot] = &agent{}
	}
	return h, nil
}

// Close releases the run pool.
func (h *Host) Close() {
	h.pool.Release()
}

// Config returns the persisted configuration of both slots.
func (h *Host) Config() config.File {
	return h.store.File()
}

// Run sends message to the agent in slot with the slot's configuration and
// the host's view of its history.
func (h *Host) Run(ctx context.Context, slot, message string) (*AgentResult, error) {
	if strings.TrimSpace(message) == "" {
		return nil, ErrMessageRequired
	}
	cfg, err := h.store.Slot(slot)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	gen := h.generation
	history := append([]bridge.HistoryMessage(nil), h.agents[slot].history...)
	h.mu.Unlock()

	raw, err := h.sender.Send(ctx, bridge.RunCommand(slot, message, history, &cfg))
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", slot, err)
	}
	var result bridge.RunResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("run %s: decode result: %w", slot, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	a := h.agents[slot]
	if gen == h.generation {
		a.history = append(a.history,
			bridge.HistoryMessage{Role: string(session.RoleUser), Content: message},
			bridge.HistoryMessage{Role: string(session.RoleAssistant), Content: result.Response},
		)
		a.usage.Add(result.TokenUsage)
	} else {
		log.Infof("host: %s run finished after a reset, not recorded", slot)
	}
	return &AgentResult{AgentID: slot, RunResult: &result, TotalUsage: a.usage.Total()}, nil
}

// Compare runs message against every slot concurrently and waits for all
// of them. A failing agent reports its error in its own result.
func (h *Host) Compare(ctx context.Context, message string) (*Comparison, error) {
	if strings.TrimSpace(message) == "" {
		return nil, ErrMessageRequired
	}
	cmp := &Comparison{
		ID:      uuid.NewString(),
		Message: message,
		Results: make([]*AgentResult, len(config.Slots)),
	}
	var wg sync.WaitGroup
	for i, slot := range config.Slots {
		wg.Add(1)
		if err := h.pool.Submit(func() {
			defer wg.Done()
			cmp.Results[i] = h.runReporting(ctx, slot, message)
		}); err != nil {
			wg.Done()
			cmp.Results[i] = h.failed(slot, fmt.Errorf("submit run: %w", err))
		}
	}
	wg.Wait()
	return cmp, nil
}

func (h *Host) runReporting(ctx context.Context, slot, message string) *AgentResult {
	res, err := h.Run(ctx, slot, message)
	if err != nil {
		log.Warnf("host: compare %s: %v", slot, err)
		return h.failed(slot, err)
	}
	return res
}

func (h *Host) failed(slot string, err error) *AgentResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	res := &AgentResult{AgentID: slot, Error: err.Error()}
	if a, ok := h.agents[slot]; ok {
		res.TotalUsage = a.usage.Total()
	}
	return res
}

// Usage returns the cumulative usage of the agent in slot.
func (h *Host) Usage(slot string) (usage.Usage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.agents[slot]
	if !ok {
		return usage.Usage{}, fmt.Errorf("%w: %q", config.ErrInvalidSlot, slot)
	}
	return a.usage.Total(), nil
}

// History returns a copy of the conversation the host has seen for slot.
func (h *Host) History(slot string) []bridge.HistoryMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.agents[slot]
	if !ok {
		return nil
	}
	return append([]bridge.HistoryMessage(nil), a.history...)
}

// Reset resets the worker and then clears the host's history and usage.
func (h *Host) Reset(ctx context.Context) error {
	if _, err := h.sender.Send(ctx, bridge.ResetCommand()); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.generation++
	for _, a := range h.agents {
		a.history = nil
		a.usage.Reset()
	}
	return nil
}

// Configure persists cfg for slot and applies its memory strategy to the
// slot's worker session: the inactive strategies are disabled, then the
// active one is enabled with its parameters.
func (h *Host) Configure(ctx context.Context, slot string, cfg config.AgentConfiguration) (config.AgentConfiguration, error) {
	saved, err := h.store.SetSlot(slot, cfg)
	if err != nil {
		return config.AgentConfiguration{}, err
	}
	ms := session.StrategyFromConfig(saved)
	ids := []string{slot}
	cmds := map[config.Strategy]bridge.Command{
		config.StrategyTrimming:      bridge.ConfigureTrimmingCommand(ids, ms.Trimming != nil, ms.Trimming),
		config.StrategySummarization: bridge.ConfigureSummarizationCommand(ids, ms.Summarization != nil, ms.Summarization),
		config.StrategyCompacting:    bridge.ConfigureCompactingCommand(ids, ms.Compacting != nil, ms.Compacting),
	}
	order := []config.Strategy{config.StrategyTrimming, config.StrategySummarization, config.StrategyCompacting}
	for _, kind := range order {
		if kind == ms.Kind {
			continue
		}
		if _, err := h.sender.Send(ctx, cmds[kind]); err != nil {
			return saved, fmt.Errorf("disable %s for %s: %w", kind, slot, err)
		}
	}
	if cmd, ok := cmds[ms.Kind]; ok {
		if _, err := h.sender.Send(ctx, cmd); err != nil {
			return saved, fmt.Errorf("enable %s for %s: %w", ms.Kind, slot, err)
		}
	}
	return saved, nil
}

// ConfigureTrimming forwards a configure_trimming command.
func (h *Host) ConfigureTrimming(ctx context.Context, agentIDs []string, enable bool, p *session.TrimmingParams) error {
	_, err := h.sender.Send(ctx, bridge.ConfigureTrimmingCommand(agentIDs, enable, p))
	return err
}

// ConfigureSummarization forwards a configure_summarization command.
func (h *Host) ConfigureSummarization(ctx context.Context, agentIDs []string, enable bool, p *session.SummarizationParams) error {
	_, err := h.sender.Send(ctx, bridge.ConfigureSummarizationCommand(agentIDs, enable, p))
	return err
}

// ConfigureCompacting forwards a configure_compacting command.
func (h *Host) ConfigureCompacting(ctx context.Context, agentIDs []string, enable bool, p *session.CompactingParams) error {
	_, err := h.sender.Send(ctx, bridge.ConfigureCompactingCommand(agentIDs, enable, p))
	return err
}
