//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package worker is the worker side of the bridge protocol. It reads one
// command per line, runs commands concurrently and writes one response per
// line in completion order.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/panjf2000/ants/v2"

	"trpc.group/trpc-go/trpc-agent-bridge/bridge"
	"trpc.group/trpc-go/trpc-agent-bridge/log"
	"trpc.group/trpc-go/trpc-agent-bridge/runner"
	"trpc.group/trpc-go/trpc-agent-bridge/session"
)

// DefaultPoolSize bounds the commands processed at once.
const DefaultPoolSize = 16

var (
	// ErrUnsupportedCommand is returned for an unknown command type. Its text
	// is part of the protocol.
	ErrUnsupportedCommand = errors.New("Unsupported command type")
	// ErrAgentIDsNotList is returned when agent_ids is not a JSON array.
	ErrAgentIDsNotList = errors.New("agent_ids must be a list")
)

// Runner runs one conversational turn.
type Runner interface {
	Run(ctx context.Context, in runner.Input) (*runner.Output, error)
}

// Option configures a Worker.
type Option func(*Worker)

// WithMaxLineSize sets the longest request line accepted. Longer requests
// are answered with an error and skipped.
func WithMaxLineSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.maxLine = n
		}
	}
}

// WithPoolSize sets how many commands run at once.
func WithPoolSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.poolSize = n
		}
	}
}

// Worker dispatches bridge commands to the session service and the runner.
type Worker struct {
	sessions session.Service
	runner   Runner
	poolSize int
	maxLine  int
}

// New creates a Worker.
func New(sessions session.Service, r Runner, opts ...Option) *Worker {
	w := &Worker{
		sessions: sessions,
		runner:   r,
		poolSize: DefaultPoolSize,
		maxLine:  bridge.MaxLineSize,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// envelope is one response line.
type envelope struct {
	ID     *int64        `json:"id"`
	Status bridge.Status `json:"status"`
	Result any           `json:"result,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// Serve processes commands from r until it is exhausted, then waits for
// the commands in flight.
func (w *Worker) Serve(ctx context.Context, r io.Reader, out io.Writer) error {
	pool, err := ants.NewPool(w.poolSize)
	if err != nil {
		return fmt.Errorf("failed to create command pool: %w", err)
	}
	defer pool.Release()

	var encMu sync.Mutex
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	write := func(env envelope) {
		encMu.Lock()
		defer encMu.Unlock()
		if err := enc.Encode(env); err != nil {
			log.Errorf("worker: write response: %v", err)
		}
	}

	var wg sync.WaitGroup
	defer wg.Wait()
	lines := bridge.NewLineReader(r, w.maxLine)
	for {
		line, oversized, err := lines.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read requests: %w", err)
		}
		if oversized {
			write(w.rejectOversized(line))
			continue
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			write(w.dispatch(ctx, line))
		}); err != nil {
			wg.Done()
			write(envelope{
				ID:     requestID(line),
				Status: bridge.StatusError,
				Error:  fmt.Sprintf("failed to submit command: %v", err),
			})
		}
	}
}

// rejectOversized answers a request line longer than the limit.
func (w *Worker) rejectOversized(prefix []byte) envelope {
	env := envelope{
		Status: bridge.StatusError,
		Error:  fmt.Sprintf("request exceeds %d bytes", w.maxLine),
	}
	if id, ok := bridge.LeadingID(prefix); ok {
		env.ID = &id
	}
	log.Warnf("worker: %s", env.Error)
	return env
}

// dispatch decodes one line and handles it.
func (w *Worker) dispatch(ctx context.Context, line []byte) envelope {
	var req bridge.Request
	if err := json.Unmarshal(line, &req); err != nil {
		return envelope{ID: requestID(line), Status: bridge.StatusError, Error: err.Error()}
	}
	id := req.ID
	result, err := w.Handle(ctx, req.Command)
	if err != nil {
		log.Warnf("worker: %s request %d failed: %v", req.Type, id, err)
		return envelope{ID: &id, Status: bridge.StatusError, Error: err.Error()}
	}
	return envelope{ID: &id, Status: bridge.StatusOK, Result: result}
}

// requestID recovers the id of a line that failed to decode as a request.
func requestID(line []byte) *int64 {
	var probe struct {
		ID *int64 `json:"id"`
	}
	if err := json.Unmarshal(line, &probe); err != nil {
		return nil
	}
	return probe.ID
}

// Handle executes one command and returns its result.
func (w *Worker) Handle(ctx context.Context, cmd bridge.Command) (any, error) {
	switch cmd.Type {
	case bridge.CommandRun:
		return w.run(ctx, cmd)
	case bridge.CommandReset:
		if err := w.sessions.Reset(ctx); err != nil {
			return nil, err
		}
		return bridge.Ack{OK: true}, nil
	case bridge.CommandConfigureTrimming,
		bridge.CommandConfigureSummarization,
		bridge.CommandConfigureCompacting:
		ids, err := agentIDs(cmd.AgentIDs)
		if err != nil {
			return nil, err
		}
		switch cmd.Type {
		case bridge.CommandConfigureTrimming:
			err = w.sessions.ConfigureTrimming(ctx, ids, cmd.Enable, cmd.TrimmingParams())
		case bridge.CommandConfigureSummarization:
			err = w.sessions.ConfigureSummarization(ctx, ids, cmd.Enable, cmd.SummarizationParams())
		default:
			err = w.sessions.ConfigureCompacting(ctx, ids, cmd.Enable, cmd.CompactingParams())
		}
		if err != nil {
			return nil, err
		}
		return bridge.Ack{OK: true}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCommand, cmd.Type)
	}
}

func (w *Worker) run(ctx context.Context, cmd bridge.Command) (*bridge.RunResult, error) {
	history := make([]runner.HistoryMessage, 0, len(cmd.History))
	for _, m := range cmd.History {
		history = append(history, runner.HistoryMessage{Role: m.Role, Content: m.Content})
	}
	out, err := w.runner.Run(ctx, runner.Input{
		AgentID: cmd.AgentID,
		Message: cmd.Message,
		History: history,
		Config:  cmd.Config,
	})
	if err != nil {
		return nil, err
	}
	toolResults := out.ToolResults
	if toolResults == nil {
		toolResults = []string{}
	}
	return &bridge.RunResult{
		Response:          out.Response,
		ToolResults:       toolResults,
		TokenUsage:        out.Usage,
		Summary:           out.Summary,
		ContextTrimmed:    out.Trimmed,
		ContextSummarized: out.Summarized,
		ContextCompacted:  out.Compacted,
	}, nil
}

// agentIDs decodes agent_ids. Missing or null means no agents; blank
// and null entries are skipped; non-string entries use their JSON text.
func agentIDs(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, ErrAgentIDsNotList
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			s = string(item)
		}
		if s == "" || s == "null" {
			continue
		}
		ids = append(ids, s)
	}
	return ids, nil
}
