//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides in-memory session service implementation.
package inmemory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"trpc.group/trpc-go/trpc-agent-bridge/config"
	"trpc.group/trpc-go/trpc-agent-bridge/log"
	"trpc.group/trpc-go/trpc-agent-bridge/session"
)

var _ session.Service = (*SessionService)(nil)

// SessionService keeps sessions in process memory, keyed by agent id.
type SessionService struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
	opts     serviceOpts
}

// NewSessionService creates a new in-memory session service.
func NewSessionService(options ...ServiceOpt) *SessionService {
	opts := defaultServiceOpts()
	for _, option := range options {
		option(&opts)
	}
	return &SessionService{
		sessions: make(map[string]*session.Session),
		opts:     opts,
	}
}

// getOrCreate returns the live session. Callers must hold s.mu.
func (s *SessionService) getOrCreate(agentID string) *session.Session {
	sess, ok := s.sessions[agentID]
	if !ok {
		sess = session.New(agentID, s.opts.clock())
		s.sessions[agentID] = sess
		log.Debugf("session: created %s", agentID)
	}
	return sess
}

// Get returns a snapshot of the agent's session, creating it on first use.
func (s *SessionService) Get(ctx context.Context, agentID string) (*session.Session, error) {
	if agentID == "" {
		return nil, session.ErrAgentIDRequired
	}
	s.mu.RLock()
	sess, ok := s.sessions[agentID]
	if ok {
		snapshot := sess.Clone()
		s.mu.RUnlock()
		return snapshot, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreate(agentID).Clone(), nil
}

// Update applies fn to a copy of the session and commits the copy when fn
// succeeds.
func (s *SessionService) Update(ctx context.Context, agentID string, fn func(*session.Session) error) error {
	if agentID == "" {
		return session.ErrAgentIDRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.getOrCreate(agentID).Clone()
	if err := fn(work); err != nil {
		return err
	}
	if err := work.Strategy.Validate(); err != nil {
		return err
	}
	work.AgentID = agentID
	work.UpdatedAt = s.opts.clock()
	s.sessions[agentID] = work
	return nil
}

// ConfigureTrimming enables or disables trimming.
func (s *SessionService) ConfigureTrimming(
	ctx context.Context,
	agentIDs []string,
	enable bool,
	params *session.TrimmingParams,
) error {
	return s.configure(agentIDs, config.StrategyTrimming, enable, func(cur session.MemoryStrategy) session.MemoryStrategy {
		p := session.TrimmingParams{}
		switch {
		case params != nil:
			p = *params
		case cur.Trimming != nil:
			p = *cur.Trimming
		}
		return session.Trimming(p)
	})
}

// ConfigureSummarization enables or disables summarization.
func (s *SessionService) ConfigureSummarization(
	ctx context.Context,
	agentIDs []string,
	enable bool,
	params *session.SummarizationParams,
) error {
	return s.configure(agentIDs, config.StrategySummarization, enable, func(cur session.MemoryStrategy) session.MemoryStrategy {
		p := session.SummarizationParams{}
		switch {
		case params != nil:
			p = *params
		case cur.Summarization != nil:
			p = *cur.Summarization
		}
		return session.Summarization(p)
	})
}

// ConfigureCompacting enables or disables compacting.
func (s *SessionService) ConfigureCompacting(
	ctx context.Context,
	agentIDs []string,
	enable bool,
	params *session.CompactingParams,
) error {
	return s.configure(agentIDs, config.StrategyCompacting, enable, func(cur session.MemoryStrategy) session.MemoryStrategy {
		p := session.CompactingParams{}
		switch {
		case params != nil:
			p = *params
		case cur.Compacting != nil:
			p = *cur.Clone().Compacting
		}
		return session.Compacting(p)
	})
}

// configure sets or clears one strategy kind on each agent. Enabling
// replaces whatever variant was active. Disabling only clears the variant
// when it is of the given kind, so disabling an inactive strategy is a
// no-op. History is kept either way.
func (s *SessionService) configure(
	agentIDs []string,
	kind config.Strategy,
	enable bool,
	build func(cur session.MemoryStrategy) session.MemoryStrategy,
) error {
	ids := normalizeIDs(agentIDs)
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		sess := s.getOrCreate(id)
		next := sess.Strategy
		switch {
		case enable:
			next = build(sess.Strategy)
		case sess.Strategy.Kind == kind:
			next = session.NoStrategy()
		}
		if err := next.Validate(); err != nil {
			return fmt.Errorf("configure %s for %s: %w", kind, id, err)
		}
		if next.Equal(sess.Strategy) {
			continue
		}
		updated := sess.Clone()
		updated.Strategy = next
		updated.UpdatedAt = s.opts.clock()
		s.sessions[id] = updated
		log.Infof("session: %s strategy %q -> %q", id, sess.Strategy.Kind, next.Kind)
	}
	return nil
}

func normalizeIDs(agentIDs []string) []string {
	ids := make([]string, 0, len(agentIDs))
	for _, id := range agentIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// Reset drops every session and runs the reset hooks. Hook errors are
// joined and returned after all hooks ran.
func (s *SessionService) Reset(ctx context.Context) error {
	s.mu.Lock()
	n := len(s.sessions)
	s.sessions = make(map[string]*session.Session)
	s.mu.Unlock()

	var errs []error
	for _, hook := range s.opts.resetHooks {
		if err := hook(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	log.Infof("session: reset %d sessions", n)
	return errors.Join(errs...)
}

// Len returns the number of live sessions.
func (s *SessionService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close drops every session without running reset hooks.
func (s *SessionService) Close() error {
	s.mu.Lock()
	s.sessions = make(map[string]*session.Session)
	s.mu.Unlock()
	return nil
}
