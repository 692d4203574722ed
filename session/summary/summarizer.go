//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//

// Package summary condenses conversation prefixes with a model and persists
// the latest summary for cross-session memory.
package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"trpc.group/trpc-go/trpc-agent-bridge/model"
	"trpc.group/trpc-go/trpc-agent-bridge/session"
)

const (
	// ShadowLine is the synthetic user instruction that precedes a summary.
	ShadowLine = "Summarize the conversation we had so far."

	// DefaultModel is the model used for summaries.
	DefaultModel = "gpt-4o"
	// DefaultMaxTokens bounds the summary length.
	DefaultMaxTokens = 400
	// DefaultToolTrimLimit is the rune limit for tool payloads in the transcript.
	DefaultToolTrimLimit = 600

	roleTool = "TOOL"
)

// DefaultPrompt asks for a structured customer-support snapshot.
const DefaultPrompt = `You are a senior customer-support assistant for tech devices, setup, and software issues.
Compress the earlier conversation into a precise, reusable snapshot for future turns.

Before you write (do this silently):
- Contradiction check: compare user claims with system instructions and tool definitions/logs; note any conflicts or reversals.
- Temporal ordering: sort key events by time; the most recent update wins. If timestamps exist, keep them.
- Hallucination control: if any fact is uncertain/not stated, mark it as UNVERIFIED rather than guessing.

Write a structured, factual summary ≤ 200 words using the sections below (use the exact headings):

• Product & Environment:
  - Device/model, OS/app versions, network/context if mentioned.

• Reported Issue:
  - Single-sentence problem statement (latest state).

• Steps Tried & Results:
  - Chronological bullets (include tool calls + outcomes, errors, codes).

• Identifiers:
  - Ticket #, device serial/model, account/email (only if provided).

• Timeline Milestones:
  - Key events with timestamps or relative order (e.g., 10:32 install → 10:41 error).

• Tool Performance Insights:
  - What tool calls worked/failed and why (if evident).

• Current Status & Blockers:
  - What's resolved vs pending; explicit blockers preventing progress.

• Next Recommended Step:
  - One concrete action (or two alternatives) aligned with policies/tools.

Rules:
- Be concise, no fluff; use short bullets, verbs first.
- Do not invent new facts; quote error strings/codes exactly when available.
- If previous info was superseded, note "Superseded:" and omit details unless critical.`

// Summarizer produces summaries with a model. The prompt is sent as the
// system message and the rendered transcript as the user message.
type Summarizer struct {
	model         model.Model
	modelName     string
	prompt        string
	maxTokens     int
	toolTrimLimit int
}

// NewSummarizer creates a new summarizer backed by m.
func NewSummarizer(m model.Model, opts ...Option) *Summarizer {
	s := &Summarizer{
		model:         m,
		modelName:     DefaultModel,
		prompt:        DefaultPrompt,
		maxTokens:     DefaultMaxTokens,
		toolTrimLimit: DefaultToolTrimLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summarize condenses turns. Earlier summary turns are part of the
// transcript so a new summary carries their content forward.
func (s *Summarizer) Summarize(ctx context.Context, turns []session.Turn) (*session.SummaryRecord, error) {
	if s.model == nil {
		return nil, errors.New("summary: no model configured")
	}
	transcript := s.transcript(turns)
	if transcript == "" {
		return nil, fmt.Errorf("summary: no conversation text in %d turns", len(turns))
	}
	text, err := s.generateSummary(ctx, transcript)
	if err != nil {
		return nil, err
	}
	return &session.SummaryRecord{ShadowLine: ShadowLine, SummaryText: text}, nil
}

// transcript renders turns as "ROLE: content" lines.
func (s *Summarizer) transcript(turns []session.Turn) string {
	var lines []string
	for _, t := range turns {
		if content := strings.TrimSpace(t.Content); content != "" {
			lines = append(lines, strings.ToUpper(string(t.Role))+": "+content)
		}
		for _, call := range t.ToolCalls {
			result := strings.TrimSpace(truncate(call.Result, s.toolTrimLimit))
			lines = append(lines, fmt.Sprintf("%s: %s(%s) → %s", roleTool, call.Name, call.Input, result))
		}
	}
	return strings.Join(lines, "\n")
}

func truncate(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + " …"
}

// generateSummary generates a summary using the LLM model.
func (s *Summarizer) generateSummary(ctx context.Context, transcript string) (string, error) {
	request := &model.Request{
		Model: s.modelName,
		Messages: []model.Message{
			model.NewSystemMessage(s.prompt),
			model.NewUserMessage(transcript),
		},
	}
	if s.maxTokens > 0 {
		maxTokens := s.maxTokens
		request.MaxTokens = &maxTokens
	}

	responseChan, err := s.model.GenerateContent(ctx, request)
	if err != nil {
		return "", fmt.Errorf("summary: failed to generate summary: %w", err)
	}

	var summary strings.Builder
	for response := range responseChan {
		if response.Error != nil {
			return "", fmt.Errorf("summary: model error during summarization: %s", response.Error.Message)
		}
		summary.WriteString(response.Content())
		if response.Done {
			break
		}
	}

	text := strings.TrimSpace(summary.String())
	if text == "" {
		return "", fmt.Errorf("summary: generated empty summary (input_chars=%d)", len(transcript))
	}
	return text, nil
}
