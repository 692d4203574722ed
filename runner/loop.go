//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"trpc.group/trpc-go/trpc-agent-bridge/config"
	itelemetry "trpc.group/trpc-go/trpc-agent-bridge/internal/telemetry"
	"trpc.group/trpc-go/trpc-agent-bridge/log"
	"trpc.group/trpc-go/trpc-agent-bridge/model"
	"trpc.group/trpc-go/trpc-agent-bridge/session"
	"trpc.group/trpc-go/trpc-agent-bridge/telemetry/trace"
	"trpc.group/trpc-go/trpc-agent-bridge/tool"
)

type loopResult struct {
	turns       []session.Turn
	calls       []session.ToolCall
	toolResults []string
	response    string
}

// toolLoop calls the model until it answers without tool calls. Each round of
// tool calls is appended to turns as one assistant turn.
func (r *Runner) toolLoop(
	ctx context.Context,
	agentID string,
	cfg config.AgentConfiguration,
	instructions string,
	turns []session.Turn,
) (*loopResult, error) {
	res := &loopResult{turns: turns}
	messages := append([]model.Message{model.NewSystemMessage(instructions)}, toMessages(turns)...)
	reasoning, verbosity := cfg.ReasoningLevel, cfg.VerbosityLevel

	for i := 0; i < r.maxToolIterations; i++ {
		req := &model.Request{
			Model:    cfg.Model,
			Messages: messages,
			GenerationConfig: model.GenerationConfig{
				ReasoningEffort: &reasoning,
				Verbosity:       &verbosity,
			},
			Tools: r.tools,
		}
		rsp, err := r.generate(ctx, agentID, req)
		if err != nil {
			return nil, err
		}
		if !rsp.IsToolCallResponse() {
			res.response = strings.TrimSpace(rsp.Content())
			if res.response == "" {
				res.response = EmptyResponse
			}
			res.turns = append(res.turns, session.NewAssistantTurn(res.response))
			return res, nil
		}

		msg := rsp.Choices[0].Message
		msg.Role = model.RoleAssistant
		messages = append(messages, msg)
		calls := make([]session.ToolCall, 0, len(msg.ToolCalls))
		for _, tc := range msg.ToolCalls {
			call := r.executeTool(ctx, tc)
			messages = append(messages, model.NewToolMessage(call.ID, call.Name, call.Result))
			calls = append(calls, call)
			res.toolResults = append(res.toolResults, formatToolResult(call))
		}
		res.calls = append(res.calls, calls...)
		res.turns = append(res.turns, session.NewAssistantTurn(msg.Content, calls...))
	}
	return nil, fmt.Errorf("%w: %d rounds", ErrToolIterationsExceeded, r.maxToolIterations)
}

// generate performs one model call and returns its final response.
func (r *Runner) generate(ctx context.Context, agentID string, req *model.Request) (*model.Response, error) {
	ctx, span := trace.Tracer.Start(ctx, itelemetry.SpanNameCallLLM)
	defer span.End()

	ch, err := r.model.GenerateContent(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("runner: generate content: %w", err)
	}
	var (
		final  *model.Response
		rspErr error
	)
	// Drain the channel so the producer never blocks.
	for rsp := range ch {
		if rsp == nil {
			continue
		}
		if rsp.Error != nil && rspErr == nil {
			rspErr = rsp.Error
			continue
		}
		final = rsp
	}
	itelemetry.TraceCallLLM(span, agentID, req, final)
	if rspErr != nil {
		return nil, fmt.Errorf("runner: model error: %w", rspErr)
	}
	if final == nil || len(final.Choices) == 0 {
		return nil, errors.New("runner: model returned no response")
	}
	return final, nil
}

// executeTool runs one tool call. Failures are reported back to the model
// as the call's result.
func (r *Runner) executeTool(ctx context.Context, tc model.ToolCall) session.ToolCall {
	call := session.ToolCall{
		ID:    tc.ID,
		Name:  tc.Function.Name,
		Input: string(tc.Function.Arguments),
	}
	ctx, span := trace.Tracer.Start(ctx, itelemetry.NewExecuteToolSpanName(call.Name))
	defer span.End()

	declaration := &tool.Declaration{Name: "<not found>", Description: "<not found>"}
	t, ok := r.tools[call.Name]
	if ok {
		declaration = t.Declaration()
	}
	callable, ok := t.(tool.CallableTool)
	switch {
	case t == nil:
		call.Result = fmt.Sprintf("error: tool %s not found", call.Name)
	case !ok:
		call.Result = fmt.Sprintf("error: tool %s is not callable", call.Name)
	default:
		out, err := callable.Call(ctx, tc.Function.Arguments)
		if err != nil {
			log.Warnf("runner: tool %s failed: %v", call.Name, err)
			call.Result = "error: " + err.Error()
		} else {
			call.Result = resultText(out)
		}
	}
	itelemetry.TraceToolCall(span, declaration, call)
	return call
}

// resultText renders a tool result: strings as-is, anything else as JSON.
func resultText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// toMessages converts session turns into model messages. A turn's tool
// calls are followed by one tool message per call.
func toMessages(turns []session.Turn) []model.Message {
	out := make([]model.Message, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case session.RoleUser:
			out = append(out, model.NewUserMessage(t.Content))
		case session.RoleSystem:
			out = append(out, model.NewSystemMessage(t.Content))
		default:
			msg := model.NewAssistantMessage(t.Content)
			for _, c := range t.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, model.ToolCall{
					Type: "function",
					ID:   c.ID,
					Function: model.FunctionDefinitionParam{
						Name:      c.Name,
						Arguments: []byte(c.Input),
					},
				})
			}
			out = append(out, msg)
			for _, c := range t.ToolCalls {
				out = append(out, model.NewToolMessage(c.ID, c.Name, c.Result))
			}
		}
	}
	return out
}

// formatToolResult renders a call as "name(k=v, ...) → output" with
// argument keys sorted and values JSON encoded.
func formatToolResult(call session.ToolCall) string {
	var args map[string]any
	var parts []string
	if err := json.Unmarshal([]byte(call.Input), &args); err == nil {
		keys := make([]string, 0, len(args))
		for k := range args {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v, err := json.Marshal(args[k])
			if err != nil {
				v = []byte(fmt.Sprint(args[k]))
			}
			parts = append(parts, k+"="+string(v))
		}
	} else if strings.TrimSpace(call.Input) != "" {
		parts = append(parts, serializeValue(call.Input))
	}
	return fmt.Sprintf("%s(%s) → %s", call.Name, strings.Join(parts, ", "), serializeValue(call.Result))
}

// serializeValue renders text holding JSON in compact form and quotes
// anything else.
func serializeValue(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed != "" && json.Valid([]byte(trimmed)) {
		var out bytes.Buffer
		if err := json.Compact(&out, []byte(trimmed)); err == nil {
			return out.String()
		}
	}
	q, _ := json.Marshal(s)
	return string(q)
}
