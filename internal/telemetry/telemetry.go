//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package telemetry holds the span names, attribute keys and helpers shared
// by the bridge's tracing and metrics.
package telemetry

import (
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"trpc.group/trpc-go/trpc-agent-bridge/model"
	"trpc.group/trpc-go/trpc-agent-bridge/session"
	"trpc.group/trpc-go/trpc-agent-bridge/tool"
)

// telemetry service constants.
const (
	ServiceName      = "trpc-agent-bridge"
	ServiceVersion   = "v0.1.0"
	ServiceNamespace = "trpc-go-agent"
	InstrumentName   = "trpc.agent.bridge"

	SpanNamePrefixRun         = "run"
	SpanNameCallLLM           = "call_llm"
	SpanNamePrefixExecuteTool = "execute_tool"
	SpanNamePrefixBridgeSend  = "bridge.send"
)

// telemetry attributes constants.
var (
	KeyAgentID     = "trpc.agent.bridge.agent_id"
	KeyRequestID   = "trpc.agent.bridge.request_id"
	KeyCommandType = "trpc.agent.bridge.command_type"
	KeyStrategy    = "trpc.agent.bridge.strategy"
	KeyLLMRequest  = "trpc.agent.bridge.llm_request"
	KeyLLMResponse = "trpc.agent.bridge.llm_response"
)

// NewExecuteToolSpanName returns the span name of a tool execution.
func NewExecuteToolSpanName(name string) string {
	return fmt.Sprintf("%s %s", SpanNamePrefixExecuteTool, name)
}

// NewRunSpanName returns the span name of one agent run.
func NewRunSpanName(agentID string) string {
	if agentID == "" {
		return SpanNamePrefixRun
	}
	return fmt.Sprintf("%s %s", SpanNamePrefixRun, agentID)
}

// NewBridgeSendSpanName returns the span name of one transport request.
func NewBridgeSendSpanName(commandType string) string {
	return fmt.Sprintf("%s %s", SpanNamePrefixBridgeSend, commandType)
}

// TraceToolCall traces the invocation of a tool call.
func TraceToolCall(span trace.Span, declaration *tool.Declaration, call session.ToolCall) {
	span.SetAttributes(
		attribute.String("gen_ai.system", "trpc.agent.bridge"),
		attribute.String("gen_ai.operation.name", "tool.execute"),
		attribute.String("gen_ai.tool.name", declaration.Name),
		attribute.String("gen_ai.tool.description", declaration.Description),
		attribute.String("trpc.agent.bridge.tool_id", call.ID),
		attribute.String("trpc.agent.bridge.tool_call_args", call.Input),
		attribute.String("trpc.agent.bridge.tool_response", call.Result),
	)
}

// TraceCallLLM traces the invocation of an LLM call.
func TraceCallLLM(span trace.Span, agentID string, req *model.Request, rsp *model.Response) {
	span.SetAttributes(
		attribute.String("gen_ai.system", "trpc.agent.bridge"),
		attribute.String(KeyAgentID, agentID),
		attribute.String("gen_ai.request.model", req.Model),
	)

	if bts, err := json.Marshal(req); err == nil {
		span.SetAttributes(attribute.String(KeyLLMRequest, string(bts)))
	} else {
		span.SetAttributes(attribute.String(KeyLLMRequest, "<not json serializable>"))
	}

	if rsp == nil {
		return
	}
	if bts, err := json.Marshal(rsp); err == nil {
		span.SetAttributes(attribute.String(KeyLLMResponse, string(bts)))
	} else {
		span.SetAttributes(attribute.String(KeyLLMResponse, "<not json serializable>"))
	}
}

// TraceBridgeSend traces one request sent to the worker.
func TraceBridgeSend(span trace.Span, id int64, commandType string, err error) {
	span.SetAttributes(
		attribute.Int64(KeyRequestID, id),
		attribute.String(KeyCommandType, commandType),
	)
	if err != nil {
		span.RecordError(err)
	}
}

// NewConn creates a new gRPC connection to the OpenTelemetry Collector.
func NewConn(endpoint string) (*grpc.ClientConn, error) {
	// Note the use of insecure transport here. TLS is recommended in production.
	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection to collector: %w", err)
	}
	return conn, nil
}
