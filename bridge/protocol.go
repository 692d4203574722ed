//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package bridge

import (
	"encoding/json"

	"trpc.group/trpc-go/trpc-agent-bridge/config"
	"trpc.group/trpc-go/trpc-agent-bridge/session"
	"trpc.group/trpc-go/trpc-agent-bridge/usage"
)

// CommandType names a worker command.
type CommandType string

// Worker commands.
const (
	CommandRun                    CommandType = "run"
	CommandReset                  CommandType = "reset"
	CommandConfigureTrimming      CommandType = "configure_trimming"
	CommandConfigureSummarization CommandType = "configure_summarization"
	CommandConfigureCompacting    CommandType = "configure_compacting"
)

// Status is the outcome carried by a response.
type Status string

// Response statuses.
const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// HistoryMessage is one entry of the conversation history sent with a run.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompactingTrigger is the trigger object of configure_compacting. A nil
// Turns disables the trigger.
type CompactingTrigger struct {
	Turns *int `json:"turns"`
}

// Command is a request without its id. Only the fields of its Type are set.
type Command struct {
	Type CommandType `json:"type"`

	// run
	AgentID string                     `json:"agent_id,omitempty"`
	Message string                     `json:"message,omitempty"`
	History []HistoryMessage           `json:"history,omitempty"`
	Config  *config.AgentConfiguration `json:"config,omitempty"`

	// configure_*. AgentIDs stays raw so the worker can reject values that
	// are not a list.
	AgentIDs json.RawMessage `json:"agent_ids,omitempty"`
	Enable   bool            `json:"enable,omitempty"`

	// configure_trimming and configure_summarization
	MaxTurns *int `json:"max_turns,omitempty"`
	KeepLast *int `json:"keep_last,omitempty"`

	// configure_compacting
	Trigger         *CompactingTrigger `json:"trigger,omitempty"`
	Keep            *int               `json:"keep,omitempty"`
	ExcludeTools    config.ToolList    `json:"exclude_tools,omitempty"`
	ClearToolInputs *bool              `json:"clear_tool_inputs,omitempty"`
}

// Request is one line sent to the worker.
type Request struct {
	ID int64 `json:"id"`
	Command
}

// Response is one line received from the worker. ID is nil when the worker
// could not read the request id.
type Response struct {
	ID     *int64          `json:"id"`
	Status Status          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// RunResult is the result of a run command.
type RunResult struct {
	Response          string                 `json:"response"`
	ToolResults       []string               `json:"toolResults"`
	TokenUsage        usage.Usage            `json:"tokenUsage"`
	Summary           *session.SummaryRecord `json:"summary"`
	ContextTrimmed    bool                   `json:"contextTrimmed,omitempty"`
	ContextSummarized bool                   `json:"contextSummarized,omitempty"`
	ContextCompacted  bool                   `json:"contextCompacted,omitempty"`
}

// Ack is the result of reset and configure commands.
type Ack struct {
	OK bool `json:"ok"`
}

// RunCommand builds a run command.
func RunCommand(agentID, message string, history []HistoryMessage, cfg *config.AgentConfiguration) Command {
	return Command{
		Type:    CommandRun,
		AgentID: agentID,
		Message: message,
		History: history,
		Config:  cfg,
	}
}

// ResetCommand builds a reset command.
func ResetCommand() Command {
	return Command{Type: CommandReset}
}

// ConfigureTrimmingCommand builds a configure_trimming command. A nil params
// lets the worker keep its current or default values.
func ConfigureTrimmingCommand(agentIDs []string, enable bool, params *session.TrimmingParams) Command {
	cmd := Command{Type: CommandConfigureTrimming, AgentIDs: agentIDList(agentIDs), Enable: enable}
	if params != nil {
		cmd.MaxTurns = positive(params.MaxTurns)
		cmd.KeepLast = positive(params.KeepRecentTurns)
	}
	return cmd
}

// ConfigureSummarizationCommand builds a configure_summarization command.
func ConfigureSummarizationCommand(agentIDs []string, enable bool, params *session.SummarizationParams) Command {
	cmd := Command{Type: CommandConfigureSummarization, AgentIDs: agentIDList(agentIDs), Enable: enable}
	if params != nil {
		cmd.MaxTurns = positive(params.TriggerTurns)
		cmd.KeepLast = positive(params.KeepRecentTurns)
	}
	return cmd
}

// ConfigureCompactingCommand builds a configure_compacting command.
func ConfigureCompactingCommand(agentIDs []string, enable bool, params *session.CompactingParams) Command {
	cmd := Command{Type: CommandConfigureCompacting, AgentIDs: agentIDList(agentIDs), Enable: enable}
	if params != nil {
		trigger := &CompactingTrigger{}
		if params.TriggerTurns != nil {
			v := *params.TriggerTurns
			trigger.Turns = &v
		}
		clearInputs := params.ClearToolInputs
		cmd.Trigger = trigger
		cmd.Keep = positive(params.KeepTurns)
		cmd.ExcludeTools = config.NewToolList(params.ExcludeTools...)
		cmd.ClearToolInputs = &clearInputs
	}
	return cmd
}

// TrimmingParams returns the params carried by a configure_trimming command,
// or nil when it carries none.
func (c Command) TrimmingParams() *session.TrimmingParams {
	if c.MaxTurns == nil && c.KeepLast == nil {
		return nil
	}
	return &session.TrimmingParams{MaxTurns: deref(c.MaxTurns), KeepRecentTurns: deref(c.KeepLast)}
}

// SummarizationParams returns the params carried by a
// configure_summarization command, or nil when it carries none.
func (c Command) SummarizationParams() *session.SummarizationParams {
	if c.MaxTurns == nil && c.KeepLast == nil {
		return nil
	}
	return &session.SummarizationParams{TriggerTurns: deref(c.MaxTurns), KeepRecentTurns: deref(c.KeepLast)}
}

// CompactingParams returns the params carried by a configure_compacting
// command. A command without a trigger object never triggers.
func (c Command) CompactingParams() *session.CompactingParams {
	p := &session.CompactingParams{
		KeepTurns:       deref(c.Keep),
		ExcludeTools:    c.ExcludeTools,
		ClearToolInputs: c.ClearToolInputs != nil && *c.ClearToolInputs,
	}
	if c.Trigger != nil && c.Trigger.Turns != nil {
		v := *c.Trigger.Turns
		p.TriggerTurns = &v
	}
	return p
}

func agentIDList(ids []string) json.RawMessage {
	if ids == nil {
		ids = []string{}
	}
	// Marshalling a string slice cannot fail.
	b, _ := json.Marshal(ids)
	return b
}

func positive(v int) *int {
	if v <= 0 {
		return nil
	}
	return &v
}

func deref(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
