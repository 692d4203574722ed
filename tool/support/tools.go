//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package support

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"trpc.group/trpc-go/trpc-agent-bridge/log"
	"trpc.group/trpc-go/trpc-agent-bridge/tool"
	"trpc.group/trpc-go/trpc-agent-bridge/tool/function"
)

// Tool names.
const (
	NameSearchPolicy     = "SearchPolicy"
	NameGetOrder         = "GetOrder"
	NameCreateTicket     = "CreateTicket"
	NameAddTicketComment = "AddTicketComment"
	NameCloseTicket      = "CloseTicket"
	NameScheduleRunAt    = "ScheduleRunAt"
)

// FallbackPolicy is returned by SearchPolicy when no policy file is readable.
const FallbackPolicy = "Late delivery policy: >5 days late ⇒ reship OR 10% credit. >14 days ⇒ full refund."

// PolicyFile is the policy path relative to the state directory.
var PolicyFile = filepath.Join("data", "policy_data.txt")

// SearchPolicyInput is the input of SearchPolicy.
type SearchPolicyInput struct {
	DeviceModel string `json:"device_model" description:"Device identifier or model, e.g. \"MacBook Pro 14\""`
}

// GetOrderInput is the input of GetOrder.
type GetOrderInput struct {
	OrderID string `json:"order_id" description:"Unique order identifier, e.g. \"ORD-12345\""`
}

// OrderLookup is the output of GetOrder.
type OrderLookup struct {
	Found   bool   `json:"found"`
	OrderID string `json:"order_id"`
	Order   *Order `json:"order,omitempty"`
}

// CreateTicketInput is the input of CreateTicket.
type CreateTicketInput struct {
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	CustomerID string `json:"customer_id"`
}

// TicketCommentInput is the input of AddTicketComment.
type TicketCommentInput struct {
	TicketID string `json:"ticket_id"`
	Message  string `json:"message" description:"Customer-visible comment"`
}

// CloseTicketInput is the input of CloseTicket.
type CloseTicketInput struct {
	TicketID string `json:"ticket_id"`
	Reason   string `json:"reason"`
}

// ScheduleRunAtInput is the input of ScheduleRunAt.
type ScheduleRunAtInput struct {
	ISOTime     string `json:"iso_time" description:"When to run, RFC 3339"`
	TaskName    string `json:"task_name"`
	PayloadJSON string `json:"payload_json,omitempty" description:"JSON object passed to the task"`
}

// Ack is returned by tools without a richer result.
type Ack struct {
	OK bool `json:"ok"`
}

type toolsOptions struct {
	tickets bool
}

// ToolsOption configures Tools.
type ToolsOption func(*toolsOptions)

// WithTicketTools adds the ticket and scheduler tools.
func WithTicketTools() ToolsOption {
	return func(o *toolsOptions) {
		o.tickets = true
	}
}

// Tools returns the tools backed by s. By default only SearchPolicy and
// GetOrder are exposed.
func (s *Store) Tools(opts ...ToolsOption) []tool.Tool {
	o := &toolsOptions{}
	for _, opt := range opts {
		opt(o)
	}
	tools := []tool.Tool{
		function.NewFunctionTool(s.SearchPolicy,
			function.WithName(NameSearchPolicy),
			function.WithDescription("Look up the laptop Refund & Return Policy for a given device model.")),
		function.NewFunctionTool(s.GetOrder,
			function.WithName(NameGetOrder),
			function.WithDescription("Fetch order details.")),
	}
	if !o.tickets {
		return tools
	}
	return append(tools,
		function.NewFunctionTool(s.CreateTicket,
			function.WithName(NameCreateTicket),
			function.WithDescription("Create a new ticket and return its JSON record.")),
		function.NewFunctionTool(s.AddTicketComment,
			function.WithName(NameAddTicketComment),
			function.WithDescription("Append a customer-visible comment to a ticket.")),
		function.NewFunctionTool(s.CloseTicket,
			function.WithName(NameCloseTicket),
			function.WithDescription("Close a ticket with a reason.")),
		function.NewFunctionTool(s.ScheduleRunAt,
			function.WithName(NameScheduleRunAt),
			function.WithDescription("Schedule a follow-up task.")),
	)
}

// SearchPolicy returns the policy text.
func (s *Store) SearchPolicy(_ context.Context, in SearchPolicyInput) (string, error) {
	path := filepath.Join(s.stateDir, PolicyFile)
	data, err := os.ReadFile(path)
	policy := strings.TrimSpace(string(data))
	if err != nil || policy == "" {
		log.Debugf("SearchPolicy fallback for %q; unable to read %s: %v", in.DeviceModel, path, err)
		return FallbackPolicy, nil
	}
	return policy, nil
}

// GetOrder looks an order up. An "ORD-" prefix on the id is ignored.
func (s *Store) GetOrder(_ context.Context, in GetOrderInput) (OrderLookup, error) {
	id := strings.TrimPrefix(strings.TrimSpace(in.OrderID), "ORD-")
	order, ok := s.Order(id)
	if !ok {
		return OrderLookup{OrderID: in.OrderID}, nil
	}
	return OrderLookup{Found: true, OrderID: in.OrderID, Order: &order}, nil
}

// CreateTicket opens a ticket.
func (s *Store) CreateTicket(_ context.Context, in CreateTicketInput) (Ticket, error) {
	return s.createTicket(in.Subject, in.Body, in.CustomerID), nil
}

// AddTicketComment appends a comment, creating the ticket if needed.
func (s *Store) AddTicketComment(_ context.Context, in TicketCommentInput) (Ack, error) {
	s.commentTicket(in.TicketID, in.Message)
	return Ack{OK: true}, nil
}

// CloseTicket closes a ticket, creating it if needed.
func (s *Store) CloseTicket(_ context.Context, in CloseTicketInput) (Ack, error) {
	s.closeTicket(in.TicketID, in.Reason)
	return Ack{OK: true}, nil
}

// ScheduleRunAt queues a follow-up task. A payload that is not a JSON object
// is wrapped: unparsable text under "raw", other values under "value".
func (s *Store) ScheduleRunAt(_ context.Context, in ScheduleRunAtInput) (ScheduledTask, error) {
	return s.schedule(in.ISOTime, in.TaskName, parsePayload(in.PayloadJSON)), nil
}

func parsePayload(raw string) map[string]any {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return map[string]any{"raw": raw}
	}
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{"value": v}
}
