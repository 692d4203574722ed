//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package support provides mocked customer-support business tools backed by
// a resettable in-memory store.
package support

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Order is a customer order.
type Order struct {
	Status   string  `json:"status"`
	DaysLate int     `json:"days_late"`
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
}

// Ticket is a support ticket.
type Ticket struct {
	ID         string   `json:"id"`
	Subject    string   `json:"subject,omitempty"`
	Body       string   `json:"body,omitempty"`
	CustomerID string   `json:"customer_id,omitempty"`
	Status     string   `json:"status"`
	Comments   []string `json:"comments"`
}

// Ticket statuses.
const (
	TicketOpen   = "open"
	TicketClosed = "closed"
)

// ScheduledTask is a follow-up queued by ScheduleRunAt.
type ScheduledTask struct {
	ID       string         `json:"id"`
	ISOTime  string         `json:"iso_time"`
	TaskName string         `json:"task_name"`
	Payload  map[string]any `json:"payload"`
}

// AuditEntry records one mutation of the store.
type AuditEntry struct {
	At      time.Time `json:"at"`
	Event   string    `json:"event"`
	Subject string    `json:"subject"`
	Detail  string    `json:"detail,omitempty"`
}

func seedOrders() map[string]Order {
	return map[string]Order{
		"12345": {Status: "in_transit", DaysLate: 7, Value: 150.0, Currency: "USD"},
	}
}

// Store holds the mocked business data.
type Store struct {
	mu        sync.Mutex
	orders    map[string]Order
	tickets   map[string]*Ticket
	scheduled []ScheduledTask
	audit     []AuditEntry

	stateDir string
	now      func() time.Time
	newID    func() string
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStateDir sets the directory holding data/policy_data.txt.
func WithStateDir(dir string) StoreOption {
	return func(s *Store) {
		s.stateDir = dir
	}
}

// WithClock sets the clock used for audit timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// WithIDGenerator sets the generator for ticket and task ids.
func WithIDGenerator(newID func() string) StoreOption {
	return func(s *Store) {
		s.newID = newID
	}
}

// NewStore creates a seeded store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		now:   time.Now,
		newID: shortID,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Reset()
	return s
}

func shortID() string {
	return uuid.NewString()[:8]
}

// Reset returns every collection to its seeded state.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = seedOrders()
	s.tickets = make(map[string]*Ticket)
	s.scheduled = nil
	s.audit = nil
}

// Order returns the order with id.
func (s *Store) Order(id string) (Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	return o, ok
}

// Ticket returns a copy of the ticket with id.
func (s *Store) Ticket(id string) (Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return Ticket{}, false
	}
	return t.clone(), true
}

// Scheduled returns the queued tasks.
func (s *Store) Scheduled() []ScheduledTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ScheduledTask(nil), s.scheduled...)
}

// Audit returns the audit log.
func (s *Store) Audit() []AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AuditEntry(nil), s.audit...)
}

func (t *Ticket) clone() Ticket {
	cp := *t
	cp.Comments = append([]string{}, t.Comments...)
	return cp
}

func (s *Store) createTicket(subject, body, customerID string) Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &Ticket{
		ID:         s.newID(),
		Subject:    subject,
		Body:       body,
		CustomerID: customerID,
		Status:     TicketOpen,
		Comments:   []string{},
	}
	s.tickets[t.ID] = t
	s.record("ticket.create", t.ID, "")
	return t.clone()
}

// ticketLocked returns the ticket with id, creating an open one if absent.
func (s *Store) ticketLocked(id string) *Ticket {
	t, ok := s.tickets[id]
	if !ok {
		t = &Ticket{ID: id, Status: TicketOpen, Comments: []string{}}
		s.tickets[id] = t
	}
	return t
}

func (s *Store) commentTicket(id, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.ticketLocked(id)
	t.Comments = append(t.Comments, message)
	s.record("ticket.comment", id, message)
}

func (s *Store) closeTicket(id, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticketLocked(id).Status = TicketClosed
	s.record("ticket.close", id, reason)
}

func (s *Store) schedule(isoTime, taskName string, payload map[string]any) ScheduledTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	task := ScheduledTask{
		ID:       s.newID(),
		ISOTime:  isoTime,
		TaskName: taskName,
		Payload:  payload,
	}
	s.scheduled = append(s.scheduled, task)
	s.record("scheduler.enqueue", task.ID, taskName)
	return task
}

func (s *Store) record(event, subject, detail string) {
	s.audit = append(s.audit, AuditEntry{
		At:      s.now().UTC(),
		Event:   event,
		Subject: subject,
		Detail:  detail,
	})
}
