//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package bridge connects the host to the worker process: a line-delimited
// JSON transport that multiplexes concurrent requests over one stream pair,
// and a supervisor that keeps exactly one worker process alive.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	itelemetry "trpc.group/trpc-go/trpc-agent-bridge/internal/telemetry"
	"trpc.group/trpc-go/trpc-agent-bridge/log"
	"trpc.group/trpc-go/trpc-agent-bridge/telemetry/metric"
	"trpc.group/trpc-go/trpc-agent-bridge/telemetry/trace"
)

// MaxLineSize is the default limit on one protocol line. Longer lines are
// rejected one at a time and never end the stream.
const MaxLineSize = 64 << 20

type result struct {
	raw json.RawMessage
	err error
}

// ClientOption configures a Client.
type ClientOption func(*clientOptions)

type clientOptions struct {
	diagnostics func(string)
	onClose     func(error)
	maxLine     int
}

// WithMaxLineSize sets the longest response line the client accepts.
func WithMaxLineSize(n int) ClientOption {
	return func(o *clientOptions) {
		if n > 0 {
			o.maxLine = n
		}
	}
}

// WithDiagnostics sets where lines that are not protocol traffic go.
func WithDiagnostics(fn func(string)) ClientOption {
	return func(o *clientOptions) {
		o.diagnostics = fn
	}
}

// WithCloseHandler replaces what happens when the read side ends. The
// handler receives the read error, nil on EOF. By default every pending
// call fails with ErrClosed.
func WithCloseHandler(fn func(error)) ClientOption {
	return func(o *clientOptions) {
		o.onClose = fn
	}
}

// Client multiplexes requests over one line-delimited JSON stream pair.
// Responses may arrive in any order; they are matched by id.
type Client struct {
	opts clientOptions

	// writeMu serializes id assignment and writes, so ids reach the wire in
	// strictly increasing order.
	writeMu sync.Mutex
	w       io.Writer
	lastID  int64

	mu      sync.Mutex
	pending map[int64]chan result
	err     error

	done chan struct{}
}

// NewClient starts reading responses from r. Requests are written to w.
func NewClient(r io.Reader, w io.Writer, opts ...ClientOption) *Client {
	c := &Client{
		opts:    clientOptions{maxLine: MaxLineSize},
		w:       w,
		pending: make(map[int64]chan result),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(&c.opts)
	}
	if c.opts.diagnostics == nil {
		c.opts.diagnostics = func(line string) { log.Infof("[worker] %s", line) }
	}
	if c.opts.onClose == nil {
		c.opts.onClose = func(error) { c.Fail(ErrClosed) }
	}
	go c.read(r)
	return c
}

// Send writes cmd and waits for its response. A write failure or a
// cancelled ctx fails this call only.
func (c *Client) Send(ctx context.Context, cmd Command) (json.RawMessage, error) {
	ctx, span := trace.Tracer.Start(ctx, itelemetry.NewBridgeSendSpanName(string(cmd.Type)))
	defer span.End()

	id, ch, err := c.write(cmd)
	if err != nil {
		itelemetry.TraceBridgeSend(span, id, string(cmd.Type), err)
		metric.RecordRequest(ctx, string(cmd.Type), "write_error")
		return nil, err
	}

	var res result
	select {
	case res = <-ch:
	case <-ctx.Done():
		c.remove(id)
		res.err = ctx.Err()
	}
	itelemetry.TraceBridgeSend(span, id, string(cmd.Type), res.err)
	status := string(StatusOK)
	if res.err != nil {
		status = string(StatusError)
	}
	metric.RecordRequest(ctx, string(cmd.Type), status)
	return res.raw, res.err
}

func (c *Client) write(cmd Command) (int64, chan result, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.lastID++
	id := c.lastID
	line, err := json.Marshal(Request{ID: id, Command: cmd})
	if err != nil {
		return id, nil, fmt.Errorf("bridge: encode request %d: %w", id, err)
	}
	line = append(line, '\n')

	ch := make(chan result, 1)
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return id, nil, err
	}
	c.pending[id] = ch
	c.mu.Unlock()

	if _, err := c.w.Write(line); err != nil {
		c.remove(id)
		return id, nil, fmt.Errorf("bridge: write request %d: %w", id, err)
	}
	return id, ch, nil
}

func (c *Client) remove(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Fail rejects every pending call with err. Later calls fail with the first
// error passed to Fail.
func (c *Client) Fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	pending := c.pending
	c.pending = make(map[int64]chan result)
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- result{err: err}
	}
}

// Pending returns the number of calls awaiting a response.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Done is closed once the read side has ended and the close handler ran.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) read(r io.Reader) {
	defer close(c.done)
	lines := NewLineReader(r, c.opts.maxLine)
	var err error
	for {
		line, oversized, rerr := lines.Next()
		if rerr != nil {
			if !errors.Is(rerr, io.EOF) {
				err = rerr
				log.Errorf("bridge: read responses: %v", err)
			}
			break
		}
		if oversized {
			c.handleOversized(line)
			continue
		}
		c.handleLine(line)
	}
	c.opts.onClose(err)
}

// handleOversized fails the call an over-long response belongs to, when its
// id can be read, and drops the line.
func (c *Client) handleOversized(prefix []byte) {
	prefix = bytes.TrimSpace(prefix)
	if len(prefix) == 0 || prefix[0] != '{' {
		c.opts.diagnostics(string(prefix) + " [truncated]")
		return
	}
	id, ok := LeadingID(prefix)
	if !ok {
		log.Warnf("bridge: drop line over %d bytes", c.opts.maxLine)
		return
	}
	c.mu.Lock()
	ch, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()
	if !ok {
		log.Warnf("bridge: drop line over %d bytes for unknown id %d", c.opts.maxLine, id)
		return
	}
	ch <- result{err: fmt.Errorf("%w: response %d exceeds %d bytes", ErrLineTooLong, id, c.opts.maxLine)}
}

func (c *Client) handleLine(line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}
	if line[0] != '{' {
		c.opts.diagnostics(string(line))
		return
	}
	var rsp Response
	if err := json.Unmarshal(line, &rsp); err != nil {
		log.Warnf("bridge: drop malformed line: %v", err)
		return
	}
	if rsp.ID == nil {
		log.Warnf("bridge: drop response without id: %s", rsp.Error)
		return
	}
	var res result
	switch rsp.Status {
	case StatusOK:
		res.raw = rsp.Result
		if len(res.raw) == 0 {
			res.raw = json.RawMessage("null")
		}
	case StatusError:
		res.err = &RemoteError{Message: rsp.Error}
	default:
		log.Warnf("bridge: drop response %d with status %q", *rsp.ID, rsp.Status)
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[*rsp.ID]
	delete(c.pending, *rsp.ID)
	c.mu.Unlock()
	if !ok {
		log.Warnf("bridge: drop response for unknown id %d", *rsp.ID)
		return
	}
	ch <- res
}
