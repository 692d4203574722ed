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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"trpc.group/trpc-go/trpc-agent-bridge/log"
	"trpc.group/trpc-go/trpc-agent-bridge/telemetry/metric"
)

// DefaultStopTimeout is how long a disposed worker gets to exit after an
// interrupt before it is killed.
const DefaultStopTimeout = 3 * time.Second

// Option configures a Supervisor.
type Option func(*options)

type options struct {
	executable  string
	args        []string
	env         []string
	dir         string
	watch       []string
	sink        func(string)
	stopTimeout time.Duration
}

// WithExecutable runs the worker through an interpreter, passing the worker
// path as its first argument.
func WithExecutable(name string) Option {
	return func(o *options) {
		o.executable = name
	}
}

// WithArgs appends arguments to the worker command line.
func WithArgs(args ...string) Option {
	return func(o *options) {
		o.args = append(o.args, args...)
	}
}

// WithEnv adds KEY=value pairs to the worker environment.
func WithEnv(env ...string) Option {
	return func(o *options) {
		o.env = append(o.env, env...)
	}
}

// WithDir sets the worker working directory.
func WithDir(dir string) Option {
	return func(o *options) {
		o.dir = dir
	}
}

// WithWatch sets the doublestar patterns whose files make the worker stale
// when they change. The default watches the worker path.
func WithWatch(patterns ...string) Option {
	return func(o *options) {
		o.watch = append(o.watch, patterns...)
	}
}

// WithDiagnosticSink sets where worker diagnostics go: stderr lines and
// stdout lines that are not protocol traffic.
func WithDiagnosticSink(fn func(string)) Option {
	return func(o *options) {
		o.sink = fn
	}
}

// WithStopTimeout sets how long a disposed worker may take to exit.
func WithStopTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.stopTimeout = d
		}
	}
}

// Supervisor keeps at most one worker process alive and hands out its
// transport. A worker that exits, fails to spawn, or whose sources change is
// disposed, and the next request spawns a fresh one.
type Supervisor struct {
	path string
	opts options

	mu     sync.Mutex
	inst   *instance
	closed bool
}

// NewSupervisor creates a supervisor for the worker at path. No process is
// started until Open or the first request.
func NewSupervisor(path string, opts ...Option) *Supervisor {
	o := options{stopTimeout: DefaultStopTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if len(o.watch) == 0 {
		o.watch = []string{path}
	}
	if o.sink == nil {
		o.sink = func(line string) { log.Infof("[worker] %s", line) }
	}
	return &Supervisor{path: path, opts: o}
}

// Open spawns the worker eagerly.
func (s *Supervisor) Open(ctx context.Context) error {
	_, err := s.Worker(ctx)
	return err
}

// Worker returns the transport of the live worker, spawning one when there
// is none or the current one is stale.
func (s *Supervisor) Worker(ctx context.Context) (*Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.inst != nil && s.inst.ready() {
		st, err := s.snapshot()
		if err == nil && st.equal(s.inst.stamp) {
			return s.inst.client, nil
		}
		if err != nil {
			log.Warnf("bridge: check worker sources: %v", err)
		} else {
			log.Infof("bridge: worker sources changed, restarting worker")
		}
		s.inst.dispose(ErrDisposed)
	}
	inst, err := s.spawn(ctx)
	if err != nil {
		return nil, fmt.Errorf("bridge: spawn worker: %w", err)
	}
	s.inst = inst
	return inst.client, nil
}

// Send sends cmd to the live worker.
func (s *Supervisor) Send(ctx context.Context, cmd Command) (json.RawMessage, error) {
	client, err := s.Worker(ctx)
	if err != nil {
		return nil, err
	}
	return client.Send(ctx, cmd)
}

// Close disposes the worker and waits for it to exit. Later requests fail
// with ErrClosed.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	inst := s.inst
	s.inst = nil
	s.mu.Unlock()

	if inst == nil {
		return nil
	}
	inst.dispose(ErrClosed)
	<-inst.exited
	return nil
}

// stamp identifies the state of the watched files.
type stamp struct {
	files  int
	newest time.Time
}

func (s stamp) equal(o stamp) bool {
	return s.files == o.files && s.newest.Equal(o.newest)
}

func (s *Supervisor) snapshot() (stamp, error) {
	var st stamp
	for _, pattern := range s.opts.watch {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return stamp{}, fmt.Errorf("glob %q: %w", pattern, err)
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil {
				return stamp{}, err
			}
			st.files++
			if mod := info.ModTime(); mod.After(st.newest) {
				st.newest = mod
			}
		}
	}
	return st, nil
}

func (s *Supervisor) spawn(ctx context.Context) (*instance, error) {
	st, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	name, args := s.path, s.opts.args
	if s.opts.executable != "" {
		name = s.opts.executable
		args = append([]string{s.path}, s.opts.args...)
	}
	// The worker outlives any single request, so it is not bound to ctx.
	cmd := exec.Command(name, args...)
	cmd.Dir = s.opts.dir
	cmd.Env = append(os.Environ(), s.opts.env...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	metric.RecordWorkerSpawn(ctx)
	log.Infof("bridge: worker started (pid %d)", cmd.Process.Pid)

	inst := &instance{
		cmd:         cmd,
		stdin:       stdin,
		stamp:       st,
		stopTimeout: s.opts.stopTimeout,
		exited:      make(chan struct{}),
		diagDone:    make(chan struct{}),
	}
	inst.client = NewClient(stdout, stdin,
		WithDiagnostics(s.opts.sink),
		WithCloseHandler(inst.watchExit),
	)
	go inst.readDiagnostics(stderr, s.opts.sink)
	return inst, nil
}

// Instance states.
const (
	stateReady int32 = iota
	stateDisposed
)

// instance is one worker process. It moves from ready to disposed exactly
// once.
type instance struct {
	cmd         *exec.Cmd
	stdin       io.Closer
	client      *Client
	stamp       stamp
	stopTimeout time.Duration

	state    atomic.Int32
	once     sync.Once
	exited   chan struct{}
	diagDone chan struct{}
}

func (i *instance) ready() bool {
	return i.state.Load() == stateReady
}

// dispose fails every pending request with err and stops the process.
func (i *instance) dispose(err error) {
	i.once.Do(func() {
		i.state.Store(stateDisposed)
		i.client.Fail(err)
		_ = i.stdin.Close()
		go i.terminate()
	})
}

func (i *instance) terminate() {
	select {
	case <-i.exited:
		return
	default:
	}
	if err := i.cmd.Process.Signal(os.Interrupt); err != nil {
		_ = i.cmd.Process.Kill()
		return
	}
	select {
	case <-i.exited:
	case <-time.After(i.stopTimeout):
		log.Warnf("bridge: worker %d ignored interrupt, killing", i.cmd.Process.Pid)
		_ = i.cmd.Process.Kill()
	}
}

// watchExit runs once stdout is closed. Pipes must be drained before Wait.
// A read failure leaves the process running, so it is stopped first.
func (i *instance) watchExit(readErr error) {
	if readErr != nil {
		i.dispose(fmt.Errorf("bridge: read worker output: %w", readErr))
	}
	<-i.diagDone
	err := i.cmd.Wait()
	code := -1
	if i.cmd.ProcessState != nil {
		code = i.cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		err = nil
	}
	if err == nil {
		err = readErr
	}
	if i.ready() {
		log.Errorf("bridge: worker %d exited with code %d", i.cmd.Process.Pid, code)
	}
	i.dispose(&ExitError{Code: code, Err: err})
	close(i.exited)
}

func (i *instance) readDiagnostics(r io.Reader, sink func(string)) {
	defer close(i.diagDone)
	lines := NewLineReader(r, MaxLineSize)
	for {
		line, oversized, err := lines.Next()
		if err != nil {
			break
		}
		if len(line) == 0 {
			continue
		}
		if oversized {
			sink(string(line) + " [truncated]")
			continue
		}
		sink(string(line))
	}
	// Keep draining so a chatty worker never blocks on a full pipe.
	_, _ = io.Copy(io.Discard, r)
}
