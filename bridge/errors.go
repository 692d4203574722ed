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
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned once the transport or the supervisor is closed.
	ErrClosed = errors.New("bridge: closed")
	// ErrWorkerExited matches every *ExitError.
	ErrWorkerExited = errors.New("bridge: worker exited")
	// ErrDisposed fails the requests of a worker that was replaced.
	ErrDisposed = errors.New("bridge: worker disposed")
	// ErrLineTooLong fails a request whose response line exceeds the line
	// limit. Other requests are unaffected.
	ErrLineTooLong = errors.New("bridge: line too long")
)

// RemoteError is an application failure reported by the worker.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// ExitError reports that the worker process ended. Every request still
// pending at that moment fails with it.
type ExitError struct {
	// Code is the exit code, or -1 when the process was killed by a signal.
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bridge: worker exited with code %d: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("bridge: worker exited with code %d", e.Code)
}

// Unwrap lets errors.Is match ErrWorkerExited and the wait error.
func (e *ExitError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrWorkerExited}
	}
	return []error{ErrWorkerExited, e.Err}
}
