//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package inmemory

import (
	"context"
	"time"
)

// serviceOpts is the options for session service.
type serviceOpts struct {
	// resetHooks run after Reset dropped the sessions.
	resetHooks []func(context.Context) error
	// clock stamps CreatedAt and UpdatedAt.
	clock func() time.Time
}

func defaultServiceOpts() serviceOpts {
	return serviceOpts{clock: time.Now}
}

// ServiceOpt is the option for the in-memory session service.
type ServiceOpt func(*serviceOpts)

// WithResetHook registers a function run on every Reset, such as clearing
// the tool stores a conversation wrote to.
func WithResetHook(hook func(context.Context) error) ServiceOpt {
	return func(opts *serviceOpts) {
		if hook != nil {
			opts.resetHooks = append(opts.resetHooks, hook)
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) ServiceOpt {
	return func(opts *serviceOpts) {
		if clock != nil {
			opts.clock = clock
		}
	}
}
