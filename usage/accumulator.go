//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package usage

import "sync"

// Accumulator folds per-run usage into a running total the way callers
// display it: additive categories never drop below zero and BasePrompt
// tracks the largest value seen. It is safe for concurrent use.
type Accumulator struct {
	mu    sync.Mutex
	total Usage
}

// Add folds delta into the total and returns the new total.
func (a *Accumulator) Add(delta Usage) Usage {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total = a.total.Add(delta).Clamp()
	return a.total
}

// Total returns the current total.
func (a *Accumulator) Total() Usage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}

// Reset zeroes the total.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	a.total = Usage{}
	a.mu.Unlock()
}
