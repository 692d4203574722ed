//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package usage implements the token accounting model shared by the worker
// and its callers.
//
// Token counts are a reproducible heuristic, not a tokenizer: every text is
// charged ceil(characters / CharsPerToken) tokens.
package usage

import (
	"unicode/utf8"
)

// CharsPerToken is the fixed estimator ratio.
const CharsPerToken = 4

// Category names one counter of a Usage breakdown.
type Category string

// Usage categories, named as they appear on the wire.
const (
	CategoryUserInput   Category = "userInput"
	CategoryAgentOutput Category = "agentOutput"
	CategoryTools       Category = "tools"
	CategoryMemory      Category = "memory"
	CategoryRAG         Category = "rag"
	CategoryBasePrompt  Category = "basePrompt"
)

// Categories lists every category in wire order.
var Categories = []Category{
	CategoryUserInput,
	CategoryAgentOutput,
	CategoryTools,
	CategoryMemory,
	CategoryRAG,
	CategoryBasePrompt,
}

// Estimate returns the estimated token count of text.
func Estimate(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + CharsPerToken - 1) / CharsPerToken
}

// Usage is a per-category token breakdown. A run's reported Usage may hold
// negative values when a memory strategy evicted content.
type Usage struct {
	UserInput   int `json:"userInput"`
	AgentOutput int `json:"agentOutput"`
	Tools       int `json:"tools"`
	Memory      int `json:"memory"`
	RAG         int `json:"rag"`
	// BasePrompt is a high-water mark: it does not grow with conversation
	// length and is never summed.
	BasePrompt int `json:"basePrompt"`
}

// Add sums the additive categories and keeps the larger BasePrompt.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		UserInput:   u.UserInput + o.UserInput,
		AgentOutput: u.AgentOutput + o.AgentOutput,
		Tools:       u.Tools + o.Tools,
		Memory:      u.Memory + o.Memory,
		RAG:         u.RAG + o.RAG,
		BasePrompt:  max(u.BasePrompt, o.BasePrompt),
	}
}

// Neg negates the additive categories. BasePrompt is dropped.
func (u Usage) Neg() Usage {
	return Usage{
		UserInput:   -u.UserInput,
		AgentOutput: -u.AgentOutput,
		Tools:       -u.Tools,
		Memory:      -u.Memory,
		RAG:         -u.RAG,
	}
}

// Clamp raises negative additive categories to zero.
func (u Usage) Clamp() Usage {
	return Usage{
		UserInput:   max(u.UserInput, 0),
		AgentOutput: max(u.AgentOutput, 0),
		Tools:       max(u.Tools, 0),
		Memory:      max(u.Memory, 0),
		RAG:         max(u.RAG, 0),
		BasePrompt:  u.BasePrompt,
	}
}

// IsZero reports whether every category is zero.
func (u Usage) IsZero() bool {
	return u == Usage{}
}

// Get returns the value of one category.
func (u Usage) Get(c Category) int {
	switch c {
	case CategoryUserInput:
		return u.UserInput
	case CategoryAgentOutput:
		return u.AgentOutput
	case CategoryTools:
		return u.Tools
	case CategoryMemory:
		return u.Memory
	case CategoryRAG:
		return u.RAG
	case CategoryBasePrompt:
		return u.BasePrompt
	default:
		return 0
	}
}

// ForTool returns the usage charged for one tool payload.
func ForTool(c *Classifier, name, text string) Usage {
	n := Estimate(text)
	u := Usage{Tools: n}
	if c.IsRetrieval(name) {
		u.RAG = n
	}
	return u
}
