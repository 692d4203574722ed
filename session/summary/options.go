//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//

package summary

// Option is a function that configures a Summarizer.
type Option func(*Summarizer)

// WithPrompt sets the system prompt for summarization.
func WithPrompt(prompt string) Option {
	return func(s *Summarizer) {
		if prompt != "" {
			s.prompt = prompt
		}
	}
}

// WithModelName sets the model requested for summaries.
func WithModelName(name string) Option {
	return func(s *Summarizer) {
		if name != "" {
			s.modelName = name
		}
	}
}

// WithMaxTokens bounds the summary length. A value <= 0 means no limit.
func WithMaxTokens(n int) Option {
	return func(s *Summarizer) {
		s.maxTokens = n
	}
}

// WithToolTrimLimit sets the rune limit for tool results in the transcript.
// A value <= 0 keeps results whole.
func WithToolTrimLimit(n int) Option {
	return func(s *Summarizer) {
		s.toolTrimLimit = n
	}
}
