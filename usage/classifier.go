//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package usage

import (
	"strings"

	"golang.org/x/text/cases"
)

// DefaultRetrievalTools are the tools whose payloads count toward RAG.
var DefaultRetrievalTools = []string{"SearchPolicy"}

// FoldName normalizes a tool name for case-insensitive comparison.
func FoldName(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// NameSet is a case-insensitive set of tool names.
type NameSet map[string]struct{}

// NewNameSet builds a set from names, ignoring blanks.
func NewNameSet(names ...string) NameSet {
	set := make(NameSet, len(names))
	for _, n := range names {
		if f := FoldName(n); f != "" {
			set[f] = struct{}{}
		}
	}
	return set
}

// Contains reports whether name is in the set, ignoring case.
func (s NameSet) Contains(name string) bool {
	if len(s) == 0 {
		return false
	}
	_, ok := s[FoldName(name)]
	return ok
}

// Classifier decides which tool calls are retrieval-like.
// A nil Classifier uses DefaultRetrievalTools.
type Classifier struct {
	retrieval NameSet
}

// NewClassifier creates a classifier for the given retrieval tool names.
// Without names it falls back to DefaultRetrievalTools.
func NewClassifier(retrievalTools ...string) *Classifier {
	if len(retrievalTools) == 0 {
		retrievalTools = DefaultRetrievalTools
	}
	return &Classifier{retrieval: NewNameSet(retrievalTools...)}
}

var defaultClassifier = NewClassifier()

// IsRetrieval reports whether the named tool is retrieval-like.
func (c *Classifier) IsRetrieval(name string) bool {
	if c == nil {
		c = defaultClassifier
	}
	return c.retrieval.Contains(name)
}
