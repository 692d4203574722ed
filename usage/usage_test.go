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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"one char", "a", 1},
		{"exact multiple", "abcd", 1},
		{"rounds up", "abcde", 2},
		{"runes not bytes", "你好你好你", 2},
		{"long", strings.Repeat("x", 401), 101},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Estimate(tt.text))
		})
	}
}

func TestUsage_AddKeepsBasePromptHighWater(t *testing.T) {
	a := Usage{UserInput: 3, AgentOutput: 2, Tools: 5, RAG: 1, Memory: 4, BasePrompt: 100}
	b := Usage{UserInput: -1, Tools: -5, RAG: -1, Memory: 2, BasePrompt: 80}

	got := a.Add(b)
	assert.Equal(t, Usage{UserInput: 2, AgentOutput: 2, Tools: 0, RAG: 0, Memory: 6, BasePrompt: 100}, got)
}

func TestUsage_Neg(t *testing.T) {
	u := Usage{UserInput: 1, AgentOutput: 2, Tools: 3, Memory: 4, RAG: 5, BasePrompt: 6}
	assert.Equal(t, Usage{UserInput: -1, AgentOutput: -2, Tools: -3, Memory: -4, RAG: -5}, u.Neg())
	assert.Equal(t, Usage{BasePrompt: 6}, u.Add(u.Neg()))
	assert.True(t, Usage{}.IsZero())
}

func TestUsage_Get(t *testing.T) {
	u := Usage{UserInput: 1, AgentOutput: 2, Tools: 3, Memory: 4, RAG: 5, BasePrompt: 6}
	for i, c := range Categories {
		assert.Equal(t, i+1, u.Get(c), string(c))
	}
	assert.Zero(t, u.Get("unknown"))
}

func TestAccumulator_ClampsAndTracksMax(t *testing.T) {
	var acc Accumulator

	acc.Add(Usage{UserInput: 10, Tools: 4, RAG: 2, BasePrompt: 50})
	total := acc.Add(Usage{UserInput: -25, Tools: -1, RAG: -9, Memory: -3, BasePrompt: 20})

	assert.Equal(t, Usage{UserInput: 0, Tools: 3, RAG: 0, Memory: 0, BasePrompt: 50}, total)

	total = acc.Add(Usage{UserInput: 4, BasePrompt: 70})
	assert.Equal(t, 4, total.UserInput)
	assert.Equal(t, 70, total.BasePrompt)

	acc.Reset()
	assert.True(t, acc.Total().IsZero())
}

func TestAccumulator_Concurrent(t *testing.T) {
	var (
		acc Accumulator
		wg  sync.WaitGroup
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			acc.Add(Usage{AgentOutput: 2})
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, acc.Total().AgentOutput)
}

func TestClassifier(t *testing.T) {
	c := NewClassifier()
	assert.True(t, c.IsRetrieval("SearchPolicy"))
	assert.True(t, c.IsRetrieval("searchpolicy"))
	assert.True(t, c.IsRetrieval(" SEARCHPOLICY "))
	assert.False(t, c.IsRetrieval("GetOrder"))

	var nilClassifier *Classifier
	assert.True(t, nilClassifier.IsRetrieval("SearchPolicy"))

	custom := NewClassifier("kb_lookup")
	assert.True(t, custom.IsRetrieval("KB_Lookup"))
	assert.False(t, custom.IsRetrieval("SearchPolicy"))
}

func TestForTool(t *testing.T) {
	c := NewClassifier()
	assert.Equal(t, Usage{Tools: 2, RAG: 2}, ForTool(c, "SearchPolicy", "12345678"))
	assert.Equal(t, Usage{Tools: 2}, ForTool(c, "GetOrder", "12345678"))
}

func TestNameSet(t *testing.T) {
	s := NewNameSet("GetOrder", " ", "")
	assert.Len(t, s, 1)
	assert.True(t, s.Contains("getorder"))
	assert.False(t, NameSet(nil).Contains("getorder"))
}
