//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore_MissingFileWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "config.json")

	s := NewStore(path)
	assert.Equal(t, DefaultFile(), s.File())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk File
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, DefaultFile(), onDisk)
}

func TestNewStore_UnparsableFileFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s := NewStore(path)
	assert.Equal(t, DefaultFile(), s.File())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))
}

func TestNewStore_ToleratesCommentsAndPartialSlots(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
  // agent A trims aggressively
  "agentA": {"memoryTrimming": true, "memoryMaxTurns": 6, "memoryKeepRecentTurns": 3,},
  "agentB": {"memoryCompacting": true, "compactingExcludeTools": "SearchPolicy"},
}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s := NewStore(path)
	a, err := s.Slot(SlotA)
	require.NoError(t, err)
	assert.Equal(t, StrategyTrimming, a.Active())
	assert.Equal(t, 6, a.MemoryMaxTurns)
	assert.Equal(t, 3, a.MemoryKeepRecentTurns)
	assert.Equal(t, DefaultModel, a.Model)

	b, err := s.Slot(SlotB)
	require.NoError(t, err)
	assert.Equal(t, StrategyCompacting, b.Active())
	assert.Equal(t, ToolList{"SearchPolicy"}, b.CompactingExcludeTools)
}

func TestStore_SetSlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	s := NewStore(path)

	cfg := Default()
	cfg.Enable(StrategySummarization)
	cfg.SummarizationTriggerTurns = 1
	saved, err := s.SetSlot(SlotB, cfg)
	require.NoError(t, err)
	assert.Equal(t, saved.SummarizationKeepRecentTurns, saved.SummarizationTriggerTurns)

	reopened := NewStore(path)
	b, err := reopened.Slot(SlotB)
	require.NoError(t, err)
	assert.Equal(t, saved, b)

	_, err = s.SetSlot("agentC", cfg)
	assert.ErrorIs(t, err, ErrInvalidSlot)
	_, err = s.Slot("agentC")
	assert.ErrorIs(t, err, ErrInvalidSlot)
}

func TestStore_Save(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	s := NewStore(path)
	f := DefaultFile()
	f.AgentA.MemoryTrimming = true
	f.AgentA.MemoryCompacting = true

	saved, err := s.Save(f)
	require.NoError(t, err)
	assert.Equal(t, StrategyCompacting, saved.AgentA.Active())
	assert.False(t, saved.AgentA.MemoryTrimming)
	assert.Equal(t, path, s.Path())
}
