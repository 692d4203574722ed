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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tidwall/jsonc"

	"trpc.group/trpc-go/trpc-agent-bridge/log"
)

// Slot names of the persisted configuration file.
const (
	SlotA = "agentA"
	SlotB = "agentB"
)

// Slots lists the slot names in display order.
var Slots = []string{SlotA, SlotB}

// ErrInvalidSlot is returned for a slot name other than SlotA or SlotB.
var ErrInvalidSlot = errors.New("config: invalid slot")

// File is the persisted configuration: one AgentConfiguration per slot.
type File struct {
	AgentA AgentConfiguration `json:"agentA"`
	AgentB AgentConfiguration `json:"agentB"`
}

// DefaultFile returns a file with both slots at their defaults.
func DefaultFile() File {
	return File{AgentA: Default(), AgentB: Default()}
}

// Slot returns the configuration stored in slot.
func (f File) Slot(slot string) (AgentConfiguration, error) {
	switch slot {
	case SlotA:
		return f.AgentA, nil
	case SlotB:
		return f.AgentB, nil
	default:
		return AgentConfiguration{}, fmt.Errorf("%w: %q", ErrInvalidSlot, slot)
	}
}

func (f *File) set(slot string, cfg AgentConfiguration) error {
	switch slot {
	case SlotA:
		f.AgentA = cfg
	case SlotB:
		f.AgentB = cfg
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSlot, slot)
	}
	return nil
}

func (f File) normalize() File {
	return File{AgentA: f.AgentA.Normalize(), AgentB: f.AgentB.Normalize()}
}

// Store keeps the configuration file in memory and on disk.
// It is safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	path string
	file File
}

// NewStore opens the configuration file at path. An absent or unparsable
// file is replaced by defaults, which are written back.
func NewStore(path string) *Store {
	s := &Store{path: path}
	s.file = s.load()
	return s
}

func (s *Store) load() File {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warnf("config: read %s: %v, using defaults", s.path, err)
		}
		return s.writeDefaults()
	}
	// Missing fields keep their defaults.
	file := DefaultFile()
	if err := json.Unmarshal(jsonc.ToJSON(data), &file); err != nil {
		log.Warnf("config: parse %s: %v, using defaults", s.path, err)
		return s.writeDefaults()
	}
	return file.normalize()
}

func (s *Store) writeDefaults() File {
	file := DefaultFile()
	if err := writeFile(s.path, file); err != nil {
		log.Warnf("config: write defaults to %s: %v", s.path, err)
	}
	return file
}

// Path returns the file location.
func (s *Store) Path() string {
	return s.path
}

// File returns the current configuration.
func (s *Store) File() File {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.file
}

// Slot returns the configuration of one slot.
func (s *Store) Slot(slot string) (AgentConfiguration, error) {
	return s.File().Slot(slot)
}

// SetSlot normalizes cfg, stores it in slot and persists the file.
func (s *Store) SetSlot(slot string, cfg AgentConfiguration) (AgentConfiguration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.file
	cfg = cfg.Normalize()
	if err := next.set(slot, cfg); err != nil {
		return AgentConfiguration{}, err
	}
	if err := writeFile(s.path, next); err != nil {
		return AgentConfiguration{}, err
	}
	s.file = next
	return cfg, nil
}

// Save normalizes and persists a whole file.
func (s *Store) Save(file File) (File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	file = file.normalize()
	if err := writeFile(s.path, file); err != nil {
		return File{}, err
	}
	s.file = file
	return file, nil
}

func writeFile(path string, file File) error {
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("config: write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("config: rename: %w", err)
	}
	return nil
}
