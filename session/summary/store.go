//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//

package summary

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"trpc.group/trpc-go/trpc-agent-bridge/session"
)

// FileName is the summary file inside the store directory.
const FileName = "summary.txt"

const (
	generatedAtMarker = "generated_at:"
	shadowLineMarker  = "shadow_line:"
	summaryMarker     = "summary:"
)

// FileStore persists the most recent summary to a text file and serves it
// back as cross-session memory.
type FileStore struct {
	path string
	now  func() time.Time

	mu        sync.Mutex
	cached    string
	cachedMod time.Time
	cacheOK   bool
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithFileClock sets the clock used for generated_at.
func WithFileClock(now func() time.Time) FileStoreOption {
	return func(f *FileStore) {
		f.now = now
	}
}

// NewFileStore creates a store writing dir/summary.txt.
func NewFileStore(dir string, opts ...FileStoreOption) *FileStore {
	f := &FileStore{
		path: filepath.Join(dir, FileName),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Path returns the summary file path.
func (f *FileStore) Path() string {
	return f.path
}

// Save overwrites the file with record. A record with neither a shadow line
// nor a summary is ignored.
func (f *FileStore) Save(_ context.Context, record session.SummaryRecord) error {
	shadow := strings.TrimSpace(record.ShadowLine)
	text := strings.TrimSpace(record.SummaryText)
	if shadow == "" && text == "" {
		return nil
	}

	lines := []string{generatedAtMarker + " " + f.now().UTC().Format(time.RFC3339Nano), ""}
	if shadow != "" {
		lines = append(lines, shadowLineMarker, shadow, "")
	}
	if text != "" {
		lines = append(lines, summaryMarker, text, "")
	}
	content := strings.TrimRight(strings.Join(lines, "\n"), "\n") + "\n"

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("summary: create dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return fmt.Errorf("summary: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("summary: rename %s: %w", tmp, err)
	}
	f.cacheOK = false
	return nil
}

// Load returns the text after the last "summary:" marker, matched without
// regard to case. The result is cached until the file's modification time
// changes.
func (f *FileStore) Load() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	info, err := os.Stat(f.path)
	if err != nil {
		f.cacheOK = false
		return "", false
	}
	if f.cacheOK && info.ModTime().Equal(f.cachedMod) {
		return f.cached, f.cached != ""
	}
	raw, err := os.ReadFile(f.path)
	if err != nil {
		f.cacheOK = false
		return "", false
	}
	f.cached = ExtractSummary(string(raw))
	f.cachedMod = info.ModTime()
	f.cacheOK = true
	return f.cached, f.cached != ""
}

// ExtractSummary returns the trimmed text after the last "summary:" marker.
func ExtractSummary(raw string) string {
	idx := strings.LastIndex(strings.ToLower(raw), summaryMarker)
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(raw[idx+len(summaryMarker):])
}
