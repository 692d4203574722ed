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
	"bufio"
	"bytes"
	"errors"
	"io"
	"strconv"
)

// LineReader reads newline-terminated lines. A line longer than the limit
// does not end the stream: it is consumed whole and returned cut to the
// limit with oversized set, so the caller can reject just that line.
type LineReader struct {
	r   *bufio.Reader
	max int
}

// NewLineReader creates a LineReader keeping at most max bytes per line.
func NewLineReader(r io.Reader, max int) *LineReader {
	if max <= 0 {
		max = MaxLineSize
	}
	return &LineReader{r: bufio.NewReaderSize(r, 64*1024), max: max}
}

// Next returns the next line without its line ending. It returns io.EOF
// once the input is exhausted; a final unterminated line is still
// returned first. The returned slice is owned by the caller.
func (l *LineReader) Next() (line []byte, oversized bool, err error) {
	var size int
	for {
		frag, err := l.r.ReadSlice('\n')
		size += len(frag)
		// Keep one byte past the limit to tell "exactly max" from "longer".
		if room := l.max + 1 - len(line); room > 0 {
			line = append(line, frag[:min(len(frag), room)]...)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil && (!errors.Is(err, io.EOF) || size == 0) {
			return nil, false, err
		}
		break
	}
	line = bytes.TrimRight(line, "\r\n")
	if len(line) > l.max {
		return line[:l.max], true, nil
	}
	return line, false, nil
}

// LeadingID extracts the id of a request or response whose text was cut
// short. Both are encoded with the id as their first member.
func LeadingID(prefix []byte) (int64, bool) {
	prefix = bytes.TrimSpace(prefix)
	const key = `"id"`
	if !bytes.HasPrefix(prefix, []byte("{")) {
		return 0, false
	}
	rest := bytes.TrimSpace(prefix[1:])
	if !bytes.HasPrefix(rest, []byte(key)) {
		return 0, false
	}
	rest = bytes.TrimSpace(rest[len(key):])
	if !bytes.HasPrefix(rest, []byte(":")) {
		return 0, false
	}
	rest = bytes.TrimSpace(rest[1:])
	end := 0
	for end < len(rest) && (rest[end] == '-' || (rest[end] >= '0' && rest[end] <= '9')) {
		end++
	}
	if end == len(rest) || (rest[end] != ',' && rest[end] != '}' && rest[end] != ' ') {
		return 0, false
	}
	id, err := strconv.ParseInt(string(rest[:end]), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
