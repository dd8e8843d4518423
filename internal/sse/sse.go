// Package sse provides the low-level Server-Sent-Events line framer
// and writer shared by the streaming transformer (C4).
//
// Adapted from the teacher's pkg/providerutils/streaming.SSEParser /
// SSEWriter: same field-by-field line parser (event:/data:/id:/retry:,
// ':'-prefixed comments ignored, blank line = event boundary) but
// reworked around an incremental byte-buffer Feed/Flush API instead of
// a bufio.Scanner over a whole io.Reader, because the transformer
// must process one upstream chunk at a time and retain a trailing
// incomplete line across chunk boundaries (spec §4.4 "Line framing").
package sse

import (
	"fmt"
	"strings"
)

// Event is one decoded SSE frame.
type Event struct {
	EventName string
	Data      string
	ID        string
	Retry     int
	HasEvent  bool
}

// Line is one raw logical SSE line, classified by kind.
type Line struct {
	Kind  LineKind
	Field string // for Kind == LineField
	Value string
}

type LineKind int

const (
	LineEmpty LineKind = iota
	LineComment
	LineField
)

// Framer incrementally splits a byte stream on '\n', retaining a
// trailing incomplete line across Feed calls.
type Framer struct {
	buf []byte
}

// Feed appends chunk and returns every complete line found so far
// (without the trailing '\n' or '\r'). Any trailing partial line is
// retained for the next Feed/Flush call.
func (f *Framer) Feed(chunk []byte) []string {
	f.buf = append(f.buf, chunk...)
	var lines []string
	for {
		idx := indexByte(f.buf, '\n')
		if idx < 0 {
			break
		}
		line := f.buf[:idx]
		lineStr := strings.TrimSuffix(string(line), "\r")
		lines = append(lines, lineStr)
		f.buf = f.buf[idx+1:]
	}
	return lines
}

// Flush returns any remaining buffered partial line (used when the
// upstream closes without a trailing newline) and resets the buffer.
func (f *Framer) Flush() string {
	s := string(f.buf)
	f.buf = nil
	return s
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}

// ParseLine classifies one raw SSE line into a field/comment/empty.
func ParseLine(line string) Line {
	if line == "" {
		return Line{Kind: LineEmpty}
	}
	if strings.HasPrefix(line, ":") {
		return Line{Kind: LineComment}
	}
	colon := strings.IndexByte(line, ':')
	if colon < 0 {
		return Line{Kind: LineField, Field: line, Value: ""}
	}
	field := line[:colon]
	value := line[colon+1:]
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}
	return Line{Kind: LineField, Field: field, Value: value}
}

// EventAccumulator assembles Line values into Events, exactly mirroring
// the teacher's SSEParser.Next() field accumulation but driven by
// pushed lines instead of a blocking scanner.
type EventAccumulator struct {
	cur       Event
	dataLines []string
}

// Push feeds one classified line. It returns a completed Event and
// true when the line closed out an event (a blank line after at least
// one field was seen).
func (a *EventAccumulator) Push(l Line) (Event, bool) {
	if l.Kind == LineEmpty {
		if len(a.dataLines) > 0 || a.cur.HasEvent {
			ev := a.cur
			ev.Data = strings.Join(a.dataLines, "\n")
			a.cur = Event{}
			a.dataLines = nil
			return ev, true
		}
		return Event{}, false
	}
	if l.Kind == LineComment {
		return Event{}, false
	}
	switch l.Field {
	case "event":
		a.cur.EventName = l.Value
		a.cur.HasEvent = true
	case "data":
		a.dataLines = append(a.dataLines, l.Value)
	case "id":
		a.cur.ID = l.Value
	case "retry":
		var retry int
		_, _ = fmt.Sscanf(l.Value, "%d", &retry)
		a.cur.Retry = retry
	}
	return Event{}, false
}

// WriteDataLine formats one "data:" output line the way the wire
// protocol expects.
func WriteDataLine(data string) string {
	return "data: " + data + "\n"
}

func WriteEventLine(eventType string) string {
	return "event: " + eventType + "\n"
}

const Blank = "\n"
