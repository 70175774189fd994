// Package oplog records every allocator operation in an append-only,
// capacity-bounded trace. The log is part of the introspection surface:
// hosts replay it for debugging and render it as a textual trace.
package oplog

import (
	"github.com/heaplab/heapscope/heap/block"
	"github.com/heaplab/heapscope/internal/format"
)

// Action identifies the operation an entry records.
type Action string

const (
	ActionInit         Action = "INIT"
	ActionMalloc       Action = "MALLOC"
	ActionFree         Action = "FREE"
	ActionCoalesce     Action = "COALESCE"
	ActionFullCoalesce Action = "FULL_COALESCE"
)

// RegionNone marks log entries not attributable to any region, such as a
// multi-region malloc that found no qualifying region.
const RegionNone uint8 = 0xFF

// Entry is an immutable operation record.
type Entry struct {
	Action       Action
	AllocationID uint32
	Size         uint64
	Offset       uint64
	Timestamp    uint32
	Success      bool
	RegionID     uint8
	Flags        uint8
}

// Log is an append-only trace capped at format.MaxLogEntries. Once full,
// appends are dropped: the oldest entries are retained and dropped
// entries consume no clock tick.
type Log struct {
	entries []Entry
	max     int
}

// NewLog returns an empty log with the standard capacity.
func NewLog() *Log {
	return &Log{max: format.MaxLogEntries}
}

// Append stamps e with the clock and records it. It reports false when
// the log is full, in which case the clock is not advanced.
func (l *Log) Append(e Entry, clk *block.Clock) bool {
	if len(l.entries) >= l.max {
		return false
	}
	e.Timestamp = clk.Tick()
	l.entries = append(l.entries, e)
	return true
}

// Len returns the number of recorded entries.
func (l *Log) Len() int {
	return len(l.entries)
}

// Entries returns a copy of the trace in append order.
func (l *Log) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Clear empties the log. Appends resume afterwards.
func (l *Log) Clear() {
	l.entries = l.entries[:0]
}
