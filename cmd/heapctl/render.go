package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/heaplab/heapscope/heap"
	"github.com/heaplab/heapscope/heap/block"
	"github.com/heaplab/heapscope/heap/oplog"
	"github.com/heaplab/heapscope/heap/stats"
)

// logTail bounds how many trailing log entries the human rendering shows.
const logTail = 12

// Rendering styles (presentation-only, no domain meaning)
var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4"))

	freeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3C9D64"))

	allocatedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#D97706")).
			Bold(true)

	freedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#DC2626"))
)

func styled(s lipgloss.Style, text string) string {
	if noColor {
		return text
	}
	return s.Render(text)
}

func stateStyle(s block.State) lipgloss.Style {
	switch s {
	case block.Allocated:
		return allocatedStyle
	case block.Freed:
		return freedStyle
	default:
		return freeStyle
	}
}

// report is the machine-readable dump of one heap's full state.
type report struct {
	Allocator string       `json:"allocator"`
	Stats     stats.Stats  `json:"stats"`
	Blocks    []blockView  `json:"blocks"`
	Logs      []logView    `json:"logs"`
	Regions   []regionView `json:"regions,omitempty"`
}

type blockView struct {
	Offset        uint64 `json:"offset"`
	Size          uint64 `json:"size"`
	State         string `json:"state"`
	AllocationID  uint32 `json:"allocation_id"`
	Timestamp     uint32 `json:"timestamp"`
	RequestedSize uint64 `json:"requested_size"`
	RegionID      uint8  `json:"region_id"`
}

type logView struct {
	Action       string `json:"action"`
	AllocationID uint32 `json:"allocation_id"`
	Size         uint64 `json:"size"`
	Offset       uint64 `json:"offset"`
	Timestamp    uint32 `json:"timestamp"`
	Success      bool   `json:"success"`
	RegionID     uint8  `json:"region_id"`
	Flags        uint8  `json:"flags"`
}

type regionView struct {
	ID    int         `json:"id"`
	Name  string      `json:"name"`
	Flags uint8       `json:"flags"`
	Size  uint64      `json:"size"`
	Stats stats.Stats `json:"stats"`
}

func heapReport(h *heap.Heap) report {
	r := report{
		Allocator: h.Kind().String(),
		Stats:     h.Stats(),
	}
	for _, b := range h.Blocks() {
		r.Blocks = append(r.Blocks, blockView{
			Offset:        b.Offset,
			Size:          b.Size,
			State:         b.State.String(),
			AllocationID:  b.AllocationID,
			Timestamp:     b.Timestamp,
			RequestedSize: b.RequestedSize,
			RegionID:      b.RegionID,
		})
	}
	for _, e := range h.Logs() {
		r.Logs = append(r.Logs, logView{
			Action:       string(e.Action),
			AllocationID: e.AllocationID,
			Size:         e.Size,
			Offset:       e.Offset,
			Timestamp:    e.Timestamp,
			Success:      e.Success,
			RegionID:     e.RegionID,
			Flags:        e.Flags,
		})
	}
	for i := 0; i < h.RegionCount(); i++ {
		rs, _ := h.RegionStats(i)
		r.Regions = append(r.Regions, regionView{
			ID:    i,
			Name:  h.RegionName(i),
			Flags: h.RegionFlags(i),
			Size:  h.RegionSize(i),
			Stats: rs,
		})
	}
	return r
}

// renderHeap produces the human-readable dump: block map, statistics,
// per-region summaries and the log tail.
func renderHeap(h *heap.Heap) string {
	var sb strings.Builder

	sb.WriteString(styled(headerStyle, fmt.Sprintf("Heap (%s)", h.Kind())))
	sb.WriteByte('\n')
	sb.WriteString(renderBlockMap(h.Blocks()))
	sb.WriteByte('\n')
	sb.WriteString(renderStats(h.Stats()))

	if n := h.RegionCount(); n > 0 {
		sb.WriteByte('\n')
		sb.WriteString(styled(headerStyle, "Regions"))
		sb.WriteByte('\n')
		for i := 0; i < n; i++ {
			rs, _ := h.RegionStats(i)
			sb.WriteString(fmt.Sprintf("  %d %-9s flags=0x%02X size=%-6d used=%-6d frag=%.1f%%\n",
				i, h.RegionName(i), h.RegionFlags(i), h.RegionSize(i),
				rs.AllocatedBytes, rs.ExternalFragmentation))
		}
	}

	sb.WriteByte('\n')
	sb.WriteString(renderLogs(h.Logs()))
	return sb.String()
}

// renderBlockMap draws each block as one segment, colored by state.
// Allocated segments show their id, free ones their span size.
func renderBlockMap(blocks []block.Block) string {
	var sb strings.Builder
	lastRegion := uint8(0)
	for i, b := range blocks {
		if i > 0 && b.RegionID != lastRegion {
			sb.WriteByte('\n')
		}
		lastRegion = b.RegionID

		var seg string
		if b.State == block.Allocated {
			seg = fmt.Sprintf("[#%d:%d]", b.AllocationID, b.Size)
		} else {
			seg = fmt.Sprintf("[%s:%d]", strings.ToLower(b.State.String()), b.Size)
		}
		sb.WriteString(styled(stateStyle(b.State), seg))
	}
	sb.WriteByte('\n')
	return sb.String()
}

func renderStats(s stats.Stats) string {
	return fmt.Sprintf(
		"total=%d allocated=%d free=%d (min %d) blocks=%d/%d largest=%d ext=%.1f%% int=%.1f%%\n",
		s.TotalSize, s.AllocatedBytes, s.FreeBytes, s.MinFreeBytes,
		s.AllocationCount, s.FreeBlockCount, s.LargestFreeBlock,
		s.ExternalFragmentation, s.InternalFragmentation)
}

func renderLogs(logs []oplog.Entry) string {
	var sb strings.Builder
	sb.WriteString(styled(headerStyle, fmt.Sprintf("Log (%d entries)", len(logs))))
	sb.WriteByte('\n')

	start := 0
	if len(logs) > logTail {
		start = len(logs) - logTail
		sb.WriteString(fmt.Sprintf("  ... %d earlier entries\n", start))
	}
	for _, e := range logs[start:] {
		line := fmt.Sprintf("  %4d %-13s id=%-4d size=%-6d off=%-6d", e.Timestamp, e.Action, e.AllocationID, e.Size, e.Offset)
		if e.RegionID != 0 && e.RegionID != oplog.RegionNone {
			line += fmt.Sprintf(" region=%d", e.RegionID)
		}
		if !e.Success {
			line = styled(failStyle, line+" FAILED")
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}
