package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/heaplab/heapscope/heap"
	"github.com/heaplab/heapscope/heap/alloc"
)

func init() {
	rootCmd.AddCommand(newRunCmd())
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <script>",
		Short: "Execute an allocation script",
		Long: `The run command executes a newline-separated allocation script
against the selected allocator and prints the resulting block map,
statistics and log tail. Pass "-" to read the script from stdin.

Script grammar, one operation per line ('#' starts a comment):
  init <bytes>
  malloc <bytes> [FAST|DMA|UNCACHED|PINNED ...]
  free <slot>
  reset
  clearlog

Each successful malloc is assigned the next slot number (1, 2, ...);
free refers to allocations by that slot.

Example:
  heapctl run churn.txt --allocator coalesce --size 1024
  echo "malloc 100" | heapctl run - --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(args[0])
		},
	}
}

// scriptOp is one parsed script line.
type scriptOp struct {
	verb  string // init, malloc, free, reset, clearlog
	size  uint64 // init, malloc
	flags uint8  // malloc
	slot  int    // free
}

func runScript(path string) error {
	var src io.Reader
	if path == "-" {
		src = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open script: %w", err)
		}
		defer f.Close()
		src = f
	}

	ops, err := parseScript(src)
	if err != nil {
		return err
	}

	kind, err := heap.ParseKind(allocName)
	if err != nil {
		return err
	}
	h, err := heap.New(kind, heapSize)
	if err != nil {
		return err
	}

	if err := executeScript(h, ops); err != nil {
		return err
	}

	if jsonOut {
		return printJSON(heapReport(h))
	}
	fmt.Print(renderHeap(h))
	return nil
}

// parseScript reads the op-per-line grammar. Blank lines and comments
// are skipped; any unknown verb or malformed operand fails the whole
// script before anything runs.
func parseScript(r io.Reader) ([]scriptOp, error) {
	var ops []scriptOp
	sc := bufio.NewScanner(r)
	lineNo := 0

	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		op := scriptOp{verb: strings.ToLower(fields[0])}
		switch op.verb {
		case "init", "malloc":
			if len(fields) < 2 {
				return nil, fmt.Errorf("line %d: %s needs a byte count", lineNo, op.verb)
			}
			n, err := strconv.ParseUint(fields[1], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad byte count %q", lineNo, fields[1])
			}
			op.size = n
			if op.verb == "malloc" && len(fields) > 2 {
				f, err := parseFlagTokens(fields[2:])
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", lineNo, err)
				}
				op.flags = f
			}
		case "free":
			if len(fields) != 2 {
				return nil, fmt.Errorf("line %d: free needs a slot number", lineNo)
			}
			slot, err := strconv.Atoi(fields[1])
			if err != nil || slot < 1 {
				return nil, fmt.Errorf("line %d: bad slot %q", lineNo, fields[1])
			}
			op.slot = slot
		case "reset", "clearlog":
			if len(fields) != 1 {
				return nil, fmt.Errorf("line %d: %s takes no operands", lineNo, op.verb)
			}
		default:
			return nil, fmt.Errorf("line %d: unknown operation %q", lineNo, fields[0])
		}
		ops = append(ops, op)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return ops, nil
}

// parseFlagTokens folds capability names into one mask. Tokens may also
// arrive pre-joined with '|'.
func parseFlagTokens(tokens []string) (uint8, error) {
	var mask uint8
	for _, tok := range tokens {
		for _, name := range strings.Split(tok, "|") {
			switch strings.ToUpper(strings.TrimSpace(name)) {
			case "FAST":
				mask |= alloc.FlagFast
			case "DMA":
				mask |= alloc.FlagDMA
			case "UNCACHED":
				mask |= alloc.FlagUncached
			case "PINNED":
				mask |= alloc.FlagPinned
			case "":
			default:
				return 0, fmt.Errorf("unknown flag %q", name)
			}
		}
	}
	return mask, nil
}

// executeScript applies the ops in order. Failed mallocs are reported
// but do not abort: exhaustion is an expected outcome of a workload,
// and it is already in the log.
func executeScript(h *heap.Heap, ops []scriptOp) error {
	slots := map[int]alloc.Handle{}
	nextSlot := 1

	for _, op := range ops {
		switch op.verb {
		case "init":
			h.Init(op.size)
			slots = map[int]alloc.Handle{}
			nextSlot = 1
		case "malloc":
			handle, err := h.MallocFlags(op.size, op.flags)
			if err != nil {
				printError("malloc %d failed: %v\n", op.size, err)
				continue
			}
			slots[nextSlot] = handle
			nextSlot++
		case "free":
			handle, ok := slots[op.slot]
			if !ok {
				printError("free: no live slot %d\n", op.slot)
				continue
			}
			h.Free(handle)
			delete(slots, op.slot)
		case "reset":
			h.Reset()
			slots = map[int]alloc.Handle{}
			nextSlot = 1
		case "clearlog":
			h.ClearLog()
		}
	}
	return nil
}
