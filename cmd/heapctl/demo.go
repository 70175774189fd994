package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/heaplab/heapscope/heap"
	"github.com/heaplab/heapscope/heap/alloc"
)

func init() {
	rootCmd.AddCommand(newDemoCmd())
}

func newDemoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run a canned fragmentation workload",
		Long: `The demo command runs a fixed alloc/free churn against the selected
allocator: fill the heap with small blocks, punch alternating holes,
then allocate again. On the coalescing variants the final allocation
triggers the deferred full-coalesce sweep; on best-fit the holes stay
fragmented, which is the point of the comparison.

Example:
  heapctl demo --allocator bestfit --size 1024
  heapctl demo --allocator coalesce --size 1024 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo()
		},
	}
}

func runDemo() error {
	kind, err := heap.ParseKind(allocName)
	if err != nil {
		return err
	}
	h, err := heap.New(kind, heapSize)
	if err != nil {
		return err
	}

	var handles []alloc.Handle
	for {
		handle, err := h.Malloc(100)
		if err != nil {
			break
		}
		handles = append(handles, handle)
		if len(handles) >= 64 {
			break
		}
	}
	for i := 0; i < len(handles); i += 2 {
		h.Free(handles[i])
	}
	if _, err := h.Malloc(50); err != nil {
		printError("final malloc failed: %v\n", err)
	}

	if jsonOut {
		return printJSON(heapReport(h))
	}
	fmt.Print(renderHeap(h))
	return nil
}
