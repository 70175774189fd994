package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	allocName string
	heapSize  uint64
	jsonOut   bool
	noColor   bool
)

var rootCmd = &cobra.Command{
	Use:   "heapctl",
	Short: "Drive and inspect simulated heap allocators",
	Long: `heapctl runs allocation workloads against one of five allocator
variants (bump, best-fit, thread-safe passthrough, coalescing,
multi-region) and renders the resulting block map, statistics and
operation log.`,
	Version: "0.1.0",
}

func init() {
	rootCmd.PersistentFlags().
		StringVarP(&allocName, "allocator", "a", "coalesce", "Allocator variant (bump|bestfit|tracked|coalesce|region)")
	rootCmd.PersistentFlags().
		Uint64VarP(&heapSize, "size", "s", 4096, "Heap capacity in bytes (ignored by the region variant)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// printError prints an error message
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format, args...)
}

// printJSON outputs data as JSON
func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
