// Package main provides the entry point for dcat.
// dcat is a data-cache categorization engine for WCET analysis.
//
// For the full CLI, use: go run ./cmd/dcat
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("dcat - Data-Cache Categorization Engine")
	fmt.Println("")
	fmt.Println("Usage: dcat <command> [options]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  analyze    Classify accesses and emit per-edge timing events")
	fmt.Println("  dump       Print the fixed-point abstract cache states")
	fmt.Println("  simulate   Replay a concrete trace through the reference cache")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/dcat' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/dcat' instead.")
	}
}
