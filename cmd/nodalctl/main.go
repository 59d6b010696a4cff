// Package main is nodalctl's entry point: loads bootconfig, wires the
// container's ambient services, and runs the cobra command tree.
package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang/v2"
)

func main() {
	if err := fang.Execute(context.Background(), rootCmd); err != nil {
		os.Exit(1)
	}
}
