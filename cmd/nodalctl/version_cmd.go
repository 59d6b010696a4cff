package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/nodalcore/container/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print nodalctl's version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println(formatVersionLine())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// formatVersionLine bolds the version string on a real terminal, and
// prints plainly when stdout is redirected or piped.
func formatVersionLine() string {
	line := fmt.Sprintf("%s %s", rootCmd.Name(), version.String())
	if isatty.IsTerminal(os.Stdout.Fd()) {
		return "\033[1m" + line + "\033[0m"
	}
	return line
}
