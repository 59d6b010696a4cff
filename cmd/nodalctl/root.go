package main

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "nodalctl",
	Short: "Run and inspect a modular service container",
	Long: `nodalctl loads a bootstrap configuration and an optional service
manifest, runs the container, and exposes an admin HTTP surface for
inspecting and nudging installed services.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to bootconfig file (yaml or toml)")
}
