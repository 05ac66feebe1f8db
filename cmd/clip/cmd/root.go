// Package cmd provides the CLI commands for CLIP.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "clip",
	Short: "CLIP - MCP response-shaping proxy",
	Long: `CLIP sits between an MCP client and one or more upstream MCP servers,
presenting a single unioned tool catalog and shaping large tool results
(compression, caching, PII masking, parameter overrides, selective hiding)
before they reach the client.

Quick start:
  1. Generate a starting config: clip init (writes clip.json)
  2. Edit clip.json to list your upstreams.
  3. Run: clip start -c clip.json`,
}

// Execute runs the root command. Exit codes follow spec.md §6: 0 clean
// shutdown, 1 configuration error, 2 fatal runtime error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "clip.json", "path to the CLIP configuration file")
}
