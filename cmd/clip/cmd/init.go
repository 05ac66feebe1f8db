package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clip-mcp/clip/internal/config"
)

var initOutPath string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write an example configuration file",
	Long: `Write an example CLIP configuration file (spec.md §6's JSON schema)
to get a new deployment started. Edit the generated upstreams list before
running "clip start".`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVarP(&initOutPath, "out", "o", "clip.json", "path to write the example config to")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	example := config.RootConfig{
		Upstreams: []config.UpstreamConfig{
			{
				ID:        "example",
				Name:      "Example upstream",
				Transport: "stdio",
				Command:   "npx",
				Args:      []string{"@modelcontextprotocol/server-filesystem", "/tmp"},
			},
		},
		Compression: config.CompressionConfig{
			Enabled:         true,
			TokenThreshold:  1000,
			MaxOutputTokens: 500,
			LLMConfig: config.LLMConfig{
				BaseURL: "https://api.openai.com/v1",
				Model:   "gpt-4o-mini",
			},
		},
	}

	body, err := json.MarshalIndent(example, "", "  ")
	if err != nil {
		return wrapConfigError(fmt.Errorf("encode example config: %w", err))
	}
	body = append(body, '\n')

	if err := os.WriteFile(initOutPath, body, 0o644); err != nil {
		return wrapConfigError(fmt.Errorf("write %s: %w", initOutPath, err))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote example config to %s\n", initOutPath)
	return nil
}
