package main

import (
	"fmt"

	"github.com/spf13/cobra"

	converse "github.com/pocketcoach/converse"
	mcpadapter "github.com/pocketcoach/converse/pkg/adapters/mcp"
	"github.com/pocketcoach/converse/pkg/content"
	"github.com/pocketcoach/converse/pkg/tabular"
	"github.com/pocketcoach/converse/pkg/timing"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Expose conversations as MCP tools over stdio",
	Long:  `Starts an MCP server on stdin/stdout so an agent can start conversations, answer prompts and step back through checkpoints.`,
	RunE:  runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("scripts", "", "Directory of local YAML conversation scripts")
	mcpCmd.Flags().String("table-url", "", "SAS URL of the published content table")
	mcpCmd.Flags().Float64("speed", 0.01, "Pacing scale; 1.0 plays at human speed")
}

func runMCP(cmd *cobra.Command, _ []string) error {
	logger := buildLogger(cmd)

	var scripts mcpadapter.ScriptSource
	tableURL, _ := cmd.Flags().GetString("table-url")
	scriptsDir, _ := cmd.Flags().GetString("scripts")
	switch {
	case tableURL != "" && scriptsDir != "":
		return fmt.Errorf("--table-url and --scripts are mutually exclusive")
	case tableURL != "":
		client, err := tabular.NewClient(tableURL, tabular.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("connecting to content table: %w", err)
		}
		scripts = content.NewLoader(client, content.WithLogger(logger))
	case scriptsDir != "":
		scripts = content.NewDir(scriptsDir)
	default:
		return fmt.Errorf("either --scripts or --table-url is required")
	}

	speed, _ := cmd.Flags().GetFloat64("speed")
	server := mcpadapter.NewServer(scripts, converse.Version,
		mcpadapter.WithPolicy(timing.Default().Scaled(speed)),
		mcpadapter.WithLogger(logger),
	)
	return server.ServeStdio()
}
