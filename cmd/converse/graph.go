package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pocketcoach/converse/internal/presentation/graph"
	"github.com/pocketcoach/converse/pkg/content"
)

var graphCmd = &cobra.Command{
	Use:   "graph <script.yaml>",
	Short: "Render a script as a Mermaid flowchart",
	Long:  `Prints Mermaid flowchart syntax for a conversation script: prompts, checkpoints, goto jumps and show conditions.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		script, _, err := content.LoadFile(args[0])
		if err != nil {
			return err
		}
		fmt.Print(graph.GenerateMermaid(script, nil))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
