package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pocketcoach/converse/pkg/content"
)

var validateCmd = &cobra.Command{
	Use:   "validate <script.yaml>...",
	Short: "Check conversation scripts for authoring mistakes",
	Long:  `Checks each script for duplicate line IDs, unknown line types and goto lines whose target does not exist.`,
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		failed := false
		for _, path := range args {
			script, _, err := content.LoadFile(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
				failed = true
				continue
			}
			problems := content.Validate(script)
			for _, p := range problems {
				fmt.Fprintf(os.Stderr, "%s: %s\n", path, p)
			}
			if len(problems) > 0 {
				failed = true
			}
		}
		if failed {
			os.Exit(1)
		}
		fmt.Println("All scripts are valid ✅")
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
