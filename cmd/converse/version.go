package main

import (
	"fmt"

	"github.com/spf13/cobra"

	converse "github.com/pocketcoach/converse"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of converse",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("converse version %s\n", converse.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
