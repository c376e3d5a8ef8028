package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pocketcoach/converse/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "converse",
	Short: "Converse plays scripted coaching conversations",
	Long:  `Converse is a turn-based conversation engine: it plays authored scripts with typing indicators, prompts, points and checkpoint navigation, locally or behind a server.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Emit logs as JSON")
}

func buildLogger(cmd *cobra.Command) *slog.Logger {
	levelName, _ := cmd.Flags().GetString("log-level")
	asJSON, _ := cmd.Flags().GetBool("log-json")

	var level slog.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		level = slog.LevelInfo
	}
	if asJSON {
		return logging.NewJSON(level)
	}
	return logging.New(level)
}
