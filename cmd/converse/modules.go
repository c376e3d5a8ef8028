package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pocketcoach/converse/pkg/expr"
	"github.com/pocketcoach/converse/pkg/hub"
	"github.com/pocketcoach/converse/pkg/tabular"
	"github.com/pocketcoach/converse/pkg/vars"
)

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "List the module tree of a published content table",
	Long:  `Loads the Modules partition and prints the skill and lesson tree, with each module's gating status for a fresh user.`,
	RunE:  runModules,
}

func init() {
	rootCmd.AddCommand(modulesCmd)
	modulesCmd.Flags().String("table-url", "", "SAS URL of the published content table")
	_ = modulesCmd.MarkFlagRequired("table-url")
}

func runModules(cmd *cobra.Command, _ []string) error {
	logger := buildLogger(cmd)

	tableURL, _ := cmd.Flags().GetString("table-url")
	client, err := tabular.NewClient(tableURL, tabular.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("connecting to content table: %w", err)
	}

	eval, err := expr.New(expr.WithLogger(logger))
	if err != nil {
		return err
	}
	tree := hub.New(client, eval, vars.New(), hub.WithLogger(logger))
	if err := tree.Load(cmd.Context()); err != nil {
		return err
	}

	if len(tree.Modules()) == 0 {
		fmt.Println("no modules published")
		return nil
	}
	printModules(tree, "", 0)
	return nil
}

func printModules(tree *hub.Hub, parent string, depth int) {
	for _, m := range tree.Children(parent) {
		indent := strings.Repeat("  ", depth)
		label := m.Content
		if label == "" {
			label = m.ID
		}
		status := tree.Status(m)
		if m.Points != "" {
			fmt.Printf("%s- %s [%s, %s pts]\n", indent, label, status, m.Points)
		} else {
			fmt.Printf("%s- %s [%s]\n", indent, label, status)
		}
		printModules(tree, m.ID, depth+1)
	}
}
