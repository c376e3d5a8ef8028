package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	converse "github.com/pocketcoach/converse"
	"github.com/pocketcoach/converse/internal/presentation/tui"
	"github.com/pocketcoach/converse/pkg/content"
	"github.com/pocketcoach/converse/pkg/domain"
	"github.com/pocketcoach/converse/pkg/timing"
	"github.com/pocketcoach/converse/pkg/vars"
)

// fastScale compresses typing and pacing delays for impatient authors.
const fastScale = 0.05

var playCmd = &cobra.Command{
	Use:   "play <script.yaml>",
	Short: "Play a conversation script in the terminal",
	Long: `Plays a local YAML conversation script with the terminal renderer.

Type answers to prompts and press enter to confirm. Special inputs:
  /back       step back to the previous checkpoint
  /goto <id>  jump to a line
  /restart    replay from the top
  /quit       leave the conversation`,
	Args: cobra.ExactArgs(1),
	RunE: runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)
	playCmd.Flags().Bool("fast", false, "Compress typing and pacing delays")
	playCmd.Flags().StringArray("var", nil, "Preset variable as name=value (repeatable)")
}

func runPlay(cmd *cobra.Command, args []string) error {
	logger := buildLogger(cmd)

	script, module, err := content.LoadFile(args[0])
	if err != nil {
		return err
	}
	if problems := content.Validate(script); len(problems) > 0 {
		for _, p := range problems {
			fmt.Fprintln(os.Stderr, "warning:", p)
		}
	}

	policy := timing.Default()
	if fast, _ := cmd.Flags().GetBool("fast"); fast {
		policy = policy.Scaled(fastScale)
	}

	store := vars.New(vars.WithLogger(logger))
	presets, _ := cmd.Flags().GetStringArray("var")
	for _, preset := range presets {
		name, value, ok := strings.Cut(preset, "=")
		if !ok {
			return fmt.Errorf("invalid --var %q, want name=value", preset)
		}
		store.Set(name, value)
	}

	renderer, err := tui.New(os.Stdout)
	if err != nil {
		return err
	}

	conv, err := converse.New(script,
		converse.WithModule(module),
		converse.WithRenderer(renderer),
		converse.WithVariables(store),
		converse.WithPolicy(policy),
		converse.WithLogger(logger),
		converse.WithStopAtEnd(),
	)
	if err != nil {
		return err
	}

	tui.PrintBanner(os.Stdout)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go readInput(ctx, conv, cancel)

	if err := conv.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	fmt.Printf("\nConversation over. Points: %d\n", conv.Points())
	return nil
}

// readInput forwards terminal input to the conversation until ctx ends. An
// empty LineID targets the pending prompt.
func readInput(ctx context.Context, conv *converse.Conversation, quit func()) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		input := strings.TrimSpace(scanner.Text())
		switch {
		case input == "/quit":
			conv.Stop()
			quit()
			return
		case input == "/back":
			if moved, err := conv.Back(); err != nil {
				fmt.Fprintln(os.Stderr, "back failed:", err)
			} else if !moved {
				fmt.Fprintln(os.Stderr, "already at the beginning")
			}
		case input == "/restart":
			conv.Restart()
		case strings.HasPrefix(input, "/goto "):
			target := strings.TrimSpace(strings.TrimPrefix(input, "/goto "))
			if err := conv.Goto(target); err != nil {
				fmt.Fprintln(os.Stderr, "goto failed:", err)
			}
		default:
			conv.Post(domain.TurnEvent{Type: domain.EventSubmitted, Value: input})
		}
	}
}
