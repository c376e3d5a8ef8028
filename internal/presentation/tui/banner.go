package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the play-mode banner.
func PrintBanner(out io.Writer) {
	p := termenv.ColorProfile()
	lines := []termenv.Style{
		p.String("  ___ ___  _ ____   _____ _ __ ___  ___ ").Foreground(p.Color("#34d399")),
		p.String(" / __/ _ \\| '_ \\ \\ / / _ \\ '__/ __|/ _ \\").Foreground(p.Color("#2dd4bf")),
		p.String("| (_| (_) | | | \\ V /  __/ |  \\__ \\  __/").Foreground(p.Color("#22d3ee")),
		p.String(" \\___\\___/|_| |_|\\_/ \\___|_|  |___/\\___|").Foreground(p.Color("#38bdf8")),
	}

	fmt.Fprintln(out)
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out)
}
