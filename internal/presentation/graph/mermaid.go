// Package graph renders a conversation script as a Mermaid flowchart, for
// authors reviewing pacing and goto structure.
package graph

import (
	"fmt"
	"strings"

	"github.com/pocketcoach/converse/pkg/domain"
	"github.com/pocketcoach/converse/pkg/nav"
)

// Overlay marks playback state on the chart.
type Overlay struct {
	// Trail holds the checkpoint IDs already passed, oldest first.
	Trail []string
	// Current is the line the session sits at.
	Current string
}

// GenerateMermaid produces Mermaid flowchart syntax for a script. Shapes
// follow the line's role:
//   - prompts: [/parallelogram/] (input)
//   - submit lines: ((circle)) (checkpoint boundary)
//   - goto lines: [[subroutine]], with a dotted edge to the target
//   - plain agent lines: [rectangle]
//
// Show conditions label the incoming edge; timed lines carry their duration.
func GenerateMermaid(script *domain.Script, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	lines := script.Lines()
	for i, line := range lines {
		safeID := sanitizeMermaidID(line.ID)

		opener, closer := "[", "]"
		switch {
		case line.Kind() == domain.TypeSubmit:
			opener, closer = "((", "))"
		case line.Kind() == domain.TypeGoto:
			opener, closer = "[[", "]]"
		case line.Prompt():
			opener, closer = "[/", "/]"
		}

		label := line.ID
		if line.Duration != "" {
			label = fmt.Sprintf("%s <br/> %ss", line.ID, line.Duration)
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, escapeLabel(label), closer))

		// The jump edge replaces the sequential one for goto lines; a goto
		// never falls through.
		if line.Kind() == domain.TypeGoto && line.Target != "" {
			sb.WriteString(fmt.Sprintf("    %s -.-> %s\n", safeID, sanitizeMermaidID(line.Target)))
			continue
		}

		if i+1 < len(lines) {
			next := lines[i+1]
			arrow := "-->"
			if next.ShowCondition != "" {
				arrow = fmt.Sprintf("-- \"%s\" -->", escapeLabel(next.ShowCondition))
			}
			sb.WriteString(fmt.Sprintf("    %s %s %s\n", safeID, arrow, sanitizeMermaidID(next.ID)))
		}
	}

	sb.WriteString("\n    %% Checkpoints\n")
	sb.WriteString("    classDef checkpoint stroke:#01579b,stroke-width:2px,color:#000;\n")
	for _, id := range nav.Checkpoints(script) {
		sb.WriteString(fmt.Sprintf("    class %s checkpoint;\n", sanitizeMermaidID(id)))
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visited := make(map[string]bool)
		for _, id := range overlay.Trail {
			safeID := sanitizeMermaidID(id)
			if safeID != "" && !visited[safeID] {
				visited[safeID] = true
				sb.WriteString(fmt.Sprintf("    class %s visited;\n", safeID))
			}
		}
		if overlay.Current != "" {
			sb.WriteString(fmt.Sprintf("    class %s current;\n", sanitizeMermaidID(overlay.Current)))
		}
	}

	return sb.String()
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
