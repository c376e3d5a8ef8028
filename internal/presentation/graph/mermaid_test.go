package graph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pocketcoach/converse/pkg/domain"
)

func sampleScript() *domain.Script {
	return domain.ScriptFromLines([]domain.Line{
		{ID: "Intro", Content: "Hi"},
		{ID: "Name", Type: "textbox", Content: "Your name?"},
		{ID: "S1", Type: "submit", Content: "Ok"},
		{ID: "Extra", Content: "bonus", ShowCondition: "Points > 3"},
		{ID: "Loop", Type: "goto", Target: "Intro"},
	})
}

func TestGenerateMermaid_Shapes(t *testing.T) {
	out := GenerateMermaid(sampleScript(), nil)

	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	assert.Contains(t, out, `Intro["Intro"]`, "agent lines are rectangles")
	assert.Contains(t, out, `Name[/"Name"/]`, "prompts are parallelograms")
	assert.Contains(t, out, `S1(("S1"))`, "submit lines are circles")
	assert.Contains(t, out, `Loop[["Loop"]]`, "goto lines are subroutines")
}

func TestGenerateMermaid_Edges(t *testing.T) {
	out := GenerateMermaid(sampleScript(), nil)

	assert.Contains(t, out, "Intro --> Name")
	assert.Contains(t, out, `S1 -- "Points > 3" --> Extra`, "show conditions label the edge")
	assert.Contains(t, out, "Loop -.-> Intro", "goto jumps are dotted")
	assert.NotContains(t, out, "Loop --> ", "a goto never falls through")
}

func TestGenerateMermaid_CheckpointsAndOverlay(t *testing.T) {
	out := GenerateMermaid(sampleScript(), &Overlay{
		Trail:   []string{"Intro", "Extra", "Extra"},
		Current: "Name",
	})

	assert.Contains(t, out, "class Intro checkpoint;")
	assert.Contains(t, out, "class Extra checkpoint;", "the line after a submit is a checkpoint")
	assert.Contains(t, out, "class Extra visited;")
	assert.Equal(t, 1, strings.Count(out, "class Extra visited;"), "trail entries are deduplicated")
	assert.Contains(t, out, "class Name current;")
}
