package content_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocketcoach/converse/pkg/content"
	"github.com/pocketcoach/converse/pkg/domain"
)

const sampleYAML = `module: Welcome
lines:
  - id: Intro
    content: "Hello there"
    points: "2"
  - id: Name
    type: textbox
    content: "What is your name?"
  - id: Jump
    type: goto
    target: Intro
`

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "welcome.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	script, module, err := content.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Welcome", module)
	require.Len(t, script.Lines(), 3)

	pos, err := script.Position("name")
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
	assert.True(t, script.Loaded())
}

func TestDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "welcome.yaml"), []byte(sampleYAML), 0o644))

	source := content.NewDir(dir)
	var pages []int
	script, err := source.Load(context.Background(), "welcome", func(lines int) { pages = append(pages, lines) })
	require.NoError(t, err)
	assert.Equal(t, 3, script.Len())
	assert.Equal(t, []int{3}, pages)

	_, err = source.Load(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, domain.ErrTargetNotFound)
}

func TestLoadFile_Missing(t *testing.T) {
	_, _, err := content.LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	script := domain.ScriptFromLines([]domain.Line{
		{ID: "A"},
		{ID: "a", Content: "duplicate by case"},
		{ID: "B", Type: "telepathy"},
		{ID: "C", Type: "goto"},
		{ID: "D", Type: "goto", Target: "Nowhere"},
		{Type: "continue", Content: "Ok"},
	})

	problems := content.Validate(script)
	require.Len(t, problems, 5)
	assert.Contains(t, problems[0], "duplicate")
	assert.Contains(t, problems[1], "unknown type")
	assert.Contains(t, problems[2], "goto without a target")
	assert.Contains(t, problems[3], `target "Nowhere" not found`)
	assert.Contains(t, problems[4], "missing ID")
}

func TestValidate_Clean(t *testing.T) {
	script := domain.ScriptFromLines([]domain.Line{
		{ID: "A", Content: "hi"},
		{ID: "B", Type: "submit", Content: "Ok"},
	})
	assert.Empty(t, content.Validate(script))
}
