package content

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/pocketcoach/converse/pkg/domain"
)

// ScriptFile is the YAML layout of a local conversation file, the offline
// stand-in for a published partition.
type ScriptFile struct {
	Module string        `yaml:"module"`
	Lines  []domain.Line `yaml:"lines"`
}

// Dir serves conversations from a directory of YAML script files, one
// <name>.yaml per conversation. It is the local stand-in for the published
// content table.
type Dir struct {
	path string
}

// NewDir creates a Dir source.
func NewDir(path string) *Dir {
	return &Dir{path: path}
}

// Load reads <dir>/<name>.yaml. The onPage callback is accepted for interface
// parity with Loader and invoked once with the full line count.
func (d *Dir) Load(_ context.Context, name string, onPage func(lines int)) (*domain.Script, error) {
	path := filepath.Join(d.path, name+".yaml")
	script, _, err := LoadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("conversation %q: %w", name, domain.ErrTargetNotFound)
		}
		return nil, err
	}
	if onPage != nil {
		onPage(script.Len())
	}
	return script, nil
}

// LoadFile reads a local YAML conversation. The returned script is fully
// loaded.
func LoadFile(path string) (*domain.Script, string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("reading script file: %w", err)
	}
	var file ScriptFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, "", fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(file.Lines) == 0 {
		return nil, "", fmt.Errorf("%s: no lines", path)
	}
	return domain.ScriptFromLines(file.Lines), file.Module, nil
}
