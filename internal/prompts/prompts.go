// Package prompts serves the system prompts used for AI calls. Prompts are
// read from an override directory when one is configured and fall back to
// the built-in copies.
package prompts

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	MathDefinition = "math_def"
	MathSoupJudge  = "math_soup_judge"
	RandomReply    = "random_reply"
)

//go:embed defaults/*.txt
var defaults embed.FS

// Store loads prompts by name.
type Store struct {
	dir string
}

// New returns a store reading overrides from dir. An empty dir uses only
// the built-in prompts.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Get returns the prompt called name.
func (s *Store) Get(name string) (string, error) {
	file := name + ".txt"
	if s != nil && s.dir != "" {
		data, err := os.ReadFile(filepath.Join(s.dir, file))
		switch {
		case err == nil:
			return strings.TrimSpace(string(data)), nil
		case !errors.Is(err, fs.ErrNotExist):
			return "", fmt.Errorf("failed to read prompt %s: %w", name, err)
		}
	}
	data, err := defaults.ReadFile("defaults/" + file)
	if err != nil {
		return "", fmt.Errorf("unknown prompt %s: %w", name, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Render substitutes {key} placeholders in prompt.
func Render(prompt string, values map[string]string) string {
	pairs := make([]string, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(prompt)
}
