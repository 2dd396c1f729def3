// Package prompts holds the embedded prompt templates used by the pipeline.
package prompts

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed *.md
var promptsFS embed.FS

// Prompts contains all pipeline prompts loaded from embedded files.
type Prompts struct {
	Classify  string // Complexity classification (fallback after heuristics)
	Plan      string // Multi-step plan construction
	Generate  string // SQL generation for a single question
	Narrative string // Narrative prose over computed insights
}

// Load reads all prompts from the embedded filesystem.
func Load() (*Prompts, error) {
	p := &Prompts{}

	var err error
	if p.Classify, err = loadPrompt("CLASSIFY.md"); err != nil {
		return nil, err
	}
	if p.Plan, err = loadPrompt("PLAN.md"); err != nil {
		return nil, err
	}
	if p.Generate, err = loadPrompt("GENERATE.md"); err != nil {
		return nil, err
	}
	if p.Narrative, err = loadPrompt("NARRATIVE.md"); err != nil {
		return nil, err
	}

	return p, nil
}

func loadPrompt(path string) (string, error) {
	data, err := promptsFS.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}
