package pipeline

import (
	"fmt"
	"strings"

	"github.com/insightlake/insightlake/pkg/pipeline/prompts"
)

// Prompts contains the stage prompts loaded from embedded files.
type Prompts struct {
	Interpret  string // Intent interpretation (strict JSON)
	Plan       string // Multi-step analysis planning (strict JSON)
	Generate   string // SQL generation
	Synthesize string // Direct-answer synthesis
	Insights   string // Insight and anomaly extraction (strict JSON)
	Visualize  string // Chart recommendation (strict JSON)
	Guardrails string // Confidence assessment (strict JSON)
}

// LoadPrompts loads all stage prompts from the embedded filesystem.
func LoadPrompts() (*Prompts, error) {
	p := &Prompts{}

	var err error
	if p.Interpret, err = loadPrompt("INTERPRET.md"); err != nil {
		return nil, err
	}
	if p.Plan, err = loadPrompt("PLAN.md"); err != nil {
		return nil, err
	}
	if p.Generate, err = loadPrompt("GENERATE.md"); err != nil {
		return nil, err
	}
	if p.Synthesize, err = loadPrompt("SYNTHESIZE.md"); err != nil {
		return nil, err
	}
	if p.Insights, err = loadPrompt("INSIGHTS.md"); err != nil {
		return nil, err
	}
	if p.Visualize, err = loadPrompt("VISUALIZE.md"); err != nil {
		return nil, err
	}
	if p.Guardrails, err = loadPrompt("GUARDRAILS.md"); err != nil {
		return nil, err
	}

	return p, nil
}

func loadPrompt(path string) (string, error) {
	data, err := prompts.PromptsFS.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}
