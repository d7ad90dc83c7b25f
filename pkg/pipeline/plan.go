package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// planResponse is the expected JSON shape of the planning call.
type planResponse struct {
	Steps []struct {
		Description    string   `json:"description"`
		RequiredTables []string `json:"required_tables"`
		SQLTemplate    string   `json:"sql_template"`
		DependsOn      []any    `json:"depends_on"`
	} `json:"steps"`
	EstimatedTime float64  `json:"estimated_time"`
	Warnings      []string `json:"warnings"`
}

const fallbackPlanRuntimeSeconds = 10

// plan asks the generation capability for a multi-step analysis plan over
// the selected sources. A parse or capability failure substitutes a single
// fallback step so the pipeline continues.
func (p *Pipeline) plan(ctx context.Context, rec *Record) {
	if rec.Intent == nil || rec.DataSources == nil {
		rec.fail(StagePlanning, "Missing intent or data sources")
		return
	}

	var sourcesDesc strings.Builder
	for _, s := range rec.DataSources.Sources {
		sourcesDesc.WriteString(fmt.Sprintf("- %s: %s (quality: %.2f, rows: %d)\n", s.Name, s.TableOrLocation, s.QualityScore, s.RecordCount))
	}

	userPrompt := fmt.Sprintf(`ANALYSIS REQUEST:
Task Type: %s
Metrics: %s
Entities: %s
Time Window: %s
Segments: %s

AVAILABLE DATA SOURCES:
%s
Design a detailed multi-step analysis plan.
Respond with a single JSON object only.`,
		rec.Intent.TaskType,
		strings.Join(rec.Intent.Metrics, ", "),
		strings.Join(rec.Intent.Entities, ", "),
		rec.Intent.TimeWindow,
		strings.Join(rec.Intent.Segments, ", "),
		sourcesDesc.String(),
	)

	response, err := p.complete(ctx, StagePlanning, p.cfg.Prompts.Plan, userPrompt)
	if err != nil {
		p.fallbackPlan(rec, fmt.Sprintf("planning call failed: %v", err))
		return
	}

	var parsed planResponse
	if err := json.Unmarshal([]byte(stripFences(response)), &parsed); err != nil {
		p.fallbackPlan(rec, fmt.Sprintf("planner JSON parse error: %v", err))
		return
	}

	steps := make([]AnalysisStep, 0, len(parsed.Steps))
	for i, s := range parsed.Steps {
		steps = append(steps, AnalysisStep{
			StepNumber:     i + 1,
			Description:    s.Description,
			RequiredTables: s.RequiredTables,
			QueryTemplate:  s.SQLTemplate,
			DependsOn:      s.DependsOn,
		})
	}

	estimated := parsed.EstimatedTime
	if estimated == 0 {
		estimated = 30
	}
	rec.Plan = &AnalysisPlan{
		Steps:                   steps,
		TotalSteps:              len(steps),
		EstimatedRuntimeSeconds: estimated,
		Warnings:                parsed.Warnings,
	}
	rec.transition(StagePlanning, "Created %d-step analysis plan (est. %.0fs)", len(steps), estimated)
}

// fallbackPlan substitutes a single basic-aggregation step spanning every
// selected source.
func (p *Pipeline) fallbackPlan(rec *Record, reason string) {
	tables := make([]string, 0, len(rec.DataSources.Sources))
	for _, s := range rec.DataSources.Sources {
		tables = append(tables, s.Name)
	}
	rec.Plan = &AnalysisPlan{
		Steps: []AnalysisStep{{
			StepNumber:     1,
			Description:    "Basic aggregation over primary metric",
			RequiredTables: tables,
		}},
		TotalSteps:              1,
		EstimatedRuntimeSeconds: fallbackPlanRuntimeSeconds,
		Warnings:                []string{fmt.Sprintf("Planner failed, using fallback plan: %s", reason)},
	}
	rec.ErrorState = reason
	rec.transition(StagePlanning, "Fell back to default single-step analysis plan: %s", reason)
	p.logInfo("pipeline: planning fell back to single-step plan", "reason", reason)
}
