package pipeline

import (
	"context"
	"fmt"
	"strings"
)

// placeholderQueryPrefix marks a substituted comment-query that the
// execution stage must not send to the engine.
const placeholderQueryPrefix = "-- no query generated"

// generateQueries asks the generation capability for one query per plan
// step. A failed generation substitutes the step's own template, or a
// placeholder comment, so downstream execution always receives
// syntactically inert input.
func (p *Pipeline) generateQueries(ctx context.Context, rec *Record) {
	if rec.Plan == nil || len(rec.Plan.Steps) == 0 {
		rec.fail(StageGenerating, "No analysis plan available")
		return
	}
	if rec.DataSources == nil {
		rec.fail(StageGenerating, "No data sources available")
		return
	}

	schemaContext := buildSchemaContext(rec.DataSources)

	queries := make([]*QueryExecutionRecord, 0, len(rec.Plan.Steps))
	for _, step := range rec.Plan.Steps {
		description := step.Description
		if description == "" {
			description = "Analysis step"
		}

		queryText, err := p.generateQueryForStep(ctx, rec.Question, description, schemaContext)
		if err != nil {
			if step.QueryTemplate != "" {
				queryText = step.QueryTemplate
			} else {
				queryText = fmt.Sprintf("%s for step: %s (%v)", placeholderQueryPrefix, description, err)
			}
			p.logInfo("pipeline: query generation failed, substituting fallback", "step", step.StepNumber, "error", err)
		}

		queries = append(queries, &QueryExecutionRecord{
			StepNumber:  step.StepNumber,
			Description: description,
			QueryText:   queryText,
		})
	}

	rec.PendingQueries = queries
	rec.transition(StageGenerating, "Prepared %d queries for execution", len(queries))
}

// generateQueryForStep asks for a single query given the question, the step
// description and the schema context, stripping any code-fence wrapping.
func (p *Pipeline) generateQueryForStep(ctx context.Context, question, description, schemaContext string) (string, error) {
	userPrompt := fmt.Sprintf(`QUESTION:
%s

ANALYSIS STEP:
%s

AVAILABLE TABLES:
%s

Return only the SQL query.`, question, description, schemaContext)

	response, err := p.complete(ctx, StageGenerating, p.cfg.Prompts.Generate, userPrompt)
	if err != nil {
		return "", err
	}

	queryText := stripFences(response)
	if queryText == "" {
		return "", fmt.Errorf("empty query returned")
	}
	return queryText, nil
}

// buildSchemaContext renders every selected source as a TABLE line for the
// generation prompt.
func buildSchemaContext(sources *DataSourceSet) string {
	lines := make([]string, 0, len(sources.Sources))
	for _, s := range sources.Sources {
		lines = append(lines, fmt.Sprintf("TABLE %s (%s)", s.Name, strings.Join(s.Columns, ", ")))
	}
	return strings.Join(lines, "\n")
}

// isPlaceholderQuery reports whether query text is empty or a substituted
// comment that must not reach the engine.
func isPlaceholderQuery(queryText string) bool {
	trimmed := strings.TrimSpace(queryText)
	return trimmed == "" || strings.HasPrefix(trimmed, "--")
}
