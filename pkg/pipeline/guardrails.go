package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// fallbackConfidence is the conservative overall confidence applied when
	// the assessment call fails entirely.
	fallbackConfidence = 0.5

	freshnessCaveat           = "Analysis based on data from last 24 hours"
	insufficientSampleIssue   = "insufficient_sample_size"
	maxSampleInsightsInPrompt = 2
)

type guardrailsResponse struct {
	OverallConfidence float64  `json:"overall_confidence"`
	CompletenessScore float64  `json:"completeness_score"`
	Caveats           []string `json:"caveats"`
	DataQualityIssues []string `json:"data_quality_issues"`
	Recommendations   []string `json:"recommendations"`
}

// assessConfidence is the terminal stage. It always leaves a complete
// ConfidenceMetrics on the record and marks the run completed, degrading to
// conservative fixed values when the assessment call fails.
func (p *Pipeline) assessConfidence(ctx context.Context, rec *Record) {
	rowCount := 0
	queryCount := 0
	if rec.ExecutionResults != nil {
		rowCount = rec.ExecutionResults.RowCount
		queryCount = len(rec.ExecutionResults.QueriesExecuted)
	}

	sampleAdequate := rowCount >= p.cfg.MinDataPoints
	caveats := []string{freshnessCaveat}
	var qualityIssues []string
	if !sampleAdequate {
		caveats = append(caveats,
			fmt.Sprintf("Limited sample size (%d rows, minimum %d) reduces confidence", rowCount, p.cfg.MinDataPoints))
		qualityIssues = append(qualityIssues, insufficientSampleIssue)
	}

	metrics, err := p.askAssessment(ctx, rec, rowCount, queryCount)
	if err != nil {
		p.logInfo("pipeline: confidence assessment failed, using conservative defaults", "error", err)
		metrics = &ConfidenceMetrics{
			OverallConfidence: fallbackConfidence,
			CompletenessScore: fallbackConfidence,
			Recommendations:   []string{"Re-run the analysis with more data for a firmer assessment"},
		}
	}

	metrics.SampleSizeAdequate = sampleAdequate
	metrics.Caveats = append(caveats, metrics.Caveats...)
	metrics.DataQualityIssues = append(qualityIssues, metrics.DataQualityIssues...)
	rec.Confidence = metrics

	rec.transition(StageAssessing, "Assessed confidence %.2f with %d caveats",
		metrics.OverallConfidence, len(metrics.Caveats))
	rec.Status = StageCompleted
}

// askAssessment asks the generation capability for the confidence breakdown
// given the run's headline counts and a couple of sample insights.
func (p *Pipeline) askAssessment(ctx context.Context, rec *Record, rowCount, queryCount int) (*ConfidenceMetrics, error) {
	var sampleInsights []string
	for i, insight := range rec.Insights {
		if i >= maxSampleInsightsInPrompt {
			break
		}
		sampleInsights = append(sampleInsights, fmt.Sprintf("- %s (confidence %.2f)", insight.Finding, insight.Confidence))
	}

	userPrompt := fmt.Sprintf(
		"QUESTION: %s\n\nROWS ANALYZED: %d\nQUERIES EXECUTED: %d\nINSIGHTS FOUND: %d\n\nSAMPLE INSIGHTS:\n%s",
		rec.Question, rowCount, queryCount, len(rec.Insights), strings.Join(sampleInsights, "\n"))

	response, err := p.complete(ctx, StageAssessing, p.cfg.Prompts.Guardrails, userPrompt)
	if err != nil {
		return nil, err
	}

	var parsed guardrailsResponse
	if err := json.Unmarshal([]byte(extractJSON(response)), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse assessment response: %w", err)
	}
	if parsed.OverallConfidence == 0 {
		parsed.OverallConfidence = fallbackConfidence
	}
	if parsed.CompletenessScore == 0 {
		parsed.CompletenessScore = parsed.OverallConfidence
	}

	return &ConfidenceMetrics{
		OverallConfidence: parsed.OverallConfidence,
		CompletenessScore: parsed.CompletenessScore,
		Caveats:           parsed.Caveats,
		DataQualityIssues: parsed.DataQualityIssues,
		Recommendations:   parsed.Recommendations,
	}, nil
}
