package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
)

const (
	// insightsCharBudget caps the serialized result data in the prompt.
	insightsCharBudget = 8000

	defaultInsightMetric     = "unknown"
	defaultInsightConfidence = 0.75
	defaultInsightImpact     = "medium"
	defaultAnomalySeverity   = "medium"
)

type insightsResponse struct {
	Insights []struct {
		Finding        string  `json:"finding"`
		Metric         string  `json:"metric"`
		Magnitude      string  `json:"magnitude"`
		Confidence     float64 `json:"confidence"`
		BusinessImpact string  `json:"business_impact"`
	} `json:"insights"`
	Anomalies []struct {
		Description    string  `json:"description"`
		AffectedMetric string  `json:"affected_metric"`
		Magnitude      string  `json:"magnitude"`
		Confidence     float64 `json:"confidence"`
		Severity       string  `json:"severity"`
	} `json:"anomalies"`
}

// generateInsights extracts findings and anomalies from the execution
// results. A run without result data cannot produce insights and terminates
// here; a failed or unparseable generation call degrades to empty lists.
func (p *Pipeline) generateInsights(ctx context.Context, rec *Record) {
	if rec.ExecutionResults == nil || len(rec.ExecutionResults.ResultData) == 0 {
		rec.fail(StageAnalyzing, "No result data available for insight extraction")
		return
	}

	serialized := compactJSON(rec.ExecutionResults.ResultData)
	if len(serialized) > insightsCharBudget {
		serialized = serialized[:insightsCharBudget]
	}
	userPrompt := fmt.Sprintf("QUESTION: %s\n\nRESULT DATA:\n%s", rec.Question, serialized)

	response, err := p.complete(ctx, StageAnalyzing, p.cfg.Prompts.Insights, userPrompt)
	if err != nil {
		rec.Insights = []Insight{}
		rec.Anomalies = []Anomaly{}
		rec.ErrorState = err.Error()
		rec.transition(StageAnalyzing, "Insight extraction failed: %v", err)
		return
	}

	var parsed insightsResponse
	if jerr := json.Unmarshal([]byte(extractJSON(response)), &parsed); jerr != nil {
		rec.Insights = []Insight{}
		rec.Anomalies = []Anomaly{}
		rec.ErrorState = fmt.Sprintf("failed to parse insights response: %v", jerr)
		rec.transition(StageAnalyzing, "Could not parse insights response: %v", jerr)
		return
	}

	insights := make([]Insight, 0, len(parsed.Insights))
	for _, in := range parsed.Insights {
		if in.Finding == "" {
			continue
		}
		insight := Insight{
			Finding:        in.Finding,
			Metric:         in.Metric,
			Magnitude:      in.Magnitude,
			Confidence:     in.Confidence,
			BusinessImpact: in.BusinessImpact,
		}
		if insight.Metric == "" {
			insight.Metric = defaultInsightMetric
		}
		if insight.Confidence == 0 {
			insight.Confidence = defaultInsightConfidence
		}
		if insight.BusinessImpact == "" {
			insight.BusinessImpact = defaultInsightImpact
		}
		insights = append(insights, insight)
	}

	anomalies := make([]Anomaly, 0, len(parsed.Anomalies))
	for _, an := range parsed.Anomalies {
		if an.Description == "" {
			continue
		}
		anomaly := Anomaly{
			Description:    an.Description,
			AffectedMetric: an.AffectedMetric,
			Magnitude:      an.Magnitude,
			Confidence:     an.Confidence,
			Severity:       an.Severity,
		}
		if anomaly.AffectedMetric == "" {
			anomaly.AffectedMetric = defaultInsightMetric
		}
		if anomaly.Confidence == 0 {
			anomaly.Confidence = defaultInsightConfidence
		}
		if anomaly.Severity == "" {
			anomaly.Severity = defaultAnomalySeverity
		}
		anomalies = append(anomalies, anomaly)
	}

	rec.Insights = insights
	rec.Anomalies = anomalies
	rec.transition(StageAnalyzing, "Extracted %d insights and %d anomalies", len(insights), len(anomalies))
}
