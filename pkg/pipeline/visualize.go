package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// maxVisualizations caps the chart recommendations per run.
const maxVisualizations = 3

type visualizationResponse struct {
	ChartType  string `json:"chart_type"`
	Title      string `json:"title"`
	Dimensions struct {
		X string `json:"x"`
		Y string `json:"y"`
	} `json:"dimensions"`
	Confidence float64 `json:"confidence"`
}

// visualize recommends chart configurations. With insights present it asks
// the generation capability for one chart per insight; without insights it
// derives bar charts directly from the grouped aggregations, no LLM call.
// Per-chart failures are logged and skipped.
func (p *Pipeline) visualize(ctx context.Context, rec *Record) {
	if len(rec.Insights) == 0 {
		rec.Visualizations = p.chartsFromGroupBys(rec)
		rec.transition(StageVisualizing, "Derived %d chart recommendations from grouped results", len(rec.Visualizations))
		return
	}

	dataSummary := p.visualizationDataSummary(rec)

	var charts []Visualization
	var failures []string
	for i, insight := range rec.Insights {
		if len(charts) >= maxVisualizations {
			break
		}
		chart, err := p.chartForInsight(ctx, insight, dataSummary, len(charts)+1)
		if err != nil {
			failures = append(failures, fmt.Sprintf("chart for insight %d: %v", i+1, err))
			continue
		}
		charts = append(charts, chart)
	}

	rec.Visualizations = charts
	if len(failures) > 0 {
		rec.ErrorState = strings.Join(failures, "; ")
		rec.ExecutionLog = append(rec.ExecutionLog,
			fmt.Sprintf("[%s] %d chart recommendations failed: %s", StageVisualizing, len(failures), rec.ErrorState))
	}
	rec.transition(StageVisualizing, "Recommended %d visualizations", len(charts))
}

// chartForInsight asks the generation capability for one chart configuration
// grounded in an insight and the available data shape.
func (p *Pipeline) chartForInsight(ctx context.Context, insight Insight, dataSummary string, chartNumber int) (Visualization, error) {
	userPrompt := fmt.Sprintf("INSIGHT: %s\nMETRIC: %s\n\nAVAILABLE DATA:\n%s", insight.Finding, insight.Metric, dataSummary)

	response, err := p.complete(ctx, StageVisualizing, p.cfg.Prompts.Visualize, userPrompt)
	if err != nil {
		return Visualization{}, err
	}

	var parsed visualizationResponse
	if err := json.Unmarshal([]byte(extractJSON(response)), &parsed); err != nil {
		return Visualization{}, fmt.Errorf("failed to parse chart response: %w", err)
	}
	if parsed.ChartType == "" {
		parsed.ChartType = "bar"
	}
	if parsed.Title == "" {
		parsed.Title = insight.Finding
	}
	if parsed.Confidence == 0 {
		parsed.Confidence = defaultInsightConfidence
	}

	return Visualization{
		ChartID:              fmt.Sprintf("chart_%d", chartNumber),
		ChartType:            parsed.ChartType,
		Title:                parsed.Title,
		DataFields:           map[string]string{"x": parsed.Dimensions.X, "y": parsed.Dimensions.Y},
		Description:          insight.Finding,
		AppropriatenessScore: parsed.Confidence,
	}, nil
}

// chartsFromGroupBys builds deterministic bar charts from the grouped
// aggregations captured by the execution stage.
func (p *Pipeline) chartsFromGroupBys(rec *Record) []Visualization {
	if rec.ExecutionResults == nil {
		return nil
	}

	names := make([]string, 0, len(rec.ExecutionResults.ResultData))
	for name := range rec.ExecutionResults.ResultData {
		if name == ResultDataQueryResults {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var charts []Visualization
	for _, name := range names {
		if len(charts) >= maxVisualizations {
			break
		}
		analysis, ok := rec.ExecutionResults.ResultData[name].(*DatasetAnalysis)
		if !ok || analysis.GroupBy == nil {
			continue
		}
		gb := analysis.GroupBy
		charts = append(charts, Visualization{
			ChartID:              fmt.Sprintf("chart_%d", len(charts)+1),
			ChartType:            "bar",
			Title:                fmt.Sprintf("%s by %s (%s)", gb.Metric, gb.Dimension, name),
			DataFields:           map[string]string{"x": gb.Dimension, "y": gb.Metric},
			Description:          fmt.Sprintf("Total %s per %s in %s", gb.Metric, gb.Dimension, name),
			AppropriatenessScore: 0.8,
		})
	}
	return charts
}

// visualizationDataSummary renders a compact description of the grouped and
// summary data the charts can draw from.
func (p *Pipeline) visualizationDataSummary(rec *Record) string {
	if rec.ExecutionResults == nil {
		return "no data"
	}

	var b strings.Builder
	names := make([]string, 0, len(rec.ExecutionResults.ResultData))
	for name := range rec.ExecutionResults.ResultData {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		switch v := rec.ExecutionResults.ResultData[name].(type) {
		case *DatasetAnalysis:
			if v.GroupBy != nil {
				fmt.Fprintf(&b, "Dataset %s: %s grouped by %s, %d groups\n", name, v.GroupBy.Metric, v.GroupBy.Dimension, len(v.GroupBy.Data))
			} else {
				fmt.Fprintf(&b, "Dataset %s: %d columns summarized, %d sample rows\n", name, len(v.Summary), len(v.Sample))
			}
		case map[string]QueryResultEntry:
			keys := make([]string, 0, len(v))
			for key := range v {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				entry := v[key]
				fmt.Fprintf(&b, "Query %s: columns %s, %d rows\n", key, strings.Join(entry.Columns, ", "), entry.RowCount)
			}
		}
	}
	if b.Len() == 0 {
		return "no data"
	}
	return b.String()
}
