package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func visualizeTestRecord(insightCount int) *Record {
	rec := synthesisTestRecord()
	rec.Status = StageAnalyzing
	for i := 0; i < insightCount; i++ {
		rec.Insights = append(rec.Insights, Insight{
			Finding:    fmt.Sprintf("finding %d", i+1),
			Metric:     "revenue",
			Confidence: 0.8,
		})
	}
	return rec
}

func TestVisualize_OneChartPerInsight(t *testing.T) {
	llm := &scriptedLLM{responses: map[string]string{
		"visualize": `{"chart_type":"bar","title":"Revenue by region","dimensions":{"x":"region","y":"revenue"},"confidence":0.85}`,
	}}
	p, _ := newTestPipeline(t, llm, &stubCatalog{})

	rec := visualizeTestRecord(2)
	p.visualize(context.Background(), rec)

	require.Len(t, rec.Visualizations, 2)
	require.Equal(t, "chart_1", rec.Visualizations[0].ChartID)
	require.Equal(t, "chart_2", rec.Visualizations[1].ChartID)
	require.Equal(t, "bar", rec.Visualizations[0].ChartType)
	require.Equal(t, "region", rec.Visualizations[0].DataFields["x"])
	require.InDelta(t, 0.85, rec.Visualizations[0].AppropriatenessScore, 1e-9)
	require.Equal(t, 2, llm.callCount("visualize"))
	require.Equal(t, StageVisualizing, rec.Status)
}

func TestVisualize_CappedAtThreeCharts(t *testing.T) {
	llm := &scriptedLLM{responses: map[string]string{
		"visualize": `{"chart_type":"line","title":"t","dimensions":{"x":"a","y":"b"},"confidence":0.7}`,
	}}
	p, _ := newTestPipeline(t, llm, &stubCatalog{})

	rec := visualizeTestRecord(5)
	p.visualize(context.Background(), rec)

	require.Len(t, rec.Visualizations, maxVisualizations)
	require.Equal(t, maxVisualizations, llm.callCount("visualize"))
}

func TestVisualize_PerChartFailuresSkipped(t *testing.T) {
	llm := &scriptedLLM{errs: map[string]error{"visualize": fmt.Errorf("nope")}}
	p, _ := newTestPipeline(t, llm, &stubCatalog{})

	rec := visualizeTestRecord(2)
	p.visualize(context.Background(), rec)

	require.Empty(t, rec.Visualizations)
	require.NotEmpty(t, rec.ErrorState)
	require.Equal(t, StageVisualizing, rec.Status)
}

func TestVisualize_NoInsightsDerivesBarChartsDeterministically(t *testing.T) {
	llm := &scriptedLLM{}
	p, _ := newTestPipeline(t, llm, &stubCatalog{})

	rec := synthesisTestRecord()
	rec.ExecutionResults.ResultData["sales"] = &DatasetAnalysis{
		GroupBy: &GroupByResult{
			Dimension: "region",
			Metric:    "revenue",
			Data:      []map[string]any{{"region": "north"}, {"region": "south"}},
		},
	}

	p.visualize(context.Background(), rec)

	require.Len(t, rec.Visualizations, 1)
	require.Equal(t, "bar", rec.Visualizations[0].ChartType)
	require.Equal(t, "region", rec.Visualizations[0].DataFields["x"])
	require.Equal(t, "revenue", rec.Visualizations[0].DataFields["y"])
	// No generation calls on the deterministic path.
	require.Equal(t, 0, llm.callCount("visualize"))
}

func TestVisualize_DefaultsOnSparseResponse(t *testing.T) {
	llm := &scriptedLLM{responses: map[string]string{"visualize": `{}`}}
	p, _ := newTestPipeline(t, llm, &stubCatalog{})

	rec := visualizeTestRecord(1)
	p.visualize(context.Background(), rec)

	require.Len(t, rec.Visualizations, 1)
	require.Equal(t, "bar", rec.Visualizations[0].ChartType)
	require.Equal(t, "finding 1", rec.Visualizations[0].Title)
	require.InDelta(t, defaultInsightConfidence, rec.Visualizations[0].AppropriatenessScore, 1e-9)
}
