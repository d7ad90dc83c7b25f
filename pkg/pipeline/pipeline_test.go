package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/insightlake/insightlake/pkg/catalog"
)

func TestNew_Validation(t *testing.T) {
	_, err := New(&Config{Catalog: &stubCatalog{}, DatasetsDir: "/tmp/x"})
	require.ErrorContains(t, err, "LLM client is required")

	_, err = New(&Config{LLM: &scriptedLLM{}, DatasetsDir: "/tmp/x"})
	require.ErrorContains(t, err, "catalog is required")

	_, err = New(&Config{LLM: &scriptedLLM{}, Catalog: &stubCatalog{}})
	require.ErrorContains(t, err, "datasets directory is required")
}

// fullRunLLM scripts every stage of a complete successful analysis.
func fullRunLLM() *scriptedLLM {
	return &scriptedLLM{responses: map[string]string{
		"interpret":  `{"intent":"aggregation","metrics":["revenue"],"entities":["region"],"time_window":"30d","confidence":0.9}`,
		"plan":       `{"steps":[{"description":"revenue by region","required_tables":["sales"]}],"estimated_time":20}`,
		"generate":   "SELECT region, SUM(revenue) AS total FROM sales GROUP BY region ORDER BY total DESC",
		"synthesize": "North leads with 15 total revenue.",
		"insights":   `{"insights":[{"finding":"North outsells south","metric":"revenue","confidence":0.9,"business_impact":"high"}],"anomalies":[]}`,
		"visualize":  `{"chart_type":"bar","title":"Revenue by region","dimensions":{"x":"region","y":"total"},"confidence":0.8}`,
		"guardrails": `{"overall_confidence":0.85,"completeness_score":0.9}`,
	}}
}

func TestRunAnalysis_FullRun(t *testing.T) {
	llm := fullRunLLM()
	cat := &stubCatalog{}
	p, datasetsDir := newTestPipeline(t, llm, cat)
	path := writeCSV(t, datasetsDir, "sales.csv", salesCSV)
	cat.datasets = []catalog.Dataset{{
		Name:     "sales",
		Filename: "sales.csv",
		Kind:     catalog.KindFile,
		Location: path,
		Schema: catalog.Schema{
			Columns:      []string{"region", "revenue"},
			QualityScore: 0.9,
			Rows:         3,
		},
	}}

	rec, err := p.RunAnalysis(context.Background(), "revenue by region", "u1", nil)
	require.NoError(t, err)

	require.Equal(t, StageCompleted, rec.Status)
	require.NotNil(t, rec.Intent)
	require.NotNil(t, rec.DataSources)
	require.NotNil(t, rec.Plan)
	require.Len(t, rec.PendingQueries, 1)
	require.NotNil(t, rec.ExecutionResults)
	require.True(t, rec.ExecutionResults.Success)
	require.Equal(t, "North leads with 15 total revenue.", rec.DirectAnswer)
	require.Len(t, rec.Insights, 1)
	require.Len(t, rec.Visualizations, 1)
	require.NotNil(t, rec.Confidence)
	require.InDelta(t, 0.85, rec.Confidence.OverallConfidence, 1e-9)
}

func TestRunAnalysis_GenericQuestionShortCircuits(t *testing.T) {
	llm := &scriptedLLM{responses: map[string]string{
		"interpret": `{"intent":"general","confidence":0.9}`,
	}}
	p, _ := newTestPipeline(t, llm, &stubCatalog{datasets: testCatalogDatasets()})

	rec, err := p.RunAnalysis(context.Background(), "what can you do?", "u1", nil)
	require.NoError(t, err)

	require.Equal(t, StageCompleted, rec.Status)
	require.NotEmpty(t, rec.DirectAnswer)
	require.Contains(t, rec.DirectAnswer, "sales")

	// None of the analysis stages ran.
	require.Nil(t, rec.DataSources)
	require.Nil(t, rec.Plan)
	require.Empty(t, rec.PendingQueries)
	require.Nil(t, rec.ExecutionResults)
	require.Empty(t, rec.Insights)
	require.Nil(t, rec.Confidence)
}

func TestRunAnalysis_EveryLLMFailureStillTerminates(t *testing.T) {
	llm := &scriptedLLM{errs: map[string]error{
		"interpret":  fmt.Errorf("down"),
		"plan":       fmt.Errorf("down"),
		"generate":   fmt.Errorf("down"),
		"synthesize": fmt.Errorf("down"),
		"insights":   fmt.Errorf("down"),
		"visualize":  fmt.Errorf("down"),
		"guardrails": fmt.Errorf("down"),
	}}
	cat := &stubCatalog{}
	p, datasetsDir := newTestPipeline(t, llm, cat)
	path := writeCSV(t, datasetsDir, "sales.csv", salesCSV)
	cat.datasets = []catalog.Dataset{{
		Name:     "sales",
		Filename: "sales.csv",
		Kind:     catalog.KindFile,
		Location: path,
		Schema:   catalog.Schema{Columns: []string{"region", "revenue"}, QualityScore: 0.9, Rows: 3},
	}}

	rec, err := p.RunAnalysis(context.Background(), "revenue by region", "u1", nil)
	require.NoError(t, err)

	// Every stage degraded to its fallback, so the run still completed with
	// a conservative confidence object.
	require.Equal(t, StageCompleted, rec.Status)
	require.NotNil(t, rec.Confidence)
	require.InDelta(t, fallbackConfidence, rec.Confidence.OverallConfidence, 1e-9)
	require.NotEmpty(t, rec.ErrorState)
}

func TestRunAnalysis_ExecutionLogIsMonotonic(t *testing.T) {
	llm := fullRunLLM()
	cat := &stubCatalog{datasets: testCatalogDatasets()}
	p, _ := newTestPipeline(t, llm, cat)

	var lengths []int
	rec := NewRecord("revenue by region", "u1")
	for !rec.Status.Terminal() {
		stage := Next(rec)
		if stage.Terminal() {
			rec.Status = stage
			break
		}
		p.runStage(context.Background(), rec, stage)
		lengths = append(lengths, len(rec.ExecutionLog))
	}

	for i := 1; i < len(lengths); i++ {
		require.GreaterOrEqual(t, lengths[i], lengths[i-1])
	}
	require.NotEmpty(t, rec.ExecutionLog)
}

func TestRunAnalysis_EmptyCatalog(t *testing.T) {
	llm := fullRunLLM()
	p, _ := newTestPipeline(t, llm, &stubCatalog{})

	rec, err := p.RunAnalysis(context.Background(), "revenue by region", "u1", nil)
	require.NoError(t, err)

	// No datasets means the execution stage has nothing to run against, so
	// the run terminates failed rather than hanging mid-graph.
	require.Equal(t, StageFailed, rec.Status)
	require.NotEmpty(t, rec.ErrorState)
}
