package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssessConfidence_ParsesAssessment(t *testing.T) {
	llm := &scriptedLLM{responses: map[string]string{
		"guardrails": "```json\n{\"overall_confidence\":0.9,\"completeness_score\":0.95,\"caveats\":[\"results cover one quarter only\"],\"recommendations\":[\"add cost data\"]}\n```",
	}}
	p, _ := newTestPipeline(t, llm, &stubCatalog{})

	rec := synthesisTestRecord()
	rec.Status = StageVisualizing
	rec.ExecutionResults.RowCount = 100
	rec.Insights = []Insight{{Finding: "f1", Confidence: 0.8}}

	p.assessConfidence(context.Background(), rec)

	require.NotNil(t, rec.Confidence)
	require.InDelta(t, 0.9, rec.Confidence.OverallConfidence, 1e-9)
	require.InDelta(t, 0.95, rec.Confidence.CompletenessScore, 1e-9)
	require.True(t, rec.Confidence.SampleSizeAdequate)
	require.Contains(t, rec.Confidence.Caveats, freshnessCaveat)
	require.Contains(t, rec.Confidence.Caveats, "results cover one quarter only")
	require.Equal(t, StageCompleted, rec.Status)
}

func TestAssessConfidence_LowSampleCaveat(t *testing.T) {
	llm := &scriptedLLM{responses: map[string]string{
		"guardrails": `{"overall_confidence":0.8}`,
	}}
	p, _ := newTestPipeline(t, llm, &stubCatalog{})

	rec := synthesisTestRecord()
	rec.ExecutionResults.RowCount = 3

	p.assessConfidence(context.Background(), rec)

	require.False(t, rec.Confidence.SampleSizeAdequate)
	require.Contains(t, rec.Confidence.DataQualityIssues, insufficientSampleIssue)
	found := false
	for _, c := range rec.Confidence.Caveats {
		if c != freshnessCaveat {
			found = true
		}
	}
	require.True(t, found, "expected a low-sample caveat alongside the freshness caveat")
}

func TestAssessConfidence_CapabilityFailureUsesConservativeDefaults(t *testing.T) {
	llm := &scriptedLLM{errs: map[string]error{"guardrails": fmt.Errorf("down")}}
	p, _ := newTestPipeline(t, llm, &stubCatalog{})

	rec := synthesisTestRecord()
	p.assessConfidence(context.Background(), rec)

	require.NotNil(t, rec.Confidence)
	require.InDelta(t, fallbackConfidence, rec.Confidence.OverallConfidence, 1e-9)
	require.Equal(t, StageCompleted, rec.Status)
}

func TestAssessConfidence_NoExecutionResults(t *testing.T) {
	llm := &scriptedLLM{errs: map[string]error{"guardrails": fmt.Errorf("down")}}
	p, _ := newTestPipeline(t, llm, &stubCatalog{})

	rec := NewRecord("q", "u1")
	rec.Status = StageAnswering
	p.assessConfidence(context.Background(), rec)

	require.NotNil(t, rec.Confidence)
	require.False(t, rec.Confidence.SampleSizeAdequate)
	require.Equal(t, StageCompleted, rec.Status)
}

func TestAssessConfidence_DefensiveJSONExtraction(t *testing.T) {
	llm := &scriptedLLM{responses: map[string]string{
		"guardrails": `Based on the data, here is my assessment: {"overall_confidence":0.9} hope that helps`,
	}}
	p, _ := newTestPipeline(t, llm, &stubCatalog{})

	rec := synthesisTestRecord()
	p.assessConfidence(context.Background(), rec)

	require.InDelta(t, 0.9, rec.Confidence.OverallConfidence, 1e-9)
}
