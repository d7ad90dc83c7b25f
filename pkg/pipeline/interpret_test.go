package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInterpret_ParsesCleanJSON(t *testing.T) {
	llm := &scriptedLLM{responses: map[string]string{
		"interpret": `{"intent":"trend_analysis","entities":["product"],"metrics":["revenue"],"time_window":"30d","segments":["region"],"confidence":0.92}`,
	}}
	p, _ := newTestPipeline(t, llm, &stubCatalog{})

	rec := NewRecord("show revenue trend by region", "u1")
	p.interpret(context.Background(), rec)

	require.NotNil(t, rec.Intent)
	require.Equal(t, "trend_analysis", rec.Intent.TaskType)
	require.Equal(t, []string{"revenue"}, rec.Intent.Metrics)
	require.Equal(t, "30d", rec.Intent.TimeWindow)
	require.InDelta(t, 0.92, rec.Intent.Confidence, 1e-9)
	require.False(t, rec.Intent.IsGeneric)
	require.Equal(t, StageInterpreting, rec.Status)
	require.Empty(t, rec.ErrorState)
}

func TestInterpret_StripsCodeFences(t *testing.T) {
	llm := &scriptedLLM{responses: map[string]string{
		"interpret": "```json\n{\"intent\":\"aggregation\",\"metrics\":[\"sales\"],\"confidence\":0.8}\n```",
	}}
	p, _ := newTestPipeline(t, llm, &stubCatalog{})

	rec := NewRecord("total sales", "u1")
	p.interpret(context.Background(), rec)

	require.Equal(t, "aggregation", rec.Intent.TaskType)
	require.Equal(t, []string{"sales"}, rec.Intent.Metrics)
}

func TestInterpret_FallsBackOnCapabilityFailure(t *testing.T) {
	llm := &scriptedLLM{errs: map[string]error{"interpret": fmt.Errorf("rate limited")}}
	p, _ := newTestPipeline(t, llm, &stubCatalog{})

	rec := NewRecord("total sales", "u1")
	p.interpret(context.Background(), rec)

	require.NotNil(t, rec.Intent)
	require.Equal(t, defaultTaskType, rec.Intent.TaskType)
	require.Equal(t, defaultTimeWindow, rec.Intent.TimeWindow)
	require.InDelta(t, 0.5, rec.Intent.Confidence, 1e-9)
	require.NotEmpty(t, rec.ErrorState)
	require.Equal(t, StageInterpreting, rec.Status)
}

func TestInterpret_FallsBackOnGarbageResponse(t *testing.T) {
	llm := &scriptedLLM{responses: map[string]string{"interpret": "sure! here is some prose"}}
	p, _ := newTestPipeline(t, llm, &stubCatalog{})

	rec := NewRecord("total sales", "u1")
	p.interpret(context.Background(), rec)

	require.Equal(t, defaultTaskType, rec.Intent.TaskType)
	require.NotEmpty(t, rec.ErrorState)
}

func TestInterpret_GenericDetectionOverridesModel(t *testing.T) {
	// The model claims a non-generic intent, but phrase matching wins.
	llm := &scriptedLLM{responses: map[string]string{
		"interpret": `{"intent":"trend_analysis","confidence":0.9}`,
	}}
	p, _ := newTestPipeline(t, llm, &stubCatalog{})

	rec := NewRecord("Hey, what can you do for me?", "u1")
	p.interpret(context.Background(), rec)

	require.True(t, rec.Intent.IsGeneric)
}

func TestInterpret_IsIdempotentPerRecord(t *testing.T) {
	llm := &scriptedLLM{responses: map[string]string{
		"interpret": `{"intent":"aggregation","confidence":0.8}`,
	}}
	p, _ := newTestPipeline(t, llm, &stubCatalog{})

	rec := NewRecord("total sales", "u1")
	p.interpret(context.Background(), rec)
	first := *rec.Intent

	p.interpret(context.Background(), rec)
	require.Equal(t, first, *rec.Intent)
}

func TestQuestionIsGeneric(t *testing.T) {
	require.True(t, questionIsGeneric("What are your capabilities?"))
	require.True(t, questionIsGeneric("HOW CAN YOU HELP"))
	require.False(t, questionIsGeneric("how did revenue do last week"))
}
