package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// genericPhrases mark a question as a capability query regardless of what
// the model says about it.
var genericPhrases = []string{
	"what can you do",
	"what can you help with",
	"how can you help",
	"what are your capabilities",
}

const (
	defaultTaskType   = "custom"
	defaultTimeWindow = "90d"
)

// interpretResponse is the expected JSON shape of the interpretation call.
type interpretResponse struct {
	Intent     string   `json:"intent"`
	Entities   []string `json:"entities"`
	Metrics    []string `json:"metrics"`
	TimeWindow string   `json:"time_window"`
	Segments   []string `json:"segments"`
	Confidence float64  `json:"confidence"`
}

// interpret translates the question into a structured Intent. Any parse or
// capability failure degrades to a default intent so the pipeline continues.
func (p *Pipeline) interpret(ctx context.Context, rec *Record) {
	userPrompt := fmt.Sprintf("USER QUESTION:\n%s\n\nRespond with a single JSON object only, no explanation.", rec.Question)

	isGeneric := questionIsGeneric(rec.Question)

	response, err := p.complete(ctx, StageInterpreting, p.cfg.Prompts.Interpret, userPrompt)
	if err != nil {
		p.fallbackIntent(rec, isGeneric, fmt.Sprintf("interpretation call failed: %v", err))
		return
	}

	var parsed interpretResponse
	if err := json.Unmarshal([]byte(stripFences(response)), &parsed); err != nil {
		p.fallbackIntent(rec, isGeneric, fmt.Sprintf("failed to parse interpreter response cleanly: %v", err))
		return
	}

	intent := &Intent{
		TaskType:   parsed.Intent,
		Entities:   parsed.Entities,
		Metrics:    parsed.Metrics,
		TimeWindow: parsed.TimeWindow,
		Segments:   parsed.Segments,
		Confidence: parsed.Confidence,
		IsGeneric:  isGeneric,
	}
	if intent.TaskType == "" {
		intent.TaskType = defaultTaskType
	}
	if intent.TimeWindow == "" {
		intent.TimeWindow = defaultTimeWindow
	}

	rec.Intent = intent
	rec.transition(StageInterpreting, "Parsed question as %s analysis with %d metrics", intent.TaskType, len(intent.Metrics))
}

// fallbackIntent writes the default intent so downstream stages can proceed,
// recording the failure without halting the pipeline.
func (p *Pipeline) fallbackIntent(rec *Record, isGeneric bool, reason string) {
	rec.Intent = &Intent{
		TaskType:   defaultTaskType,
		Entities:   []string{},
		Metrics:    []string{},
		TimeWindow: defaultTimeWindow,
		Segments:   []string{},
		Confidence: 0.5,
		IsGeneric:  isGeneric,
	}
	rec.ErrorState = reason
	rec.transition(StageInterpreting, "Fell back to default intent: %s", reason)
	p.logInfo("pipeline: interpretation fell back to default intent", "reason", reason)
}

// questionIsGeneric reports whether the question is a capability query.
func questionIsGeneric(question string) bool {
	q := strings.ToLower(question)
	for _, phrase := range genericPhrases {
		if strings.Contains(q, phrase) {
			return true
		}
	}
	return false
}
