package pipeline

import (
	"context"
	"fmt"
	"strings"
)

// capabilitiesLogPrefix marks the capabilities message in the execution log.
const capabilitiesLogPrefix = "[capabilities] "

// respondCapabilities answers generic "what can you do" questions with a
// description of the pipeline and the current catalog, bypassing the rest of
// the stage graph.
func (p *Pipeline) respondCapabilities(ctx context.Context, rec *Record) {
	var sb strings.Builder
	sb.WriteString("I can help you analyze your data using a staged pipeline that:\n")
	sb.WriteString("- Understands your question and maps it to metrics and entities\n")
	sb.WriteString("- Selects relevant datasets and designs an analysis plan\n")
	sb.WriteString("- Generates and executes queries against your data\n")
	sb.WriteString("- Extracts insights, anomalies, and visualizations\n")

	datasets, err := p.cfg.Catalog.List(ctx)
	if err != nil {
		p.logInfo("pipeline: failed to list datasets for capabilities response", "error", err)
	}
	if len(datasets) > 0 {
		sb.WriteString("\nI currently see these datasets:\n")
		for _, ds := range datasets {
			sb.WriteString(fmt.Sprintf("- %s (%d columns) from %s\n", ds.Name, len(ds.Schema.Columns), ds.Filename))
		}
	} else {
		sb.WriteString("\nNo datasets are registered yet. Register a CSV to get started.\n")
	}

	sb.WriteString("\nExample questions you can ask:\n")
	sb.WriteString("- \"Show revenue trend by region in the last quarter\"\n")
	sb.WriteString("- \"Which products are underperforming based on sales and margin?\"\n")
	sb.WriteString("- \"Why did our infrastructure cost spike last week?\"\n")

	rec.DirectAnswer = sb.String()
	rec.ExecutionLog = append(rec.ExecutionLog, capabilitiesLogPrefix+rec.DirectAnswer)
	rec.transition(StageCompleted, "Answered generic capabilities question instead of running full analysis")
}
