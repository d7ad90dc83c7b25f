package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const (
	// synthesisSampleRows caps how many rows of each query result are
	// rendered into the synthesis prompt.
	synthesisSampleRows = 30
	// synthesisCharBudget caps the rendered results context.
	synthesisCharBudget = 10000

	noDataAnswer = "No data is available to answer this question. Please check that the relevant datasets are registered and try again."
)

// synthesizeAnswer produces the natural-language answer from the execution
// results. A missing result set yields a fixed no-data answer, and a failed
// generation call degrades to a failure string rather than raising.
func (p *Pipeline) synthesizeAnswer(ctx context.Context, rec *Record) {
	if rec.ExecutionResults == nil || len(rec.ExecutionResults.ResultData) == 0 {
		rec.DirectAnswer = noDataAnswer
		rec.transition(StageAnswering, "No result data, returned fixed no-data answer")
		return
	}

	resultsContext := renderResultsContext(rec.ExecutionResults)
	userPrompt := fmt.Sprintf("QUESTION: %s\n\nANALYSIS RESULTS:\n%s\n\nAnswer the question using the numbers above.", rec.Question, resultsContext)

	response, err := p.complete(ctx, StageAnswering, p.cfg.Prompts.Synthesize, userPrompt)
	if err != nil {
		rec.DirectAnswer = fmt.Sprintf("Could not synthesize answer: %v", err)
		rec.ErrorState = err.Error()
		rec.transition(StageAnswering, "Answer synthesis failed: %v", err)
		return
	}

	rec.DirectAnswer = strings.TrimSpace(response)
	rec.transition(StageAnswering, "Synthesized answer (%d chars)", len(rec.DirectAnswer))
}

// renderResultsContext renders the captured query results, then the
// per-dataset descriptive analyses, as structured text bounded by the
// character budget.
func renderResultsContext(results *ExecutionResults) string {
	var b strings.Builder

	if raw, ok := results.ResultData[ResultDataQueryResults]; ok {
		if queryResults, ok := raw.(map[string]QueryResultEntry); ok {
			keys := make([]string, 0, len(queryResults))
			for key := range queryResults {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				entry := queryResults[key]
				rows := entry.Data
				if len(rows) > synthesisSampleRows {
					rows = rows[:synthesisSampleRows]
				}
				fmt.Fprintf(&b, "Result %s:\n", key)
				fmt.Fprintf(&b, "  SQL: %s\n", entry.QueryText)
				fmt.Fprintf(&b, "  Columns: %s\n", strings.Join(entry.Columns, ", "))
				fmt.Fprintf(&b, "  Rows returned: %d\n", entry.RowCount)
				fmt.Fprintf(&b, "  Data: %s\n\n", compactJSON(rows))
			}
		}
	}

	names := make([]string, 0, len(results.ResultData))
	for name := range results.ResultData {
		if name == ResultDataQueryResults {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "Dataset %s analysis: %s\n\n", name, compactJSON(results.ResultData[name]))
	}

	text := b.String()
	if len(text) > synthesisCharBudget {
		text = text[:synthesisCharBudget]
	}
	return text
}

func compactJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
