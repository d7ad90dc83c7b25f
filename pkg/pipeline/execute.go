package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/insightlake/insightlake/pkg/catalog"
	"github.com/insightlake/insightlake/pkg/duck"
	"github.com/insightlake/insightlake/pkg/pipeline/metrics"
)

const (
	// maxStoredResultRows caps how many result rows are kept per executed
	// query.
	maxStoredResultRows = 50
	// sampleRows is the size of the descriptive pass's row sample.
	sampleRows = 20
	// maxGroups caps the grouped aggregation in the descriptive pass.
	maxGroups = 20
	// dimension cardinality bounds for the grouped aggregation.
	minGroupCardinality = 2
	maxGroupCardinality = 50
	// simulatedRowCount is the placeholder row count for non-file sources.
	simulatedRowCount = 100

	noValidQueryMessage = "no valid query generated"
)

// executeQueries runs the pending queries against an engine instance scoped
// to this invocation. File-backed sources are loaded into the engine and
// queried directly, plus a descriptive pass per source; non-file sources are
// simulated so the record schema stays populated. Engine errors are recorded
// per item or per source and never raised.
func (p *Pipeline) executeQueries(ctx context.Context, rec *Record) {
	if rec.DataSources == nil || len(rec.DataSources.Sources) == 0 {
		rec.fail(StageExecuting, "No data sources available for execution")
		return
	}

	start := p.cfg.Clock.Now()
	resultData := make(map[string]any)
	queryResults := make(map[string]QueryResultEntry)
	var errs []string
	totalRows := 0

	var fileSources, remoteSources []DataSource
	for _, src := range rec.DataSources.Sources {
		if catalog.IsFileBacked(src.TableOrLocation, p.cfg.DatasetsDir) {
			fileSources = append(fileSources, src)
		} else {
			remoteSources = append(remoteSources, src)
		}
	}

	if len(fileSources) > 0 {
		engine, err := p.cfg.OpenEngine(ctx)
		if err != nil {
			errs = append(errs, fmt.Sprintf("query engine unavailable: %v", err))
		} else {
			loaded := p.registerSources(ctx, rec, engine, fileSources, &errs)
			totalRows += p.runPendingQueries(ctx, rec, engine, queryResults)
			p.runDescriptivePass(ctx, rec, engine, fileSources, loaded, resultData, &errs)
			engine.Close()
		}
	}

	if len(remoteSources) > 0 {
		for _, q := range rec.PendingQueries {
			if q.Executed {
				continue
			}
			q.Executed = true
			q.Success = true
			q.RowsReturned = simulatedRowCount
		}
		totalRows += len(remoteSources) * simulatedRowCount
		rec.ExecutionLog = append(rec.ExecutionLog,
			fmt.Sprintf("[%s] Simulated execution for %d warehouse datasets", StageExecuting, len(remoteSources)))
	}

	if len(queryResults) > 0 {
		resultData[ResultDataQueryResults] = queryResults
	}

	elapsed := p.cfg.Clock.Since(start)
	rec.ExecutionResults = &ExecutionResults{
		QueriesExecuted: rec.PendingQueries,
		RowCount:        totalRows,
		ExecutionTimeMs: elapsed.Milliseconds(),
		Success:         len(errs) == 0,
		Errors:          errs,
		ResultData:      resultData,
	}
	if len(errs) > 0 {
		rec.ErrorState = strings.Join(errs, "; ")
	}
	rec.transition(StageExecuting, "Executed analysis on %d datasets in %dms, total rows %d",
		len(rec.DataSources.Sources), elapsed.Milliseconds(), totalRows)
}

// registerSources loads each file-backed source into the engine under its
// logical name, recording per-source failures without aborting the rest.
func (p *Pipeline) registerSources(ctx context.Context, rec *Record, engine Engine, sources []DataSource, errs *[]string) map[string]bool {
	loaded := make(map[string]bool, len(sources))
	for _, src := range sources {
		path, err := catalog.Resolve(src.TableOrLocation)
		if err != nil {
			msg := fmt.Sprintf("Failed to resolve dataset '%s': %v", src.Name, err)
			*errs = append(*errs, msg)
			rec.ExecutionLog = append(rec.ExecutionLog, fmt.Sprintf("[%s] %s", StageExecuting, msg))
			continue
		}
		rows, err := engine.RegisterCSV(ctx, src.Name, path)
		if err != nil {
			msg := fmt.Sprintf("Failed to load dataset '%s': %v", src.Name, err)
			*errs = append(*errs, msg)
			rec.ExecutionLog = append(rec.ExecutionLog, fmt.Sprintf("[%s] %s", StageExecuting, msg))
			continue
		}
		loaded[src.Name] = true
		rec.ExecutionLog = append(rec.ExecutionLog,
			fmt.Sprintf("[%s] Loaded dataset '%s' with %d rows", StageExecuting, src.Name, rows))
	}
	return loaded
}

// runPendingQueries executes each non-placeholder pending query against the
// engine, mutating the records in place and capturing results. Returns the
// total rows returned by successful queries.
func (p *Pipeline) runPendingQueries(ctx context.Context, rec *Record, engine Engine, queryResults map[string]QueryResultEntry) int {
	totalRows := 0
	for _, q := range rec.PendingQueries {
		if isPlaceholderQuery(q.QueryText) {
			q.Executed = true
			q.Success = false
			q.ErrorMessage = noValidQueryMessage
			metrics.QueriesExecutedTotal.WithLabelValues("skipped").Inc()
			continue
		}

		res, err := engine.Query(ctx, q.QueryText)
		q.Executed = true
		if err != nil {
			q.Success = false
			q.ErrorMessage = err.Error()
			metrics.QueriesExecutedTotal.WithLabelValues("error").Inc()
			p.logInfo("pipeline: query failed", "step", q.StepNumber, "error", err)
			continue
		}

		q.Success = true
		q.RowsReturned = res.Count
		totalRows += res.Count
		metrics.QueriesExecutedTotal.WithLabelValues("ok").Inc()

		data := res.Rows
		if len(data) > maxStoredResultRows {
			data = data[:maxStoredResultRows]
		}
		queryResults[stepKey(q)] = QueryResultEntry{
			QueryText: q.QueryText,
			Columns:   res.Columns,
			RowCount:  res.Count,
			Data:      data,
		}
	}
	return totalRows
}

// runDescriptivePass computes summary statistics, a row sample and (when the
// shape allows) a grouped aggregation for each loaded source, so the
// pipeline has quantitative material even when no generated query survived.
func (p *Pipeline) runDescriptivePass(ctx context.Context, rec *Record, engine Engine, sources []DataSource, loaded map[string]bool, resultData map[string]any, errs *[]string) {
	for _, src := range sources {
		if !loaded[src.Name] {
			continue
		}
		name := src.Name
		analysis, err := p.analyzeDataset(ctx, engine, name)
		if err != nil {
			msg := fmt.Sprintf("Failed to analyze dataset '%s': %v", name, err)
			*errs = append(*errs, msg)
			rec.ExecutionLog = append(rec.ExecutionLog, fmt.Sprintf("[%s] %s", StageExecuting, msg))
			continue
		}
		resultData[name] = analysis
		rec.ExecutionLog = append(rec.ExecutionLog,
			fmt.Sprintf("[%s] Analyzed dataset '%s'", StageExecuting, name))
	}
}

// analyzeDataset runs the descriptive pass for one registered table.
func (p *Pipeline) analyzeDataset(ctx context.Context, engine Engine, table string) (*DatasetAnalysis, error) {
	summary, err := engine.Summarize(ctx, table)
	if err != nil {
		return nil, err
	}
	sample, err := engine.Sample(ctx, table, sampleRows)
	if err != nil {
		return nil, err
	}

	analysis := &DatasetAnalysis{Summary: summary, Sample: sample}

	dimension, metric, err := p.pickGroupByColumns(ctx, engine, table)
	if err != nil || dimension == "" || metric == "" {
		// The grouped aggregation is optional; summary and sample stand on
		// their own.
		return analysis, nil
	}

	data, err := engine.GroupBy(ctx, table, dimension, metric, maxGroups)
	if err != nil {
		p.logInfo("pipeline: groupby failed", "table", table, "dimension", dimension, "metric", metric, "error", err)
		return analysis, nil
	}
	analysis.GroupBy = &GroupByResult{Dimension: dimension, Metric: metric, Data: data}
	return analysis, nil
}

// pickGroupByColumns selects the first numeric column as the metric and the
// first low-cardinality non-numeric column as the dimension.
func (p *Pipeline) pickGroupByColumns(ctx context.Context, engine Engine, table string) (dimension, metric string, err error) {
	cols, err := engine.Columns(ctx, table)
	if err != nil {
		return "", "", err
	}
	for _, col := range cols {
		if duck.IsNumericType(col.Type) {
			metric = col.Name
			break
		}
	}
	if metric == "" {
		return "", "", nil
	}
	for _, col := range cols {
		if duck.IsNumericType(col.Type) {
			continue
		}
		distinct, err := engine.DistinctCount(ctx, table, col.Name)
		if err != nil {
			continue
		}
		if distinct >= minGroupCardinality && distinct <= maxGroupCardinality {
			dimension = col.Name
			break
		}
	}
	return dimension, metric, nil
}

// stepKey combines a query's step number and description into the reserved
// query_results key.
func stepKey(q *QueryExecutionRecord) string {
	return fmt.Sprintf("step_%d_%s", q.StepNumber, q.Description)
}
