// Package pipeline implements the staged analytics orchestrator. A question
// flows through interpretation, data-source selection, planning, query
// generation, execution, answer synthesis, insight extraction, visualization
// and confidence assessment, each stage reading earlier fields of the shared
// record and writing its own. No stage lets an error escape: a failed LLM
// call or unparseable response degrades to a stage-specific fallback, and
// only a missing upstream field routes the record to the failed terminal
// state.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/insightlake/insightlake/pkg/catalog"
	"github.com/insightlake/insightlake/pkg/duck"
	"github.com/insightlake/insightlake/pkg/pipeline/metrics"
)

// LLMClient is the interface for the generation capability.
type LLMClient interface {
	// Complete sends a prompt and returns the response text.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Catalog lists the registered datasets.
type Catalog interface {
	List(ctx context.Context) ([]catalog.Dataset, error)
}

// Engine is the tabular query engine used by the execution stage. An engine
// instance is scoped to a single execution pass.
type Engine interface {
	RegisterCSV(ctx context.Context, name, path string) (int64, error)
	Query(ctx context.Context, sql string) (duck.Result, error)
	Columns(ctx context.Context, table string) ([]duck.Column, error)
	Summarize(ctx context.Context, table string) ([]map[string]any, error)
	Sample(ctx context.Context, table string, n int) ([]map[string]any, error)
	DistinctCount(ctx context.Context, table, column string) (int64, error)
	GroupBy(ctx context.Context, table, dimension, metric string, limit int) ([]map[string]any, error)
	Close() error
}

// EngineFactory opens a fresh engine instance for one execution pass.
type EngineFactory func(ctx context.Context) (Engine, error)

// Config holds the configuration for the pipeline.
type Config struct {
	Logger  *slog.Logger
	LLM     LLMClient
	Catalog Catalog

	// OpenEngine creates the scoped query engine. Defaults to an in-memory
	// DuckDB instance.
	OpenEngine EngineFactory

	// DatasetsDir is the directory that marks a dataset location as
	// file-backed.
	DatasetsDir string

	// Prompts are the stage prompt templates. Defaults to the embedded
	// prompts.
	Prompts *Prompts

	// Clock is used to measure execution time. Defaults to the real clock.
	Clock clockwork.Clock

	// MinDataPoints is the row count below which the guardrails stage warns
	// about limited sample size. Defaults to 10.
	MinDataPoints int
}

// Pipeline drives a record through the stage graph.
type Pipeline struct {
	cfg *Config
	log *slog.Logger
}

// New creates a new Pipeline.
func New(cfg *Config) (*Pipeline, error) {
	if cfg.LLM == nil {
		return nil, fmt.Errorf("LLM client is required")
	}
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if cfg.DatasetsDir == "" {
		return nil, fmt.Errorf("datasets directory is required")
	}
	if cfg.OpenEngine == nil {
		cfg.OpenEngine = func(ctx context.Context) (Engine, error) {
			return duck.NewMemory(ctx, cfg.Logger)
		}
	}
	if cfg.Prompts == nil {
		prompts, err := LoadPrompts()
		if err != nil {
			return nil, fmt.Errorf("failed to load prompts: %w", err)
		}
		cfg.Prompts = prompts
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.MinDataPoints == 0 {
		cfg.MinDataPoints = 10
	}
	return &Pipeline{cfg: cfg, log: cfg.Logger}, nil
}

// logInfo logs an info message if a logger is configured.
func (p *Pipeline) logInfo(msg string, args ...any) {
	if p.log != nil {
		p.log.Info(msg, args...)
	}
}

// RunAnalysis runs the full stage graph for a question and returns the
// record in a terminal state. SelectedDatasets optionally pins the analysis
// to specific catalog datasets.
func (p *Pipeline) RunAnalysis(ctx context.Context, question, userID string, selectedDatasets []string) (*Record, error) {
	rec := NewRecord(question, userID)
	rec.SelectedDatasets = selectedDatasets

	p.logInfo("pipeline: starting analysis", "run", rec.RunID.String(), "user", userID)

	for !rec.Status.Terminal() {
		stage := Next(rec)
		if stage.Terminal() {
			rec.Status = stage
			break
		}
		p.runStage(ctx, rec, stage)
	}

	metrics.RunsTotal.WithLabelValues(string(rec.Status)).Inc()
	p.logInfo("pipeline: analysis finished", "run", rec.RunID.String(), "status", rec.Status)
	return rec, nil
}

// runStage dispatches a single stage, timing it for metrics.
func (p *Pipeline) runStage(ctx context.Context, rec *Record, stage Stage) {
	start := p.cfg.Clock.Now()
	switch stage {
	case StageInterpreting:
		p.interpret(ctx, rec)
	case StageCapabilities:
		p.respondCapabilities(ctx, rec)
	case StageSelectingSources:
		p.selectDataSources(ctx, rec)
	case StagePlanning:
		p.plan(ctx, rec)
	case StageGenerating:
		p.generateQueries(ctx, rec)
	case StageExecuting:
		p.executeQueries(ctx, rec)
	case StageAnswering:
		p.synthesizeAnswer(ctx, rec)
	case StageAnalyzing:
		p.generateInsights(ctx, rec)
	case StageVisualizing:
		p.visualize(ctx, rec)
	case StageAssessing:
		p.assessConfidence(ctx, rec)
	default:
		rec.fail(stage, fmt.Sprintf("unknown stage %q", stage))
	}
	metrics.StageDuration.WithLabelValues(string(stage)).Observe(p.cfg.Clock.Since(start).Seconds())
	metrics.StagesTotal.WithLabelValues(string(stage)).Inc()
}

// complete tracks an LLM call for metrics and delegates to the client.
func (p *Pipeline) complete(ctx context.Context, stage Stage, systemPrompt, userPrompt string) (string, error) {
	response, err := p.cfg.LLM.Complete(ctx, systemPrompt, userPrompt)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.LLMCallsTotal.WithLabelValues(string(stage), status).Inc()
	return response, err
}
