package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage identifies a pipeline stage. The record's Status holds the name of
// the most recently completed stage, or a terminal value.
type Stage string

const (
	StageCreated          Stage = "created"
	StageInterpreting     Stage = "interpreting"
	StageCapabilities     Stage = "capabilities"
	StageSelectingSources Stage = "selecting_sources"
	StagePlanning         Stage = "planning"
	StageGenerating       Stage = "generating"
	StageExecuting        Stage = "executing"
	StageAnswering        Stage = "answering"
	StageAnalyzing        Stage = "analyzing"
	StageVisualizing      Stage = "visualizing"
	StageAssessing        Stage = "assessing"

	// Terminal states. No stage executes once the record reaches one.
	StageCompleted Stage = "completed"
	StageFailed    Stage = "failed"
)

// Terminal reports whether the stage is a terminal state.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// Intent is the structured interpretation of the user's question.
type Intent struct {
	TaskType   string   `json:"task_type"`
	Entities   []string `json:"entities"`
	Metrics    []string `json:"metrics"`
	TimeWindow string   `json:"time_window"`
	Segments   []string `json:"segments"`
	Confidence float64  `json:"confidence"`
	IsGeneric  bool     `json:"is_generic"`
}

// DataSource is one dataset selected for the analysis.
type DataSource struct {
	Name            string    `json:"name"`
	TableOrLocation string    `json:"table_or_location"`
	Columns         []string  `json:"columns"`
	PrimaryKeys     []string  `json:"primary_keys"`
	QualityScore    float64   `json:"quality_score"`
	LastUpdated     time.Time `json:"last_updated"`
	RecordCount     int64     `json:"record_count"`
}

// DataSourceSet is the data-source selection stage's output.
type DataSourceSet struct {
	Sources       []DataSource `json:"sources"`
	TotalSources  int          `json:"total_sources"`
	CoverageScore float64      `json:"coverage_score"`
	Warnings      []string     `json:"warnings"`
}

// AnalysisStep is one step of the analysis plan.
type AnalysisStep struct {
	StepNumber     int      `json:"step_number"`
	Description    string   `json:"description"`
	RequiredTables []string `json:"required_tables"`
	QueryTemplate  string   `json:"query_template,omitempty"`
	DependsOn      []any    `json:"depends_on"`
}

// AnalysisPlan is the planning stage's output.
type AnalysisPlan struct {
	Steps                   []AnalysisStep `json:"steps"`
	TotalSteps              int            `json:"total_steps"`
	EstimatedRuntimeSeconds float64        `json:"estimated_runtime_seconds"`
	Warnings                []string       `json:"warnings"`
}

// QueryExecutionRecord tracks one generated query through execution. Records
// are created by the generation stage and mutated in place by the execution
// stage.
type QueryExecutionRecord struct {
	StepNumber   int    `json:"step_number"`
	Description  string `json:"description"`
	QueryText    string `json:"query_text"`
	Executed     bool   `json:"executed"`
	Success      bool   `json:"success"`
	RowsReturned int    `json:"rows_returned"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// QueryResultEntry holds the captured output of one executed query, stored
// under ResultData's reserved "query_results" key.
type QueryResultEntry struct {
	QueryText string           `json:"query_text"`
	Columns   []string         `json:"columns"`
	RowCount  int              `json:"row_count"`
	Data      []map[string]any `json:"data"`
}

// GroupByResult is a grouped aggregation of one metric by one dimension.
type GroupByResult struct {
	Dimension string           `json:"dimension"`
	Metric    string           `json:"metric"`
	Data      []map[string]any `json:"data"`
}

// DatasetAnalysis is the descriptive pass's output for one file-backed
// dataset, stored in ResultData under the dataset's name.
type DatasetAnalysis struct {
	Summary []map[string]any `json:"summary"`
	Sample  []map[string]any `json:"sample"`
	GroupBy *GroupByResult   `json:"groupby,omitempty"`
}

// ResultDataQueryResults is the reserved ResultData key mapping step keys to
// captured query results.
const ResultDataQueryResults = "query_results"

// ExecutionResults is the execution stage's output.
type ExecutionResults struct {
	QueriesExecuted []*QueryExecutionRecord `json:"queries_executed"`
	RowCount        int                     `json:"row_count"`
	ExecutionTimeMs int64                   `json:"execution_time_ms"`
	Success         bool                    `json:"success"`
	Errors          []string                `json:"errors"`
	ResultData      map[string]any          `json:"result_data"`
}

// Insight is one finding extracted from the results.
type Insight struct {
	Finding        string  `json:"finding"`
	Metric         string  `json:"metric"`
	Magnitude      string  `json:"magnitude"`
	Confidence     float64 `json:"confidence"`
	BusinessImpact string  `json:"business_impact"`
}

// Anomaly is an unexpected pattern detected in the results.
type Anomaly struct {
	Description    string  `json:"description"`
	AffectedMetric string  `json:"affected_metric"`
	Magnitude      string  `json:"magnitude"`
	Confidence     float64 `json:"confidence"`
	Severity       string  `json:"severity"`
}

// Visualization is a recommended chart configuration.
type Visualization struct {
	ChartID              string            `json:"chart_id"`
	ChartType            string            `json:"chart_type"`
	Title                string            `json:"title"`
	DataFields           map[string]string `json:"data_fields"`
	Description          string            `json:"description"`
	AppropriatenessScore float64           `json:"appropriateness_score"`
}

// ConfidenceMetrics is the guardrails stage's assessment of the analysis.
type ConfidenceMetrics struct {
	OverallConfidence  float64  `json:"overall_confidence"`
	SampleSizeAdequate bool     `json:"sample_size_adequate"`
	CompletenessScore  float64  `json:"completeness_score"`
	Caveats            []string `json:"caveats"`
	DataQualityIssues  []string `json:"data_quality_issues"`
	Recommendations    []string `json:"recommendations"`
}

// Record is the shared per-question state threaded through every stage.
// Each stage owns and mutates only its designated fields; the execution log
// is append-only.
type Record struct {
	RunID     uuid.UUID `json:"run_id"`
	Question  string    `json:"question"`
	UserID    string    `json:"user_id"`
	StartedAt time.Time `json:"started_at"`

	// Optional explicit dataset selection, immutable input alongside the
	// question.
	SelectedDatasets []string `json:"selected_datasets,omitempty"`

	Intent           *Intent                 `json:"intent,omitempty"`
	DataSources      *DataSourceSet          `json:"data_sources,omitempty"`
	Plan             *AnalysisPlan           `json:"plan,omitempty"`
	PendingQueries   []*QueryExecutionRecord `json:"pending_queries,omitempty"`
	ExecutionResults *ExecutionResults       `json:"execution_results,omitempty"`
	DirectAnswer     string                  `json:"direct_answer,omitempty"`
	Insights         []Insight               `json:"insights"`
	Anomalies        []Anomaly               `json:"anomalies"`
	Visualizations   []Visualization         `json:"visualizations"`
	Confidence       *ConfidenceMetrics      `json:"confidence,omitempty"`

	ExecutionLog []string `json:"execution_log"`
	Status       Stage    `json:"status"`
	ErrorState   string   `json:"error_state,omitempty"`
}

// NewRecord creates the initial record for a question.
func NewRecord(question, userID string) *Record {
	return &Record{
		RunID:     uuid.New(),
		Question:  question,
		UserID:    userID,
		StartedAt: time.Now().UTC(),
		Status:    StageCreated,
	}
}

// transition appends a log line for the stage and marks it as the most
// recently completed stage.
func (r *Record) transition(stage Stage, format string, args ...any) {
	r.ExecutionLog = append(r.ExecutionLog, fmt.Sprintf("[%s] %s", stage, fmt.Sprintf(format, args...)))
	r.Status = stage
}

// fail records a fatal stage error and routes the record to the failed
// terminal state.
func (r *Record) fail(stage Stage, msg string) {
	r.ErrorState = msg
	r.ExecutionLog = append(r.ExecutionLog, fmt.Sprintf("[%s] %s", stage, msg))
	r.Status = StageFailed
}
