package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/insightlake/insightlake/pkg/catalog"
	"github.com/insightlake/insightlake/pkg/duck"
)

// testPrompts uses one recognizable system prompt per stage so the scripted
// client can answer each stage independently.
var testPrompts = &Prompts{
	Interpret:  "interpret",
	Plan:       "plan",
	Generate:   "generate",
	Synthesize: "synthesize",
	Insights:   "insights",
	Visualize:  "visualize",
	Guardrails: "guardrails",
}

// scriptedLLM returns canned responses keyed by system prompt.
type scriptedLLM struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	calls     []string
}

func (s *scriptedLLM) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, systemPrompt)
	if err, ok := s.errs[systemPrompt]; ok {
		return "", err
	}
	if resp, ok := s.responses[systemPrompt]; ok {
		return resp, nil
	}
	return "", fmt.Errorf("no scripted response for prompt %q", systemPrompt)
}

func (s *scriptedLLM) callCount(systemPrompt string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == systemPrompt {
			n++
		}
	}
	return n
}

type stubCatalog struct {
	datasets []catalog.Dataset
	err      error
}

func (s *stubCatalog) List(ctx context.Context) ([]catalog.Dataset, error) {
	return s.datasets, s.err
}

// newTestPipeline builds a pipeline with scripted dependencies and a fake
// clock. The datasets directory lives under a test temp dir.
func newTestPipeline(t *testing.T, llm *scriptedLLM, cat *stubCatalog) (*Pipeline, string) {
	t.Helper()
	datasetsDir := filepath.Join(t.TempDir(), "datasets")
	require.NoError(t, os.MkdirAll(datasetsDir, 0o755))

	p, err := New(&Config{
		LLM:         llm,
		Catalog:     cat,
		DatasetsDir: datasetsDir,
		Prompts:     testPrompts,
		Clock:       clockwork.NewFakeClock(),
		OpenEngine: func(ctx context.Context) (Engine, error) {
			return duck.NewMemory(ctx, nil)
		},
	})
	require.NoError(t, err)
	return p, datasetsDir
}

// writeCSV writes a small CSV into the datasets directory and returns its
// path.
func writeCSV(t *testing.T, datasetsDir, filename, content string) string {
	t.Helper()
	path := filepath.Join(datasetsDir, filename)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// salesCSV is the fixture used across execution tests: two regions, three
// orders, north ahead of south on total revenue.
const salesCSV = "region,revenue\nnorth,10\nsouth,12\nnorth,5\n"

// salesSource returns a file-backed source pointing at the fixture.
func salesSource(path string) DataSource {
	return DataSource{
		Name:            "sales",
		TableOrLocation: path,
		Columns:         []string{"region", "revenue"},
		QualityScore:    0.9,
	}
}
