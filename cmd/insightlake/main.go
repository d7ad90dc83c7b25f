// insightlake is the command-line entry point for the analytics pipeline.
// It answers natural-language questions over registered datasets, and
// manages the dataset catalog.
//
// Usage:
//
//	insightlake [flags] ask <question>
//	insightlake [flags] register <name> <csv-path>
//	insightlake [flags] datasets
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/insightlake/insightlake/pkg/catalog"
	"github.com/insightlake/insightlake/pkg/duck"
	"github.com/insightlake/insightlake/pkg/logger"
	"github.com/insightlake/insightlake/pkg/pipeline"
	"github.com/insightlake/insightlake/pkg/pipeline/metrics"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultDataDir   = "./data"
	defaultModel     = string(anthropic.ModelClaudeSonnet4_5_20250929)
	defaultMaxTokens = 4096
	defaultUserID    = "cli"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	dataDirFlag := flag.String("data-dir", defaultDataDir, "data directory holding catalog.json and datasets/ (or set INSIGHTLAKE_DATA_DIR env var)")
	modelFlag := flag.String("model", defaultModel, "Anthropic model to use (or set ANTHROPIC_MODEL env var)")
	maxTokensFlag := flag.Int64("max-tokens", defaultMaxTokens, "max tokens per generation call")
	userFlag := flag.String("user", defaultUserID, "user id recorded on the analysis run")
	datasetsFlag := flag.StringSlice("dataset", nil, "pin the analysis to specific datasets (repeatable)")
	descriptionFlag := flag.String("description", "", "dataset description (register command)")
	jsonFlag := flag.Bool("json", false, "print the full analysis record as JSON instead of rendered output")
	metricsAddrFlag := flag.String("metrics-addr", "", "address to listen on for prometheus metrics (empty disables)")
	flag.Parse()

	// .env is optional; environment wins over flag defaults.
	_ = godotenv.Load()
	if envDataDir := os.Getenv("INSIGHTLAKE_DATA_DIR"); envDataDir != "" {
		*dataDirFlag = envDataDir
	}
	if envModel := os.Getenv("ANTHROPIC_MODEL"); envModel != "" {
		*modelFlag = envModel
	}

	log := logger.New(*verboseFlag)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigCh
		log.Info("received signal", "signal", sig.String())
		cancel()
	}()

	if *metricsAddrFlag != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", *metricsAddrFlag)
			if err != nil {
				log.Error("failed to start prometheus metrics server listener", "error", err)
				return
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			http.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, nil); err != nil {
				log.Error("failed to start prometheus metrics server", "error", err)
			}
		}()
	}

	store, err := catalog.New(log, *dataDirFlag)
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		return fmt.Errorf("a command is required: ask, register or datasets")
	}

	switch args[0] {
	case "ask":
		if len(args) < 2 {
			return fmt.Errorf("usage: insightlake ask <question>")
		}
		question := strings.Join(args[1:], " ")
		return runAsk(ctx, log, store, question, *userFlag, *datasetsFlag, anthropic.Model(*modelFlag), *maxTokensFlag, *jsonFlag)
	case "register":
		if len(args) != 3 {
			return fmt.Errorf("usage: insightlake register <name> <csv-path>")
		}
		return runRegister(ctx, log, store, args[1], args[2], *descriptionFlag)
	case "datasets":
		return runDatasets(ctx, store)
	default:
		return fmt.Errorf("unknown command %q: expected ask, register or datasets", args[0])
	}
}

// runAsk drives one question through the pipeline and renders the record.
func runAsk(ctx context.Context, log *slog.Logger, store *catalog.Store, question, userID string, selected []string, model anthropic.Model, maxTokens int64, asJSON bool) error {
	pipe, err := pipeline.New(&pipeline.Config{
		Logger:      log,
		LLM:         pipeline.NewAnthropicLLMClient(log, model, maxTokens),
		Catalog:     store,
		DatasetsDir: store.DatasetsDir(),
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	rec, err := pipe.RunAnalysis(ctx, question, userID, selected)
	if err != nil {
		return err
	}

	if asJSON {
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode record: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	renderRecord(os.Stdout, rec)
	return nil
}

// renderRecord prints the human-readable view of a finished analysis.
func renderRecord(w io.Writer, rec *pipeline.Record) {
	fmt.Fprintf(w, "Status: %s\n", rec.Status)
	if rec.ErrorState != "" {
		fmt.Fprintf(w, "Warning: %s\n", rec.ErrorState)
	}
	fmt.Fprintf(w, "\n%s\n", rec.DirectAnswer)

	if len(rec.Insights) > 0 {
		fmt.Fprintf(w, "\nInsights:\n")
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"Finding", "Metric", "Impact", "Confidence"})
		for _, in := range rec.Insights {
			table.Append([]string{in.Finding, in.Metric, in.BusinessImpact, fmt.Sprintf("%.2f", in.Confidence)})
		}
		table.Render()
	}

	if len(rec.Anomalies) > 0 {
		fmt.Fprintf(w, "\nAnomalies:\n")
		for _, an := range rec.Anomalies {
			fmt.Fprintf(w, "  - [%s] %s (%s)\n", an.Severity, an.Description, an.AffectedMetric)
		}
	}

	if len(rec.Visualizations) > 0 {
		fmt.Fprintf(w, "\nSuggested charts:\n")
		for _, viz := range rec.Visualizations {
			fmt.Fprintf(w, "  - %s: %s (x=%s, y=%s)\n", viz.ChartType, viz.Title, viz.DataFields["x"], viz.DataFields["y"])
		}
	}

	if rec.Confidence != nil {
		fmt.Fprintf(w, "\nConfidence: %.2f\n", rec.Confidence.OverallConfidence)
		for _, caveat := range rec.Confidence.Caveats {
			fmt.Fprintf(w, "  - %s\n", caveat)
		}
	}
}

// runRegister copies a CSV into the datasets directory, infers its schema
// and upserts the catalog entry.
func runRegister(ctx context.Context, log *slog.Logger, store *catalog.Store, name, path, description string) error {
	filename := filepath.Base(path)
	dest := filepath.Join(store.DatasetsDir(), filename)
	if err := copyFile(path, dest); err != nil {
		return fmt.Errorf("failed to copy dataset file: %w", err)
	}

	inferred, err := duck.InferSchema(ctx, log, dest)
	if err != nil {
		return fmt.Errorf("failed to infer schema: %w", err)
	}

	columns := make([]string, 0, len(inferred.Columns))
	for _, col := range inferred.Columns {
		columns = append(columns, col.Name)
	}
	columnMeta := make(map[string]catalog.ColumnMeta, len(inferred.Samples))
	for col, samples := range inferred.Samples {
		columnMeta[col] = catalog.ColumnMeta{Samples: samples}
	}

	ds := catalog.Dataset{
		Name:     name,
		Filename: filename,
		Kind:     catalog.KindFile,
		Schema: catalog.Schema{
			Columns:        columns,
			QualityScore:   0.9,
			Rows:           inferred.Rows,
			Description:    description,
			ColumnMetadata: columnMeta,
		},
	}
	if err := store.Register(ctx, ds); err != nil {
		return fmt.Errorf("failed to register dataset: %w", err)
	}

	fmt.Printf("Registered dataset %q (%d rows, %d columns)\n", name, inferred.Rows, len(columns))
	return nil
}

// runDatasets lists the registered datasets.
func runDatasets(ctx context.Context, store *catalog.Store) error {
	datasets, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(datasets) == 0 {
		fmt.Println("No datasets registered.")
		return nil
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Name", "Kind", "Rows", "Columns", "Quality", "Location"})
	for _, ds := range datasets {
		table.Append([]string{
			ds.Name,
			ds.Kind,
			fmt.Sprintf("%d", ds.Schema.Rows),
			fmt.Sprintf("%d", len(ds.Schema.Columns)),
			fmt.Sprintf("%.2f", ds.Schema.QualityScore),
			ds.Location,
		})
	}
	table.Render()
	return nil
}

func copyFile(src, dst string) error {
	if filepath.Clean(src) == filepath.Clean(dst) {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
