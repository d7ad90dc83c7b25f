package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/insightlake/insightlake/pkg/catalog"
)

// lowQualityThreshold is the quality score below which a selected source
// gets a warning.
const lowQualityThreshold = 0.85

// selectDataSources picks the datasets the analysis will run against. An
// explicit user selection wins when any of its names exist in the catalog;
// otherwise datasets are auto-detected by matching intent terms against
// column names, descriptions and recorded sample values, falling back to the
// whole catalog.
func (p *Pipeline) selectDataSources(ctx context.Context, rec *Record) {
	if rec.Intent == nil {
		rec.fail(StageSelectingSources, "No interpreted intent available")
		return
	}

	all, err := p.cfg.Catalog.List(ctx)
	if err != nil {
		rec.fail(StageSelectingSources, fmt.Sprintf("Failed to list datasets: %v", err))
		return
	}

	var warnings []string
	selected := filterByExplicitSelection(all, rec.SelectedDatasets)
	if len(rec.SelectedDatasets) > 0 && len(selected) == 0 {
		warnings = append(warnings, fmt.Sprintf("None of the requested datasets %v exist in the catalog - falling back to auto-detection", rec.SelectedDatasets))
	}

	if len(selected) == 0 {
		selected = autoDetect(all, rec.Intent)
		if len(selected) == 0 || rec.Intent.IsGeneric {
			selected = all
			warnings = append(warnings, "No specific datasets matched intent clearly - using all available datasets")
		}
	}

	sources := make([]DataSource, 0, len(selected))
	for _, ds := range selected {
		location := ds.Location
		if location == "" {
			location = ds.Name
		}
		sources = append(sources, DataSource{
			Name:            ds.Name,
			TableOrLocation: location,
			Columns:         ds.Schema.Columns,
			PrimaryKeys:     ds.Schema.PrimaryKeys,
			QualityScore:    ds.Schema.QualityScore,
			LastUpdated:     time.Now().UTC(),
			RecordCount:     ds.Schema.Rows,
		})
	}

	var lowQuality []string
	for _, s := range sources {
		if s.QualityScore < lowQualityThreshold {
			lowQuality = append(lowQuality, s.Name)
		}
	}
	if len(lowQuality) > 0 {
		warnings = append(warnings, fmt.Sprintf("Low quality datasets detected: %v", lowQuality))
	}

	coverage := 0.0
	if len(sources) > 0 {
		coverage = 0.9
	}
	rec.DataSources = &DataSourceSet{
		Sources:       sources,
		TotalSources:  len(sources),
		CoverageScore: coverage,
		Warnings:      warnings,
	}

	if len(sources) > 0 {
		rec.transition(StageSelectingSources, "Selected %d datasets", len(sources))
	} else {
		rec.transition(StageSelectingSources, "No datasets available")
	}
}

// filterByExplicitSelection keeps the catalog entries whose names appear in
// the user's selection list.
func filterByExplicitSelection(all []catalog.Dataset, names []string) []catalog.Dataset {
	if len(names) == 0 {
		return nil
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	var out []catalog.Dataset
	for _, ds := range all {
		if wanted[ds.Name] {
			out = append(out, ds)
		}
	}
	return out
}

// autoDetect returns the datasets whose searchable text contains any metric
// or entity term from the intent.
func autoDetect(all []catalog.Dataset, intent *Intent) []catalog.Dataset {
	terms := make([]string, 0, len(intent.Metrics)+len(intent.Entities))
	for _, m := range intent.Metrics {
		terms = append(terms, strings.ToLower(m))
	}
	for _, e := range intent.Entities {
		terms = append(terms, strings.ToLower(e))
	}
	if len(terms) == 0 {
		return nil
	}

	var out []catalog.Dataset
	for _, ds := range all {
		text := searchableText(ds)
		for _, term := range terms {
			if term != "" && strings.Contains(text, term) {
				out = append(out, ds)
				break
			}
		}
	}
	return out
}

// searchableText builds the lower-cased haystack for dataset matching:
// column names, the free-text description, and any recorded sample values.
func searchableText(ds catalog.Dataset) string {
	var sb strings.Builder
	for _, col := range ds.Schema.Columns {
		sb.WriteString(col)
		sb.WriteString(" ")
	}
	sb.WriteString(ds.Schema.Description)
	sb.WriteString(" ")
	for _, meta := range ds.Schema.ColumnMetadata {
		for _, v := range meta.Samples {
			sb.WriteString(v)
			sb.WriteString(" ")
		}
	}
	return strings.ToLower(sb.String())
}
