// Package catalog persists the dataset catalog as a single JSON document.
// Registration is an upsert by dataset name, and every write goes through a
// write-temp-then-rename sequence so a crashed writer never leaves a torn
// catalog behind.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

const (
	// KindFile marks datasets backed by a local tabular file.
	KindFile = "file"
	// KindWarehouse marks datasets that live in a remote warehouse table.
	KindWarehouse = "warehouse"

	catalogFilename = "catalog.json"
	datasetsDirname = "datasets"
)

// ColumnMeta carries optional per-column metadata, such as sample values
// recorded at registration time.
type ColumnMeta struct {
	Samples []string `json:"samples,omitempty"`
}

// Schema describes the shape and quality of a registered dataset.
type Schema struct {
	Columns        []string              `json:"columns"`
	PrimaryKeys    []string              `json:"primary_keys,omitempty"`
	QualityScore   float64               `json:"quality_score"`
	Rows           int64                 `json:"rows"`
	Description    string                `json:"description,omitempty"`
	ColumnMetadata map[string]ColumnMeta `json:"column_metadata,omitempty"`
}

// Dataset is a single catalog entry.
type Dataset struct {
	Name     string `json:"name"`
	Filename string `json:"filename,omitempty"`
	Kind     string `json:"kind"`
	Location string `json:"location"`
	Schema   Schema `json:"schema"`
}

type document struct {
	Datasets []Dataset `json:"datasets"`
}

// Store is a file-backed dataset catalog rooted at a data directory. The
// catalog document lives at <dir>/catalog.json and file-backed datasets are
// expected under <dir>/datasets/.
type Store struct {
	log  *slog.Logger
	dir  string
	path string
	mu   sync.Mutex
}

// New creates a catalog store rooted at dir, creating the directory layout
// if needed.
func New(log *slog.Logger, dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("catalog directory is required")
	}
	if err := os.MkdirAll(filepath.Join(dir, datasetsDirname), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create datasets directory: %w", err)
	}
	return &Store{
		log:  log,
		dir:  dir,
		path: filepath.Join(dir, catalogFilename),
	}, nil
}

// Dir returns the data directory the store is rooted at.
func (s *Store) Dir() string {
	return s.dir
}

// DatasetsDir returns the directory holding file-backed dataset files.
func (s *Store) DatasetsDir() string {
	return filepath.Join(s.dir, datasetsDirname)
}

// List returns all registered datasets. A missing catalog file is an empty
// catalog, not an error.
func (s *Store) List(ctx context.Context) ([]Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return doc.Datasets, nil
}

// Get returns the named dataset, or false if it is not registered.
func (s *Store) Get(ctx context.Context, name string) (Dataset, bool, error) {
	datasets, err := s.List(ctx)
	if err != nil {
		return Dataset{}, false, err
	}
	for _, ds := range datasets {
		if ds.Name == name {
			return ds, true, nil
		}
	}
	return Dataset{}, false, nil
}

// Register inserts or replaces the dataset entry for name. For file-kind
// datasets the location is derived from the datasets directory and filename;
// warehouse datasets keep the location recorded in the entry itself.
func (s *Store) Register(ctx context.Context, ds Dataset) error {
	if ds.Name == "" {
		return fmt.Errorf("dataset name is required")
	}
	if ds.Kind == "" {
		ds.Kind = KindFile
	}
	if ds.Kind == KindFile {
		if ds.Filename == "" {
			return fmt.Errorf("filename is required for file datasets")
		}
		ds.Location = filepath.ToSlash(filepath.Join(s.dir, datasetsDirname, ds.Filename))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}

	replaced := false
	for i := range doc.Datasets {
		if doc.Datasets[i].Name == ds.Name {
			doc.Datasets[i] = ds
			replaced = true
			break
		}
	}
	if !replaced {
		doc.Datasets = append(doc.Datasets, ds)
	}

	if err := s.save(doc); err != nil {
		return err
	}
	if s.log != nil {
		s.log.Info("catalog: registered dataset", "name", ds.Name, "kind", ds.Kind, "replaced", replaced)
	}
	return nil
}

func (s *Store) load() (*document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &document{}, nil
		}
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return &doc, nil
}

func (s *Store) save(doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write catalog temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace catalog: %w", err)
	}
	return nil
}
