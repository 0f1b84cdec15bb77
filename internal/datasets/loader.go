package datasets

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/terra-clan/dataset-validator/internal/models"
)

// ErrNoDataset is returned when a path holds nothing that looks like a dataset
var ErrNoDataset = errors.New("no dataset files found")

// bundleFile is the single-file layout holding all four collections
const bundleFile = "dataset"

var extensions = []string{".yaml", ".yml", ".json"}

// Entry is a loaded dataset and where it came from
type Entry struct {
	Name    string
	Source  string
	Dataset models.Dataset
}

// Info summarizes the entry for listings
func (e *Entry) Info() models.DatasetInfo {
	return models.DatasetInfo{
		Name:    e.Name,
		Source:  e.Source,
		Clients: len(e.Dataset.Clients),
		Workers: len(e.Dataset.Workers),
		Tasks:   len(e.Dataset.Tasks),
		Rules:   len(e.Dataset.Rules),
	}
}

// Loader manages loading and caching of named datasets
type Loader struct {
	mu       sync.RWMutex
	datasets map[string]*Entry
}

// NewLoader creates a new dataset loader
func NewLoader() *Loader {
	return &Loader{
		datasets: make(map[string]*Entry),
	}
}

// LoadFromDir loads every dataset found directly under dir. Subdirectories are
// bundles; top-level files each hold a whole dataset named after the file.
func (l *Loader) LoadFromDir(dir string) error {
	slog.Info("loading datasets from directory", "dir", dir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		var ds *Entry
		if entry.IsDir() {
			ds, err = LoadBundle(entry.Name(), path)
		} else {
			if !hasDatasetExt(entry.Name()) {
				continue
			}
			ds, err = LoadFile(path)
		}
		if err != nil {
			slog.Warn("failed to load dataset", "path", path, "error", err)
			continue
		}

		l.Add(ds)
		loaded++
		slog.Info("dataset loaded", "name", ds.Name, "clients", len(ds.Dataset.Clients),
			"workers", len(ds.Dataset.Workers), "tasks", len(ds.Dataset.Tasks), "rules", len(ds.Dataset.Rules))
	}

	slog.Info("datasets loaded", "count", loaded, "total_entries", len(entries))
	return nil
}

// Get retrieves a dataset by name
func (l *Loader) Get(name string) *Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.datasets[name]
}

// List returns all loaded datasets ordered by name
func (l *Loader) List() []*Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*Entry, 0, len(l.datasets))
	for _, ds := range l.datasets {
		result = append(result, ds)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Add programmatically adds a dataset, replacing one with the same name
func (l *Loader) Add(entry *Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.datasets[entry.Name] = entry
}

// LoadPath loads a dataset from a single file or a bundle directory
func LoadPath(path string) (*Entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return LoadBundle(filepath.Base(filepath.Clean(path)), path)
	}
	return LoadFile(path)
}

// LoadFile loads a whole dataset from one YAML or JSON file
func LoadFile(path string) (*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var ds models.Dataset
	if err := decode(path, data, &ds); err != nil {
		return nil, err
	}

	base := filepath.Base(path)
	return &Entry{
		Name:    strings.TrimSuffix(base, filepath.Ext(base)),
		Source:  path,
		Dataset: ds,
	}, nil
}

// LoadBundle loads a bundle directory. A dataset.{yaml,yml,json} file wins;
// otherwise each collection is read from its own file and missing ones are empty.
func LoadBundle(name, dir string) (*Entry, error) {
	if path, ok := findFile(dir, bundleFile); ok {
		entry, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		entry.Name = name
		return entry, nil
	}

	var ds models.Dataset
	found := 0
	parts := []struct {
		name string
		into interface{}
	}{
		{"clients", &ds.Clients},
		{"workers", &ds.Workers},
		{"tasks", &ds.Tasks},
		{"rules", &ds.Rules},
	}
	for _, p := range parts {
		path, ok := findFile(dir, p.name)
		if !ok {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p.name, err)
		}
		if err := decode(path, data, p.into); err != nil {
			return nil, err
		}
		found++
	}
	if found == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoDataset)
	}

	return &Entry{Name: name, Source: dir, Dataset: ds}, nil
}

// Decode parses data in the given format ("json" or "yaml") into a dataset
func Decode(format string, data []byte) (models.Dataset, error) {
	var ds models.Dataset
	err := decode("dataset."+format, data, &ds)
	return ds, err
}

func decode(path string, data []byte, into interface{}) error {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, into); err != nil {
			return fmt.Errorf("failed to parse JSON %s: %w", filepath.Base(path), err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, into); err != nil {
		return fmt.Errorf("failed to parse YAML %s: %w", filepath.Base(path), err)
	}
	return nil
}

func findFile(dir, stem string) (string, bool) {
	for _, ext := range extensions {
		path := filepath.Join(dir, stem+ext)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

func hasDatasetExt(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range extensions {
		if ext == e {
			return true
		}
	}
	return false
}
