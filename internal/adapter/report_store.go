package adapter

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	m "tessel.dev/pkg/tessel/internal/model"
)

const coverageHistoryFile = "coverage-history.yaml"

// CoverageHistory maps target labels to their coverage runs, oldest first.
type CoverageHistory map[string][]m.CoverageRun

// ReportStore persists run artifacts to the reports directory.
type ReportStore interface {
	SaveCoverage(dir m.Path, history CoverageHistory) error
	LoadCoverage(dir m.Path) (CoverageHistory, error)
}

// LocalReportStore stores reports as YAML files on disk.
type LocalReportStore struct{}

// NewLocalReportStore constructs a LocalReportStore.
func NewLocalReportStore() *LocalReportStore {
	return &LocalReportStore{}
}

type coverageHistoryDocument struct {
	Targets []coverageHistoryEntry `yaml:"targets"`
}

type coverageHistoryEntry struct {
	Label string          `yaml:"label"`
	Runs  []m.CoverageRun `yaml:"runs"`
}

// SaveCoverage writes history to <dir>/coverage-history.yaml, replacing the previous file.
func (s *LocalReportStore) SaveCoverage(dir m.Path, history CoverageHistory) error {
	if err := os.MkdirAll(string(dir), 0o755); err != nil {
		return fmt.Errorf("create reports dir %s: %w", dir, err)
	}

	labels := make([]string, 0, len(history))
	for label := range history {
		labels = append(labels, label)
	}

	sort.Strings(labels)

	doc := coverageHistoryDocument{Targets: make([]coverageHistoryEntry, 0, len(labels))}
	for _, label := range labels {
		doc.Targets = append(doc.Targets, coverageHistoryEntry{Label: label, Runs: history[label]})
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal coverage history: %w", err)
	}

	path := filepath.Join(string(dir), coverageHistoryFile)
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}

	slog.Debug("Saved coverage history", "path", path, "targets", len(labels))

	return nil
}

// LoadCoverage reads <dir>/coverage-history.yaml. A missing file yields an empty history.
func (s *LocalReportStore) LoadCoverage(dir m.Path) (CoverageHistory, error) {
	path := filepath.Join(string(dir), coverageHistoryFile)

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return CoverageHistory{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var doc coverageHistoryDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	history := make(CoverageHistory, len(doc.Targets))
	for _, entry := range doc.Targets {
		history[entry.Label] = append(history[entry.Label], entry.Runs...)
	}

	return history, nil
}
