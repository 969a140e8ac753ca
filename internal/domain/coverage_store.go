package domain

import (
	"sync"
	"time"

	"tessel.dev/pkg/tessel/internal/adapter"
	m "tessel.dev/pkg/tessel/internal/model"
)

// CoverageStore is the process-wide history of coverage summaries keyed by target label.
type CoverageStore interface {
	// SetSummary appends summary to the target's history. The last entry is the current one.
	SetSummary(label string, summary m.CoverageSummary)

	// GetSummary returns the current summary of the target.
	GetSummary(label string) (m.CoverageSummary, bool)

	// GetRuns returns the target's history, oldest first.
	GetRuns(label string) []m.CoverageRun

	// Labels returns the labels that have coverage history.
	Labels() []string

	// RecordFileDetails keeps the per-line details of a parsed report for later lookups.
	RecordFileDetails(report *CoverageReport)

	// FileDetail returns the most recently recorded details of a source file.
	FileDetail(path m.Path) (m.FileLineCoverage, bool)

	// Snapshot returns a copy of the whole history.
	Snapshot() adapter.CoverageHistory

	// Restore replaces the history with a previously saved one.
	Restore(history adapter.CoverageHistory)
}

type coverageStore struct {
	mu      sync.RWMutex
	runs    map[string][]m.CoverageRun
	details map[m.Path]m.FileLineCoverage
	now     func() time.Time
}

// NewCoverageStore constructs an empty CoverageStore.
func NewCoverageStore() CoverageStore {
	return newCoverageStoreWithClock(time.Now)
}

func newCoverageStoreWithClock(now func() time.Time) *coverageStore {
	return &coverageStore{
		runs:    make(map[string][]m.CoverageRun),
		details: make(map[m.Path]m.FileLineCoverage),
		now:     now,
	}
}

func (s *coverageStore) SetSummary(label string, summary m.CoverageSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[label] = append(s.runs[label], m.CoverageRun{Summary: summary, Timestamp: s.now()})
}

func (s *coverageStore) GetSummary(label string) (m.CoverageSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := s.runs[label]
	if len(runs) == 0 {
		return m.CoverageSummary{}, false
	}

	return runs[len(runs)-1].Summary, true
}

func (s *coverageStore) GetRuns(label string) []m.CoverageRun {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]m.CoverageRun(nil), s.runs[label]...)
}

func (s *coverageStore) Labels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	labels := make([]string, 0, len(s.runs))
	for label := range s.runs {
		labels = append(labels, label)
	}

	return sortedCopy(labels)
}

func (s *coverageStore) RecordFileDetails(report *CoverageReport) {
	if report == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, file := range report.Files {
		s.details[file.Path] = file
	}
}

func (s *coverageStore) FileDetail(path m.Path) (m.FileLineCoverage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	detail, ok := s.details[path]

	return detail, ok
}

func (s *coverageStore) Snapshot() adapter.CoverageHistory {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := make(adapter.CoverageHistory, len(s.runs))
	for label, runs := range s.runs {
		history[label] = append([]m.CoverageRun(nil), runs...)
	}

	return history
}

func (s *coverageStore) Restore(history adapter.CoverageHistory) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = make(map[string][]m.CoverageRun, len(history))
	for label, runs := range history {
		s.runs[label] = append([]m.CoverageRun(nil), runs...)
	}
}

// FormatShort renders a summary for inline display, e.g. "cov=50.0%".
func FormatShort(summary m.CoverageSummary) string {
	return "cov=" + m.FormatPercent(summary.Percent)
}
