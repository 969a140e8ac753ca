package model

import (
	"math"
	"strconv"
	"time"
)

// CoverageKind selects what a coverage summary counts.
type CoverageKind string

const (
	// CoverageLine counts instrumented lines.
	CoverageLine CoverageKind = "line"
	// CoverageBranch counts instrumented branches.
	CoverageBranch CoverageKind = "branch"
)

// LineCoverageMap maps a 0-based line index to its cumulative hit count.
type LineCoverageMap map[int]int

// BranchKey identifies one branch of an LCOV BRDA record.
type BranchKey struct {
	Line   int
	Block  string
	Branch string
}

// FileLineCoverage is the detail of one resolved source file in a coverage report.
type FileLineCoverage struct {
	Path     Path
	Lines    LineCoverageMap
	Branches map[BranchKey]int
}

// FileCoverage is the per-file entry of a coverage summary.
type FileCoverage struct {
	Path    Path    `yaml:"path"`
	Covered int     `yaml:"covered"`
	Total   int     `yaml:"total"`
	Percent float64 `yaml:"percent"`
}

// CoverageSummary is the coverage of one target for one run.
type CoverageSummary struct {
	Kind      CoverageKind   `yaml:"kind"`
	Covered   int            `yaml:"covered"`
	Total     int            `yaml:"total"`
	Percent   float64        `yaml:"percent"`
	Files     []FileCoverage `yaml:"files"`
	Artifacts []Path         `yaml:"artifacts,omitempty"`
}

// CoverageRun is one entry of a target's coverage history.
type CoverageRun struct {
	Summary   CoverageSummary `yaml:"summary"`
	Timestamp time.Time       `yaml:"timestamp"`
}

// Percent returns covered/total*100, or 0 when total is 0.
func Percent(covered, total int) float64 {
	if total == 0 {
		return 0
	}

	return float64(covered) * 100 / float64(total)
}

// FormatPercent renders p with one decimal, rounding halves away from zero, e.g. "12.3%".
func FormatPercent(p float64) string {
	return strconv.FormatFloat(math.Round(p*10)/10, 'f', 1, 64) + "%"
}
