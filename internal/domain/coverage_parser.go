package domain

import (
	"bufio"
	"bytes"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"tessel.dev/pkg/tessel/internal/adapter"
	m "tessel.dev/pkg/tessel/internal/model"
)

// CoverageReport is one parsed LCOV report: a unit per distinct resolved source file,
// in order of first appearance.
type CoverageReport struct {
	Files   []m.FileLineCoverage
	Skipped []RecoverableRecordError

	index map[m.Path]int
}

// Lookup returns the coverage details of a resolved path.
func (r *CoverageReport) Lookup(path m.Path) (m.FileLineCoverage, bool) {
	if r == nil {
		return m.FileLineCoverage{}, false
	}

	idx, ok := r.index[path]
	if !ok {
		return m.FileLineCoverage{}, false
	}

	return r.Files[idx], true
}

// Summary aggregates the report into a coverage summary of the given kind.
func (r *CoverageReport) Summary(kind m.CoverageKind, artifacts ...m.Path) m.CoverageSummary {
	if kind == "" {
		kind = m.CoverageLine
	}

	summary := m.CoverageSummary{
		Kind:      kind,
		Files:     make([]m.FileCoverage, 0, len(r.Files)),
		Artifacts: artifacts,
	}

	for _, file := range r.Files {
		covered, total := countCovered(file, kind)

		summary.Covered += covered
		summary.Total += total
		summary.Files = append(summary.Files, m.FileCoverage{
			Path:    file.Path,
			Covered: covered,
			Total:   total,
			Percent: m.Percent(covered, total),
		})
	}

	summary.Percent = m.Percent(summary.Covered, summary.Total)

	return summary
}

func countCovered(file m.FileLineCoverage, kind m.CoverageKind) (covered, total int) {
	if kind == m.CoverageBranch {
		for _, hits := range file.Branches {
			total++

			if hits > 0 {
				covered++
			}
		}

		return covered, total
	}

	for _, hits := range file.Lines {
		total++

		if hits > 0 {
			covered++
		}
	}

	return covered, total
}

// CoverageRecordParser parses LCOV line-coverage reports.
type CoverageRecordParser interface {
	// Parse reads an LCOV report. Relative source paths are resolved against baseFolder,
	// then fallbackRoot (when set) if the primary candidate does not exist.
	Parse(data []byte, baseFolder, fallbackRoot m.Path) (*CoverageReport, error)
}

type lcovParser struct {
	fsAdapter adapter.SourceFSAdapter
}

// NewCoverageRecordParser constructs an LCOV CoverageRecordParser.
func NewCoverageRecordParser(fsAdapter adapter.SourceFSAdapter) CoverageRecordParser {
	return &lcovParser{fsAdapter: fsAdapter}
}

func (p *lcovParser) Parse(data []byte, baseFolder, fallbackRoot m.Path) (*CoverageReport, error) {
	report := &CoverageReport{index: make(map[m.Path]int)}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	current := -1
	lineNo := 0

	skip := func(record, reason string) {
		recordErr := RecoverableRecordError{Line: lineNo, Record: record, Reason: reason}
		report.Skipped = append(report.Skipped, recordErr)
		slog.Debug("Skipping coverage record", "error", recordErr.Error())
	}

	for scanner.Scan() {
		lineNo++

		line := strings.TrimSpace(scanner.Text())
		tag, value, _ := strings.Cut(line, ":")

		switch tag {
		case "SF":
			path := p.resolve(strings.TrimSpace(value), baseFolder, fallbackRoot)

			idx, ok := report.index[path]
			if !ok {
				idx = len(report.Files)
				report.index[path] = idx
				report.Files = append(report.Files, m.FileLineCoverage{
					Path:     path,
					Lines:    make(m.LineCoverageMap),
					Branches: make(map[m.BranchKey]int),
				})
			}

			current = idx

		case "DA":
			if current < 0 {
				skip(line, "line data outside of a source file")
				continue
			}

			fields := strings.Split(value, ",")
			if len(fields) < 2 {
				skip(line, "expected line and hit count")
				continue
			}

			srcLine, err := strconv.Atoi(strings.TrimSpace(fields[0]))
			if err != nil || srcLine < 1 {
				skip(line, "invalid line number")
				continue
			}

			hits, err := strconv.Atoi(strings.TrimSpace(fields[1]))
			if err != nil || hits < 0 {
				skip(line, "invalid hit count")
				continue
			}

			report.Files[current].Lines[srcLine-1] += hits

		case "BRDA":
			if current < 0 {
				skip(line, "branch data outside of a source file")
				continue
			}

			fields := strings.Split(value, ",")
			if len(fields) != 4 {
				skip(line, "expected line, block, branch and taken count")
				continue
			}

			srcLine, err := strconv.Atoi(strings.TrimSpace(fields[0]))
			if err != nil || srcLine < 1 {
				skip(line, "invalid line number")
				continue
			}

			taken := 0

			if raw := strings.TrimSpace(fields[3]); raw != "-" {
				taken, err = strconv.Atoi(raw)
				if err != nil || taken < 0 {
					skip(line, "invalid taken count")
					continue
				}
			}

			key := m.BranchKey{
				Line:   srcLine - 1,
				Block:  strings.TrimSpace(fields[1]),
				Branch: strings.TrimSpace(fields[2]),
			}
			report.Files[current].Branches[key] += taken

		case "end_of_record":
			current = -1
		}
	}

	if err := scanner.Err(); err != nil {
		slog.Debug("Failed to read coverage report", "error", err)
		return nil, &ParseError{Source: "coverage report", Err: err}
	}

	return report, nil
}

func (p *lcovParser) resolve(path string, baseFolder, fallbackRoot m.Path) m.Path {
	if filepath.IsAbs(path) {
		return m.Path(filepath.Clean(path))
	}

	primary := m.Path(filepath.Join(string(baseFolder), path))
	if p.fsAdapter.Exists(primary) {
		return primary
	}

	if fallbackRoot != "" {
		fallback := m.Path(filepath.Join(string(fallbackRoot), path))
		if p.fsAdapter.Exists(fallback) {
			return fallback
		}
	}

	slog.Debug("Coverage source not found, using primary path", "path", path, "resolved", primary)

	return primary
}
