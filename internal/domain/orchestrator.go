package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/acarl005/stripansi"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"tessel.dev/pkg/tessel/internal/adapter"
	m "tessel.dev/pkg/tessel/internal/model"
)

const (
	// DefaultParallel is the concurrent lane width when none is configured.
	DefaultParallel = 4
	// MaxParallel caps the concurrent lane width.
	MaxParallel = 64

	structuredReportFile = "test.xml"
	coverageReportFile   = "coverage.dat"

	maxShortMessageRunes = 200

	unreadableReportMessage = "structured report unreadable"
)

// ClampParallel bounds the requested concurrency to [1, MaxParallel]; zero means default.
func ClampParallel(parallel int) int {
	switch {
	case parallel == 0:
		return DefaultParallel
	case parallel < 1:
		return 1
	case parallel > MaxParallel:
		return MaxParallel
	default:
		return parallel
	}
}

// RunObserver is told about every launch and completion of a run.
type RunObserver interface {
	RunStarted(runID string, targets int, parallel int)
	TargetStarted(label string)
	TargetFinished(outcome m.TargetOutcome)
}

// OutcomeRecorder receives outcome metrics.
type OutcomeRecorder interface {
	ObserveOutcome(outcome m.TargetOutcome, launchFailed bool)
	ObserveSkipped(n int)
}

// RunOptions parameterizes one orchestrated run.
type RunOptions struct {
	Workspace       m.Path
	TestLogs        m.Path
	Parallel        int
	SequentialKinds []string
	Overrides       m.Flags
	TestFilter      string
	Coverage        bool
	CoverageKind    m.CoverageKind
	FallbackRoot    m.Path
	Observer        RunObserver
}

// ExecutionOrchestrator runs a selection of tree nodes and routes outcomes back into the tree.
type ExecutionOrchestrator interface {
	// Run expands selection (node ids; all targets when empty) to leaf targets and executes
	// them. Cancelling ctx stops new launches; processes already launched finish and their
	// results are kept.
	Run(ctx context.Context, store adapter.NodeStore, selection []string, opts RunOptions) (m.RunReport, error)
}

// OrchestratorDeps are the collaborators of the orchestrator.
type OrchestratorDeps struct {
	Runner         adapter.TestRunnerAdapter
	Sink           adapter.OutputSink
	FS             adapter.SourceFSAdapter
	GoFiles        adapter.GoFileAdapter
	ResultParser   StructuredResultParser
	CoverageParser CoverageRecordParser
	Coverage       CoverageStore
	Flags          FlagResolver
	Metrics        OutcomeRecorder
}

type orchestrator struct {
	OrchestratorDeps
}

// NewOrchestrator constructs an ExecutionOrchestrator.
func NewOrchestrator(deps OrchestratorDeps) ExecutionOrchestrator {
	return &orchestrator{OrchestratorDeps: deps}
}

// runItem is one leaf to execute.
type runItem struct {
	nodeID string
	label  string
	kind   m.Kind
}

type runState struct {
	mu     sync.Mutex
	report m.RunReport
}

func (s *runState) addOutcome(outcome m.TargetOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.report.Outcomes = append(s.report.Outcomes, outcome)
}

func (s *runState) addSkipped(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.report.Skipped = append(s.report.Skipped, label)
}

func (o *orchestrator) Run(ctx context.Context, store adapter.NodeStore, selection []string, opts RunOptions) (m.RunReport, error) {
	items, err := expandSelection(store, selection)
	if err != nil {
		return m.RunReport{}, err
	}

	state := &runState{report: m.RunReport{RunID: uuid.New().String()}}

	sequential, concurrent := partition(items, opts.SequentialKinds)
	parallel := ClampParallel(opts.Parallel)

	slog.Info("Starting run",
		"runID", state.report.RunID,
		"targets", len(items),
		"sequential", len(sequential),
		"concurrent", len(concurrent),
		"parallel", parallel)

	if opts.Observer != nil {
		opts.Observer.RunStarted(state.report.RunID, len(items), parallel)
	}

	for _, item := range sequential {
		if ctx.Err() != nil {
			state.addSkipped(item.label)
			continue
		}

		state.addOutcome(o.execute(ctx, store, item, opts))
	}

	var group errgroup.Group

	group.SetLimit(parallel)

	for _, item := range concurrent {
		item := item

		if ctx.Err() != nil {
			state.addSkipped(item.label)
			continue
		}

		group.Go(func() error {
			// The slot may have freed up after cancellation.
			if ctx.Err() != nil {
				state.addSkipped(item.label)
				return nil
			}

			state.addOutcome(o.execute(ctx, store, item, opts))

			return nil
		})
	}

	_ = group.Wait()

	state.report.Cancelled = ctx.Err() != nil

	if o.Metrics != nil && len(state.report.Skipped) > 0 {
		o.Metrics.ObserveSkipped(len(state.report.Skipped))
	}

	passed, failed := state.report.Counts()
	slog.Info("Run finished",
		"runID", state.report.RunID,
		"passed", passed,
		"failed", failed,
		"skipped", len(state.report.Skipped),
		"cancelled", state.report.Cancelled)

	return state.report, nil
}

// expandSelection resolves node ids to leaf targets, de-duplicated in selection order.
func expandSelection(store adapter.NodeStore, selection []string) ([]runItem, error) {
	if len(selection) == 0 {
		for _, child := range store.Children(m.RootID) {
			selection = append(selection, child.ID)
		}
	}

	var items []runItem

	seen := make(map[string]bool)

	add := func(node m.TreeNode) {
		if seen[node.ID] {
			return
		}

		seen[node.ID] = true
		items = append(items, runItem{nodeID: node.ID, label: node.Label, kind: node.TargetKind})
	}

	var expand func(node m.TreeNode)

	expand = func(node m.TreeNode) {
		if node.IsGroup() {
			for _, child := range store.Children(node.ID) {
				expand(child)
			}

			return
		}

		add(node)
	}

	for _, id := range selection {
		node, ok := store.Get(id)
		if !ok {
			slog.Warn("Selected node not found", "id", id)
			continue
		}

		expand(node)
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("no targets match selection %v", selection)
	}

	return items, nil
}

func partition(items []runItem, sequentialKinds []string) (sequential, concurrent []runItem) {
	kinds := make(map[m.Kind]bool, len(sequentialKinds))
	for _, kind := range sequentialKinds {
		kinds[m.Kind(kind)] = true
	}

	for _, item := range items {
		if kinds[item.kind] {
			sequential = append(sequential, item)
		} else {
			concurrent = append(concurrent, item)
		}
	}

	return sequential, concurrent
}

func (o *orchestrator) execute(ctx context.Context, store adapter.NodeStore, item runItem, opts RunOptions) m.TargetOutcome {
	o.updateNode(store, item.nodeID, func(node *m.TreeNode) {
		node.Status = m.StatusRunning
		node.Busy = true
		node.Message = ""
	})

	if opts.Observer != nil {
		opts.Observer.TargetStarted(item.label)
	}

	flags := o.Flags.Resolve(item.label, opts.Overrides, opts.TestFilter)

	slog.Debug("Launching target", "label", item.label, "args", flags.Args())

	// Launched processes are never killed by cancellation; only new launches stop.
	result := o.Runner.RunTest(context.WithoutCancel(ctx), adapter.TestRequest{
		Workspace: opts.Workspace,
		Label:     item.label,
		Args:      flags.Args(),
		Coverage:  opts.Coverage,
	}, func(stream adapter.Stream, line string) {
		if o.Sink != nil {
			o.Sink.WriteLine(item.label, stream, line)
		}
	})

	outcome := m.TargetOutcome{Label: item.label, Duration: result.Duration}

	switch {
	case !result.Launched():
		launchErr := &ExecutionError{Label: item.label, Err: result.LaunchError}
		slog.Error("Target could not be launched", "label", item.label, "error", launchErr)

		outcome.Status = m.StatusFailed
		outcome.Message = fmt.Sprintf("failed to launch: %v", result.LaunchError)
	case result.ExitCode == 0:
		outcome.Status = m.StatusPassed
	default:
		failure := &ExecutionFailure{Label: item.label, ExitCode: result.ExitCode}
		slog.Info("Target failed", "label", item.label, "error", failure)

		outcome.Status = m.StatusFailed
		outcome.Message = ShortFailureMessage(result)
	}

	if result.Launched() {
		o.collectArtifacts(item, opts, &outcome)
	}

	o.updateNode(store, item.nodeID, func(node *m.TreeNode) {
		node.Status = outcome.Status
		node.Busy = false
		node.Message = outcome.Message

		if outcome.Report != nil {
			node.Cases = outcome.Report.TestCases
			summary := outcome.Report.Summary
			node.Summary = &summary
		} else {
			node.Cases = nil
			node.Summary = nil
		}
	})

	if o.Metrics != nil {
		o.Metrics.ObserveOutcome(outcome, !result.Launched())
	}

	if opts.Observer != nil {
		opts.Observer.TargetFinished(outcome)
	}

	return outcome
}

func (o *orchestrator) updateNode(store adapter.NodeStore, id string, fn func(node *m.TreeNode)) {
	if err := store.Update(id, fn); err != nil {
		slog.Warn("Failed to update node", "id", id, "error", err)
	}
}

// collectArtifacts reads the structured report and coverage data the tool left in the
// target's test log directory.
func (o *orchestrator) collectArtifacts(item runItem, opts RunOptions, outcome *m.TargetOutcome) {
	dir, ok := testLogDir(opts, item.label)
	if !ok {
		return
	}

	reportPath := m.Path(filepath.Join(dir, structuredReportFile))
	if o.FS.Exists(reportPath) {
		o.attachStructuredReport(reportPath, item, opts, outcome)
	}

	if !opts.Coverage {
		return
	}

	coveragePath := m.Path(filepath.Join(dir, coverageReportFile))
	if !o.FS.Exists(coveragePath) {
		slog.Debug("No coverage report for target", "label", item.label, "path", coveragePath)
		return
	}

	data, err := o.FS.ReadFile(coveragePath)
	if err != nil {
		slog.Warn("Failed to read coverage report", "path", coveragePath, "error", err)
		return
	}

	coverage, err := o.CoverageParser.Parse(data, opts.Workspace, opts.FallbackRoot)
	if err != nil {
		slog.Warn("Failed to parse coverage report", "path", coveragePath, "error", err)
		return
	}

	summary := coverage.Summary(opts.CoverageKind, coveragePath)
	o.Coverage.SetSummary(item.label, summary)
	o.Coverage.RecordFileDetails(coverage)

	outcome.Coverage = &summary
}

func (o *orchestrator) attachStructuredReport(path m.Path, item runItem, opts RunOptions, outcome *m.TargetOutcome) {
	data, err := o.FS.ReadFile(path)
	if err != nil {
		slog.Warn("Failed to read structured report", "path", path, "error", err)
		return
	}

	report, err := o.ResultParser.Parse(data, item.label)
	if err != nil {
		parseErr := &ParseError{}
		if errors.As(err, &parseErr) {
			outcome.Message = joinMessage(outcome.Message, unreadableReportMessage)
			return
		}

		slog.Warn("Failed to parse structured report", "path", path, "error", err)

		return
	}

	o.locateCases(item, opts, report.TestCases)

	outcome.Report = &report
}

// locateCases fills in source locations the report did not carry.
func (o *orchestrator) locateCases(item runItem, opts RunOptions, cases []m.TestCaseResult) {
	if o.GoFiles == nil {
		return
	}

	pkg := m.PackageOf(item.label)
	if !strings.HasPrefix(pkg, "//") {
		return
	}

	dir := m.Path(filepath.Join(string(opts.Workspace), strings.TrimPrefix(pkg, "//")))

	for i := range cases {
		if cases[i].File != "" || !strings.HasPrefix(cases[i].Name, "Test") {
			continue
		}

		if loc, ok := o.GoFiles.LocateTestFunc(dir, cases[i].Name); ok {
			cases[i].File = string(loc.Path)
			cases[i].Line = loc.Line
		}
	}
}

// testLogDir returns <testlogs>/<package path>/<name> for a main-repository label.
func testLogDir(opts RunOptions, label string) (string, bool) {
	pkg := m.PackageOf(label)
	if !strings.HasPrefix(pkg, "//") {
		return "", false
	}

	testLogs := string(opts.TestLogs)
	if testLogs == "" {
		testLogs = filepath.Join(string(opts.Workspace), "bazel-testlogs")
	}

	name := m.Target{Label: label}.Name()

	return filepath.Join(testLogs, strings.TrimPrefix(pkg, "//"), name), true
}

// ShortFailureMessage summarizes a nonzero exit for display. The full output goes to the
// output sink.
func ShortFailureMessage(result m.ProcessResult) string {
	message := fmt.Sprintf("exited with code %d", result.ExitCode)

	for _, line := range strings.Split(stripansi.Strip(result.CombinedOutput), "\n") {
		line = strings.TrimSpace(line)
		if strings.Contains(line, "FAIL") || strings.HasPrefix(line, "ERROR") {
			return joinMessage(message, truncate(line, maxShortMessageRunes))
		}
	}

	return message
}

func joinMessage(message, detail string) string {
	if message == "" {
		return detail
	}

	return message + ": " + detail
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}

	runes := []rune(s)

	return string(runes[:limit]) + "..."
}
