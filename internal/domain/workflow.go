package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"tessel.dev/pkg/tessel/internal/adapter"
	"tessel.dev/pkg/tessel/internal/controller"
	m "tessel.dev/pkg/tessel/internal/model"
)

// ErrTargetsFailed is returned by Run when at least one target failed.
var ErrTargetsFailed = errors.New("one or more targets failed")

// DiscoverArgs contains the arguments of a discovery cycle.
type DiscoverArgs struct {
	ExpandSuites bool
}

// RunArgs contains the arguments for running targets.
type RunArgs struct {
	DiscoverArgs
	Selection       []string
	Parallel        int
	SequentialKinds []string
	Overrides       m.Flags
	TestFilter      string
	Coverage        bool
	CoverageKind    m.CoverageKind
	FallbackRoot    m.Path
	TestLogs        m.Path
	Reports         m.Path
	MetricsTextfile string
}

// WatchArgs contains the arguments of watch mode.
type WatchArgs struct {
	DiscoverArgs
}

// CoverageArgs selects which coverage history to show.
type CoverageArgs struct {
	Labels  []string
	Reports m.Path
}

// ReportArgs points at a structured report file.
type ReportArgs struct {
	Path   m.Path
	Target string
}

// LcovArgs points at an LCOV file.
type LcovArgs struct {
	Path         m.Path
	BaseFolder   m.Path
	FallbackRoot m.Path
	Kind         m.CoverageKind
}

// Workflow is the entry point of every command. It is the single place where discovery
// and document failures are reported to the user and logged.
type Workflow interface {
	Discover(ctx context.Context, args DiscoverArgs) error
	Run(ctx context.Context, args RunArgs) error
	Watch(ctx context.Context, args WatchArgs) error
	Coverage(ctx context.Context, args CoverageArgs) error
	Report(ctx context.Context, args ReportArgs) error
	Lcov(ctx context.Context, args LcovArgs) error
}

// MetricsSink records run outcomes and can persist them.
type MetricsSink interface {
	OutcomeRecorder
	WriteTextfile(path string) error
}

// WorkflowDeps are the collaborators of the workflow.
type WorkflowDeps struct {
	Workspace      m.Path
	FS             adapter.SourceFSAdapter
	Reports        adapter.ReportStore
	Watcher        adapter.BuildFileWatcher
	Store          adapter.NodeStore
	UI             controller.UI
	Discovery      TargetDiscoveryCache
	Reconciler     TreeReconciler
	Orchestrator   ExecutionOrchestrator
	ResultParser   StructuredResultParser
	CoverageParser CoverageRecordParser
	CoverageStore  CoverageStore
	Metrics        MetricsSink
}

type workflow struct {
	WorkflowDeps

	// refreshes tracks watch-mode refreshes still running.
	refreshes sync.WaitGroup

	// cycle serializes discovery cycles so one reconciliation never sees another's
	// half-built tree.
	cycle sync.Mutex
}

// NewWorkflow creates a new Workflow instance with the provided dependencies.
func NewWorkflow(deps WorkflowDeps) Workflow {
	return &workflow{WorkflowDeps: deps}
}

func (w *workflow) Discover(ctx context.Context, args DiscoverArgs) error {
	if err := w.UI.Start(ctx, controller.WithBrowseMode()); err != nil {
		slog.Error("Failed to start workflow UI", "error", err)
		return err
	}
	defer w.UI.Close(ctx)

	if err := w.discoverAndReconcile(ctx, args); err != nil {
		return w.fail(ctx, "discover", err)
	}

	w.UI.DisplayTree(ctx, w.treeRows())

	return nil
}

func (w *workflow) Run(ctx context.Context, args RunArgs) error {
	w.restoreCoverage(args.Reports)

	if err := w.discoverAndReconcile(ctx, args.DiscoverArgs); err != nil {
		return w.fail(ctx, "discover", err)
	}

	if err := w.UI.Start(ctx, controller.WithRunMode()); err != nil {
		slog.Error("Failed to start workflow UI", "error", err)
		return err
	}

	report, err := w.Orchestrator.Run(ctx, w.Store, args.Selection, RunOptions{
		Workspace:       w.Workspace,
		TestLogs:        args.TestLogs,
		Parallel:        args.Parallel,
		SequentialKinds: args.SequentialKinds,
		Overrides:       args.Overrides,
		TestFilter:      args.TestFilter,
		Coverage:        args.Coverage,
		CoverageKind:    args.CoverageKind,
		FallbackRoot:    args.FallbackRoot,
		Observer:        &uiObserver{ctx: ctx, ui: w.UI},
	})

	w.UI.Close(ctx)

	if err != nil {
		return w.fail(ctx, "run", err)
	}

	w.UI.DisplayRunSummary(ctx, report)

	if args.Coverage {
		if err := w.Reports.SaveCoverage(args.Reports, w.CoverageStore.Snapshot()); err != nil {
			return w.fail(ctx, "save coverage history", err)
		}
	}

	if args.MetricsTextfile != "" && w.Metrics != nil {
		if err := w.Metrics.WriteTextfile(args.MetricsTextfile); err != nil {
			return w.fail(ctx, "write metrics", err)
		}
	}

	if _, failed := report.Counts(); failed > 0 {
		// The run summary already lists the failed targets.
		return &ReportedError{Err: fmt.Errorf("%d target(s): %w", failed, ErrTargetsFailed)}
	}

	return nil
}

func (w *workflow) Watch(ctx context.Context, args WatchArgs) error {
	if err := w.UI.Start(ctx, controller.WithBrowseMode()); err != nil {
		slog.Error("Failed to start workflow UI", "error", err)
		return err
	}
	defer w.UI.Close(ctx)

	if err := w.discoverAndReconcile(ctx, args.DiscoverArgs); err != nil {
		return w.fail(ctx, "discover", err)
	}

	w.UI.DisplayTree(ctx, w.treeRows())

	err := w.Watcher.Watch(ctx, w.Workspace, func(paths []string) {
		slog.Info("Build files changed", "paths", paths)

		w.refreshes.Add(1)

		go func() {
			defer w.refreshes.Done()

			w.refreshOnChange(ctx, args.DiscoverArgs)
		}()
	})

	w.refreshes.Wait()

	if err != nil {
		return w.fail(ctx, "watch", err)
	}

	return nil
}

func (w *workflow) refreshOnChange(ctx context.Context, args DiscoverArgs) {
	err := w.discoverAndReconcile(ctx, args)

	switch {
	case errors.Is(err, ErrRefreshInFlight):
		slog.Debug("Build file change ignored, refresh already running")
	case err != nil:
		// Watch keeps going; the previous tree stays valid.
		_ = w.fail(ctx, "discover", err)
	default:
		w.UI.DisplayTree(ctx, w.treeRows())
	}
}

func (w *workflow) Coverage(ctx context.Context, args CoverageArgs) error {
	history, err := w.Reports.LoadCoverage(args.Reports)
	if err != nil {
		return w.fail(ctx, "load coverage history", err)
	}

	w.CoverageStore.Restore(history)

	labels := args.Labels
	if len(labels) == 0 {
		labels = w.CoverageStore.Labels()
	}

	for _, label := range labels {
		w.UI.DisplayCoverageHistory(ctx, label, w.CoverageStore.GetRuns(label))
	}

	return nil
}

func (w *workflow) Report(ctx context.Context, args ReportArgs) error {
	data, err := w.FS.ReadFile(args.Path)
	if err != nil {
		return w.fail(ctx, "read structured report", err)
	}

	target := args.Target
	if target == "" {
		target = string(args.Path)
	}

	report, err := w.ResultParser.Parse(data, target)
	if err != nil {
		return w.fail(ctx, "parse structured report", err)
	}

	w.UI.DisplayCases(ctx, report)

	return nil
}

func (w *workflow) Lcov(ctx context.Context, args LcovArgs) error {
	data, err := w.FS.ReadFile(args.Path)
	if err != nil {
		return w.fail(ctx, "read coverage report", err)
	}

	baseFolder := args.BaseFolder
	if baseFolder == "" {
		baseFolder = w.Workspace
	}

	report, err := w.CoverageParser.Parse(data, baseFolder, args.FallbackRoot)
	if err != nil {
		return w.fail(ctx, "parse coverage report", err)
	}

	if len(report.Skipped) > 0 {
		slog.Info("Skipped unreadable coverage records", "path", args.Path, "count", len(report.Skipped))
	}

	w.CoverageStore.RecordFileDetails(report)
	w.UI.DisplayFileCoverage(ctx, report.Summary(args.Kind, args.Path))

	return nil
}

// discoverAndReconcile refreshes the target cache and, when it changed or the tree is
// still empty, reconciles the tree against it.
func (w *workflow) discoverAndReconcile(ctx context.Context, args DiscoverArgs) error {
	w.cycle.Lock()
	defer w.cycle.Unlock()

	targets, changed, err := w.Discovery.Refresh(ctx)
	if err != nil {
		return err
	}

	info := controller.DiscoveryInfo{Targets: len(targets), Changed: changed}

	if changed || len(w.Store.Children(m.RootID)) == 0 {
		stats, err := w.Reconciler.Reconcile(w.Store, targets)
		if err != nil {
			return fmt.Errorf("reconcile tree: %w", err)
		}

		info.Added, info.Removed = stats.Added, stats.Removed
	}

	if args.ExpandSuites {
		w.expandSuites(ctx, targets, &info)
	}

	w.UI.DisplayDiscovery(ctx, info)

	return nil
}

func (w *workflow) expandSuites(ctx context.Context, targets []m.Target, info *controller.DiscoveryInfo) {
	for _, target := range targets {
		if target.Kind != m.KindTestSuite {
			continue
		}

		members, err := w.Discovery.ExpandSuite(ctx, target.Label)
		if err != nil {
			slog.Warn("Failed to expand suite", "label", target.Label, "error", err)
			continue
		}

		stats, err := w.Reconciler.AttachSuiteMembers(w.Store, target.Label, members)
		if err != nil {
			slog.Warn("Failed to attach suite members", "label", target.Label, "error", err)
			continue
		}

		info.Added += stats.Added
		info.Removed += stats.Removed
	}
}

func (w *workflow) restoreCoverage(reports m.Path) {
	history, err := w.Reports.LoadCoverage(reports)
	if err != nil {
		slog.Warn("Failed to load coverage history, starting empty", "error", err)
		return
	}

	w.CoverageStore.Restore(history)
}

func (w *workflow) treeRows() []controller.TreeRow {
	var rows []controller.TreeRow

	adapter.Walk(w.Store, func(node m.TreeNode, depth int) {
		row := controller.TreeRow{Node: node, Depth: depth}

		if !node.IsGroup() {
			if summary, ok := w.CoverageStore.GetSummary(node.Label); ok {
				row.Coverage = FormatShort(summary)
			}
		}

		rows = append(rows, row)
	})

	return rows
}

// fail is the top-level failure handler: one notice to the user and one log entry.
func (w *workflow) fail(ctx context.Context, op string, err error) error {
	slog.Error("Workflow failed", "op", op, "error", err)
	w.UI.DisplayError(ctx, err)

	return &ReportedError{Err: fmt.Errorf("%s: %w", op, err)}
}

// uiObserver forwards orchestrator events to the UI.
type uiObserver struct {
	ctx context.Context
	ui  controller.UI
}

func (o *uiObserver) RunStarted(runID string, targets int, parallel int) {
	o.ui.DisplayRunStart(o.ctx, runID, targets, parallel)
}

func (o *uiObserver) TargetStarted(label string) {
	o.ui.DisplayTargetStarted(o.ctx, label)
}

func (o *uiObserver) TargetFinished(outcome m.TargetOutcome) {
	o.ui.DisplayTargetFinished(o.ctx, outcome)
}
