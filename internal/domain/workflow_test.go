package domain

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tessel.dev/pkg/tessel/internal/adapter"
	adaptermocks "tessel.dev/pkg/tessel/internal/adapter/mocks"
	"tessel.dev/pkg/tessel/internal/controller"
	controllermocks "tessel.dev/pkg/tessel/internal/controller/mocks"
	m "tessel.dev/pkg/tessel/internal/model"
)

const twoTargets = "go_test rule //pkg:a_test\ngo_test rule //pkg:b_test\n"

type textfileMetrics struct {
	recordingMetrics
	written []string
}

func (t *textfileMetrics) WriteTextfile(path string) error {
	t.written = append(t.written, path)
	return nil
}

type workflowFixture struct {
	query    *adaptermocks.MockQueryAdapter
	runner   *adaptermocks.MockTestRunnerAdapter
	reports  *adaptermocks.MockReportStore
	watcher  *adaptermocks.MockBuildFileWatcher
	ui       *controllermocks.MockUI
	store    *adapter.MemoryNodeStore
	coverage CoverageStore
	metrics  *textfileMetrics
	root     string
	wf       Workflow
}

func newWorkflowFixture(t *testing.T) *workflowFixture {
	t.Helper()

	fs := adapter.NewLocalSourceFSAdapter()
	root := t.TempDir()

	f := &workflowFixture{
		query:    adaptermocks.NewMockQueryAdapter(t),
		runner:   adaptermocks.NewMockTestRunnerAdapter(t),
		reports:  adaptermocks.NewMockReportStore(t),
		watcher:  adaptermocks.NewMockBuildFileWatcher(t),
		ui:       controllermocks.NewMockUI(t),
		store:    adapter.NewMemoryNodeStore(),
		coverage: NewCoverageStore(),
		metrics:  &textfileMetrics{},
		root:     root,
	}

	discovery := NewTargetDiscoveryCache(f.query, DiscoveryConfig{Workspace: m.Path(root)})
	resultParser := NewStructuredResultParser()
	coverageParser := NewCoverageRecordParser(fs)

	orch := NewOrchestrator(OrchestratorDeps{
		Runner:         f.runner,
		FS:             fs,
		ResultParser:   resultParser,
		CoverageParser: coverageParser,
		Coverage:       f.coverage,
		Flags:          NewFlagResolver(FlagConfig{}, discovery),
		Metrics:        f.metrics,
	})

	f.wf = NewWorkflow(WorkflowDeps{
		Workspace:      m.Path(root),
		FS:             fs,
		Reports:        f.reports,
		Watcher:        f.watcher,
		Store:          f.store,
		UI:             f.ui,
		Discovery:      discovery,
		Reconciler:     NewTreeReconciler(fs, m.Path(root)),
		Orchestrator:   orch,
		ResultParser:   resultParser,
		CoverageParser: coverageParser,
		CoverageStore:  f.coverage,
		Metrics:        f.metrics,
	})

	return f
}

func (f *workflowFixture) expectDiscovery(output string) *mock.Call {
	f.query.On("Query", mock.Anything, m.Path(f.root), hasPrefix("attr(shard_count"), adapter.OutputXML).
		Return("", nil).Maybe()

	return f.query.On("Query", mock.Anything, m.Path(f.root), mock.MatchedBy(isMainQuery), adapter.OutputLabelKind).
		Return(output, nil)
}

func (f *workflowFixture) expectRunDisplay() {
	f.ui.On("Start", mock.Anything, mock.Anything).Return(nil).Once()
	f.ui.On("Close", mock.Anything).Once()
	f.ui.On("DisplayDiscovery", mock.Anything, mock.Anything).Once()
	f.ui.On("DisplayRunStart", mock.Anything, mock.Anything, 2, DefaultParallel).Once()
	f.ui.On("DisplayTargetStarted", mock.Anything, mock.Anything).Times(2)
	f.ui.On("DisplayTargetFinished", mock.Anything, mock.Anything).Times(2)
	f.ui.On("DisplayRunSummary", mock.Anything, mock.MatchedBy(func(report m.RunReport) bool {
		return len(report.Outcomes) == 2
	})).Once()
}

func TestWorkflow_Discover(t *testing.T) {
	f := newWorkflowFixture(t)
	f.expectDiscovery(twoTargets).Once()

	f.ui.On("Start", mock.Anything, mock.Anything).Return(nil).Once()
	f.ui.On("Close", mock.Anything).Once()
	f.ui.On("DisplayDiscovery", mock.Anything, controller.DiscoveryInfo{Targets: 2, Changed: true, Added: 3}).Once()
	f.ui.On("DisplayTree", mock.Anything, mock.MatchedBy(func(rows []controller.TreeRow) bool {
		return len(rows) == 3 &&
			rows[0].Node.ID == "//pkg" && rows[0].Depth == 0 &&
			rows[1].Node.ID == "//pkg:a_test" && rows[1].Depth == 1
	})).Once()

	require.NoError(t, f.wf.Discover(context.Background(), DiscoverArgs{}))
}

func TestWorkflow_DiscoverFailure(t *testing.T) {
	f := newWorkflowFixture(t)
	f.query.On("Query", mock.Anything, m.Path(f.root), mock.MatchedBy(isMainQuery), adapter.OutputLabelKind).
		Return("", errors.New("bazel crashed")).Once()

	f.ui.On("Start", mock.Anything, mock.Anything).Return(nil).Once()
	f.ui.On("Close", mock.Anything).Once()
	f.ui.On("DisplayError", mock.Anything, mock.Anything).Once()

	err := f.wf.Discover(context.Background(), DiscoverArgs{})

	var discoveryErr *DiscoveryError
	require.ErrorAs(t, err, &discoveryErr)
	assert.True(t, IsReported(err))
	assert.Empty(t, f.store.Children(m.RootID))
}

func TestWorkflow_DiscoverExpandsSuites(t *testing.T) {
	f := newWorkflowFixture(t)
	f.expectDiscovery("test_suite rule //pkg:all\ngo_test rule //pkg:a_test\n").Once()
	f.query.On("Query", mock.Anything, m.Path(f.root), "tests(//pkg:all)", adapter.OutputLabel).
		Return("//pkg:a_test\n", nil).Once()

	f.ui.On("Start", mock.Anything, mock.Anything).Return(nil).Once()
	f.ui.On("Close", mock.Anything).Once()
	f.ui.On("DisplayDiscovery", mock.Anything, controller.DiscoveryInfo{Targets: 2, Changed: true, Added: 4}).Once()
	f.ui.On("DisplayTree", mock.Anything, mock.Anything).Once()

	require.NoError(t, f.wf.Discover(context.Background(), DiscoverArgs{ExpandSuites: true}))

	_, ok := f.store.Get(SuiteMemberID("//pkg:all", "//pkg:a_test"))
	assert.True(t, ok)
}

func TestWorkflow_Run(t *testing.T) {
	t.Run("all passing with coverage", func(t *testing.T) {
		f := newWorkflowFixture(t)
		f.expectDiscovery(twoTargets).Once()
		f.expectRunDisplay()

		reports := m.Path(filepath.Join(f.root, ".tessel"))
		f.reports.On("LoadCoverage", reports).Return(adapter.CoverageHistory{}, nil).Once()
		f.reports.On("SaveCoverage", reports, mock.Anything).Return(nil).Once()
		f.runner.On("RunTest", mock.Anything, mock.Anything, mock.Anything).Return(m.ProcessResult{}).Times(2)

		err := f.wf.Run(context.Background(), RunArgs{
			Coverage:        true,
			Reports:         reports,
			MetricsTextfile: filepath.Join(f.root, "tessel.prom"),
		})
		require.NoError(t, err)

		assert.Equal(t, []string{filepath.Join(f.root, "tessel.prom")}, f.metrics.written)
		assert.Equal(t, 2, f.metrics.outcomes)
	})

	t.Run("failures are reported", func(t *testing.T) {
		f := newWorkflowFixture(t)
		f.expectDiscovery(twoTargets).Once()
		f.expectRunDisplay()

		f.reports.On("LoadCoverage", m.Path("")).Return(nil, errors.New("corrupt")).Once()
		f.runner.On("RunTest", mock.Anything, mock.MatchedBy(func(req adapter.TestRequest) bool {
			return req.Label == "//pkg:a_test"
		}), mock.Anything).Return(m.ProcessResult{ExitCode: 1}).Once()
		f.runner.On("RunTest", mock.Anything, mock.MatchedBy(func(req adapter.TestRequest) bool {
			return req.Label == "//pkg:b_test"
		}), mock.Anything).Return(m.ProcessResult{}).Once()

		err := f.wf.Run(context.Background(), RunArgs{})
		require.ErrorIs(t, err, ErrTargetsFailed)
		assert.Empty(t, f.metrics.written)
	})

	t.Run("selection that matches nothing", func(t *testing.T) {
		f := newWorkflowFixture(t)
		f.expectDiscovery(twoTargets).Once()

		f.reports.On("LoadCoverage", m.Path("")).Return(adapter.CoverageHistory{}, nil).Once()
		f.ui.On("Start", mock.Anything, mock.Anything).Return(nil).Once()
		f.ui.On("Close", mock.Anything).Once()
		f.ui.On("DisplayDiscovery", mock.Anything, mock.Anything).Once()
		f.ui.On("DisplayError", mock.Anything, mock.Anything).Once()

		err := f.wf.Run(context.Background(), RunArgs{Selection: []string{"//other"}})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrTargetsFailed)
	})
}

func TestWorkflow_Watch(t *testing.T) {
	f := newWorkflowFixture(t)
	f.expectDiscovery(twoTargets).Once()
	f.expectDiscovery("go_test rule //pkg:a_test\n").Once()

	f.ui.On("Start", mock.Anything, mock.Anything).Return(nil).Once()
	f.ui.On("Close", mock.Anything).Once()
	f.ui.On("DisplayDiscovery", mock.Anything, mock.Anything).Times(2)
	f.ui.On("DisplayTree", mock.Anything, mock.Anything).Times(2)

	f.watcher.On("Watch", mock.Anything, m.Path(f.root), mock.Anything).
		Return(func(onChange func([]string)) error {
			onChange([]string{filepath.Join(f.root, "pkg", "BUILD.bazel")})
			return nil
		}).Once()

	require.NoError(t, f.wf.Watch(context.Background(), WatchArgs{}))

	_, ok := f.store.Get("//pkg:b_test")
	assert.False(t, ok)
}

// packageSet lists one test target in each of n packages named prefix0..prefixN-1.
func packageSet(prefix string, n int) string {
	var b strings.Builder

	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "go_test rule //%s%d:ta_test\n", prefix, i)
	}

	return b.String()
}

func TestWorkflow_WatchSerializesRefreshes(t *testing.T) {
	const changes = 10

	f := newWorkflowFixture(t)
	f.expectDiscovery(packageSet("g", 20)).Once()

	for i := 0; i < changes; i++ {
		prefix := "h"
		if i%2 == 1 {
			prefix = "g"
		}

		f.expectDiscovery(packageSet(prefix, 20)).Once()
	}

	f.ui.On("Start", mock.Anything, mock.Anything).Return(nil).Once()
	f.ui.On("Close", mock.Anything).Once()
	f.ui.On("DisplayDiscovery", mock.Anything, mock.Anything).Times(changes + 1)
	f.ui.On("DisplayTree", mock.Anything, mock.Anything).Times(changes + 1)

	f.watcher.On("Watch", mock.Anything, m.Path(f.root), mock.Anything).
		Return(func(onChange func([]string)) error {
			for i := 0; i < changes; i++ {
				onChange([]string{filepath.Join(f.root, "BUILD.bazel")})
			}

			return nil
		}).Once()

	require.NoError(t, f.wf.Watch(context.Background(), WatchArgs{}))

	groups := f.store.Children(m.RootID)
	require.Len(t, groups, 20)

	for _, group := range groups {
		assert.Len(t, f.store.Children(group.ID), 1, group.ID)
	}
}

func TestWorkflow_Coverage(t *testing.T) {
	f := newWorkflowFixture(t)

	history := adapter.CoverageHistory{
		"//pkg:b_test": {{Summary: m.CoverageSummary{Percent: 20}}},
		"//pkg:a_test": {{Summary: m.CoverageSummary{Percent: 10}}, {Summary: m.CoverageSummary{Percent: 30}}},
	}

	f.reports.On("LoadCoverage", m.Path(".tessel")).Return(history, nil).Twice()

	var shown []string

	f.ui.On("DisplayCoverageHistory", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			shown = append(shown, args.String(1))
		})

	require.NoError(t, f.wf.Coverage(context.Background(), CoverageArgs{Reports: ".tessel"}))
	assert.Equal(t, []string{"//pkg:a_test", "//pkg:b_test"}, shown)

	shown = nil

	require.NoError(t, f.wf.Coverage(context.Background(), CoverageArgs{Reports: ".tessel", Labels: []string{"//pkg:b_test"}}))
	assert.Equal(t, []string{"//pkg:b_test"}, shown)
}

func TestWorkflow_Report(t *testing.T) {
	f := newWorkflowFixture(t)

	path := filepath.Join(f.root, "test.xml")
	writeFile(t, path, failingReport)

	f.ui.On("DisplayCases", mock.Anything, mock.MatchedBy(func(report m.StructuredReport) bool {
		return report.Target == "//calc:calc_test" && report.Summary.Failed == 2
	})).Once()

	require.NoError(t, f.wf.Report(context.Background(), ReportArgs{Path: m.Path(path), Target: "//calc:calc_test"}))

	t.Run("not well-formed", func(t *testing.T) {
		broken := filepath.Join(f.root, "broken.xml")
		writeFile(t, broken, "<testsuite>")

		f.ui.On("DisplayError", mock.Anything, mock.Anything).Once()

		err := f.wf.Report(context.Background(), ReportArgs{Path: m.Path(broken)})

		var parseErr *ParseError
		require.ErrorAs(t, err, &parseErr)
		assert.Equal(t, broken, parseErr.Source)
	})
}

func TestWorkflow_Lcov(t *testing.T) {
	f := newWorkflowFixture(t)

	path := filepath.Join(f.root, "coverage.dat")
	writeFile(t, path, "SF:calc.go\nDA:3,3\nDA:3,4\nDA:4,0\nbogus\nDA:x,1\nend_of_record\n")

	f.ui.On("DisplayFileCoverage", mock.Anything, mock.MatchedBy(func(summary m.CoverageSummary) bool {
		return summary.Covered == 1 && summary.Total == 2 && len(summary.Artifacts) == 1
	})).Once()

	require.NoError(t, f.wf.Lcov(context.Background(), LcovArgs{Path: m.Path(path)}))

	detail, ok := f.coverage.FileDetail(m.Path(filepath.Join(f.root, "calc.go")))
	require.True(t, ok)
	assert.Equal(t, 7, detail.Lines[2])

	t.Run("missing file", func(t *testing.T) {
		f.ui.On("DisplayError", mock.Anything, mock.Anything).Once()

		err := f.wf.Lcov(context.Background(), LcovArgs{Path: m.Path(filepath.Join(f.root, "missing.dat"))})
		assert.Error(t, err)
	})
}
