package controller

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	m "tessel.dev/pkg/tessel/internal/model"
)

const (
	passedIcon  = "✓"
	failedIcon  = "✗"
	runningIcon = "▶"
	idleIcon    = "·"
)

// SimpleUI implements UI with plain line output.
type SimpleUI struct {
	out io.Writer
}

// NewSimpleUI creates a new SimpleUI writing to the command's output.
func NewSimpleUI(cmd *cobra.Command) *SimpleUI {
	return &SimpleUI{out: cmd.OutOrStdout()}
}

func newSimpleUIWriter(out io.Writer) *SimpleUI {
	return &SimpleUI{out: out}
}

// Start initializes the UI.
func (s *SimpleUI) Start(ctx context.Context, _ ...StartOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return nil
}

// Close finalizes the UI.
func (s *SimpleUI) Close(_ context.Context) {}

// Wait blocks until the UI is closed (no-op for SimpleUI).
func (s *SimpleUI) Wait(_ context.Context) {}

// DisplayError prints a failure notice.
func (s *SimpleUI) DisplayError(_ context.Context, err error) {
	if err == nil {
		return
	}

	s.printf("error: %v\n", err)
}

// DisplayDiscovery prints the outcome of a discovery cycle.
func (s *SimpleUI) DisplayDiscovery(ctx context.Context, info DiscoveryInfo) {
	if ctx.Err() != nil {
		return
	}

	if !info.Changed {
		s.printf("Discovered %d test target(s), no change\n", info.Targets)
		return
	}

	s.printf("Discovered %d test target(s) (+%d -%d nodes)\n", info.Targets, info.Added, info.Removed)
}

// DisplayTree prints the node tree as a table.
func (s *SimpleUI) DisplayTree(ctx context.Context, rows []TreeRow) {
	if ctx.Err() != nil {
		return
	}

	s.printf("\n%s", renderTreeTable(rows))
}

func renderTreeTable(rows []TreeRow) string {
	var buf bytes.Buffer

	table := newTable(&buf, []string{"Target", "Kind", "Status", "Tags", "Coverage"})

	targets := 0

	for _, row := range rows {
		node := row.Node
		indent := strings.Repeat("  ", row.Depth)

		if node.IsGroup() {
			table.Append([]string{indent + node.Label, "", "", "", ""})
			continue
		}

		if node.Kind == m.NodeTarget {
			targets++
		}

		kind := string(node.TargetKind)
		if node.ShardCount != nil {
			kind = fmt.Sprintf("%s (%d shards)", kind, *node.ShardCount)
		}

		table.Append([]string{
			indent + node.Label,
			kind,
			statusIcon(node.Status) + " " + node.Status.String(),
			strings.Join(node.Tags, ","),
			row.Coverage,
		})
	}

	table.SetFooter([]string{fmt.Sprintf("Total targets %d", targets), "", "", "", ""})
	table.Render()

	return buf.String()
}

// DisplayRunStart announces a run.
func (s *SimpleUI) DisplayRunStart(ctx context.Context, runID string, targets int, parallel int) {
	if ctx.Err() != nil {
		return
	}

	s.printf("Running %d target(s) with %d worker(s) (run %s)\n", targets, parallel, runID)
}

// DisplayTargetStarted prints a launch line.
func (s *SimpleUI) DisplayTargetStarted(_ context.Context, label string) {
	s.printf("%s %s\n", runningIcon, label)
}

// DisplayTargetFinished prints a completion line.
func (s *SimpleUI) DisplayTargetFinished(_ context.Context, outcome m.TargetOutcome) {
	s.printf("%s\n", formatOutcomeLine(outcome))
}

func formatOutcomeLine(outcome m.TargetOutcome) string {
	line := fmt.Sprintf("%s %s (%s)", statusIcon(outcome.Status), outcome.Label, formatDuration(outcome.Duration))

	if outcome.Coverage != nil {
		line += " cov=" + m.FormatPercent(outcome.Coverage.Percent)
	}

	if outcome.Message != "" {
		line += ": " + outcome.Message
	}

	return line
}

// DisplayRunSummary prints the per-target result table.
func (s *SimpleUI) DisplayRunSummary(ctx context.Context, report m.RunReport) {
	if ctx.Err() != nil {
		return
	}

	s.printf("\n%s", renderRunSummary(report))

	if report.Cancelled {
		s.printf("Run cancelled, %d target(s) not started\n", len(report.Skipped))
	}
}

func renderRunSummary(report m.RunReport) string {
	outcomes := append([]m.TargetOutcome(nil), report.Outcomes...)
	sort.Slice(outcomes, func(i, j int) bool {
		return outcomes[i].Label < outcomes[j].Label
	})

	var buf bytes.Buffer

	table := newTable(&buf, []string{"Target", "Status", "Cases", "Duration", "Message"})

	for _, outcome := range outcomes {
		cases := ""
		if outcome.Report != nil {
			summary := outcome.Report.Summary
			cases = fmt.Sprintf("%d/%d", summary.Passed, summary.Total)
		}

		table.Append([]string{
			outcome.Label,
			statusIcon(outcome.Status) + " " + outcome.Status.String(),
			cases,
			formatDuration(outcome.Duration),
			outcome.Message,
		})
	}

	passed, failed := report.Counts()

	table.SetFooter([]string{
		fmt.Sprintf("Passed %d", passed),
		fmt.Sprintf("Failed %d", failed),
		fmt.Sprintf("Skipped %d", len(report.Skipped)),
		"",
		"",
	})
	table.Render()

	return buf.String()
}

// DisplayCoverageHistory prints the coverage runs of one target.
func (s *SimpleUI) DisplayCoverageHistory(ctx context.Context, label string, runs []m.CoverageRun) {
	if ctx.Err() != nil {
		return
	}

	if len(runs) == 0 {
		s.printf("%s: no coverage recorded\n", label)
		return
	}

	current := runs[len(runs)-1].Summary
	s.printf("\n%s cov=%s (%d/%d %s)\n", label, m.FormatPercent(current.Percent), current.Covered, current.Total, current.Kind)

	var buf bytes.Buffer

	table := newTable(&buf, []string{"Run", "Timestamp", "Covered", "Total", "Percent"})

	for i, run := range runs {
		table.Append([]string{
			fmt.Sprintf("%d", i+1),
			run.Timestamp.Format(time.RFC3339),
			fmt.Sprintf("%d", run.Summary.Covered),
			fmt.Sprintf("%d", run.Summary.Total),
			m.FormatPercent(run.Summary.Percent),
		})
	}

	table.Render()
	s.printf("%s", buf.String())
}

// DisplayCases prints the cases of a structured report.
func (s *SimpleUI) DisplayCases(ctx context.Context, report m.StructuredReport) {
	if ctx.Err() != nil {
		return
	}

	var buf bytes.Buffer

	table := newTable(&buf, []string{"Case", "Status", "Location", "Message"})

	for _, c := range report.TestCases {
		location := c.File
		if location != "" && c.Line > 0 {
			location = fmt.Sprintf("%s:%d", c.File, c.Line)
		}

		table.Append([]string{c.Name, string(c.Status), location, firstLine(c.ErrorMessage)})
	}

	summary := report.Summary
	table.SetFooter([]string{
		fmt.Sprintf("Total %d", summary.Total),
		fmt.Sprintf("Passed %d Failed %d", summary.Passed, summary.Failed),
		fmt.Sprintf("Skipped %d", summary.Skipped),
		fmt.Sprintf("Timeout %d Error %d", summary.Timeout, summary.Errored),
	})
	table.Render()

	s.printf("\n%s", buf.String())
}

// DisplayFileCoverage prints per-file coverage.
func (s *SimpleUI) DisplayFileCoverage(ctx context.Context, summary m.CoverageSummary) {
	if ctx.Err() != nil {
		return
	}

	var buf bytes.Buffer

	table := newTable(&buf, []string{"Path", "Covered", "Total", "Percent"})

	for _, file := range summary.Files {
		table.Append([]string{
			string(file.Path),
			fmt.Sprintf("%d", file.Covered),
			fmt.Sprintf("%d", file.Total),
			m.FormatPercent(file.Percent),
		})
	}

	table.SetFooter([]string{
		fmt.Sprintf("Total Files %d", len(summary.Files)),
		fmt.Sprintf("%d", summary.Covered),
		fmt.Sprintf("%d", summary.Total),
		m.FormatPercent(summary.Percent),
	})
	table.Render()

	s.printf("\n%s", buf.String())
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	return table
}

func (s *SimpleUI) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.out, format, args...)
}

func statusIcon(status m.NodeStatus) string {
	switch status {
	case m.StatusPassed:
		return passedIcon
	case m.StatusFailed:
		return failedIcon
	case m.StatusRunning:
		return runningIcon
	case m.StatusIdle:
		return idleIcon
	default:
		return idleIcon
	}
}

func formatDuration(d time.Duration) string {
	return d.Round(10 * time.Millisecond).String()
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
