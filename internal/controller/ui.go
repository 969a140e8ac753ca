// Package controller renders discovery, run and coverage results for the terminal.
package controller

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	m "tessel.dev/pkg/tessel/internal/model"
)

// StartMode defines the mode of operation for the UI.
type StartMode int

// Available StartMode values.
const (
	ModeBrowse StartMode = iota
	ModeRun
)

// StartOption is a functional option for Start method.
type StartOption func(*StartConfig)

// StartConfig holds configuration for starting the UI.
type StartConfig struct {
	mode StartMode
}

// WithBrowseMode sets the UI to static display mode.
func WithBrowseMode() StartOption {
	return func(c *StartConfig) {
		c.mode = ModeBrowse
	}
}

// WithRunMode sets the UI to live run mode.
func WithRunMode() StartOption {
	return func(c *StartConfig) {
		c.mode = ModeRun
	}
}

func newStartConfig(options []StartOption) StartConfig {
	config := StartConfig{mode: ModeBrowse}
	for _, option := range options {
		option(&config)
	}

	return config
}

// TreeRow is one displayed line of the node tree.
type TreeRow struct {
	Node     m.TreeNode
	Depth    int
	Coverage string
}

// DiscoveryInfo summarizes one discovery and reconciliation cycle.
type DiscoveryInfo struct {
	Targets int
	Changed bool
	Added   int
	Removed int
}

// UI defines how workflows present their results.
// Implementations can use different output methods (simple text, TUI, etc).
type UI interface {
	Start(ctx context.Context, options ...StartOption) error
	Close(ctx context.Context)
	Wait(ctx context.Context)
	DisplayError(ctx context.Context, err error)
	DisplayDiscovery(ctx context.Context, info DiscoveryInfo)
	DisplayTree(ctx context.Context, rows []TreeRow)
	DisplayRunStart(ctx context.Context, runID string, targets int, parallel int)
	DisplayTargetStarted(ctx context.Context, label string)
	DisplayTargetFinished(ctx context.Context, outcome m.TargetOutcome)
	DisplayRunSummary(ctx context.Context, report m.RunReport)
	DisplayCoverageHistory(ctx context.Context, label string, runs []m.CoverageRun)
	DisplayCases(ctx context.Context, report m.StructuredReport)
	DisplayFileCoverage(ctx context.Context, summary m.CoverageSummary)
}

// NewUI returns the TUI for terminals and the SimpleUI otherwise.
func NewUI(cmd *cobra.Command, isTTY bool) UI {
	if isTTY {
		return NewTUI(cmd.OutOrStdout())
	}

	return NewSimpleUI(cmd)
}

// IsTTY reports whether f is a terminal.
func IsTTY(f *os.File) bool {
	if f == nil {
		return false
	}

	return term.IsTerminal(int(f.Fd()))
}
