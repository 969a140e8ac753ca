package model

import "time"

// ProcessResult is what the external test tool produced for one invocation.
// LaunchError is set when the process never started; ExitCode is meaningless then.
type ProcessResult struct {
	ExitCode       int
	CombinedOutput string
	LaunchError    error
	Duration       time.Duration
}

// Launched reports whether the process started.
func (r ProcessResult) Launched() bool {
	return r.LaunchError == nil
}

// TargetOutcome is the routed result of one executed target.
type TargetOutcome struct {
	Label    string
	Status   NodeStatus
	Message  string
	Report   *StructuredReport
	Coverage *CoverageSummary
	Duration time.Duration
}

// RunReport is the result of one orchestrated run.
type RunReport struct {
	RunID     string
	Outcomes  []TargetOutcome
	Skipped   []string
	Cancelled bool
}

// Counts returns the number of passed and failed outcomes.
func (r RunReport) Counts() (passed, failed int) {
	for _, outcome := range r.Outcomes {
		switch outcome.Status {
		case StatusPassed:
			passed++
		case StatusFailed:
			failed++
		case StatusIdle, StatusRunning:
		}
	}

	return passed, failed
}
