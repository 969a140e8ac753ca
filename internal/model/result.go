package model

// CaseStatus is the outcome of a single test case in a structured report.
type CaseStatus string

const (
	// CasePass indicates the case passed.
	CasePass CaseStatus = "PASS"
	// CaseFail indicates an assertion failure or error element.
	CaseFail CaseStatus = "FAIL"
	// CaseSkip indicates the case was skipped.
	CaseSkip CaseStatus = "SKIP"
	// CaseTimeout indicates the failure was classified as a timeout.
	CaseTimeout CaseStatus = "TIMEOUT"
	// CaseError indicates the case was declared but could not be read.
	CaseError CaseStatus = "ERROR"
)

// TestCaseResult is the immutable outcome of one test case.
type TestCaseResult struct {
	Name         string
	ClassName    string
	Status       CaseStatus
	ErrorMessage string
	File         string
	Line         int
}

// RunSummary aggregates the case results of one report.
type RunSummary struct {
	Passed  int
	Failed  int
	Skipped int
	Timeout int
	Errored int
	Total   int
}

// StructuredReport is the parsed form of one structured (XML) test report.
type StructuredReport struct {
	Target    string
	TestCases []TestCaseResult
	Summary   RunSummary
}
