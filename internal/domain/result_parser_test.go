package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "tessel.dev/pkg/tessel/internal/model"
)

const failingReport = `<?xml version="1.0" encoding="UTF-8"?>
<testsuites>
  <testsuite name="calc" tests="3" failures="2" errors="0">
    <testcase name="Add" classname="calc" time="0.01">
      <failure message="assertion failed" type="AssertionError">Error: Not equal:
Expected equality of these values:
  add(1, 2)
    Which is: 4
  3</failure>
    </testcase>
    <testcase name="Sub" classname="calc" time="0.00"/>
    <testcase name="Mul" classname="calc" time="0.00">
      <error message="panic: runtime error"/>
    </testcase>
  </testsuite>
</testsuites>`

const passingReport = `<testsuites>
  <testsuite name="calc" tests="3">
    <testcase name="Add"/>
    <testcase name="Sub"/>
    <testcase name="Mul"/>
  </testsuite>
</testsuites>`

func TestStructuredResultParser_Parse(t *testing.T) {
	parser := NewStructuredResultParser()

	t.Run("failing example", func(t *testing.T) {
		report, err := parser.Parse([]byte(failingReport), "//calc:calc_test")
		require.NoError(t, err)

		assert.Equal(t, "//calc:calc_test", report.Target)
		require.Len(t, report.TestCases, 3)
		assert.Equal(t, 2, report.Summary.Failed)
		assert.Equal(t, 1, report.Summary.Passed)
		assert.Equal(t, 3, report.Summary.Total)

		add := report.TestCases[0]
		assert.Equal(t, "Add", add.Name)
		assert.Equal(t, "calc", add.ClassName)
		assert.Equal(t, m.CaseFail, add.Status)
		assert.Contains(t, add.ErrorMessage, "Expected equality of these values")

		assert.Equal(t, "panic: runtime error", report.TestCases[2].ErrorMessage)
	})

	t.Run("passing example", func(t *testing.T) {
		report, err := parser.Parse([]byte(passingReport), "//calc:calc_test")
		require.NoError(t, err)

		assert.Equal(t, 3, report.Summary.Passed)
		assert.Equal(t, 0, report.Summary.Failed)
	})

	t.Run("skipped and timeout", func(t *testing.T) {
		doc := `<testsuite>
  <testcase name="Slow"><failure type="TIMEOUT">test timed out after 60s</failure></testcase>
  <testcase name="Later"><skipped message="not on this platform"/></testcase>
</testsuite>`

		report, err := parser.Parse([]byte(doc), "//pkg:t")
		require.NoError(t, err)
		require.Len(t, report.TestCases, 2)

		assert.Equal(t, m.CaseTimeout, report.TestCases[0].Status)
		assert.Equal(t, "test timed out after 60s", report.TestCases[0].ErrorMessage)
		assert.Equal(t, m.CaseSkip, report.TestCases[1].Status)
		assert.Equal(t, "not on this platform", report.TestCases[1].ErrorMessage)
		assert.Equal(t, 1, report.Summary.Timeout)
		assert.Equal(t, 1, report.Summary.Skipped)
		assert.Equal(t, 0, report.Summary.Failed)
	})

	t.Run("failure wins over skipped", func(t *testing.T) {
		doc := `<testsuite><testcase name="Both"><skipped/><failure message="boom"/></testcase></testsuite>`

		report, err := parser.Parse([]byte(doc), "//pkg:t")
		require.NoError(t, err)
		require.Len(t, report.TestCases, 1)
		assert.Equal(t, m.CaseFail, report.TestCases[0].Status)
		assert.Equal(t, "boom", report.TestCases[0].ErrorMessage)
	})

	t.Run("unreadable case keeps siblings", func(t *testing.T) {
		doc := `<testsuite>
  <testcase name="First"/>
  <testcase classname="calc"/>
  <testcase name="Third" line="not-a-number"/>
</testsuite>`

		report, err := parser.Parse([]byte(doc), "//pkg:t")
		require.NoError(t, err)
		require.Len(t, report.TestCases, 3)

		assert.Equal(t, m.CasePass, report.TestCases[0].Status)
		assert.Equal(t, m.CaseError, report.TestCases[1].Status)
		assert.Equal(t, "<unnamed case #2>", report.TestCases[1].Name)
		assert.Equal(t, malformedCaseMessage, report.TestCases[1].ErrorMessage)
		assert.Equal(t, m.CasePass, report.TestCases[2].Status)
		assert.Zero(t, report.TestCases[2].Line)
		assert.Equal(t, 1, report.Summary.Errored)
	})

	t.Run("multiple suites", func(t *testing.T) {
		doc := `<testsuites>
  <testsuite name="a"><testcase name="A1"/></testsuite>
  <testsuite name="b"><testcase name="B1"><failure/></testcase><testcase name="B2" file="b_test.go" line="12"/></testsuite>
</testsuites>`

		report, err := parser.Parse([]byte(doc), "//pkg:t")
		require.NoError(t, err)
		require.Len(t, report.TestCases, 3)
		assert.Equal(t, "b_test.go", report.TestCases[2].File)
		assert.Equal(t, 12, report.TestCases[2].Line)
		assert.Equal(t, 2, report.Summary.Passed)
		assert.Equal(t, 1, report.Summary.Failed)
	})

	t.Run("totals only", func(t *testing.T) {
		doc := `<testsuites>
  <testsuite name="outer">
    <testsuite name="inner1" tests="4" failures="1" errors="1" skipped="1"/>
    <testsuite name="inner2" tests="2"/>
  </testsuite>
</testsuites>`

		report, err := parser.Parse([]byte(doc), "//pkg:t")
		require.NoError(t, err)

		assert.Empty(t, report.TestCases)
		assert.Equal(t, m.RunSummary{Passed: 3, Failed: 2, Skipped: 1, Total: 6}, report.Summary)
	})

	t.Run("bare testcase document", func(t *testing.T) {
		report, err := parser.Parse([]byte(`<testcase name="Only"/>`), "//pkg:t")
		require.NoError(t, err)
		require.Len(t, report.TestCases, 1)
		assert.Equal(t, "Only", report.TestCases[0].Name)
	})

	t.Run("not well-formed", func(t *testing.T) {
		_, err := parser.Parse([]byte(`<testsuites><testsuite>`), "//pkg:t")
		require.Error(t, err)

		var parseErr *ParseError
		require.True(t, errors.As(err, &parseErr))
		assert.Equal(t, "//pkg:t", parseErr.Source)
	})
}

func TestSummarizeCases_CountsSumToCases(t *testing.T) {
	cases := []m.TestCaseResult{
		{Status: m.CasePass},
		{Status: m.CaseFail},
		{Status: m.CaseSkip},
		{Status: m.CaseTimeout},
		{Status: m.CaseError},
		{Status: m.CasePass},
	}

	summary := SummarizeCases(cases)

	assert.Equal(t, len(cases), summary.Total)
	assert.Equal(t, summary.Total,
		summary.Passed+summary.Failed+summary.Skipped+summary.Timeout+summary.Errored)
	assert.Equal(t, 1, summary.Failed)
}
