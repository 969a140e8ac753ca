package domain

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	m "tessel.dev/pkg/tessel/internal/model"
)

const malformedCaseMessage = "malformed testcase: missing name attribute"

// StructuredResultParser turns one structured XML test report into per-case outcomes.
type StructuredResultParser interface {
	// Parse reads data as a JUnit-style document for the given target. Only a document that
	// is not well-formed fails; malformed cases are recorded and never abort their siblings.
	Parse(data []byte, target string) (m.StructuredReport, error)
}

type structuredResultParser struct{}

// NewStructuredResultParser constructs a StructuredResultParser.
func NewStructuredResultParser() StructuredResultParser {
	return &structuredResultParser{}
}

// xmlNode is a schema-free element tree. Reports in the wild disagree on nesting and
// attributes, so nothing is bound to fixed struct fields.
type xmlNode struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Content string     `xml:",chardata"`
	Nodes   []xmlNode  `xml:",any"`
}

func (n xmlNode) attr(name string) (string, bool) {
	for _, attr := range n.Attrs {
		if attr.Name.Local == name {
			return attr.Value, true
		}
	}

	return "", false
}

func (n xmlNode) intAttr(name string) int {
	raw, ok := n.attr(name)
	if !ok {
		return 0
	}

	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}

	return value
}

func (n xmlNode) child(names ...string) (xmlNode, bool) {
	for _, node := range n.Nodes {
		for _, name := range names {
			if node.XMLName.Local == name {
				return node, true
			}
		}
	}

	return xmlNode{}, false
}

func (p *structuredResultParser) Parse(data []byte, target string) (m.StructuredReport, error) {
	var root xmlNode

	decoder := xml.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(&root); err != nil {
		slog.Debug("Structured report is not well-formed", "target", target, "error", err)
		return m.StructuredReport{}, &ParseError{Source: target, Err: err}
	}

	report := m.StructuredReport{Target: target}

	collectCases(root, &report.TestCases)

	if len(report.TestCases) == 0 {
		report.Summary = summaryFromSuites(root)
	} else {
		report.Summary = SummarizeCases(report.TestCases)
	}

	return report, nil
}

func collectCases(node xmlNode, cases *[]m.TestCaseResult) {
	for _, child := range node.Nodes {
		switch child.XMLName.Local {
		case "testcase":
			*cases = append(*cases, readCase(child, len(*cases)))
		case "testsuite", "testsuites":
			collectCases(child, cases)
		}
	}

	if node.XMLName.Local == "testcase" && len(*cases) == 0 {
		// A bare <testcase> document.
		*cases = append(*cases, readCase(node, 0))
	}
}

func readCase(node xmlNode, index int) m.TestCaseResult {
	name, ok := node.attr("name")
	name = strings.TrimSpace(name)

	if !ok || name == "" {
		slog.Warn("Structured report case without name", "index", index)

		return m.TestCaseResult{
			Name:         fmt.Sprintf("<unnamed case #%d>", index+1),
			Status:       m.CaseError,
			ErrorMessage: malformedCaseMessage,
		}
	}

	result := m.TestCaseResult{
		Name:   name,
		Status: m.CasePass,
	}

	result.ClassName, _ = node.attr("classname")
	result.File, _ = node.attr("file")

	if raw, ok := node.attr("line"); ok {
		if line, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && line > 0 {
			result.Line = line
		} else {
			slog.Debug("Ignoring unreadable line attribute", "case", name, "line", raw)
		}
	}

	if failure, ok := node.child("failure", "error"); ok {
		result.Status = m.CaseFail

		if kind, _ := failure.attr("type"); strings.Contains(strings.ToLower(kind), "timeout") {
			result.Status = m.CaseTimeout
		}

		result.ErrorMessage = failureMessage(failure)

		return result
	}

	if skipped, ok := node.child("skipped"); ok {
		result.Status = m.CaseSkip
		result.ErrorMessage = failureMessage(skipped)
	}

	return result
}

func failureMessage(node xmlNode) string {
	if body := strings.TrimSpace(node.Content); body != "" {
		return body
	}

	message, _ := node.attr("message")

	return strings.TrimSpace(message)
}

// SummarizeCases counts case statuses. The counts always add up to the number of cases.
func SummarizeCases(cases []m.TestCaseResult) m.RunSummary {
	summary := m.RunSummary{Total: len(cases)}

	for _, c := range cases {
		switch c.Status {
		case m.CasePass:
			summary.Passed++
		case m.CaseFail:
			summary.Failed++
		case m.CaseSkip:
			summary.Skipped++
		case m.CaseTimeout:
			summary.Timeout++
		case m.CaseError:
			summary.Errored++
		}
	}

	return summary
}

// summaryFromSuites uses suite-level totals for reports that carry no case detail.
// Only the innermost suites are summed so nested totals are not counted twice.
func summaryFromSuites(root xmlNode) m.RunSummary {
	var leaves []xmlNode

	var visit func(node xmlNode)

	visit = func(node xmlNode) {
		nested := false

		for _, child := range node.Nodes {
			if child.XMLName.Local == "testsuite" {
				nested = true

				visit(child)
			}
		}

		if node.XMLName.Local == "testsuite" && !nested {
			leaves = append(leaves, node)
		}
	}

	visit(root)

	if len(leaves) == 0 && root.XMLName.Local == "testsuites" {
		leaves = append(leaves, root)
	}

	var summary m.RunSummary

	for _, suite := range leaves {
		tests := suite.intAttr("tests")
		failed := suite.intAttr("failures") + suite.intAttr("errors")
		skipped := suite.intAttr("skipped") + suite.intAttr("disabled")

		summary.Total += tests
		summary.Failed += failed
		summary.Skipped += skipped
		summary.Passed += max(tests-failed-skipped, 0)
	}

	return summary
}
