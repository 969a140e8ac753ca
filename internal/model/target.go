// Package model defines the data structures shared by discovery, execution and reporting.
package model

import "strings"

// Kind is the rule kind of a test target as reported by the build graph query (e.g. go_test).
type Kind string

// KindTestSuite is the rule kind that groups other test targets.
const KindTestSuite Kind = "test_suite"

// IsTest reports whether the kind names a test rule.
func (k Kind) IsTest() bool {
	return k == KindTestSuite || strings.HasSuffix(string(k), "_test")
}

// Target is a single addressable test target discovered from the build graph.
// Targets are replaced wholesale on each discovery cycle and never mutated.
type Target struct {
	Label      string
	Kind       Kind
	Tags       []string
	ShardCount *int
}

// HasTag reports whether the target carries the given tag.
func (t Target) HasTag(tag string) bool {
	for _, candidate := range t.Tags {
		if candidate == tag {
			return true
		}
	}

	return false
}

// Package returns the portion of the label before the last separator.
//
//	//pkg/foo:bar_test -> //pkg/foo
//	//pkg/foo          -> //pkg
func (t Target) Package() string {
	return PackageOf(t.Label)
}

// Name returns the portion of the label after the last separator.
func (t Target) Name() string {
	pkg := PackageOf(t.Label)
	name := strings.TrimPrefix(t.Label, pkg)

	return strings.TrimLeft(name, ":/")
}

// PackageOf returns the grouping key of a label.
func PackageOf(label string) string {
	if idx := strings.LastIndex(label, ":"); idx >= 0 {
		return label[:idx]
	}

	if idx := strings.LastIndex(label, "/"); idx >= 0 {
		if idx > 0 && label[idx-1] == '/' {
			// "//foo" has no package part beyond the workspace root.
			return label[:idx+1]
		}

		return label[:idx]
	}

	return ""
}
