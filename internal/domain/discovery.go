package domain

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/sync/semaphore"

	"tessel.dev/pkg/tessel/internal/adapter"
	m "tessel.dev/pkg/tessel/internal/model"
)

var (
	errNoUsableLines = errors.New("query produced no test targets")

	labelKindLine = regexp.MustCompile(`^(\S+) rule (\S+)$`)
)

// DiscoveryConfig selects what the discovery cache queries.
type DiscoveryConfig struct {
	Workspace m.Path
	Roots     []string
	Exclude   []string
	Tags      []string
}

// TargetLookup resolves a label to its discovered target.
type TargetLookup interface {
	Lookup(label string) (m.Target, bool)
}

// TargetDiscoveryCache queries and caches the known test targets.
type TargetDiscoveryCache interface {
	TargetLookup

	// Refresh queries the build graph. When the label set is unchanged the cached targets
	// are returned with changed=false. A refresh requested while another is running returns
	// the cached targets and ErrRefreshInFlight.
	Refresh(ctx context.Context) (targets []m.Target, changed bool, err error)

	// Targets returns the cached targets.
	Targets() []m.Target

	// ExpandSuite lists the direct children of a test_suite target.
	ExpandSuite(ctx context.Context, label string) ([]string, error)
}

type discoveryCache struct {
	query  adapter.QueryAdapter
	config DiscoveryConfig

	inFlight *semaphore.Weighted

	mu      sync.RWMutex
	targets []m.Target
	byLabel map[string]m.Target
}

// NewTargetDiscoveryCache constructs an empty TargetDiscoveryCache.
func NewTargetDiscoveryCache(query adapter.QueryAdapter, config DiscoveryConfig) TargetDiscoveryCache {
	if len(config.Roots) == 0 {
		config.Roots = []string{"//..."}
	}

	patterns := config.Exclude[:0:0]

	for _, pattern := range config.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			slog.Warn("Ignoring invalid exclude pattern", "pattern", pattern)
			continue
		}

		patterns = append(patterns, pattern)
	}

	config.Exclude = patterns

	return &discoveryCache{
		query:    query,
		config:   config,
		inFlight: semaphore.NewWeighted(1),
		byLabel:  make(map[string]m.Target),
	}
}

func (d *discoveryCache) Targets() []m.Target {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return append([]m.Target(nil), d.targets...)
}

func (d *discoveryCache) Lookup(label string) (m.Target, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	target, ok := d.byLabel[label]

	return target, ok
}

func (d *discoveryCache) Refresh(ctx context.Context) ([]m.Target, bool, error) {
	if !d.inFlight.TryAcquire(1) {
		slog.Debug("Discovery refresh dropped, another one is running")
		return d.Targets(), false, ErrRefreshInFlight
	}
	defer d.inFlight.Release(1)

	set := d.setExpression()

	output, err := d.query.Query(ctx, d.config.Workspace, set, adapter.OutputLabelKind)
	if err != nil {
		slog.Debug("Discovery query failed", "expression", set, "error", err)
		return d.Targets(), false, &DiscoveryError{Roots: d.config.Roots, Err: err}
	}

	discovered := parseLabelKinds(output)
	if len(discovered) == 0 {
		slog.Debug("Discovery query produced no usable lines", "expression", set)
		return d.Targets(), false, &DiscoveryError{Roots: d.config.Roots, Err: errNoUsableLines}
	}

	discovered = d.excluded(discovered)

	d.mu.RLock()
	previous := labelsOf(d.targets)
	d.mu.RUnlock()

	current := labelsOf(discovered)

	if sameLabels(previous, current) {
		slog.Debug("Discovery found no change", "targets", len(current))
		return d.Targets(), false, nil
	}

	d.annotateTags(ctx, set, discovered)
	d.annotateShards(ctx, set, discovered)

	logLabelDiff(previous, current)

	byLabel := make(map[string]m.Target, len(discovered))
	for _, target := range discovered {
		byLabel[target.Label] = target
	}

	d.mu.Lock()
	d.targets = discovered
	d.byLabel = byLabel
	d.mu.Unlock()

	slog.Info("Discovered test targets", "targets", len(discovered))

	return append([]m.Target(nil), discovered...), true, nil
}

func (d *discoveryCache) ExpandSuite(ctx context.Context, label string) ([]string, error) {
	expression := fmt.Sprintf("tests(%s)", label)

	output, err := d.query.Query(ctx, d.config.Workspace, expression, adapter.OutputLabel)
	if err != nil {
		slog.Debug("Suite expansion failed", "label", label, "error", err)
		return nil, &DiscoveryError{Roots: []string{label}, Err: err}
	}

	var members []string

	seen := make(map[string]bool)

	for _, line := range strings.Split(output, "\n") {
		member := strings.TrimSpace(line)
		if !isLabel(member) || member == label || seen[member] {
			continue
		}

		seen[member] = true
		members = append(members, member)
	}

	return members, nil
}

func (d *discoveryCache) setExpression() string {
	return fmt.Sprintf(`kind(".*_test rule|test_suite rule", %s)`, strings.Join(d.config.Roots, " + "))
}

func (d *discoveryCache) excluded(targets []m.Target) []m.Target {
	if len(d.config.Exclude) == 0 {
		return targets
	}

	kept := targets[:0]

	for _, target := range targets {
		if d.isExcluded(target.Label) {
			slog.Debug("Excluding target", "label", target.Label)
			continue
		}

		kept = append(kept, target)
	}

	return kept
}

func (d *discoveryCache) isExcluded(label string) bool {
	for _, pattern := range d.config.Exclude {
		if ok, _ := doublestar.Match(pattern, label); ok {
			return true
		}
	}

	return false
}

// annotateTags runs one attribute query per configured tag. Tags are display and flag
// metadata, so a failing tag query only loses that tag.
func (d *discoveryCache) annotateTags(ctx context.Context, set string, targets []m.Target) {
	index := indexByLabel(targets)

	for _, tag := range d.config.Tags {
		expression := fmt.Sprintf(`attr(tags, "\b%s\b", %s)`, regexp.QuoteMeta(tag), set)

		output, err := d.query.Query(ctx, d.config.Workspace, expression, adapter.OutputLabel)
		if err != nil {
			slog.Warn("Tag query failed", "tag", tag, "error", err)
			continue
		}

		for _, line := range strings.Split(output, "\n") {
			if idx, ok := index[strings.TrimSpace(line)]; ok && !targets[idx].HasTag(tag) {
				targets[idx].Tags = append(targets[idx].Tags, tag)
			}
		}
	}

	for i := range targets {
		sort.Strings(targets[i].Tags)
	}
}

type queryXMLDocument struct {
	Rules []struct {
		Name string `xml:"name,attr"`
		Ints []struct {
			Name  string `xml:"name,attr"`
			Value string `xml:"value,attr"`
		} `xml:"int"`
	} `xml:"rule"`
}

func (d *discoveryCache) annotateShards(ctx context.Context, set string, targets []m.Target) {
	expression := fmt.Sprintf(`attr(shard_count, "^[1-9][0-9]*$", %s)`, set)

	output, err := d.query.Query(ctx, d.config.Workspace, expression, adapter.OutputXML)
	if err != nil {
		slog.Warn("Shard count query failed", "error", err)
		return
	}

	if strings.TrimSpace(output) == "" {
		return
	}

	var doc queryXMLDocument
	if err := xml.Unmarshal([]byte(stripXMLDeclaration(output)), &doc); err != nil {
		slog.Warn("Shard count query output unreadable", "error", err)
		return
	}

	index := indexByLabel(targets)

	for _, rule := range doc.Rules {
		idx, ok := index[rule.Name]
		if !ok {
			continue
		}

		for _, attr := range rule.Ints {
			if attr.Name != "shard_count" {
				continue
			}

			if count, err := strconv.Atoi(attr.Value); err == nil && count > 0 {
				targets[idx].ShardCount = &count
			}
		}
	}
}

// stripXMLDeclaration drops the prolog; the query tool declares XML 1.1, which
// encoding/xml refuses.
func stripXMLDeclaration(doc string) string {
	trimmed := strings.TrimSpace(doc)
	if !strings.HasPrefix(trimmed, "<?xml") {
		return doc
	}

	if _, rest, ok := strings.Cut(trimmed, "?>"); ok {
		return rest
	}

	return doc
}

func parseLabelKinds(output string) []m.Target {
	var targets []m.Target

	seen := make(map[string]bool)

	for _, line := range strings.Split(output, "\n") {
		match := labelKindLine.FindStringSubmatch(strings.TrimSpace(line))
		if match == nil {
			continue
		}

		kind, label := m.Kind(match[1]), match[2]
		if !kind.IsTest() || !isLabel(label) || seen[label] {
			continue
		}

		seen[label] = true
		targets = append(targets, m.Target{Label: label, Kind: kind})
	}

	return targets
}

func isLabel(s string) bool {
	return strings.HasPrefix(s, "//") || strings.HasPrefix(s, "@")
}

func indexByLabel(targets []m.Target) map[string]int {
	index := make(map[string]int, len(targets))
	for i, target := range targets {
		index[target.Label] = i
	}

	return index
}

func labelsOf(targets []m.Target) []string {
	labels := make([]string, 0, len(targets))
	for _, target := range targets {
		labels = append(labels, target.Label)
	}

	return sortedCopy(labels)
}

func sameLabels(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	a, b = sortedCopy(a), sortedCopy(b)

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

func sortedCopy(values []string) []string {
	sorted := append([]string(nil), values...)
	sort.Strings(sorted)

	return sorted
}

func logLabelDiff(previous, current []string) {
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        withNewlines(previous),
		B:        withNewlines(current),
		FromFile: "cached",
		ToFile:   "discovered",
		Context:  0,
	})
	if err != nil {
		return
	}

	slog.Debug("Discovered target set changed", "diff", diff)
}

func withNewlines(lines []string) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = line + "\n"
	}

	return out
}
