package domain

import (
	"bufio"
	"bytes"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"tessel.dev/pkg/tessel/internal/adapter"
	m "tessel.dev/pkg/tessel/internal/model"
)

// suiteMemberSeparator joins a suite label and a member label into a member node id.
const suiteMemberSeparator = "#"

// ReconcileStats counts the nodes created and removed by one reconciliation.
type ReconcileStats struct {
	Added   int
	Removed int
}

// TreeReconciler brings a displayed node tree in line with a discovered target set.
type TreeReconciler interface {
	// Reconcile removes stale nodes, creates missing ones and sorts the tree. Run status
	// of existing nodes is never touched and busy nodes are never removed.
	Reconcile(store adapter.NodeStore, targets []m.Target) (ReconcileStats, error)

	// AttachSuiteMembers sets the expanded members of a test_suite node.
	AttachSuiteMembers(store adapter.NodeStore, suiteLabel string, members []string) (ReconcileStats, error)
}

type treeReconciler struct {
	fsAdapter adapter.SourceFSAdapter
	workspace m.Path
}

// NewTreeReconciler constructs a TreeReconciler. Source locations are guessed from the
// build files under workspace.
func NewTreeReconciler(fsAdapter adapter.SourceFSAdapter, workspace m.Path) TreeReconciler {
	return &treeReconciler{fsAdapter: fsAdapter, workspace: workspace}
}

// SuiteMemberID returns the node id of member under suiteLabel.
func SuiteMemberID(suiteLabel, member string) string {
	return suiteLabel + suiteMemberSeparator + member
}

func (r *treeReconciler) Reconcile(store adapter.NodeStore, targets []m.Target) (ReconcileStats, error) {
	valid := make(map[string]bool, len(targets))
	for _, target := range targets {
		valid[target.Label] = true
	}

	removals := planRemovals(store, valid)

	sorted := SortTargets(targets)

	var stats ReconcileStats

	for _, id := range removals {
		if err := store.Delete(id); err != nil {
			return stats, fmt.Errorf("remove node %s: %w", id, err)
		}

		stats.Removed++
	}

	var groupOrder []string

	leafOrder := make(map[string][]string)
	seenGroup := make(map[string]bool)

	for _, target := range sorted {
		parentID := m.PackageOf(target.Label)

		if !seenGroup[parentID] {
			seenGroup[parentID] = true

			if parentID != m.RootID {
				groupOrder = append(groupOrder, parentID)
			}
		}

		if parentID != m.RootID {
			if _, ok := store.Get(parentID); !ok {
				if err := store.Create(m.TreeNode{ID: parentID, Kind: m.NodeGroup, Label: parentID}); err != nil {
					return stats, fmt.Errorf("create group %s: %w", parentID, err)
				}

				stats.Added++
			}
		}

		leafOrder[parentID] = append(leafOrder[parentID], target.Label)

		location := r.guessLocation(target)

		if _, ok := store.Get(target.Label); ok {
			err := store.Update(target.Label, func(node *m.TreeNode) {
				applyTarget(node, target, location)
			})
			if err != nil {
				return stats, fmt.Errorf("update node %s: %w", target.Label, err)
			}

			continue
		}

		node := m.TreeNode{ID: target.Label, ParentID: parentID, Kind: m.NodeTarget, Status: m.StatusIdle}
		applyTarget(&node, target, location)

		if err := store.Create(node); err != nil {
			return stats, fmt.Errorf("create node %s: %w", target.Label, err)
		}

		stats.Added++
	}

	rootOrder := append([]string(nil), leafOrder[m.RootID]...)
	rootOrder = append(rootOrder, groupOrder...)
	store.Move(m.RootID, rootOrder)

	for _, groupID := range groupOrder {
		store.Move(groupID, leafOrder[groupID])
	}

	if stats.Added > 0 || stats.Removed > 0 {
		slog.Debug("Reconciled tree", "added", stats.Added, "removed", stats.Removed, "targets", len(targets))
	}

	return stats, nil
}

// planRemovals walks the tree bottom-up and returns the ids to delete, children first.
// A node is kept when it is busy, still valid, or still has a kept child.
func planRemovals(store adapter.NodeStore, valid map[string]bool) []string {
	var removals []string

	var visit func(node m.TreeNode, parentValid bool) bool

	visit = func(node m.TreeNode, parentValid bool) bool {
		selfValid := false

		switch node.Kind {
		case m.NodeTarget:
			selfValid = valid[node.ID]
		case m.NodeSuiteMember:
			selfValid = parentValid
		case m.NodeGroup:
		}

		keptChildren := 0

		for _, child := range store.Children(node.ID) {
			if visit(child, selfValid) {
				keptChildren++
			}
		}

		if node.Busy || selfValid || keptChildren > 0 {
			return true
		}

		removals = append(removals, node.ID)

		return false
	}

	for _, child := range store.Children(m.RootID) {
		visit(child, false)
	}

	return removals
}

func applyTarget(node *m.TreeNode, target m.Target, location *m.SourceLocation) {
	node.Label = target.Label
	node.TargetKind = target.Kind
	node.Tags = append([]string(nil), target.Tags...)
	node.ShardCount = target.ShardCount
	node.Location = location
}

// SortTargets orders test_suite targets first, then by label.
func SortTargets(targets []m.Target) []m.Target {
	sorted := append([]m.Target(nil), targets...)

	sort.SliceStable(sorted, func(i, j int) bool {
		iSuite := sorted[i].Kind == m.KindTestSuite
		jSuite := sorted[j].Kind == m.KindTestSuite

		if iSuite != jSuite {
			return iSuite
		}

		return sorted[i].Label < sorted[j].Label
	})

	return sorted
}

// guessLocation points at the target's rule in its package build file.
func (r *treeReconciler) guessLocation(target m.Target) *m.SourceLocation {
	pkg := target.Package()
	if !strings.HasPrefix(pkg, "//") {
		return nil
	}

	dir := r.fsAdapter.JoinPath(string(r.workspace), strings.TrimPrefix(pkg, "//"))

	buildFile, ok := r.fsAdapter.BuildFile(dir)
	if !ok {
		return nil
	}

	location := &m.SourceLocation{Path: buildFile}

	data, err := r.fsAdapter.ReadFile(buildFile)
	if err != nil {
		return location
	}

	location.Line = ruleLine(data, target.Name())

	return location
}

// ruleLine returns the 1-based line declaring name = "<name>", or 0.
func ruleLine(data []byte, name string) int {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	needle := fmt.Sprintf("%q", name)
	lineNo := 0

	for scanner.Scan() {
		lineNo++

		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "name") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok || strings.TrimSpace(key) != "name" {
			continue
		}

		if strings.TrimSuffix(strings.TrimSpace(value), ",") == needle {
			return lineNo
		}
	}

	return 0
}

func (r *treeReconciler) AttachSuiteMembers(store adapter.NodeStore, suiteLabel string, members []string) (ReconcileStats, error) {
	var stats ReconcileStats

	suite, ok := store.Get(suiteLabel)
	if !ok || suite.Kind != m.NodeTarget {
		return stats, fmt.Errorf("attach members: %s: %w", suiteLabel, adapter.ErrNodeNotFound)
	}

	wanted := make(map[string]string, len(members))
	order := make([]string, 0, len(members))

	for _, member := range members {
		id := SuiteMemberID(suiteLabel, member)
		if _, ok := wanted[id]; ok {
			continue
		}

		wanted[id] = member
		order = append(order, id)
	}

	for _, child := range store.Children(suiteLabel) {
		if _, ok := wanted[child.ID]; ok || child.Kind != m.NodeSuiteMember || child.Busy {
			continue
		}

		if err := store.Delete(child.ID); err != nil {
			return stats, fmt.Errorf("remove member %s: %w", child.ID, err)
		}

		stats.Removed++
	}

	for _, id := range order {
		if _, ok := store.Get(id); ok {
			continue
		}

		member := m.TreeNode{
			ID:       id,
			ParentID: suiteLabel,
			Kind:     m.NodeSuiteMember,
			Label:    wanted[id],
			Status:   m.StatusIdle,
		}

		if kind, ok := memberKind(store, member.Label); ok {
			member.TargetKind = kind
		}

		if err := store.Create(member); err != nil {
			return stats, fmt.Errorf("create member %s: %w", id, err)
		}

		stats.Added++
	}

	store.Move(suiteLabel, order)

	return stats, nil
}

// memberKind reuses the kind of a member that is also a discovered target node.
func memberKind(store adapter.NodeStore, label string) (m.Kind, bool) {
	node, ok := store.Get(label)
	if !ok || node.Kind != m.NodeTarget {
		return "", false
	}

	return node.TargetKind, true
}
