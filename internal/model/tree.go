package model

// NodeStatus is the run status displayed on a tree node.
type NodeStatus int

const (
	// StatusIdle indicates the node has not run or its result was reset.
	StatusIdle NodeStatus = iota
	// StatusRunning indicates the node is currently executing.
	StatusRunning
	// StatusPassed indicates the last run passed.
	StatusPassed
	// StatusFailed indicates the last run failed.
	StatusFailed
)

func (s NodeStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// NodeKind distinguishes synthetic group nodes from target nodes.
type NodeKind string

const (
	// NodeGroup is a synthetic package node holding targets that share a label prefix.
	NodeGroup NodeKind = "group"
	// NodeTarget mirrors a discovered target.
	NodeTarget NodeKind = "target"
	// NodeSuiteMember is a lazily expanded child of a test_suite target.
	NodeSuiteMember NodeKind = "suite_member"
)

// RootID is the id of the implicit root of every node store.
const RootID = ""

// TreeNode is a snapshot of one node of the displayed hierarchy.
// Children are reached through the node store, not through the node itself.
type TreeNode struct {
	ID       string
	ParentID string
	Kind     NodeKind
	Label    string

	TargetKind Kind
	Tags       []string
	ShardCount *int
	Location   *SourceLocation

	Status  NodeStatus
	Busy    bool
	Message string

	Cases   []TestCaseResult
	Summary *RunSummary
}

// IsGroup reports whether the node is a synthetic group node.
func (n TreeNode) IsGroup() bool {
	return n.Kind == NodeGroup
}
