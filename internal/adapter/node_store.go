package adapter

import (
	"errors"
	"fmt"
	"sync"

	m "tessel.dev/pkg/tessel/internal/model"
)

// ErrNodeNotFound is returned when a node id is not present in the store.
var ErrNodeNotFound = errors.New("node not found")

// ErrNodeExists is returned when creating a node whose id is already taken.
var ErrNodeExists = errors.New("node already exists")

// NodeStore is the hierarchical node tree shown to the user. The root (m.RootID) is implicit.
// Reads return snapshots; all mutation goes through Create, Update and Delete.
type NodeStore interface {
	// Get returns a snapshot of the node with the given id.
	Get(id string) (m.TreeNode, bool)

	// Create inserts node under node.ParentID, which must be the root or an existing node.
	Create(node m.TreeNode) error

	// Update applies fn to the stored node under the store lock.
	Update(id string, fn func(node *m.TreeNode)) error

	// Delete removes the node and its whole subtree.
	Delete(id string) error

	// Children returns snapshots of the direct children of id in insertion order.
	Children(id string) []m.TreeNode

	// Move re-orders the children of parentID to match ids. Unknown ids are ignored and
	// children not listed keep their relative order after the listed ones.
	Move(parentID string, ids []string)
}

// MemoryNodeStore is an in-memory NodeStore safe for concurrent use.
type MemoryNodeStore struct {
	mu       sync.RWMutex
	nodes    map[string]*m.TreeNode
	children map[string][]string
}

// NewMemoryNodeStore constructs an empty MemoryNodeStore.
func NewMemoryNodeStore() *MemoryNodeStore {
	return &MemoryNodeStore{
		nodes:    make(map[string]*m.TreeNode),
		children: make(map[string][]string),
	}
}

// Get returns a copy of the stored node.
func (s *MemoryNodeStore) Get(id string) (m.TreeNode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[id]
	if !ok {
		return m.TreeNode{}, false
	}

	return *node, true
}

// Create inserts a new node.
func (s *MemoryNodeStore) Create(node m.TreeNode) error {
	if node.ID == m.RootID {
		return fmt.Errorf("create node: empty id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[node.ID]; ok {
		return fmt.Errorf("create %s: %w", node.ID, ErrNodeExists)
	}

	if node.ParentID != m.RootID {
		if _, ok := s.nodes[node.ParentID]; !ok {
			return fmt.Errorf("create %s: parent %s: %w", node.ID, node.ParentID, ErrNodeNotFound)
		}
	}

	stored := node
	s.nodes[node.ID] = &stored
	s.children[node.ParentID] = append(s.children[node.ParentID], node.ID)

	return nil
}

// Update mutates a node in place. ID and ParentID changes made by fn are discarded.
func (s *MemoryNodeStore) Update(id string, fn func(node *m.TreeNode)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("update %s: %w", id, ErrNodeNotFound)
	}

	parentID := node.ParentID

	fn(node)

	node.ID = id
	node.ParentID = parentID

	return nil
}

// Delete removes id and every descendant.
func (s *MemoryNodeStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("delete %s: %w", id, ErrNodeNotFound)
	}

	siblings := s.children[node.ParentID]
	for i, sibling := range siblings {
		if sibling == id {
			s.children[node.ParentID] = append(siblings[:i:i], siblings[i+1:]...)
			break
		}
	}

	s.deleteSubtree(id)

	return nil
}

func (s *MemoryNodeStore) deleteSubtree(id string) {
	for _, child := range s.children[id] {
		s.deleteSubtree(child)
	}

	delete(s.children, id)
	delete(s.nodes, id)
}

// Children returns the direct children of id.
func (s *MemoryNodeStore) Children(id string) []m.TreeNode {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.children[id]
	result := make([]m.TreeNode, 0, len(ids))

	for _, childID := range ids {
		result = append(result, *s.nodes[childID])
	}

	return result
}

// Move re-orders the children of parentID.
func (s *MemoryNodeStore) Move(parentID string, ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.children[parentID]
	present := make(map[string]bool, len(current))

	for _, id := range current {
		present[id] = true
	}

	ordered := make([]string, 0, len(current))
	placed := make(map[string]bool, len(ids))

	for _, id := range ids {
		if present[id] && !placed[id] {
			ordered = append(ordered, id)
			placed[id] = true
		}
	}

	for _, id := range current {
		if !placed[id] {
			ordered = append(ordered, id)
		}
	}

	s.children[parentID] = ordered
}

// Walk visits every node depth-first in child order, parents before children.
func Walk(store NodeStore, fn func(node m.TreeNode, depth int)) {
	var visit func(id string, depth int)

	visit = func(id string, depth int) {
		for _, child := range store.Children(id) {
			fn(child, depth)
			visit(child.ID, depth+1)
		}
	}

	visit(m.RootID, 0)
}
