package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "tessel.dev/pkg/tessel/internal/model"
)

func childIDs(store NodeStore, id string) []string {
	var ids []string
	for _, child := range store.Children(id) {
		ids = append(ids, child.ID)
	}
	return ids
}

func TestMemoryNodeStore_CreateAndGet(t *testing.T) {
	store := NewMemoryNodeStore()

	require.NoError(t, store.Create(m.TreeNode{ID: "//pkg", Kind: m.NodeGroup, Label: "//pkg"}))
	require.NoError(t, store.Create(m.TreeNode{ID: "//pkg:a_test", ParentID: "//pkg", Kind: m.NodeTarget}))

	node, ok := store.Get("//pkg:a_test")
	require.True(t, ok)
	assert.Equal(t, "//pkg", node.ParentID)

	_, ok = store.Get("//pkg:missing")
	assert.False(t, ok)
}

func TestMemoryNodeStore_CreateErrors(t *testing.T) {
	store := NewMemoryNodeStore()

	require.NoError(t, store.Create(m.TreeNode{ID: "//pkg"}))

	assert.ErrorIs(t, store.Create(m.TreeNode{ID: "//pkg"}), ErrNodeExists)
	assert.ErrorIs(t, store.Create(m.TreeNode{ID: "//x:y", ParentID: "//x"}), ErrNodeNotFound)
	assert.Error(t, store.Create(m.TreeNode{ID: m.RootID}))
}

func TestMemoryNodeStore_GetReturnsSnapshot(t *testing.T) {
	store := NewMemoryNodeStore()
	require.NoError(t, store.Create(m.TreeNode{ID: "//pkg"}))

	node, _ := store.Get("//pkg")
	node.Status = m.StatusFailed

	stored, _ := store.Get("//pkg")
	assert.Equal(t, m.StatusIdle, stored.Status)
}

func TestMemoryNodeStore_Update(t *testing.T) {
	store := NewMemoryNodeStore()
	require.NoError(t, store.Create(m.TreeNode{ID: "//pkg"}))

	err := store.Update("//pkg", func(node *m.TreeNode) {
		node.Status = m.StatusRunning
		node.Busy = true
		node.ID = "renamed"
		node.ParentID = "elsewhere"
	})
	require.NoError(t, err)

	node, ok := store.Get("//pkg")
	require.True(t, ok)
	assert.Equal(t, m.StatusRunning, node.Status)
	assert.True(t, node.Busy)
	assert.Equal(t, "//pkg", node.ID)
	assert.Equal(t, m.RootID, node.ParentID)

	assert.ErrorIs(t, store.Update("//missing", func(*m.TreeNode) {}), ErrNodeNotFound)
}

func TestMemoryNodeStore_DeleteRemovesSubtree(t *testing.T) {
	store := NewMemoryNodeStore()
	require.NoError(t, store.Create(m.TreeNode{ID: "//a"}))
	require.NoError(t, store.Create(m.TreeNode{ID: "//b"}))
	require.NoError(t, store.Create(m.TreeNode{ID: "//a:x_test", ParentID: "//a"}))
	require.NoError(t, store.Create(m.TreeNode{ID: "//a:x_test/member", ParentID: "//a:x_test"}))

	require.NoError(t, store.Delete("//a"))

	_, ok := store.Get("//a:x_test/member")
	assert.False(t, ok)
	assert.Equal(t, []string{"//b"}, childIDs(store, m.RootID))
	assert.ErrorIs(t, store.Delete("//a"), ErrNodeNotFound)

	// The id can be reused after deletion.
	require.NoError(t, store.Create(m.TreeNode{ID: "//a"}))
	assert.Empty(t, store.Children("//a"))
}

func TestMemoryNodeStore_ChildrenKeepInsertionOrder(t *testing.T) {
	store := NewMemoryNodeStore()
	for _, id := range []string{"//c", "//a", "//b"} {
		require.NoError(t, store.Create(m.TreeNode{ID: id}))
	}

	assert.Equal(t, []string{"//c", "//a", "//b"}, childIDs(store, m.RootID))
	assert.Empty(t, store.Children("//a"))
}

func TestMemoryNodeStore_Move(t *testing.T) {
	store := NewMemoryNodeStore()
	for _, id := range []string{"//c", "//a", "//b", "//d"} {
		require.NoError(t, store.Create(m.TreeNode{ID: id}))
	}

	store.Move(m.RootID, []string{"//a", "//b", "//unknown", "//c", "//a"})

	assert.Equal(t, []string{"//a", "//b", "//c", "//d"}, childIDs(store, m.RootID))
}

func TestWalk(t *testing.T) {
	store := NewMemoryNodeStore()
	require.NoError(t, store.Create(m.TreeNode{ID: "//a"}))
	require.NoError(t, store.Create(m.TreeNode{ID: "//a:x_test", ParentID: "//a"}))
	require.NoError(t, store.Create(m.TreeNode{ID: "//b"}))

	var visited []string
	var depths []int

	Walk(store, func(node m.TreeNode, depth int) {
		visited = append(visited, node.ID)
		depths = append(depths, depth)
	})

	assert.Equal(t, []string{"//a", "//a:x_test", "//b"}, visited)
	assert.Equal(t, []int{0, 1, 0}, depths)
}
