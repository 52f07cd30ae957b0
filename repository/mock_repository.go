package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/treekit/arbor/nestedset"
)

// mockNode is the in-memory backing row of the mock repository.
type mockNode struct {
	id     int64
	label  string
	parent int64 // 0 = top level
	lft    int64
	rgt    int64
	depth  int64
}

// MockRepository implements Repository in memory for testing. It keeps the
// same nested-set semantics as the SQL implementations by renumbering the
// boundary indices after every mutation.
type MockRepository struct {
	mu     sync.RWMutex
	nodes  map[int64]*mockNode
	order  []int64 // insertion order, drives unsorted child ordering
	nextID int64
}

// NewMockRepository creates a new mock repository
func NewMockRepository() *MockRepository {
	return &MockRepository{
		nodes:  make(map[int64]*mockNode),
		nextID: 1,
	}
}

// Initialize performs any necessary setup
func (m *MockRepository) Initialize(ctx context.Context) error {
	return nil
}

// Cleanup performs any necessary cleanup
func (m *MockRepository) Cleanup(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes = make(map[int64]*mockNode)
	m.order = nil
	m.nextID = 1
	return nil
}

// children returns the child ids of parent, by label when sorted, otherwise
// in insertion order. Callers hold the lock.
func (m *MockRepository) children(parent int64, sorted bool) []int64 {
	var ids []int64
	for _, id := range m.order {
		if m.nodes[id].parent == parent {
			ids = append(ids, id)
		}
	}
	if sorted {
		sort.Slice(ids, func(i, j int) bool {
			return m.nodes[ids[i]].label < m.nodes[ids[j]].label
		})
	}
	return ids
}

// renumber recomputes every boundary index and depth with a preorder walk,
// mirroring what the engine's Rebuild does. Callers hold the lock.
func (m *MockRepository) renumber(sorted bool) {
	counter := int64(1)
	var walk func(id, depth int64)
	walk = func(id, depth int64) {
		n := m.nodes[id]
		n.lft = counter
		n.depth = depth
		counter++
		for _, child := range m.children(id, sorted) {
			walk(child, depth+1)
		}
		n.rgt = counter
		counter++
	}
	for _, root := range m.children(0, sorted) {
		walk(root, 1)
	}
}

// preorder returns the ids of id's subtree, the node included, in tree order.
// Callers hold the lock.
func (m *MockRepository) preorder(id int64) []int64 {
	out := []int64{id}
	for _, child := range m.children(id, false) {
		out = append(out, m.preorder(child)...)
	}
	return out
}

func (m *MockRepository) export(id int64) *Node {
	n := m.nodes[id]
	out := &Node{
		ID:    n.id,
		Label: n.label,
		Lft:   n.lft,
		Rgt:   n.rgt,
		Depth: n.depth,
	}
	if n.parent != 0 {
		parent := n.parent
		out.ParentID = &parent
	}
	return out
}

// CreateNode creates a new node attached as the last child of parentID
func (m *MockRepository) CreateNode(ctx context.Context, label string, parentID *int64) (int64, error) {
	if label == "" {
		return 0, ErrInvalidInput
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var parent int64
	if parentID != nil {
		if _, ok := m.nodes[*parentID]; !ok {
			return 0, ErrNodeNotFound
		}
		parent = *parentID
	}

	id := m.nextID
	m.nextID++
	m.nodes[id] = &mockNode{id: id, label: label, parent: parent}
	m.order = append(m.order, id)
	m.renumber(false)
	return id, nil
}

// GetNode retrieves a node by ID
func (m *MockRepository) GetNode(ctx context.Context, id int64) (*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.nodes[id]; !ok {
		return nil, ErrNodeNotFound
	}
	return m.export(id), nil
}

// GetTree returns the subtree rooted at rootID (the whole forest for 0) with
// depth and path annotations
func (m *MockRepository) GetTree(ctx context.Context, rootID, maxDepth int64, sorted bool) ([]*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []int64
	if rootID != 0 {
		if _, ok := m.nodes[rootID]; !ok {
			return nil, nil
		}
		ids = m.preorder(rootID)
	} else {
		for _, root := range m.children(0, false) {
			ids = append(ids, m.preorder(root)...)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	if maxDepth > 0 && rootID != 0 {
		maxDepth += m.nodes[rootID].depth - 1
	}

	var out []*Node
	var path []string
	base := m.nodes[ids[0]].depth
	for _, id := range ids {
		n := m.nodes[id]
		if maxDepth > 0 && n.depth > maxDepth {
			continue
		}
		rel := int(n.depth - base)
		path = append(path[:rel], n.label)
		node := m.export(id)
		node.Path = strings.Join(path, ".")
		out = append(out, node)
	}

	if sorted {
		sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	}
	return out, nil
}

// Visualise renders the subtree rooted at rootID as indented text
func (m *MockRepository) Visualise(ctx context.Context, rootID, maxDepth int64, sorted bool) (string, error) {
	nodes, err := m.GetTree(ctx, rootID, maxDepth, sorted)
	if err != nil || len(nodes) == 0 {
		return "", err
	}

	base := nodes[0].Depth
	lines := make([]string, len(nodes))
	for i, n := range nodes {
		lines[i] = strings.Repeat("|-- ", int(n.Depth-base)) + n.Label
	}
	return strings.Join(lines, "\n"), nil
}

// GetAncestors returns the chain of nodes containing id, root first
func (m *MockRepository) GetAncestors(ctx context.Context, id int64) ([]*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, ok := m.nodes[id]
	if !ok {
		return nil, nil
	}

	var out []*Node
	for n.parent != 0 {
		n = m.nodes[n.parent]
		out = append([]*Node{m.export(n.id)}, out...)
	}
	return out, nil
}

// GetChildren returns the direct children of id sorted by label
func (m *MockRepository) GetChildren(ctx context.Context, id int64) ([]*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Node
	for _, child := range m.children(id, true) {
		out = append(out, m.export(child))
	}
	return out, nil
}

// GetDescendants returns id's subtree in preorder, the node itself excluded
func (m *MockRepository) GetDescendants(ctx context.Context, id int64, absolute bool) ([]*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, ok := m.nodes[id]
	if !ok {
		return nil, nil
	}

	var out []*Node
	for _, did := range m.preorder(id)[1:] {
		node := m.export(did)
		if !absolute {
			node.Depth -= n.depth
		}
		out = append(out, node)
	}
	return out, nil
}

// MoveNode relocates id's subtree under parentID
func (m *MockRepository) MoveNode(ctx context.Context, id, parentID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.nodes[id]
	if !ok {
		return ErrNodeNotFound
	}
	if parentID != 0 {
		p, ok := m.nodes[parentID]
		if !ok {
			return ErrNodeNotFound
		}
		// Walk up from the target: landing on the moved node means the
		// destination is inside its own subtree.
		for cur := p; ; {
			if cur.id == id {
				return nestedset.ErrMoveIntoSubtree
			}
			if cur.parent == 0 {
				break
			}
			cur = m.nodes[cur.parent]
		}
	}

	n.parent = parentID

	// Moved nodes become their new parent's last child.
	for i, oid := range m.order {
		if oid == id {
			m.order = append(append(append([]int64{}, m.order[:i]...), m.order[i+1:]...), id)
			break
		}
	}
	m.renumber(false)
	return nil
}

// DeleteNode deletes id's subtree
func (m *MockRepository) DeleteNode(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.nodes[id]; !ok {
		return ErrNodeNotFound
	}

	doomed := make(map[int64]bool)
	for _, did := range m.preorder(id) {
		doomed[did] = true
	}
	for did := range doomed {
		delete(m.nodes, did)
	}
	var kept []int64
	for _, oid := range m.order {
		if !doomed[oid] {
			kept = append(kept, oid)
		}
	}
	m.order = kept
	m.renumber(false)
	return nil
}

// Rebuild recomputes the boundary indices
func (m *MockRepository) Rebuild(ctx context.Context, sorted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.renumber(sorted)
	return nil
}
