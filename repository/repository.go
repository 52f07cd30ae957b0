package repository

import (
	"context"
	"errors"

	"github.com/treekit/arbor/nestedset"
)

// Node represents a tree node as stored, boundary indices included.
type Node struct {
	ID       int64  // Unique identifier for the node
	Label    string // Display name of the node
	ParentID *int64 // Optional reference to the parent node's ID
	Lft      int64  // Left boundary index, maintained by the engine
	Rgt      int64  // Right boundary index, maintained by the engine
	Depth    int64  // Depth within the tree, populated by subtree reads
	Path     string // Dot-joined label path, populated by GetTree
}

// Repository defines the interface for data access operations over the
// nested-set tree. Implementations own the node rows; the structural
// bookkeeping itself is delegated to the nestedset engine.
type Repository interface {
	// Initialize performs any necessary setup for the repository, such as
	// opening the database and applying migrations.
	Initialize(ctx context.Context) error

	// Cleanup releases resources held by the repository.
	Cleanup(ctx context.Context) error

	// CreateNode inserts a new row and attaches it as the last child of
	// parentID, or as a new top-level node when parentID is nil. Creation
	// and attachment happen in one transaction.
	// Returns the ID of the newly created node.
	CreateNode(ctx context.Context, label string, parentID *int64) (int64, error)

	// GetNode retrieves a node by its ID, or ErrNodeNotFound.
	GetNode(ctx context.Context, id int64) (*Node, error)

	// GetTree returns the subtree rooted at rootID in preorder, each node
	// annotated with depth and path. rootID 0 returns the whole forest.
	// maxDepth 0 means unlimited; sorted orders the result by path.
	GetTree(ctx context.Context, rootID, maxDepth int64, sorted bool) ([]*Node, error)

	// Visualise renders the subtree rooted at rootID as indented text.
	Visualise(ctx context.Context, rootID, maxDepth int64, sorted bool) (string, error)

	// GetAncestors returns the chain of nodes containing id, root first.
	GetAncestors(ctx context.Context, id int64) ([]*Node, error)

	// GetChildren returns the direct children of id sorted by label.
	GetChildren(ctx context.Context, id int64) ([]*Node, error)

	// GetDescendants returns id's subtree (the node excluded) in preorder
	// with per-node depth, absolute depth on request.
	GetDescendants(ctx context.Context, id int64, absolute bool) ([]*Node, error)

	// MoveNode relocates id's subtree under parentID (0 for top level).
	// Returns ErrNodeNotFound if either end is missing, or
	// nestedset.ErrMoveIntoSubtree for a move into the node's own subtree.
	MoveNode(ctx context.Context, id, parentID int64) error

	// DeleteNode detaches id's subtree from the tree and deletes its rows.
	DeleteNode(ctx context.Context, id int64) error

	// Rebuild recomputes every boundary from parent references alone.
	Rebuild(ctx context.Context, sorted bool) error
}

// Common errors
var (
	// ErrNodeNotFound is returned when a requested node does not exist
	ErrNodeNotFound = errors.New("node not found")
	// ErrInvalidInput is returned when the input parameters are invalid
	ErrInvalidInput = errors.New("invalid input")
)

// fromEngine converts an engine node into a repository node.
func fromEngine(n *nestedset.Node) *Node {
	out := &Node{
		ID:    n.ID,
		Label: n.Label,
		Lft:   n.Lft,
		Rgt:   n.Rgt,
		Depth: n.Depth,
		Path:  n.Path,
	}
	if n.ParentID != nestedset.RootID {
		parent := n.ParentID
		out.ParentID = &parent
	}
	return out
}

func fromEngineList(nodes []*nestedset.Node) []*Node {
	out := make([]*Node, len(nodes))
	for i, n := range nodes {
		out[i] = fromEngine(n)
	}
	return out
}
