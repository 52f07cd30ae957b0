package nestedset

import "errors"

// RootID is the sentinel parent value for top-level nodes. The parent column
// itself stores NULL for roots; the engine maps between the two.
const RootID int64 = 0

var (
	// ErrCorruptTree is returned when the boundary indices no longer form a
	// consistent nested set, e.g. an interval of odd width.
	ErrCorruptTree = errors.New("nested set boundaries are corrupt")

	// ErrMoveIntoSubtree is returned when a move would place a node under
	// itself or one of its own descendants.
	ErrMoveIntoSubtree = errors.New("cannot move a node into its own subtree")

	// ErrNodeAttached is returned when InsertNode is asked to place a row
	// that already holds a position in the tree.
	ErrNodeAttached = errors.New("node is already attached to the tree")
)
