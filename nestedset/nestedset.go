// Package nestedset maintains a tree stored in a flat relational table using
// the nested-set (modified preorder tree traversal) encoding: every row
// carries a pair of boundary indices (lft, rgt) such that descendants are
// exactly the rows whose boundaries fall strictly inside a node's own, and
// ancestors are exactly the rows whose boundaries strictly contain it.
package nestedset

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Conn is the subset of database/sql the engine issues statements through.
// Both *sql.DB and *sql.Tx satisfy it.
type Conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Config describes the table the engine operates on. The engine owns only the
// left/right boundary columns; id, parent and label columns belong to the
// caller's schema.
type Config struct {
	Table        string
	IDColumn     string
	ParentColumn string
	LeftColumn   string
	RightColumn  string
	LabelColumn  string

	// Placeholder selects the parameter style of the underlying driver
	// (sq.Question for SQLite, sq.Dollar for Postgres).
	Placeholder sq.PlaceholderFormat
}

func (c Config) withDefaults() Config {
	if c.Table == "" {
		c.Table = "nodes"
	}
	if c.IDColumn == "" {
		c.IDColumn = "id"
	}
	if c.ParentColumn == "" {
		c.ParentColumn = "parent_id"
	}
	if c.LeftColumn == "" {
		c.LeftColumn = "lft"
	}
	if c.RightColumn == "" {
		c.RightColumn = "rgt"
	}
	if c.LabelColumn == "" {
		c.LabelColumn = "label"
	}
	if c.Placeholder == nil {
		c.Placeholder = sq.Question
	}
	return c
}

// Node is a row of the tree as the engine sees it. Depth and Path are only
// populated by the operations that compute them.
type Node struct {
	ID       int64  `json:"id"`
	Label    string `json:"label"`
	ParentID int64  `json:"parentId"`
	Lft      int64  `json:"lft"`
	Rgt      int64  `json:"rgt"`
	Depth    int64  `json:"depth"`
	Path     string `json:"path,omitempty"`
}

// Tree is the nested-set maintenance engine. It never caches boundary state:
// every operation re-reads the boundaries it needs from the table.
type Tree struct {
	db   *sql.DB // nil when bound to a caller-managed transaction
	conn Conn
	cfg  Config
}

// New creates an engine over db. Writes begin, commit and roll back their own
// transaction.
func New(db *sql.DB, cfg Config) *Tree {
	return &Tree{db: db, conn: db, cfg: cfg.withDefaults()}
}

// WithTx returns an engine bound to a caller-managed transaction. Writes on
// the returned engine participate in tx without issuing begin/commit/rollback
// themselves; rollback is the caller's decision.
func (t *Tree) WithTx(tx *sql.Tx) *Tree {
	return &Tree{conn: tx, cfg: t.cfg}
}

// InTransaction reports whether the engine is bound to a caller-managed
// transaction.
func (t *Tree) InTransaction() bool {
	return t.db == nil
}

func (t *Tree) builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(t.cfg.Placeholder)
}

// boundary holds a node's current interval. Detached rows (NULL boundaries)
// are reported as not found.
type boundary struct {
	id  int64
	lft int64
	rgt int64
}

func (t *Tree) findNode(ctx context.Context, id int64) (boundary, bool, error) {
	query, args, err := t.builder().
		Select(t.cfg.IDColumn, t.cfg.LeftColumn, t.cfg.RightColumn).
		From(t.cfg.Table).
		Where(sq.Eq{t.cfg.IDColumn: id}).
		ToSql()
	if err != nil {
		return boundary{}, false, err
	}

	var b boundary
	var lft, rgt sql.NullInt64
	err = t.conn.QueryRowContext(ctx, query, args...).Scan(&b.id, &lft, &rgt)
	if err == sql.ErrNoRows {
		return boundary{}, false, nil
	}
	if err != nil {
		return boundary{}, false, fmt.Errorf("error looking up node %d: %w", id, err)
	}
	if !lft.Valid || !rgt.Valid {
		// Detached row: it has no position in the tree.
		return boundary{}, false, nil
	}
	b.lft = lft.Int64
	b.rgt = rgt.Int64
	return b, true, nil
}

// parentOf resolves id's parent. Like findNode, a detached row is reported
// as not found.
func (t *Tree) parentOf(ctx context.Context, id int64) (int64, bool, error) {
	query, args, err := t.builder().
		Select(t.cfg.ParentColumn, t.cfg.LeftColumn).
		From(t.cfg.Table).
		Where(sq.Eq{t.cfg.IDColumn: id}).
		ToSql()
	if err != nil {
		return 0, false, err
	}

	var parent, lft sql.NullInt64
	err = t.conn.QueryRowContext(ctx, query, args...).Scan(&parent, &lft)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("error looking up parent of node %d: %w", id, err)
	}
	if !lft.Valid {
		return 0, false, nil
	}
	if !parent.Valid {
		return RootID, true, nil
	}
	return parent.Int64, true, nil
}

// rowState reports whether id's row exists at all and whether it currently
// holds a position in the tree.
func (t *Tree) rowState(ctx context.Context, id int64) (exists, attached bool, err error) {
	query, args, err := t.builder().
		Select(t.cfg.LeftColumn).
		From(t.cfg.Table).
		Where(sq.Eq{t.cfg.IDColumn: id}).
		ToSql()
	if err != nil {
		return false, false, err
	}

	var lft sql.NullInt64
	err = t.conn.QueryRowContext(ctx, query, args...).Scan(&lft)
	if err == sql.ErrNoRows {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("error looking up node %d: %w", id, err)
	}
	return true, lft.Valid, nil
}

// attachedRows matches rows that currently hold a position in the tree;
// detached rows carry NULL boundaries.
func (t *Tree) attachedRows() sq.Sqlizer {
	return sq.NotEq{t.cfg.LeftColumn: nil}
}

// scanNodes drains a node query into a slice. The query must select id,
// label, parent_id, lft, rgt in that order.
func scanNodes(rows *sql.Rows) ([]*Node, error) {
	defer rows.Close()

	var nodes []*Node
	for rows.Next() {
		var n Node
		var parent, lft, rgt sql.NullInt64
		if err := rows.Scan(&n.ID, &n.Label, &parent, &lft, &rgt); err != nil {
			return nil, fmt.Errorf("error scanning node: %w", err)
		}
		if parent.Valid {
			n.ParentID = parent.Int64
		}
		n.Lft = lft.Int64
		n.Rgt = rgt.Int64
		nodes = append(nodes, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nodes: %w", err)
	}
	return nodes, nil
}

func (t *Tree) selectNodes() sq.SelectBuilder {
	return t.builder().
		Select(t.cfg.IDColumn, t.cfg.LabelColumn, t.cfg.ParentColumn, t.cfg.LeftColumn, t.cfg.RightColumn).
		From(t.cfg.Table)
}

func (t *Tree) queryNodes(ctx context.Context, b sq.SelectBuilder) ([]*Node, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := t.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanNodes(rows)
}

func (t *Tree) countWhere(ctx context.Context, pred any, args ...any) (int64, error) {
	query, qargs, err := t.builder().
		Select("COUNT(*)").
		From(t.cfg.Table).
		Where(pred, args...).
		ToSql()
	if err != nil {
		return 0, err
	}
	var n int64
	if err := t.conn.QueryRowContext(ctx, query, qargs...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CountAncestors returns the number of nodes strictly containing id.
// A missing node counts zero ancestors.
func (t *Tree) CountAncestors(ctx context.Context, id int64) (int64, error) {
	node, ok, err := t.findNode(ctx, id)
	if err != nil || !ok {
		return 0, err
	}
	return t.countWhere(ctx,
		fmt.Sprintf("%s < ? AND %s > ?", t.cfg.LeftColumn, t.cfg.RightColumn),
		node.lft, node.rgt)
}

// GetAncestors returns the chain of nodes containing id, ordered root to
// parent. A missing node yields an empty result.
func (t *Tree) GetAncestors(ctx context.Context, id int64) ([]*Node, error) {
	node, ok, err := t.findNode(ctx, id)
	if err != nil || !ok {
		return nil, err
	}
	return t.queryNodes(ctx, t.selectNodes().
		Where(sq.Lt{t.cfg.LeftColumn: node.lft}).
		Where(sq.Gt{t.cfg.RightColumn: node.rgt}).
		OrderBy(t.cfg.LeftColumn+" ASC"))
}

// CountSiblings returns how many other nodes share id's parent.
func (t *Tree) CountSiblings(ctx context.Context, id int64) (int64, error) {
	parent, ok, err := t.parentOf(ctx, id)
	if err != nil || !ok {
		return 0, err
	}
	n, err := t.countWhere(ctx, sq.And{t.parentPredicate(parent), t.attachedRows()})
	if err != nil {
		return 0, err
	}
	// The node itself matches its own parent predicate.
	return n - 1, nil
}

// GetSiblings returns every node sharing id's parent, the node itself
// included, sorted by label.
func (t *Tree) GetSiblings(ctx context.Context, id int64) ([]*Node, error) {
	parent, ok, err := t.parentOf(ctx, id)
	if err != nil || !ok {
		return nil, err
	}
	return t.queryNodes(ctx, t.selectNodes().
		Where(t.parentPredicate(parent)).
		Where(t.attachedRows()).
		OrderBy(t.cfg.LabelColumn+" ASC"))
}

// CountChildren returns the number of direct children of id. Detached rows
// still carry their old parent reference but no longer count.
func (t *Tree) CountChildren(ctx context.Context, id int64) (int64, error) {
	return t.countWhere(ctx, sq.And{sq.Eq{t.cfg.ParentColumn: id}, t.attachedRows()})
}

// GetChildren returns the direct children of id sorted by label.
func (t *Tree) GetChildren(ctx context.Context, id int64) ([]*Node, error) {
	return t.queryNodes(ctx, t.selectNodes().
		Where(sq.Eq{t.cfg.ParentColumn: id}).
		Where(t.attachedRows()).
		OrderBy(t.cfg.LabelColumn+" ASC"))
}

// parentPredicate matches rows whose parent is parentID, where RootID means
// a NULL parent column.
func (t *Tree) parentPredicate(parentID int64) sq.Sqlizer {
	if parentID == RootID {
		return sq.Eq{t.cfg.ParentColumn: nil}
	}
	return sq.Eq{t.cfg.ParentColumn: parentID}
}

// CountDescendants computes the subtree size from the node's interval width
// alone: every descendant contributes one unit to each side of the interval.
// An odd width means the boundaries no longer form a consistent tree.
func (t *Tree) CountDescendants(ctx context.Context, id int64) (int64, error) {
	node, ok, err := t.findNode(ctx, id)
	if err != nil || !ok {
		return 0, err
	}
	width := node.rgt - node.lft - 1
	if width < 0 || width%2 != 0 {
		return 0, fmt.Errorf("node %d has interval (%d,%d): %w", id, node.lft, node.rgt, ErrCorruptTree)
	}
	return width / 2, nil
}

// GetDescendants returns id's subtree, the node itself excluded, in preorder.
// Depth is computed in one linear pass over the ordered result using a stack
// of right boundaries: a row still inside the interval on top of the stack is
// one level deeper. When absolute is true depths are offset by the node's own
// ancestor count, otherwise direct children have depth 1.
func (t *Tree) GetDescendants(ctx context.Context, id int64, absolute bool) ([]*Node, error) {
	node, ok, err := t.findNode(ctx, id)
	if err != nil || !ok {
		return nil, err
	}

	var offset int64
	if absolute {
		if offset, err = t.CountAncestors(ctx, id); err != nil {
			return nil, err
		}
	}

	nodes, err := t.queryNodes(ctx, t.selectNodes().
		Where(sq.Gt{t.cfg.LeftColumn: node.lft}).
		Where(sq.Lt{t.cfg.LeftColumn: node.rgt}).
		OrderBy(t.cfg.LeftColumn+" ASC"))
	if err != nil {
		return nil, err
	}

	var stack []int64
	for _, n := range nodes {
		for len(stack) > 0 && n.Lft > stack[len(stack)-1] {
			stack = stack[:len(stack)-1]
		}
		n.Depth = offset + int64(len(stack)) + 1
		if n.Rgt-n.Lft > 1 {
			stack = append(stack, n.Rgt)
		}
	}
	return nodes, nil
}

// GetTree returns id's subtree, the node itself included, in preorder, with
// each row carrying its absolute depth and a dot-joined path of labels from
// the subtree root. Depths come from a self-join counting the intervals that
// contain each row. A nonzero maxDepth limits the result; it is relative to
// the whole tree, matching the returned depth values, so the node's own
// ancestor count is added before filtering. With sort the result is reordered
// by path.
func (t *Tree) GetTree(ctx context.Context, id int64, maxDepth int64, sorted bool) ([]*Node, error) {
	node, ok, err := t.findNode(ctx, id)
	if err != nil || !ok {
		return nil, err
	}

	if maxDepth > 0 {
		above, err := t.CountAncestors(ctx, id)
		if err != nil {
			return nil, err
		}
		maxDepth += above
	}

	c := t.cfg
	q := t.builder().
		Select(
			"n."+c.IDColumn,
			"n."+c.LabelColumn,
			"n."+c.ParentColumn,
			"n."+c.LeftColumn,
			"n."+c.RightColumn,
			"COUNT(p."+c.IDColumn+") AS depth",
		).
		From(c.Table + " AS n").
		Join(fmt.Sprintf("%s AS p ON n.%s BETWEEN p.%s AND p.%s", c.Table, c.LeftColumn, c.LeftColumn, c.RightColumn)).
		Where(sq.GtOrEq{"n." + c.LeftColumn: node.lft}).
		Where(sq.LtOrEq{"n." + c.LeftColumn: node.rgt}).
		GroupBy("n."+c.IDColumn, "n."+c.LabelColumn, "n."+c.ParentColumn, "n."+c.LeftColumn, "n."+c.RightColumn).
		OrderBy("n." + c.LeftColumn + " ASC")
	if maxDepth > 0 {
		q = q.Having(sq.LtOrEq{"COUNT(p." + c.IDColumn + ")": maxDepth})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := t.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []*Node
	for rows.Next() {
		var n Node
		var parent, lft, rgt sql.NullInt64
		if err := rows.Scan(&n.ID, &n.Label, &parent, &lft, &rgt, &n.Depth); err != nil {
			return nil, fmt.Errorf("error scanning node: %w", err)
		}
		if parent.Valid {
			n.ParentID = parent.Int64
		}
		n.Lft = lft.Int64
		n.Rgt = rgt.Int64
		nodes = append(nodes, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nodes: %w", err)
	}
	if len(nodes) == 0 {
		return nil, nil
	}

	// Preorder plus depth is enough to rebuild paths with a stack of label
	// components: truncate to the row's depth relative to the subtree root,
	// then push its own label.
	base := nodes[0].Depth
	var path []string
	for _, n := range nodes {
		rel := int(n.Depth - base)
		if rel < 0 || rel > len(path) {
			return nil, fmt.Errorf("node %d at depth %d outside subtree rooted at depth %d: %w", n.ID, n.Depth, base, ErrCorruptTree)
		}
		path = append(path[:rel], n.Label)
		n.Path = strings.Join(path, ".")
	}

	if sorted {
		sort.Slice(nodes, func(i, j int) bool { return nodes[i].Path < nodes[j].Path })
	}
	return nodes, nil
}

// Visualise renders id's subtree as indented text, one node per line, each
// line prefixed with "|-- " once per level below the subtree root. A missing
// node renders as the empty string.
func (t *Tree) Visualise(ctx context.Context, id int64, maxDepth int64, sorted bool) (string, error) {
	nodes, err := t.GetTree(ctx, id, maxDepth, sorted)
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
