package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/treekit/arbor/config"
	"github.com/treekit/arbor/nestedset"
)

// sqlTree implements the tree operations shared by the SQL-backed
// repositories. The boundary bookkeeping lives in the nestedset engine; this
// layer owns the rows and composes row lifecycle with engine calls in one
// transaction where needed.
type sqlTree struct {
	db       *sql.DB
	tree     *nestedset.Tree
	sb       sq.StatementBuilderType
	table    string
	labelCol string
}

func newSQLTree(db *sql.DB, placeholder sq.PlaceholderFormat, treeCfg *config.TreeConfig) *sqlTree {
	table, labelCol := "nodes", "label"
	if treeCfg != nil {
		table, labelCol = treeCfg.Table, treeCfg.LabelColumn
	}
	return &sqlTree{
		db: db,
		tree: nestedset.New(db, nestedset.Config{
			Table:       table,
			LabelColumn: labelCol,
			Placeholder: placeholder,
		}),
		sb:       sq.StatementBuilder.PlaceholderFormat(placeholder),
		table:    table,
		labelCol: labelCol,
	}
}

// GetNode retrieves a node by ID
func (s *sqlTree) GetNode(ctx context.Context, id int64) (*Node, error) {
	query, args, err := s.sb.
		Select("id", s.labelCol, "parent_id", "lft", "rgt").
		From(s.table).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var node Node
	var parentID, lft, rgt sql.NullInt64
	err = s.db.QueryRowContext(ctx, query, args...).
		Scan(&node.ID, &node.Label, &parentID, &lft, &rgt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNodeNotFound
		}
		return nil, fmt.Errorf("error getting node: %w", err)
	}
	if parentID.Valid {
		node.ParentID = &parentID.Int64
	}
	node.Lft = lft.Int64
	node.Rgt = rgt.Int64
	return &node, nil
}

// rootIDs returns the attached top-level nodes in tree order.
func (s *sqlTree) rootIDs(ctx context.Context) ([]int64, error) {
	query, args, err := s.sb.
		Select("id").
		From(s.table).
		Where(sq.Eq{"parent_id": nil}).
		Where("lft IS NOT NULL").
		OrderBy("lft ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error getting root nodes: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning root node: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetTree returns the subtree rooted at rootID, or the whole forest for
// rootID 0, each node annotated with depth and path.
func (s *sqlTree) GetTree(ctx context.Context, rootID, maxDepth int64, sorted bool) ([]*Node, error) {
	if rootID != 0 {
		nodes, err := s.tree.GetTree(ctx, rootID, maxDepth, sorted)
		if err != nil {
			return nil, err
		}
		return fromEngineList(nodes), nil
	}

	roots, err := s.rootIDs(ctx)
	if err != nil {
		return nil, err
	}
	var out []*Node
	for _, id := range roots {
		nodes, err := s.tree.GetTree(ctx, id, maxDepth, sorted)
		if err != nil {
			return nil, err
		}
		out = append(out, fromEngineList(nodes)...)
	}
	return out, nil
}

// Visualise renders the subtree rooted at rootID (or the whole forest for
// rootID 0) as indented text.
func (s *sqlTree) Visualise(ctx context.Context, rootID, maxDepth int64, sorted bool) (string, error) {
	if rootID != 0 {
		return s.tree.Visualise(ctx, rootID, maxDepth, sorted)
	}

	roots, err := s.rootIDs(ctx)
	if err != nil {
		return "", err
	}
	var parts []string
	for _, id := range roots {
		part, err := s.tree.Visualise(ctx, id, maxDepth, sorted)
		if err != nil {
			return "", err
		}
		if part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// GetAncestors returns the chain of nodes containing id, root first
func (s *sqlTree) GetAncestors(ctx context.Context, id int64) ([]*Node, error) {
	nodes, err := s.tree.GetAncestors(ctx, id)
	if err != nil {
		return nil, err
	}
	return fromEngineList(nodes), nil
}

// GetChildren returns the direct children of id sorted by label
func (s *sqlTree) GetChildren(ctx context.Context, id int64) ([]*Node, error) {
	nodes, err := s.tree.GetChildren(ctx, id)
	if err != nil {
		return nil, err
	}
	return fromEngineList(nodes), nil
}

// GetDescendants returns id's subtree in preorder with per-node depth
func (s *sqlTree) GetDescendants(ctx context.Context, id int64, absolute bool) ([]*Node, error) {
	nodes, err := s.tree.GetDescendants(ctx, id, absolute)
	if err != nil {
		return nil, err
	}
	return fromEngineList(nodes), nil
}

// MoveNode relocates id's subtree under parentID
func (s *sqlTree) MoveNode(ctx context.Context, id, parentID int64) error {
	if _, err := s.GetNode(ctx, id); err != nil {
		return err
	}
	if parentID != 0 {
		if _, err := s.GetNode(ctx, parentID); err != nil {
			return err
		}
	}
	return s.tree.MoveNode(ctx, id, parentID)
}

// DeleteNode detaches id's subtree and deletes the underlying rows. The
// engine only zeroes out boundaries; row deletion is this layer's job, so
// both run inside one transaction.
func (s *sqlTree) DeleteNode(ctx context.Context, id int64) error {
	if _, err := s.GetNode(ctx, id); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.tree.WithTx(tx).RemoveNode(ctx, id); err != nil {
		return fmt.Errorf("error detaching node: %w", err)
	}

	// RemoveNode leaves the whole detached subtree with NULL boundaries;
	// deleting by that marker also sweeps out any stray detached rows.
	query, args, err := s.sb.
		Delete(s.table).
		Where("lft IS NULL").
		Where("rgt IS NULL").
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("error deleting detached nodes: %w", err)
	}

	return tx.Commit()
}

// Rebuild recomputes every boundary from parent references alone
func (s *sqlTree) Rebuild(ctx context.Context, sorted bool) error {
	return s.tree.Rebuild(ctx, sorted)
}

// attach wraps row insertion and engine attachment in one transaction.
func (s *sqlTree) attach(ctx context.Context, insert func(tx *sql.Tx) (int64, error), parentID *int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	id, err := insert(tx)
	if err != nil {
		return 0, fmt.Errorf("error creating node: %w", err)
	}

	var pid int64
	if parentID != nil {
		pid = *parentID
	}
	if err := s.tree.WithTx(tx).InsertNode(ctx, id, pid); err != nil {
		return 0, fmt.Errorf("error attaching node: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// nodeExists checks if a node exists
func (s *sqlTree) nodeExists(ctx context.Context, id int64) (bool, error) {
	_, err := s.GetNode(ctx, id)
	if err == ErrNodeNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
