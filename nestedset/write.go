package nestedset

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// inTransaction runs fn inside a transaction. An engine already bound to a
// caller-managed transaction participates in it without issuing
// begin/commit/rollback of its own, so write operations compose; standalone
// engines begin one, commit on success and roll back on any failure.
func (t *Tree) inTransaction(ctx context.Context, fn func(e *Tree) error) error {
	if t.InTransaction() {
		return fn(t)
	}
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	if err := fn(t.WithTx(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

func (t *Tree) exec(ctx context.Context, b sq.Sqlizer) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, err
	}
	res, err := t.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// shift adds delta to col on every row at or past from. Detached rows (NULL
// boundaries) never match the comparison and are left alone.
func (t *Tree) shift(ctx context.Context, col string, delta, from int64) error {
	_, err := t.exec(ctx, t.builder().
		Update(t.cfg.Table).
		Set(col, sq.Expr(col+" + ?", delta)).
		Where(sq.GtOrEq{col: from}))
	return err
}

// shiftAfter is shift with a strict comparison.
func (t *Tree) shiftAfter(ctx context.Context, col string, delta, from int64) error {
	_, err := t.exec(ctx, t.builder().
		Update(t.cfg.Table).
		Set(col, sq.Expr(col+" + ?", delta)).
		Where(sq.Gt{col: from}))
	return err
}

// maxRight returns the right edge of the whole tree, 0 for an empty table.
// Rows negated by an in-flight move are mid-relocation and must not count.
func (t *Tree) maxRight(ctx context.Context) (int64, error) {
	query, args, err := t.builder().
		Select("MAX(" + t.cfg.RightColumn + ")").
		From(t.cfg.Table).
		Where(sq.GtOrEq{t.cfg.RightColumn: 0}).
		ToSql()
	if err != nil {
		return 0, err
	}
	var max sql.NullInt64
	if err := t.conn.QueryRowContext(ctx, query, args...).Scan(&max); err != nil {
		return 0, err
	}
	return max.Int64, nil
}

func (t *Tree) setBoundaries(ctx context.Context, id, lft, rgt int64) error {
	_, err := t.exec(ctx, t.builder().
		Update(t.cfg.Table).
		Set(t.cfg.LeftColumn, lft).
		Set(t.cfg.RightColumn, rgt).
		Where(sq.Eq{t.cfg.IDColumn: id}))
	return err
}

// InsertNode attaches an existing detached row as the new last child of
// parentID, or as the new last top-level node when parentID is RootID. The row
// itself must already exist; the engine assigns only its boundaries. An
// unknown parent makes the call a no-op, and a row that already holds a
// position fails with ErrNodeAttached.
func (t *Tree) InsertNode(ctx context.Context, id, parentID int64) error {
	return t.inTransaction(ctx, func(e *Tree) error {
		return e.insertNode(ctx, id, parentID)
	})
}

func (t *Tree) insertNode(ctx context.Context, id, parentID int64) error {
	// The row must exist before the gap is opened; shifting for a node that
	// never lands would leave a hole in the numbering. A row that is already
	// placed must be moved, not inserted, or its old interval leaks.
	exists, attached, err := t.rowState(ctx, id)
	if err != nil || !exists {
		return err
	}
	if attached {
		return fmt.Errorf("insert node %d: %w", id, ErrNodeAttached)
	}

	if parentID == RootID {
		// Appended at the far right edge of the whole tree, so nothing
		// needs shifting.
		max, err := t.maxRight(ctx)
		if err != nil {
			return err
		}
		return t.setBoundaries(ctx, id, max+1, max+2)
	}

	parent, ok, err := t.findNode(ctx, parentID)
	if err != nil || !ok {
		return err
	}

	// Widen containing intervals before shifting purely-subsequent rows;
	// the two updates compare different columns.
	if err := t.shift(ctx, t.cfg.RightColumn, 2, parent.rgt); err != nil {
		return err
	}
	if err := t.shift(ctx, t.cfg.LeftColumn, 2, parent.rgt); err != nil {
		return err
	}
	return t.setBoundaries(ctx, id, parent.rgt, parent.rgt+1)
}

// RemoveNode detaches id and its whole subtree from the tree and closes the
// gap it occupied. Detached rows keep existing but lose their boundaries
// (NULL); deleting the underlying rows is the caller's responsibility. An
// unknown node is a no-op.
func (t *Tree) RemoveNode(ctx context.Context, id int64) error {
	return t.inTransaction(ctx, func(e *Tree) error {
		return e.removeNode(ctx, id)
	})
}

func (t *Tree) removeNode(ctx context.Context, id int64) error {
	node, ok, err := t.findNode(ctx, id)
	if err != nil || !ok {
		return err
	}
	diff := node.rgt - node.lft + 1

	// Detach the whole interval first so the gap-closing shifts below only
	// see the surviving rows.
	_, err = t.exec(ctx, t.builder().
		Update(t.cfg.Table).
		Set(t.cfg.LeftColumn, nil).
		Set(t.cfg.RightColumn, nil).
		Where(sq.GtOrEq{t.cfg.LeftColumn: node.lft}).
		Where(sq.LtOrEq{t.cfg.RightColumn: node.rgt}))
	if err != nil {
		return err
	}

	if err := t.shift(ctx, t.cfg.LeftColumn, -diff, node.lft); err != nil {
		return err
	}
	return t.shift(ctx, t.cfg.RightColumn, -diff, node.rgt)
}

// MoveNode relocates id's subtree, internal shape preserved, to be the last
// child of parentID (or the last top-level node when parentID is RootID).
// Moving a node into itself or one of its own descendants fails with
// ErrMoveIntoSubtree before any row is touched. An unknown node or parent is
// a no-op.
func (t *Tree) MoveNode(ctx context.Context, id, parentID int64) error {
	return t.inTransaction(ctx, func(e *Tree) error {
		return e.moveNode(ctx, id, parentID)
	})
}

func (t *Tree) moveNode(ctx context.Context, id, parentID int64) error {
	node, ok, err := t.findNode(ctx, id)
	if err != nil || !ok {
		return err
	}
	if parentID != RootID {
		parent, ok, err := t.findNode(ctx, parentID)
		if err != nil || !ok {
			return err
		}
		if parentID == id || (parent.lft >= node.lft && parent.rgt <= node.rgt) {
			return fmt.Errorf("move node %d under %d: %w", id, parentID, ErrMoveIntoSubtree)
		}
	}
	diff := node.rgt - node.lft + 1
	c := t.cfg

	// Phase 1: negate the moving interval. This marks the rows and fixes
	// their relative structure, with the node's own lft landing on -1.
	_, err = t.exec(ctx, t.builder().
		Update(c.Table).
		Set(c.LeftColumn, sq.Expr(fmt.Sprintf("0 - (%s - ? + 1)", c.LeftColumn), node.lft)).
		Set(c.RightColumn, sq.Expr(fmt.Sprintf("0 - (%s - ? + 1)", c.RightColumn), node.lft)).
		Where(sq.GtOrEq{c.LeftColumn: node.lft}).
		Where(sq.LtOrEq{c.RightColumn: node.rgt}))
	if err != nil {
		return err
	}

	// Phase 2: collapse the gap the subtree occupied.
	if err := t.shiftAfter(ctx, c.LeftColumn, -diff, node.lft); err != nil {
		return err
	}
	if err := t.shiftAfter(ctx, c.RightColumn, -diff, node.rgt); err != nil {
		return err
	}

	// Phase 3: open a gap under the target parent. The parent's boundaries
	// may have shifted in phase 2, so they are read fresh; a root-level
	// destination appends at the right edge and needs no gap.
	var parentRgt int64
	if parentID == RootID {
		max, err := t.maxRight(ctx)
		if err != nil {
			return err
		}
		parentRgt = max + diff + 1
	} else {
		parent, ok, err := t.findNode(ctx, parentID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("parent %d vanished while moving node %d: %w", parentID, id, ErrCorruptTree)
		}
		if err := t.shift(ctx, c.RightColumn, diff, parent.rgt); err != nil {
			return err
		}
		if err := t.shift(ctx, c.LeftColumn, diff, parent.rgt); err != nil {
			return err
		}
		// Read once more: the parent's own rgt moved with the gap.
		parent, ok, err = t.findNode(ctx, parentID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("parent %d vanished while moving node %d: %w", parentID, id, ErrCorruptTree)
		}
		parentRgt = parent.rgt
	}

	// Phase 4: undo the negation while dropping the subtree into the gap,
	// immediately before the parent's right boundary.
	_, err = t.exec(ctx, t.builder().
		Update(c.Table).
		Set(c.LeftColumn, sq.Expr("? - "+c.LeftColumn+" - 1", parentRgt-diff)).
		Set(c.RightColumn, sq.Expr("? - "+c.RightColumn+" - 1", parentRgt-diff)).
		Where(sq.Lt{c.LeftColumn: 0}))
	if err != nil {
		return err
	}

	// Only the moved node's own parent reference changes; its descendants
	// already point at the right rows.
	var parentVal any
	if parentID != RootID {
		parentVal = parentID
	}
	_, err = t.exec(ctx, t.builder().
		Update(c.Table).
		Set(c.ParentColumn, parentVal).
		Where(sq.Eq{c.IDColumn: id}))
	return err
}

// Rebuild discards every boundary and recomputes the whole encoding from the
// parent column alone, walking the forest in preorder. With sorted, children
// are visited in label order; otherwise in whatever order the row scan
// yields. Rows whose parent chain does not reach a root are left detached.
// The table is unusable until the surrounding transaction commits, so this is
// an exclusive maintenance operation.
func (t *Tree) Rebuild(ctx context.Context, sorted bool) error {
	return t.inTransaction(ctx, func(e *Tree) error {
		return e.rebuild(ctx, sorted)
	})
}

func (t *Tree) rebuild(ctx context.Context, sorted bool) error {
	c := t.cfg

	q := t.builder().
		Select(c.IDColumn, c.ParentColumn).
		From(c.Table)
	if sorted {
		q = q.OrderBy(c.LabelColumn + " ASC")
	}
	query, args, err := q.ToSql()
	if err != nil {
		return err
	}
	rows, err := t.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	children := make(map[int64][]int64)
	for rows.Next() {
		var id int64
		var parent sql.NullInt64
		if err := rows.Scan(&id, &parent); err != nil {
			rows.Close()
			return fmt.Errorf("error scanning node: %w", err)
		}
		key := RootID
		if parent.Valid {
			key = parent.Int64
		}
		children[key] = append(children[key], id)
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating nodes: %w", err)
	}

	if _, err := t.exec(ctx, t.builder().
		Update(c.Table).
		Set(c.LeftColumn, nil).
		Set(c.RightColumn, nil)); err != nil {
		return err
	}

	// Explicit work stack instead of recursion so depth is bounded by the
	// tree, not the goroutine stack, and the whole walk runs off the single
	// children index built above.
	type frame struct {
		id   int64
		next int
		lft  int64
	}
	counter := int64(1)
	var stack []frame
	for _, rootID := range children[RootID] {
		stack = append(stack[:0], frame{id: rootID, lft: counter})
		counter++
		for len(stack) > 0 {
			f := &stack[len(stack)-1]
			if f.next < len(children[f.id]) {
				child := children[f.id][f.next]
				f.next++
				stack = append(stack, frame{id: child, lft: counter})
				counter++
				continue
			}
			if err := t.setBoundaries(ctx, f.id, f.lft, counter); err != nil {
				return err
			}
			counter++
			stack = stack[:len(stack)-1]
		}
	}
	return nil
}
