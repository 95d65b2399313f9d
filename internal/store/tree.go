package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"chronicle/docsync/internal/tree"
)

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var _ tree.Store = (*TreeStore)(nil)

// TreeStore is a tree.Store over the tree_nodes rows of one workspace.
type TreeStore struct {
	q         queryer
	workspace string
}

func NewTreeStore(db *sql.DB, workspace string) *TreeStore {
	return &TreeStore{q: db, workspace: workspace}
}

func (s *TreeStore) Workspace() string {
	return s.workspace
}

func (s *TreeStore) HasIdentifier(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM tree_nodes WHERE workspace=$1 AND id=$2)`,
		s.workspace, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("lookup node id %s: %w", id, err)
	}
	return exists, nil
}

func (s *TreeStore) HasPath(ctx context.Context, path string) (bool, error) {
	if err := tree.ValidatePath(path); err != nil {
		return false, err
	}
	if path == tree.RootPath {
		return true, nil
	}
	var exists bool
	err := s.q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM tree_nodes WHERE workspace=$1 AND path=$2)`,
		s.workspace, path).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("lookup node path %s: %w", path, err)
	}
	return exists, nil
}

func (s *TreeStore) FindByIdentifier(ctx context.Context, id string) (tree.NodeHandle, error) {
	node := tree.NodeHandle{Identifier: id}
	err := s.q.QueryRowContext(ctx,
		`SELECT path FROM tree_nodes WHERE workspace=$1 AND id=$2`,
		s.workspace, id).Scan(&node.Path)
	if errors.Is(err, sql.ErrNoRows) {
		return tree.NodeHandle{}, fmt.Errorf("identifier %s: %w", id, tree.ErrNodeNotFound)
	}
	if err != nil {
		return tree.NodeHandle{}, fmt.Errorf("find node id %s: %w", id, err)
	}
	return node, nil
}

func (s *TreeStore) FindByPath(ctx context.Context, path string) (tree.NodeHandle, error) {
	if err := tree.ValidatePath(path); err != nil {
		return tree.NodeHandle{}, err
	}
	node := tree.NodeHandle{Path: path}
	err := s.q.QueryRowContext(ctx,
		`SELECT id FROM tree_nodes WHERE workspace=$1 AND path=$2`,
		s.workspace, path).Scan(&node.Identifier)
	if errors.Is(err, sql.ErrNoRows) {
		return tree.NodeHandle{}, fmt.Errorf("path %s: %w", path, tree.ErrNodeNotFound)
	}
	if err != nil {
		return tree.NodeHandle{}, fmt.Errorf("find node path %s: %w", path, err)
	}
	return node, nil
}

func (s *TreeStore) CreateAt(ctx context.Context, path, id string) (tree.NodeHandle, error) {
	if err := tree.ValidatePath(path); err != nil {
		return tree.NodeHandle{}, err
	}
	if id == "" {
		return tree.NodeHandle{}, tree.ErrInvalidIdentifier
	}
	if path == tree.RootPath {
		return tree.NodeHandle{}, fmt.Errorf("path %s: %w", path, tree.ErrPathExists)
	}

	parent := tree.ParentPath(path)
	parentExists, err := s.HasPath(ctx, parent)
	if err != nil {
		return tree.NodeHandle{}, err
	}
	if !parentExists {
		return tree.NodeHandle{}, fmt.Errorf("parent %s: %w", parent, tree.ErrParentMissing)
	}

	_, err = s.q.ExecContext(ctx,
		`INSERT INTO tree_nodes (workspace, id, path, parent_path) VALUES ($1, $2, $3, $4)`,
		s.workspace, id, path, parent)
	if err != nil {
		if column, ok := uniqueViolation(err); ok {
			if column == "path" {
				return tree.NodeHandle{}, fmt.Errorf("path %s: %w", path, tree.ErrPathExists)
			}
			return tree.NodeHandle{}, fmt.Errorf("identifier %s: %w", id, tree.ErrIdentifierExists)
		}
		return tree.NodeHandle{}, fmt.Errorf("insert node %s: %w", path, err)
	}
	return tree.NodeHandle{Identifier: id, Path: path}, nil
}

func (s *TreeStore) ParentPath(path string) string {
	return tree.ParentPath(path)
}

// Children lists the direct children of path ordered by path.
func (s *TreeStore) Children(ctx context.Context, path string) ([]TreeNode, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT workspace, id, path, parent_path, created_at
		FROM tree_nodes
		WHERE workspace=$1 AND parent_path=$2
		ORDER BY path
	`, s.workspace, path)
	if err != nil {
		return nil, fmt.Errorf("list children of %s: %w", path, err)
	}
	return scanTreeNodes(rows)
}

// Nodes lists every node of the workspace ordered by path.
func (s *TreeStore) Nodes(ctx context.Context) ([]TreeNode, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT workspace, id, path, parent_path, created_at
		FROM tree_nodes
		WHERE workspace=$1
		ORDER BY path
	`, s.workspace)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	return scanTreeNodes(rows)
}

func scanTreeNodes(rows *sql.Rows) ([]TreeNode, error) {
	defer rows.Close()
	var nodes []TreeNode
	for rows.Next() {
		var node TreeNode
		if err := rows.Scan(&node.Workspace, &node.ID, &node.Path, &node.ParentPath, &node.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

// uniqueViolation reports whether err is a unique or primary key violation and
// which tree_nodes column caused it ("path" or "id").
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if strings.Contains(pgErr.ConstraintName, "path") {
			return "path", true
		}
		return "id", true
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) && (liteErr.ExtendedCode == sqlite3.ErrConstraintUnique || liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		if strings.Contains(liteErr.Error(), ".path") {
			return "path", true
		}
		return "id", true
	}
	return "", false
}
