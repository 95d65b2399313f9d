package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"chronicle/docsync/internal/docsync"
	"chronicle/docsync/internal/tree"
)

var _ docsync.Registry = (*DocumentRegistry)(nil)

// DocumentRegistry is the draft-side registry: a document is tracked when it has
// a documents row for its locale and a node in the draft workspace.
type DocumentRegistry struct {
	q         queryer
	workspace string
}

func NewDocumentRegistry(db *sql.DB, workspace string) *DocumentRegistry {
	return &DocumentRegistry{q: db, workspace: workspace}
}

func (r *DocumentRegistry) Lookup(ctx context.Context, doc docsync.Document) (tree.NodeHandle, bool, error) {
	var node tree.NodeHandle
	err := r.q.QueryRowContext(ctx, `
		SELECT t.id, t.path
		FROM documents d
		JOIN tree_nodes t ON t.id = d.id AND t.workspace = $1
		WHERE d.id = $2 AND d.locale = $3
	`, r.workspace, doc.Identifier(), doc.Locale()).Scan(&node.Identifier, &node.Path)
	if errors.Is(err, sql.ErrNoRows) {
		return tree.NodeHandle{}, false, nil
	}
	if err != nil {
		return tree.NodeHandle{}, false, fmt.Errorf("lookup document %s: %w", docsync.Key(doc), err)
	}
	return node, true, nil
}

// Register tracks doc in its locale. The draft node must already exist.
func (r *DocumentRegistry) Register(ctx context.Context, doc docsync.Document, node tree.NodeHandle) error {
	if node.Identifier != doc.Identifier() {
		return fmt.Errorf("register document %s: node carries identifier %s", docsync.Key(doc), node.Identifier)
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO documents (id, locale) VALUES ($1, $2)
		ON CONFLICT (id, locale) DO NOTHING
	`, doc.Identifier(), doc.Locale())
	if err != nil {
		return fmt.Errorf("register document %s: %w", docsync.Key(doc), err)
	}
	return nil
}
