package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Scope groups the accessors of one publish session. All of them share the
// same transaction.
type Scope struct {
	Draft     *TreeStore
	Published *TreeStore
	Documents *DocumentRegistry
	Content   *ContentRepository
	Publishes *PublishLog
}

// Workspaces binds a database to a draft and a published workspace name.
type Workspaces struct {
	db        *sql.DB
	draft     string
	published string
}

func NewWorkspaces(db *sql.DB, draft, published string) *Workspaces {
	return &Workspaces{db: db, draft: draft, published: published}
}

func (w *Workspaces) DB() *sql.DB {
	return w.db
}

// Scope returns accessors that run directly against the database.
func (w *Workspaces) Scope() Scope {
	return w.scope(w.db)
}

// Run calls fn inside one transaction. The transaction commits when fn returns
// nil and rolls back otherwise, so a failed publish leaves no published nodes
// behind.
func (w *Workspaces) Run(ctx context.Context, fn func(Scope) error) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin publish tx: %w", err)
	}
	if err := fn(w.scope(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit publish tx: %w", err)
	}
	return nil
}

func (w *Workspaces) scope(q queryer) Scope {
	draft := &TreeStore{q: q, workspace: w.draft}
	return Scope{
		Draft:     draft,
		Published: &TreeStore{q: q, workspace: w.published},
		Documents: &DocumentRegistry{q: q, workspace: w.draft},
		Content:   &ContentRepository{q: q, draft: draft},
		Publishes: &PublishLog{q: q},
	}
}
