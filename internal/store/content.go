package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"chronicle/docsync/internal/docsync"
	"chronicle/docsync/internal/tree"
)

var ErrDocumentNotFound = errors.New("document not found")

// ContentRepository loads and saves draft documents. Paths come from the draft
// workspace; field values come from document_fields.
type ContentRepository struct {
	q     queryer
	draft *TreeStore
}

func NewContentRepository(db *sql.DB, draftWorkspace string) *ContentRepository {
	return &ContentRepository{q: db, draft: NewTreeStore(db, draftWorkspace)}
}

// LoadDocument builds the draft document id in locale. References and the
// parent are loaded one level deep: they carry identity and path only. A
// reference whose target has no draft node is dropped.
func (r *ContentRepository) LoadDocument(ctx context.Context, id, locale string) (*docsync.Entry, error) {
	var title string
	err := r.q.QueryRowContext(ctx,
		`SELECT title FROM documents WHERE id=$1 AND locale=$2`, id, locale).Scan(&title)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s:%s", ErrDocumentNotFound, locale, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", id, err)
	}

	node, err := r.draft.FindByIdentifier(ctx, id)
	if errors.Is(err, tree.ErrNodeNotFound) {
		return nil, fmt.Errorf("%w: %s:%s has no draft node", ErrDocumentNotFound, locale, id)
	}
	if err != nil {
		return nil, err
	}

	fields, err := r.loadFields(ctx, id, locale)
	if err != nil {
		return nil, err
	}

	entry := &docsync.Entry{ID: id, NodePath: node.Path, Lang: locale, Title: title}
	if entry.Fields, err = r.resolveFields(ctx, locale, fields); err != nil {
		return nil, err
	}
	if entry.ParentOf, err = r.parentOf(ctx, node.Path, locale); err != nil {
		return nil, err
	}
	return entry, nil
}

// SaveDocument replaces the title and fields of a draft document.
func (r *ContentRepository) SaveDocument(ctx context.Context, doc DocumentRecord) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO documents (id, locale, title) VALUES ($1, $2, $3)
		ON CONFLICT (id, locale) DO UPDATE SET title = EXCLUDED.title, updated_at = CURRENT_TIMESTAMP
	`, doc.ID, doc.Locale, doc.Title)
	if err != nil {
		return fmt.Errorf("save document %s: %w", doc.ID, err)
	}

	if _, err := r.q.ExecContext(ctx,
		`DELETE FROM document_fields WHERE document_id=$1 AND locale=$2`, doc.ID, doc.Locale); err != nil {
		return fmt.Errorf("clear fields of %s: %w", doc.ID, err)
	}
	for i, field := range doc.Fields {
		var ref any
		if field.RefID != "" {
			ref = field.RefID
		}
		_, err := r.q.ExecContext(ctx, `
			INSERT INTO document_fields (document_id, locale, position, name, kind, value, ref_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, doc.ID, doc.Locale, i, field.Name, field.Kind, field.Value, ref)
		if err != nil {
			return fmt.Errorf("save field %s of %s: %w", field.Name, doc.ID, err)
		}
	}
	return nil
}

func (r *ContentRepository) loadFields(ctx context.Context, id, locale string) ([]FieldRecord, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT name, kind, value, ref_id
		FROM document_fields
		WHERE document_id=$1 AND locale=$2
		ORDER BY position
	`, id, locale)
	if err != nil {
		return nil, fmt.Errorf("load fields of %s: %w", id, err)
	}
	defer rows.Close()

	var fields []FieldRecord
	for rows.Next() {
		var field FieldRecord
		var ref sql.NullString
		if err := rows.Scan(&field.Name, &field.Kind, &field.Value, &ref); err != nil {
			return nil, fmt.Errorf("scan field: %w", err)
		}
		field.RefID = ref.String
		fields = append(fields, field)
	}
	return fields, rows.Err()
}

func (r *ContentRepository) resolveFields(ctx context.Context, locale string, records []FieldRecord) ([]docsync.FieldMapping, error) {
	var mappings []docsync.FieldMapping
	lists := map[string]int{}

	for _, record := range records {
		switch record.Kind {
		case FieldRefs:
			idx, ok := lists[record.Name]
			if !ok {
				idx = len(mappings)
				lists[record.Name] = idx
				mappings = append(mappings, docsync.FieldMapping{Name: record.Name, Value: []docsync.Document{}})
			}
			ref, err := r.reference(ctx, record.RefID, locale)
			if err != nil {
				return nil, err
			}
			if ref != nil {
				mappings[idx].Value = append(mappings[idx].Value.([]docsync.Document), ref)
			}
		case FieldRef:
			ref, err := r.reference(ctx, record.RefID, locale)
			if err != nil {
				return nil, err
			}
			mapping := docsync.FieldMapping{Name: record.Name}
			if ref != nil {
				mapping.Value = ref
			}
			mappings = append(mappings, mapping)
		default:
			value, err := scalarValue(record)
			if err != nil {
				return nil, err
			}
			mappings = append(mappings, docsync.FieldMapping{Name: record.Name, Value: value})
		}
	}
	return mappings, nil
}

func (r *ContentRepository) reference(ctx context.Context, id, locale string) (docsync.Document, error) {
	if id == "" {
		return nil, nil
	}
	node, err := r.draft.FindByIdentifier(ctx, id)
	if errors.Is(err, tree.ErrNodeNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &docsync.Entry{ID: id, NodePath: node.Path, Lang: locale}, nil
}

// parentOf returns the document at the parent path, if the parent node is a
// document in locale and not a plain folder.
func (r *ContentRepository) parentOf(ctx context.Context, path, locale string) (docsync.Document, error) {
	parentPath := tree.ParentPath(path)
	if parentPath == "" || parentPath == tree.RootPath {
		return nil, nil
	}
	node, err := r.draft.FindByPath(ctx, parentPath)
	if errors.Is(err, tree.ErrNodeNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var exists bool
	err = r.q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM documents WHERE id=$1 AND locale=$2)`, node.Identifier, locale).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("lookup parent document %s: %w", node.Identifier, err)
	}
	if !exists {
		return nil, nil
	}
	return &docsync.Entry{ID: node.Identifier, NodePath: node.Path, Lang: locale}, nil
}

func scalarValue(record FieldRecord) (any, error) {
	switch record.Kind {
	case FieldString:
		return record.Value, nil
	case FieldInt:
		v, err := strconv.ParseInt(record.Value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", record.Name, err)
		}
		return v, nil
	case FieldBool:
		v, err := strconv.ParseBool(record.Value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", record.Name, err)
		}
		return v, nil
	case FieldTime:
		v, err := time.Parse(time.RFC3339, record.Value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", record.Name, err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("field %s: unknown kind %q", record.Name, record.Kind)
	}
}
